package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/coolbeans/contracta/pkg/classify"
	"github.com/coolbeans/contracta/pkg/config"
	"github.com/coolbeans/contracta/pkg/definition"
	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/entity"
	"github.com/coolbeans/contracta/pkg/lei"
	"github.com/coolbeans/contracta/pkg/llm"
	"github.com/coolbeans/contracta/pkg/normalize"
	"github.com/coolbeans/contracta/pkg/segment"
	"github.com/coolbeans/contracta/pkg/textclean"
	"github.com/coolbeans/contracta/pkg/tokenize"
	"github.com/coolbeans/contracta/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stage names used by the default assembly.
const (
	StageCleanText        = "clean_text"
	StageTokenizer        = "tokenizer"
	StageSentenceSplitter = "sentence_splitter"
	StageSegmenter        = "section_segmenter"
	StageDefinitionFinder = "definition_finder"
)

// NewDefault builds the structural pipeline: cleaning, tokenization, sentence
// splitting, segmentation and definition finding.
func NewDefault(logger *zap.Logger) *Pipeline {
	pipeline := New(logger)
	pipeline.MustAdd(StageCleanText, textclean.New(textclean.Options{}))
	pipeline.MustAdd(StageTokenizer, tokenize.NewTokenizer())
	pipeline.MustAdd(StageSentenceSplitter, tokenize.NewSentenceSplitter())
	pipeline.MustAdd(StageSegmenter, segment.New(segment.Options{Logger: logger}))
	pipeline.MustAdd(StageDefinitionFinder, definition.NewFinder(logger))
	return pipeline
}

// Dependencies are the shared clients FromConfig wires into stages. Nil fields
// are built from the configuration when a stage needs them.
type Dependencies struct {
	Logger     *zap.Logger
	HTTPClient transport.HTTPClient
	LLM        *llm.Client
	LEI        *lei.Client
	Catalog    *entity.CatalogRegistry
}

type assembler struct {
	config config.Config
	deps   Dependencies
	logger *zap.Logger
}

// FromConfig builds the full pipeline described by cfg.
func FromConfig(cfg config.Config, deps Dependencies) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Op: "assemble", Message: "invalid configuration", Err: err}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	a := &assembler{config: cfg, deps: deps, logger: deps.Logger}

	pipeline := New(a.logger)
	pipeline.MustAdd(StageCleanText, textclean.New(cfg.Text))
	pipeline.MustAdd(StageTokenizer, tokenize.NewTokenizer())
	pipeline.MustAdd(StageSentenceSplitter, tokenize.NewSentenceSplitter(cfg.Abbreviations...))

	segmenter, err := a.segmenter()
	if err != nil {
		return nil, err
	}
	pipeline.MustAdd(StageSegmenter, segmenter)
	pipeline.MustAdd(StageDefinitionFinder, definition.NewFinder(a.logger))

	normalizers, err := a.normalizerDependencies()
	if err != nil {
		return nil, err
	}

	if err := a.addRecognizers(pipeline, normalizers); err != nil {
		return nil, err
	}
	if err := a.addLabelers(pipeline, normalizers); err != nil {
		return nil, err
	}
	if err := a.addClassifiers(pipeline); err != nil {
		return nil, err
	}

	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return pipeline, nil
}

func (a *assembler) segmenter() (Stage, error) {
	policy, err := segment.ParsePolicy(a.config.Segmentation.Policy)
	if err != nil {
		return nil, &ConfigError{Op: "assemble", Message: "segmentation", Err: err}
	}

	denyList := append(append([]string{}, segment.DefaultDenyList...), a.config.Segmentation.DenyList...)
	rules := segment.New(segment.Options{
		DenyList:  denyList,
		Policy:    policy,
		Threshold: a.config.Segmentation.Threshold,
		Logger:    a.logger,
	})
	if !a.config.Segmentation.UseLLM {
		return rules, nil
	}

	model, err := a.llm()
	if err != nil {
		return nil, err
	}
	return segment.NewLLMSegmenter(model, rules, model.ChunkTokens(), a.logger), nil
}

func (a *assembler) llm() (*llm.Client, error) {
	if a.deps.LLM != nil {
		return a.deps.LLM, nil
	}
	client, err := llm.New(a.config.LLM, a.logger)
	if err != nil {
		return nil, &ConfigError{Op: "assemble", Message: "llm client", Err: err}
	}
	a.deps.LLM = client
	return client, nil
}

func (a *assembler) normalizerDependencies() (normalize.Dependencies, error) {
	deps := normalize.Dependencies{Logger: a.logger}

	if a.config.Jurisdictions != "" {
		table, err := normalize.LoadJurisdictionTable(a.config.Jurisdictions)
		if err != nil {
			return deps, &ConfigError{Op: "assemble", Message: "jurisdiction table", Err: err}
		}
		deps.Jurisdictions = table
	}

	if a.config.LEI.Enabled {
		if a.deps.LEI == nil {
			a.deps.LEI = lei.NewClient(lei.Config{
				BaseURL:    a.config.LEI.BaseURL,
				Timeout:    a.config.LEI.Timeout.Std(),
				RateLimit:  a.config.LEI.RateLimit.Std(),
				CacheTTL:   a.config.LEI.CacheTTL.Std(),
				HTTPClient: a.deps.HTTPClient,
			}, a.logger)
		}
		deps.Registry = a.deps.LEI
	}
	return deps, nil
}

func (a *assembler) catalog() (*entity.CatalogRegistry, error) {
	if a.deps.Catalog != nil {
		return a.deps.Catalog, nil
	}
	catalog := entity.NewCatalogRegistry(a.logger)
	if a.config.RulesDir != "" {
		if err := catalog.LoadDirectory(a.config.RulesDir); err != nil {
			return nil, &ConfigError{Op: "assemble", Message: "rule catalogs", Err: err}
		}
		if a.config.WatchRules {
			if err := catalog.Watch(); err != nil {
				return nil, &ConfigError{Op: "assemble", Message: "watching rule catalogs", Err: err}
			}
		}
	}
	a.deps.Catalog = catalog
	return catalog, nil
}

// catalogPredictor resolves its rule set on every call so hot-reloaded
// catalogs take effect without rebuilding the pipeline.
type catalogPredictor struct {
	catalog  *entity.CatalogRegistry
	name     string
	fallback *entity.RuleSet
}

func (predictor *catalogPredictor) Predict(ctx context.Context, text string) ([]entity.Candidate, error) {
	ruleSet := predictor.fallback
	if current, ok := predictor.catalog.Get(predictor.name); ok {
		ruleSet = current
	}
	if ruleSet == nil {
		return nil, fmt.Errorf("rule set %q is no longer registered", predictor.name)
	}
	regex, err := ruleSet.Predictor()
	if err != nil {
		return nil, err
	}
	return regex.Predict(ctx, text)
}

func (a *assembler) addRecognizers(pipeline *Pipeline, deps normalize.Dependencies) error {
	builtIn, err := entity.DefaultRuleSets()
	if err != nil {
		return &ConfigError{Op: "assemble", Message: "built-in rule sets", Err: err}
	}
	defaults := make(map[string]*entity.RuleSet, len(builtIn))
	for _, ruleSet := range builtIn {
		defaults[ruleSet.Name] = ruleSet
	}

	catalog, err := a.catalog()
	if err != nil {
		return err
	}

	for _, recognizerConfig := range a.config.Recognizers {
		name := recognizerConfig.Catalog()
		ruleSet, ok := catalog.Get(name)
		if !ok {
			ruleSet, ok = defaults[name]
		}
		if !ok {
			return &ConfigError{Op: "assemble", Message: fmt.Sprintf("recognizer %q: unknown rule set %q", recognizerConfig.Name, name)}
		}

		keywords := recognizerConfig.Keywords
		if len(keywords) == 0 {
			keywords = ruleSet.Keywords
		}
		normalizerName := recognizerConfig.Normalizer
		if normalizerName == "" {
			normalizerName = ruleSet.Normalizer
		}

		options, err := recognizerOptions(keywords, normalizerName, deps, a.logger)
		if err != nil {
			return &ConfigError{Op: "assemble", Message: fmt.Sprintf("recognizer %q", recognizerConfig.Name), Err: err}
		}

		var predictor entity.Predictor = &catalogPredictor{catalog: catalog, name: name, fallback: defaults[name]}
		if predictor, err = a.gate(recognizerConfig.Name, recognizerConfig.Gate, predictor); err != nil {
			return err
		}
		if err := pipeline.Add(recognizerConfig.Name, entity.NewRecognizer(recognizerConfig.Name, predictor, options...)); err != nil {
			return err
		}
	}
	return nil
}

func recognizerOptions(keywords []string, normalizerName string, deps normalize.Dependencies, logger *zap.Logger) ([]entity.Option, error) {
	options := []entity.Option{entity.WithLogger(logger)}
	if len(keywords) > 0 {
		options = append(options, entity.WithKeywords(keywords...))
	}
	normalizer, err := normalize.New(normalizerName, deps)
	if err != nil {
		return nil, err
	}
	if normalizer != nil {
		options = append(options, entity.WithNormalizer(normalizer))
	}
	return options, nil
}

func (a *assembler) addLabelers(pipeline *Pipeline, deps normalize.Dependencies) error {
	for _, labelerConfig := range a.config.Labelers {
		httpClient := a.deps.HTTPClient
		if httpClient == nil && labelerConfig.Timeout > 0 {
			httpClient = &http.Client{Timeout: labelerConfig.Timeout.Std()}
		}

		var token string
		if labelerConfig.TokenEnv != "" {
			token = os.Getenv(labelerConfig.TokenEnv)
		}

		labeler, err := entity.NewLabelerPredictor(entity.LabelerConfig{
			Endpoint:   labelerConfig.Endpoint,
			Labels:     labelerConfig.Labels,
			MinScore:   labelerConfig.MinScore,
			Token:      token,
			HTTPClient: transport.NewRateLimitedHTTPClient(httpClient, transport.DefaultRequestInterval),
		})
		if err != nil {
			return &ConfigError{Op: "assemble", Message: fmt.Sprintf("labeler %q", labelerConfig.Name), Err: err}
		}
		predictor, err := a.gate(labelerConfig.Name, labelerConfig.Gate, labeler)
		if err != nil {
			return err
		}

		options, err := recognizerOptions(labelerConfig.Keywords, labelerConfig.Normalizer, deps, a.logger)
		if err != nil {
			return &ConfigError{Op: "assemble", Message: fmt.Sprintf("labeler %q", labelerConfig.Name), Err: err}
		}
		if err := pipeline.Add(labelerConfig.Name, entity.NewRecognizer(labelerConfig.Name, predictor, options...)); err != nil {
			return err
		}
	}
	return nil
}

// gate wraps inner in a ClassifierGate when the stage configures one.
func (a *assembler) gate(name string, gateConfig *config.GateConfig, inner entity.Predictor) (entity.Predictor, error) {
	if gateConfig == nil {
		return inner, nil
	}

	var classifier classify.Predictor
	switch gateConfig.Predictor {
	case config.PredictorKeyword:
		classifier = classify.NewKeywordPredictor(gateConfig.Cues, "")
	case config.PredictorLLM:
		model, err := a.llm()
		if err != nil {
			return nil, err
		}
		llmPredictor, err := classify.NewLLMPredictor(model, gateConfig.Labels, "", 0)
		if err != nil {
			return nil, &ConfigError{Op: "assemble", Message: fmt.Sprintf("gate for %q", name), Err: err}
		}
		classifier = llmPredictor
	default:
		return nil, &ConfigError{Op: "assemble", Message: fmt.Sprintf("gate for %q: unknown predictor %q", name, gateConfig.Predictor)}
	}
	return entity.NewClassifierGate(classifier, gateConfig.PositiveLabel, gateConfig.MinScore, inner), nil
}

func (a *assembler) addClassifiers(pipeline *Pipeline) error {
	for _, classifierConfig := range a.config.Classifiers {
		var predictor classify.Predictor
		switch classifierConfig.Predictor {
		case config.PredictorDocumentType:
			predictor = classify.NewKeywordPredictor(classify.DocumentTypeCues(), classifierConfig.Fallback)
		case config.PredictorLanguage:
			predictor = classify.NewKeywordPredictor(classify.LanguageCues(), classifierConfig.Fallback)
		case config.PredictorLLM:
			model, err := a.llm()
			if err != nil {
				return err
			}
			llmPredictor, err := classify.NewLLMPredictor(model, classifierConfig.Labels, classifierConfig.Fallback, 0)
			if err != nil {
				return &ConfigError{Op: "assemble", Message: fmt.Sprintf("classifier %q", classifierConfig.Name), Err: err}
			}
			predictor = llmPredictor
		default:
			return &ConfigError{Op: "assemble", Message: fmt.Sprintf("classifier %q: unknown predictor %q", classifierConfig.Name, classifierConfig.Predictor)}
		}

		classifier, err := classify.New(classifierConfig.Config, predictor, a.logger)
		if err != nil {
			return err
		}
		if err := pipeline.Add(classifierConfig.Name, classifier); err != nil {
			return err
		}
	}
	return nil
}

// Result is the outcome for one document of a batch.
type Result struct {
	Document *document.Document
	Err      error
}

// Batch processes docs with at most limit running at once. A failing document
// does not stop the others; its error is reported in its Result. Results are
// in input order. Stages must be safe for concurrent use.
func (pipeline *Pipeline) Batch(ctx context.Context, docs []*document.Document, limit int) []Result {
	results := make([]Result, len(docs))
	if limit <= 0 {
		limit = 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, doc := range docs {
		i, doc := i, doc
		group.Go(func() error {
			results[i] = Result{Document: doc, Err: pipeline.Process(groupCtx, doc)}
			return nil
		})
	}
	_ = group.Wait()
	return results
}
