// Package config loads the annotation pipeline configuration from YAML or TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coolbeans/contracta/pkg/classify"
	"github.com/coolbeans/contracta/pkg/entity"
	"github.com/coolbeans/contracta/pkg/llm"
	"github.com/coolbeans/contracta/pkg/normalize"
	"github.com/coolbeans/contracta/pkg/segment"
	"github.com/coolbeans/contracta/pkg/textclean"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "10s" or "500ms".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText writes the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full pipeline configuration.
type Config struct {
	Text          textclean.Options  `yaml:"text" toml:"text"`
	Abbreviations []string           `yaml:"abbreviations,omitempty" toml:"abbreviations,omitempty"`
	Segmentation  SegmentationConfig `yaml:"segmentation" toml:"segmentation"`
	RulesDir      string             `yaml:"rules_dir,omitempty" toml:"rules_dir,omitempty"`
	WatchRules    bool               `yaml:"watch_rules" toml:"watch_rules"`
	Recognizers   []RecognizerConfig `yaml:"recognizers" toml:"recognizers"`
	Labelers      []LabelerConfig    `yaml:"labelers,omitempty" toml:"labelers,omitempty"`
	Classifiers   []ClassifierConfig `yaml:"classifiers" toml:"classifiers"`
	LEI           LEIConfig          `yaml:"lei" toml:"lei"`
	LLM           llm.Config         `yaml:"llm" toml:"llm"`
	Jurisdictions string             `yaml:"jurisdictions,omitempty" toml:"jurisdictions,omitempty"`
}

// SegmentationConfig selects the segmentation policy.
type SegmentationConfig struct {
	Policy    string   `yaml:"policy" toml:"policy"`
	Threshold int      `yaml:"threshold" toml:"threshold"`
	DenyList  []string `yaml:"deny_list,omitempty" toml:"deny_list,omitempty"`
	UseLLM    bool     `yaml:"use_llm" toml:"use_llm"`
}

// RecognizerConfig binds a rule catalog to a recognizer stage. Keywords and
// Normalizer override the catalog's own settings when set.
type RecognizerConfig struct {
	Name       string      `yaml:"name" toml:"name"`
	RuleSet    string      `yaml:"rule_set,omitempty" toml:"rule_set,omitempty"`
	Keywords   []string    `yaml:"keywords,omitempty" toml:"keywords,omitempty"`
	Normalizer string      `yaml:"normalizer,omitempty" toml:"normalizer,omitempty"`
	Gate       *GateConfig `yaml:"gate,omitempty" toml:"gate,omitempty"`
}

// Catalog returns the rule set name, defaulting to the recognizer name.
func (recognizer RecognizerConfig) Catalog() string {
	if recognizer.RuleSet != "" {
		return recognizer.RuleSet
	}
	return recognizer.Name
}

// LabelerConfig adds a sequence-labeling recognizer backed by an HTTP service.
type LabelerConfig struct {
	Name       string            `yaml:"name" toml:"name"`
	Endpoint   string            `yaml:"endpoint" toml:"endpoint"`
	Labels     map[string]string `yaml:"labels,omitempty" toml:"labels,omitempty"`
	MinScore   float64           `yaml:"min_score" toml:"min_score"`
	TokenEnv   string            `yaml:"token_env,omitempty" toml:"token_env,omitempty"`
	Keywords   []string          `yaml:"keywords,omitempty" toml:"keywords,omitempty"`
	Normalizer string            `yaml:"normalizer,omitempty" toml:"normalizer,omitempty"`
	Timeout    Duration          `yaml:"timeout" toml:"timeout"`
	Gate       *GateConfig       `yaml:"gate,omitempty" toml:"gate,omitempty"`
}

// GateConfig puts a segment classifier in front of a recognizer. Only
// segments labeled PositiveLabel with at least MinScore are scanned.
type GateConfig struct {
	Predictor     string                        `yaml:"predictor" toml:"predictor"`
	Cues          map[string][]classify.Keyword `yaml:"cues,omitempty" toml:"cues,omitempty"`
	Labels        []string                      `yaml:"labels,omitempty" toml:"labels,omitempty"`
	PositiveLabel string                        `yaml:"positive_label" toml:"positive_label"`
	MinScore      float64                       `yaml:"min_score" toml:"min_score"`
}

func (gate *GateConfig) validate() error {
	if gate.PositiveLabel == "" {
		return fmt.Errorf("gate: positive_label is required")
	}
	if gate.MinScore < 0 || gate.MinScore > 1 {
		return fmt.Errorf("gate: min_score must be between 0 and 1")
	}
	switch gate.Predictor {
	case PredictorKeyword:
		if len(gate.Cues[gate.PositiveLabel]) == 0 {
			return fmt.Errorf("gate: keyword predictor needs cues for %q", gate.PositiveLabel)
		}
	case PredictorLLM:
		if len(gate.Labels) == 0 {
			return fmt.Errorf("gate: llm predictor needs labels")
		}
	default:
		return fmt.Errorf("gate: unknown predictor %q", gate.Predictor)
	}
	return nil
}

// Predictor names for classifiers.
const (
	PredictorDocumentType = "keyword_document_type"
	PredictorLanguage     = "keyword_language"
	PredictorLLM          = "llm"

	// PredictorKeyword scores configured cues. Gates only.
	PredictorKeyword = "keyword"
)

// ClassifierConfig adds a classifier stage.
type ClassifierConfig struct {
	classify.Config `yaml:",inline"`

	Predictor string   `yaml:"predictor" toml:"predictor"`
	Labels    []string `yaml:"labels,omitempty" toml:"labels,omitempty"`
	Fallback  string   `yaml:"fallback,omitempty" toml:"fallback,omitempty"`
}

// LEIConfig configures registry lookups for legal entities.
type LEIConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	BaseURL   string   `yaml:"base_url" toml:"base_url"`
	Timeout   Duration `yaml:"timeout" toml:"timeout"`
	RateLimit Duration `yaml:"rate_limit" toml:"rate_limit"`
	CacheTTL  Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// Default returns the production configuration.
func Default() Config {
	recognizers := make([]RecognizerConfig, 0, len(entity.DefaultOrder))
	for _, name := range entity.DefaultOrder {
		recognizers = append(recognizers, RecognizerConfig{Name: name})
	}

	return Config{
		Segmentation: SegmentationConfig{
			Policy:    segment.DirectAccept.String(),
			Threshold: segment.DefaultTitleThreshold,
		},
		Recognizers: recognizers,
		Classifiers: []ClassifierConfig{
			{
				Config: classify.Config{
					Name:          "document_type",
					Method:        classify.MethodLines,
					Range:         &classify.Range{End: 15},
					Field:         "document_type",
					RemoveNumbers: true,
				},
				Predictor: PredictorDocumentType,
			},
			{
				Config: classify.Config{
					Name:          "language",
					Method:        classify.MethodLines,
					Range:         &classify.Range{End: 50},
					Field:         "language",
					RemoveNumbers: true,
				},
				Predictor: PredictorLanguage,
			},
		},
		LEI: LEIConfig{
			BaseURL:   "https://api.gleif.org/api/v1",
			Timeout:   Duration(10 * time.Second),
			RateLimit: Duration(500 * time.Millisecond),
			CacheTTL:  Duration(24 * time.Hour),
		},
		LLM: llm.DefaultConfig(),
	}
}

// Load reads path over the defaults. The decoder is chosen by extension.
func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	case ".toml":
		err = toml.Unmarshal(data, &config)
	default:
		return config, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return config, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Validate checks every section and returns the first problem.
func (config Config) Validate() error {
	if _, err := segment.ParsePolicy(config.Segmentation.Policy); err != nil {
		return fmt.Errorf("segmentation: %w", err)
	}
	if config.Segmentation.Threshold < 0 {
		return fmt.Errorf("segmentation: threshold must not be negative")
	}

	for i, recognizer := range config.Recognizers {
		if recognizer.Name == "" {
			return fmt.Errorf("recognizer %d: name is required", i)
		}
		if recognizer.Normalizer != "" && !normalize.Known(recognizer.Normalizer) {
			return fmt.Errorf("recognizer %s: unknown normalizer %q", recognizer.Name, recognizer.Normalizer)
		}
		if recognizer.Gate != nil {
			if err := recognizer.Gate.validate(); err != nil {
				return fmt.Errorf("recognizer %s: %w", recognizer.Name, err)
			}
		}
	}

	for i, labeler := range config.Labelers {
		if labeler.Name == "" || labeler.Endpoint == "" {
			return fmt.Errorf("labeler %d: name and endpoint are required", i)
		}
		if labeler.Normalizer != "" && !normalize.Known(labeler.Normalizer) {
			return fmt.Errorf("labeler %s: unknown normalizer %q", labeler.Name, labeler.Normalizer)
		}
		if labeler.Timeout < 0 {
			return fmt.Errorf("labeler %s: timeout must be positive", labeler.Name)
		}
		if labeler.Gate != nil {
			if err := labeler.Gate.validate(); err != nil {
				return fmt.Errorf("labeler %s: %w", labeler.Name, err)
			}
		}
	}

	for _, classifier := range config.Classifiers {
		if err := classifier.Config.Validate(); err != nil {
			return err
		}
		switch classifier.Predictor {
		case PredictorDocumentType, PredictorLanguage:
		case PredictorLLM:
			if len(classifier.Labels) == 0 {
				return fmt.Errorf("classifier %s: llm predictor needs labels", classifier.Name)
			}
		default:
			return fmt.Errorf("classifier %s: unknown predictor %q", classifier.Name, classifier.Predictor)
		}
	}

	if config.LEI.Enabled {
		if config.LEI.Timeout <= 0 {
			return fmt.Errorf("lei: timeout must be positive")
		}
		if config.LEI.RateLimit < 0 || config.LEI.CacheTTL < 0 {
			return fmt.Errorf("lei: rate limit and cache ttl must not be negative")
		}
	}
	return nil
}
