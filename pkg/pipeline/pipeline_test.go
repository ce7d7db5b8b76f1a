package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coolbeans/contracta/pkg/classify"
	"github.com/coolbeans/contracta/pkg/config"
	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
	calls  atomic.Int32
}

func (mockClient *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	mockClient.calls.Add(1)
	return mockClient.DoFunc(req)
}

func noop() Stage {
	return StageFunc(func(ctx context.Context, doc *document.Document) error { return nil })
}

type contractStage struct {
	requires, provides []document.Field
}

func (s contractStage) Process(ctx context.Context, doc *document.Document) error { return nil }

func (s contractStage) Contract() (requires, provides []document.Field) {
	return s.requires, s.provides
}

func TestAddPlacement(t *testing.T) {
	pipeline := New(nil)
	require.NoError(t, pipeline.Add("a", noop()))
	require.NoError(t, pipeline.Add("c", noop()))
	require.NoError(t, pipeline.Add("b", noop(), Before("c")))
	require.NoError(t, pipeline.Add("d", noop(), After("c")))
	require.NoError(t, pipeline.Add("start", noop(), Before("a")))

	assert.Equal(t, []string{"start", "a", "b", "c", "d"}, pipeline.Names())
	assert.Equal(t, 5, pipeline.Len())
}

func TestAddErrors(t *testing.T) {
	pipeline := New(nil)
	require.NoError(t, pipeline.Add("a", noop()))

	err := pipeline.Add("x", noop(), Before("a"), After("a"))
	assert.ErrorIs(t, err, ErrConflictingAnchors)

	err = pipeline.Add("x", noop(), Before("missing"))
	assert.ErrorIs(t, err, ErrStageNotFound)

	err = pipeline.Add("x", noop(), After("missing"))
	assert.ErrorIs(t, err, ErrStageNotFound)

	var configErr *ConfigError
	assert.ErrorAs(t, pipeline.Add("x", nil), &configErr)
	assert.Equal(t, []string{"a"}, pipeline.Names())
}

func TestDuplicateNamesAnchorOnFirst(t *testing.T) {
	pipeline := New(nil)
	pipeline.MustAdd("recognizer", noop())
	pipeline.MustAdd("recognizer", noop())
	pipeline.MustAdd("marker", noop(), After("recognizer"))

	assert.Equal(t, []string{"recognizer", "marker", "recognizer"}, pipeline.Names())

	require.NoError(t, pipeline.Remove("recognizer"))
	assert.Equal(t, []string{"marker", "recognizer"}, pipeline.Names())
	assert.ErrorIs(t, pipeline.Remove("missing"), ErrStageNotFound)
}

func TestStageLookup(t *testing.T) {
	pipeline := NewDefault(nil)
	_, ok := pipeline.Stage(StageSegmenter)
	assert.True(t, ok)
	_, ok = pipeline.Stage("nope")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	pipeline := New(nil)
	pipeline.MustAdd("needs_segments", contractStage{requires: []document.Field{document.FieldSegments}})
	assert.Error(t, pipeline.Validate())

	pipeline = New(nil)
	pipeline.MustAdd("segmenter", contractStage{
		requires: []document.Field{document.FieldText},
		provides: []document.Field{document.FieldSegments},
	})
	pipeline.MustAdd("needs_segments", contractStage{requires: []document.Field{document.FieldSegments}})
	assert.NoError(t, pipeline.Validate())

	assert.NoError(t, NewDefault(nil).Validate())
}

func TestProcessWrapsStageErrors(t *testing.T) {
	failure := errors.New("model unavailable")
	var ran []string

	pipeline := New(nil)
	pipeline.MustAdd("first", StageFunc(func(ctx context.Context, doc *document.Document) error {
		ran = append(ran, "first")
		return nil
	}))
	pipeline.MustAdd("second", StageFunc(func(ctx context.Context, doc *document.Document) error {
		return failure
	}))
	pipeline.MustAdd("third", StageFunc(func(ctx context.Context, doc *document.Document) error {
		ran = append(ran, "third")
		return nil
	}))

	_, err := pipeline.Run(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "stage second")
	assert.Equal(t, []string{"first"}, ran)
}

func TestProcessHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDefault(nil).Run(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPipelineScenario(t *testing.T) {
	raw := "SECTION 1. Definitions\nSome body text.\nSECTION 2. Term\nOther text."

	doc, err := NewDefault(nil).Run(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, raw, doc.Text)
	require.Len(t, doc.Segments, 2)
	assert.Equal(t, "Definitions", doc.Segments[0].Title)
	assert.Equal(t, "1", doc.Segments[0].Section)
	assert.Equal(t, "Term", doc.Segments[1].Title)
	assert.Equal(t, "2", doc.Segments[1].Section)
	assert.Equal(t, 0, doc.Segments[0].Start)
	assert.Equal(t, len(raw), doc.Segments[1].End)
	assert.Empty(t, doc.Glossary)

	for _, token := range doc.Tokens {
		assert.Equal(t, token.Text, doc.Text[token.Start:token.End()])
	}
}

func TestDefaultPipelineDefinitions(t *testing.T) {
	doc, err := NewDefault(nil).Run(context.Background(), `The "Buyer" means ACME Corp.`)
	require.NoError(t, err)

	definition, ok := doc.Definition("Buyer")
	require.True(t, ok)
	assert.Equal(t, "ACME Corp.", definition.Definition)
}

func TestDefaultPipelineDefinitionsAfterCompanySuffix(t *testing.T) {
	doc, err := NewDefault(nil).Run(context.Background(), `The "Buyer" means ACME Corp. The "Seller" means Beta Ltd.`)
	require.NoError(t, err)

	require.Len(t, doc.Glossary, 2)
	buyer, ok := doc.Definition("Buyer")
	require.True(t, ok)
	assert.Equal(t, "ACME Corp.", buyer.Definition)
	seller, ok := doc.Definition("Seller")
	require.True(t, ok)
	assert.Equal(t, "Beta Ltd.", seller.Definition)
}

const contract = "SECTION 1. Governing Law\n" +
	"This Agreement is governed by the laws of the State of New York.\n" +
	"SECTION 2. Definitions\n" +
	"The \"Buyer\" means ACME Corp.\n"

func TestFromConfigDefaults(t *testing.T) {
	pipeline, err := FromConfig(config.Default(), Dependencies{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		StageCleanText, StageTokenizer, StageSentenceSplitter, StageSegmenter, StageDefinitionFinder,
		"effective_date", "currency", "governing_law", "legal_entity",
		"document_type", "language",
	}, pipeline.Names())

	doc, err := pipeline.Run(context.Background(), contract)
	require.NoError(t, err)

	governing := doc.EntitiesByLabel("gov_law")
	require.Len(t, governing, 1)
	assert.Equal(t, "New York", governing[0].Name)
	assert.Equal(t, "New York, United States", governing[0].Normalized)
	assert.Equal(t, "governing_law", governing[0].Source)

	parties := doc.EntitiesByLabel("legal_entity")
	require.Len(t, parties, 1)
	assert.Equal(t, "ACME Corp.", parties[0].Name)
	assert.Equal(t, "Acme Corp.", parties[0].Normalized)
	assert.Nil(t, parties[0].LEI)

	_, ok := doc.Definition("Buyer")
	assert.True(t, ok)
	assert.Equal(t, "purchase", doc.DocumentType)
	assert.Equal(t, "en", doc.Language)

	for i := range doc.Entities {
		for j := i + 1; j < len(doc.Entities); j++ {
			assert.False(t, doc.Entities[i].Overlaps(doc.Entities[j]))
		}
	}
}

func TestFromConfigWithRegistry(t *testing.T) {
	mockClient := &MockHTTPClient{DoFunc: func(req *http.Request) (*http.Response, error) {
		assert.Contains(t, req.URL.RawQuery, "filter%5Bentity.legalName%5D=Acme+Corp.")
		body := `{"data":[{"attributes":{"lei":"5493001KJTIIGC8Y1R12","entity":{"legalName":{"name":"ACME CORP."},"status":"ACTIVE"}}}]}`
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil
	}}

	cfg := config.Default()
	cfg.LEI.Enabled = true
	cfg.LEI.RateLimit = 0

	pipeline, err := FromConfig(cfg, Dependencies{HTTPClient: mockClient})
	require.NoError(t, err)

	doc, err := pipeline.Run(context.Background(), contract)
	require.NoError(t, err)

	parties := doc.EntitiesByLabel("legal_entity")
	require.Len(t, parties, 1)
	require.NotNil(t, parties[0].LEI)
	assert.Equal(t, "5493001KJTIIGC8Y1R12", parties[0].LEI.LEI)
	assert.Equal(t, int32(1), mockClient.calls.Load())
}

func TestFromConfigErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Recognizers = append(cfg.Recognizers, config.RecognizerConfig{Name: "payment_terms"})
	_, err := FromConfig(cfg, Dependencies{})
	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)

	cfg = config.Default()
	cfg.Segmentation.Policy = "fuzzy"
	_, err = FromConfig(cfg, Dependencies{})
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Jurisdictions = "/does/not/exist.yaml"
	_, err = FromConfig(cfg, Dependencies{})
	assert.Error(t, err)
}

func TestFromConfigRecognizerOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Recognizers = []config.RecognizerConfig{
		{Name: "governing_law", Keywords: []string{"disputes"}},
	}
	cfg.Classifiers = nil

	pipeline, err := FromConfig(cfg, Dependencies{})
	require.NoError(t, err)

	doc, err := pipeline.Run(context.Background(), contract)
	require.NoError(t, err)
	assert.Empty(t, doc.EntitiesByLabel("gov_law"))
}

func TestFromConfigGatedRecognizer(t *testing.T) {
	text := "SECTION 1. Parties\n" +
		"This Agreement is made between ACME Corp. and Beta Ltd.\n" +
		"SECTION 2. Payment\n" +
		"Payment is made to Gamma Inc. monthly.\n"

	cfg := config.Default()
	cfg.Classifiers = nil
	cfg.Recognizers = []config.RecognizerConfig{{
		Name: "legal_entity",
		Gate: &config.GateConfig{
			Predictor:     config.PredictorKeyword,
			Cues:          map[string][]classify.Keyword{"parties": {{Term: "between"}}},
			PositiveLabel: "parties",
			MinScore:      0.5,
		},
	}}

	pipeline, err := FromConfig(cfg, Dependencies{})
	require.NoError(t, err)

	doc, err := pipeline.Run(context.Background(), text)
	require.NoError(t, err)

	var names []string
	for _, party := range doc.EntitiesByLabel("legal_entity") {
		names = append(names, party.Name)
	}
	assert.Equal(t, []string{"ACME Corp.", "Beta Ltd."}, names)

	cfg.Recognizers[0].Gate = nil
	pipeline, err = FromConfig(cfg, Dependencies{})
	require.NoError(t, err)
	doc, err = pipeline.Run(context.Background(), text)
	require.NoError(t, err)
	assert.Len(t, doc.EntitiesByLabel("legal_entity"), 3)
}

func TestBatch(t *testing.T) {
	pipeline := NewDefault(nil)
	pipeline.MustAdd("reject_empty", StageFunc(func(ctx context.Context, doc *document.Document) error {
		if strings.TrimSpace(doc.Text) == "" {
			return errors.New("empty document")
		}
		return nil
	}))

	docs := []*document.Document{
		document.New("SECTION 1. Term\nBody."),
		document.New("   "),
		document.New(`The "Seller" means Widget Ltd.`),
	}
	results := pipeline.Batch(context.Background(), docs, 2)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Len(t, results[0].Document.Segments, 1)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	_, ok := results[2].Document.Definition("Seller")
	assert.True(t, ok)
}

var corpus = []string{
	contract,
	"SECTION 1. Definitions\nSome body text.\nSECTION 2. Term\nOther text.",
	"MASTER SERVICES AGREEMENT\n\nThis Agreement is made as of January 5, 2024 between ACME Corp. and Widget Ltd.\n\n" +
		"1. Fees\n1.1 The Customer shall pay USD 1,250,000.00 within thirty (30) days.\n" +
		"2. Governing Law\nThis Agreement shall be governed by English law. The courts of London have jurisdiction.\n",
	"ARTICLE I\nThe \"Seller\" shall mean Widget Ltd. \"Goods\": the products listed in Schedule A.\n" +
		"ARTICLE II\nThe Seller shall deliver the Goods to 12 Main St. by March 1, 2024.\n",
	"",
	"no headings at all, just one line of text",
}

func TestPipelineInvariantsOverCorpus(t *testing.T) {
	pipeline, err := FromConfig(config.Default(), Dependencies{})
	require.NoError(t, err)
	checker := validate.NewChecker(validate.Config{})

	for i, raw := range corpus {
		doc, err := pipeline.Run(context.Background(), raw)
		require.NoError(t, err, "document %d", i)

		report := checker.Check(doc)
		assert.True(t, report.OverallPass, "document %d\n%s", i, report.String())
	}
}
