// Package classify scores slices of a document with a text classifier and
// writes the outcome to one scalar document field.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/textclean"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Method selects the text units a classifier scores.
type Method string

const (
	MethodDocument  Method = "document"
	MethodSentences Method = "sentences"
	MethodLines     Method = "lines"
	MethodSegments  Method = "segments"
)

var (
	ErrUnsupportedMethod = errors.New("unsupported classification method")
	ErrUnknownField      = errors.New("unknown classification field")
)

// ConfigError reports an invalid classifier configuration.
type ConfigError struct {
	Name    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier %s: %s: %v", e.Name, e.Message, e.Err)
	}
	return fmt.Sprintf("classifier %s: %s", e.Name, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Range restricts scoring to units [Start, End). For the document method the
// units are bytes, clamped back to rune boundaries. End 0 means no upper bound.
type Range struct {
	Start int `yaml:"start" toml:"start" json:"start"`
	End   int `yaml:"end" toml:"end" json:"end"`
}

func (r Range) apply(n int) (int, int) {
	start, end := r.Start, r.End
	if end <= 0 || end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// Prediction is a classifier's label for one unit.
type Prediction struct {
	Label string
	Score float64
}

// Predictor labels a batch of texts. It returns one prediction per text.
type Predictor interface {
	Predict(ctx context.Context, texts []string) ([]Prediction, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, texts []string) ([]Prediction, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, texts []string) ([]Prediction, error) {
	return f(ctx, texts)
}

// Config describes a classifier stage.
type Config struct {
	Name          string `yaml:"name" toml:"name" json:"name"`
	Method        Method `yaml:"method" toml:"method" json:"method"`
	Range         *Range `yaml:"range,omitempty" toml:"range,omitempty" json:"range,omitempty"`
	Field         string `yaml:"field" toml:"field" json:"field"`
	PositiveLabel string `yaml:"positive_label,omitempty" toml:"positive_label,omitempty" json:"positive_label,omitempty"`
	BatchSize     int    `yaml:"batch_size,omitempty" toml:"batch_size,omitempty" json:"batch_size,omitempty"`
	Concurrency   int    `yaml:"concurrency,omitempty" toml:"concurrency,omitempty" json:"concurrency,omitempty"`

	// Lowercase and RemoveNumbers shape the text the predictor sees. The
	// field value is always taken from the original unit.
	Lowercase     bool `yaml:"lowercase,omitempty" toml:"lowercase,omitempty" json:"lowercase,omitempty"`
	RemoveNumbers bool `yaml:"remove_numbers,omitempty" toml:"remove_numbers,omitempty" json:"remove_numbers,omitempty"`
}

const (
	DefaultBatchSize   = 5
	DefaultConcurrency = 4
)

// Validate checks the method, field and range.
func (config Config) Validate() error {
	switch config.Method {
	case MethodDocument, MethodSentences, MethodLines, MethodSegments:
	default:
		return &ConfigError{Name: config.Name, Message: fmt.Sprintf("method %q", config.Method), Err: ErrUnsupportedMethod}
	}

	field, err := document.ParseField(config.Field)
	if err != nil || !field.IsScalar() {
		return &ConfigError{Name: config.Name, Message: fmt.Sprintf("field %q", config.Field), Err: ErrUnknownField}
	}

	if config.Range != nil {
		if config.Range.Start < 0 || config.Range.End < 0 {
			return &ConfigError{Name: config.Name, Message: "range bounds must not be negative"}
		}
		if config.Range.End > 0 && config.Range.End < config.Range.Start {
			return &ConfigError{Name: config.Name, Message: "range end precedes start"}
		}
	}
	if config.BatchSize < 0 || config.Concurrency < 0 {
		return &ConfigError{Name: config.Name, Message: "batch size and concurrency must not be negative"}
	}
	return nil
}

// Classifier is a pipeline stage that sets one scalar field from predictions.
type Classifier struct {
	config    Config
	field     document.Field
	predictor Predictor
	cleaner   *textclean.Cleaner
	logger    *zap.Logger
}

// New validates config and builds the stage.
func New(config Config, predictor Predictor, logger *zap.Logger) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if predictor == nil {
		return nil, &ConfigError{Name: config.Name, Message: "predictor is required"}
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Concurrency == 0 {
		config.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	field, _ := document.ParseField(config.Field)
	return &Classifier{
		config:    config,
		field:     field,
		predictor: predictor,
		cleaner:   textclean.New(textclean.Options{}),
		logger:    logger,
	}, nil
}

// Name returns the configured classifier name.
func (classifier *Classifier) Name() string {
	return classifier.config.Name
}

// Units returns the texts the classifier scores for doc.
func (classifier *Classifier) Units(doc *document.Document) []string {
	var units []string
	switch classifier.config.Method {
	case MethodDocument:
		text := doc.Text
		if classifier.config.Range != nil {
			start, end := classifier.config.Range.apply(len(text))
			text = text[runeBoundary(text, start):runeBoundary(text, end)]
		}
		return []string{text}
	case MethodSentences:
		for _, sentence := range doc.Sentences {
			units = append(units, sentence.Text)
		}
	case MethodLines:
		units = strings.Split(doc.Text, "\n")
	case MethodSegments:
		for _, segment := range doc.Segments {
			units = append(units, segment.Text)
		}
	}

	if classifier.config.Range != nil {
		start, end := classifier.config.Range.apply(len(units))
		units = units[start:end]
	}
	return units
}

// runeBoundary moves a byte offset back to the start of the rune it falls in.
func runeBoundary(text string, offset int) int {
	for offset > 0 && offset < len(text) && !utf8.RuneStart(text[offset]) {
		offset--
	}
	return offset
}

// Features returns the predictor input for each unit.
func (classifier *Classifier) Features(units []string) []string {
	features := make([]string, len(units))
	for i, unit := range units {
		features[i] = classifier.cleaner.FeatureText(unit, classifier.config.Lowercase, classifier.config.RemoveNumbers)
	}
	return features
}

// Classify scores units in batches and returns one prediction per unit.
func (classifier *Classifier) Classify(ctx context.Context, units []string) ([]Prediction, error) {
	predictions := make([]Prediction, len(units))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(classifier.config.Concurrency)

	size := classifier.config.BatchSize
	for start := 0; start < len(units); start += size {
		start := start
		end := start + size
		if end > len(units) {
			end = len(units)
		}
		group.Go(func() error {
			batch, err := classifier.predictor.Predict(ctx, units[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("batch %d-%d: got %d predictions for %d texts", start, end, len(batch), end-start)
			}
			copy(predictions[start:end], batch)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return predictions, nil
}

// Decide picks the field value from predictions over units. With a positive
// label the first positive unit's text wins; otherwise the label with the
// highest summed score does. The second result is false when nothing applies.
func (classifier *Classifier) Decide(units []string, predictions []Prediction) (string, bool) {
	if classifier.config.PositiveLabel != "" {
		for i, prediction := range predictions {
			if prediction.Label == classifier.config.PositiveLabel {
				return units[i], true
			}
		}
		return "", false
	}

	totals := make(map[string]float64)
	var order []string
	for _, prediction := range predictions {
		if prediction.Label == "" {
			continue
		}
		if _, seen := totals[prediction.Label]; !seen {
			order = append(order, prediction.Label)
		}
		totals[prediction.Label] += prediction.Score
	}

	best, bestScore := "", 0.0
	for _, label := range order {
		if best == "" || totals[label] > bestScore {
			best, bestScore = label, totals[label]
		}
	}
	return best, best != ""
}

// Process implements the pipeline stage contract.
func (classifier *Classifier) Process(ctx context.Context, doc *document.Document) error {
	units := classifier.Units(doc)
	if len(units) == 0 {
		return nil
	}

	predictions, err := classifier.Classify(ctx, classifier.Features(units))
	if err != nil {
		return fmt.Errorf("classifier %s: %w", classifier.config.Name, err)
	}

	value, ok := classifier.Decide(units, predictions)
	if !ok {
		classifier.logger.Debug("classifier found no label",
			zap.String("classifier", classifier.config.Name),
			zap.Int("units", len(units)))
		return nil
	}
	classifier.logger.Debug("classifier set field",
		zap.String("classifier", classifier.config.Name),
		zap.String("field", string(classifier.field)),
		zap.String("value", value))
	return doc.SetScalar(classifier.field, value)
}

// Contract declares the classifier's fields.
func (classifier *Classifier) Contract() (requires, provides []document.Field) {
	switch classifier.config.Method {
	case MethodSentences:
		requires = []document.Field{document.FieldSentences}
	case MethodSegments:
		requires = []document.Field{document.FieldSegments}
	default:
		requires = []document.Field{document.FieldText}
	}
	return requires, []document.Field{classifier.field}
}
