package entity

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/coolbeans/contracta/pkg/document"
	"go.uber.org/zap"
)

// Candidate is a proposed entity with offsets relative to the text the
// predictor was given.
type Candidate struct {
	Name  string
	Label string
	Start int
	End   int
	Score float64
}

// Predictor proposes entities for a piece of text.
type Predictor interface {
	Predict(ctx context.Context, text string) ([]Candidate, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, text string) ([]Candidate, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, text string) ([]Candidate, error) {
	return f(ctx, text)
}

// Normalizer fills in the canonical value of an accepted entity. It must not
// fail the document: problems leave Normalized empty.
type Normalizer interface {
	Normalize(ctx context.Context, entity *document.Entity)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(ctx context.Context, entity *document.Entity)

// Normalize calls f.
func (f NormalizerFunc) Normalize(ctx context.Context, entity *document.Entity) {
	f(ctx, entity)
}

// Recognizer is a pipeline stage that runs a predictor over the document's
// segments and records the accepted entities.
type Recognizer struct {
	name       string
	predictor  Predictor
	keywords   [][]string
	normalizer Normalizer
	logger     *zap.Logger
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithKeywords restricts the recognizer to segments whose title contains one
// of the keywords as whole words.
func WithKeywords(keywords ...string) Option {
	return func(recognizer *Recognizer) {
		for _, keyword := range keywords {
			if words := titleWords(keyword); len(words) > 0 {
				recognizer.keywords = append(recognizer.keywords, words)
			}
		}
	}
}

// WithNormalizer sets the normalizer applied to accepted entities.
func WithNormalizer(normalizer Normalizer) Option {
	return func(recognizer *Recognizer) {
		recognizer.normalizer = normalizer
	}
}

// WithLogger sets the recognizer's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(recognizer *Recognizer) {
		if logger != nil {
			recognizer.logger = logger
		}
	}
}

// NewRecognizer creates a recognizer stage.
func NewRecognizer(name string, predictor Predictor, options ...Option) *Recognizer {
	recognizer := &Recognizer{
		name:      name,
		predictor: predictor,
		logger:    zap.NewNop(),
	}
	for _, option := range options {
		option(recognizer)
	}
	return recognizer
}

// Name returns the recognizer name recorded as the entity source.
func (recognizer *Recognizer) Name() string {
	return recognizer.name
}

// Scans reports whether the recognizer runs on a segment with this title.
func (recognizer *Recognizer) Scans(title string) bool {
	if len(recognizer.keywords) == 0 {
		return true
	}
	words := titleWords(title)
	for _, keyword := range recognizer.keywords {
		if containsRun(words, keyword) {
			return true
		}
	}
	return false
}

// Process implements the pipeline stage contract.
func (recognizer *Recognizer) Process(ctx context.Context, doc *document.Document) error {
	registry := NewSpanRegistry(doc.Entities)

	segments := doc.Segments
	if len(segments) == 0 && doc.Text != "" {
		segments = []document.Segment{{Start: 0, End: len(doc.Text)}}
	}

	accepted, rejected := 0, 0
	for _, segment := range segments {
		if !recognizer.Scans(segment.Title) {
			continue
		}
		if segment.Start < 0 || segment.End > len(doc.Text) || segment.Start >= segment.End {
			continue
		}

		text := doc.Text[segment.Start:segment.End]
		candidates, err := recognizer.predictor.Predict(ctx, text)
		if err != nil {
			return fmt.Errorf("recognizer %s failed on segment at offset %d: %w", recognizer.name, segment.Start, err)
		}

		for _, candidate := range candidates {
			if candidate.Start < 0 || candidate.End > len(text) {
				rejected++
				continue
			}
			start, end := candidate.Start+segment.Start, candidate.End+segment.Start
			if !registry.Claim(start, end) {
				rejected++
				continue
			}

			name := candidate.Name
			if name == "" {
				name = doc.Text[start:end]
			}
			entity := document.Entity{
				Name:   name,
				Label:  candidate.Label,
				Start:  start,
				End:    end,
				Source: recognizer.name,
				Score:  candidate.Score,
				Boxes:  boxesWithin(doc.Tokens, start, end),
			}
			if recognizer.normalizer != nil {
				recognizer.normalizer.Normalize(ctx, &entity)
			}
			doc.Entities = append(doc.Entities, entity)
			accepted++
		}
	}

	recognizer.logger.Debug("recognizer finished",
		zap.String("recognizer", recognizer.name),
		zap.Int("accepted", accepted),
		zap.Int("rejected", rejected))
	return nil
}

// Contract declares the recognizer's fields.
func (recognizer *Recognizer) Contract() (requires, provides []document.Field) {
	return []document.Field{document.FieldText, document.FieldSegments}, []document.Field{document.FieldEntities}
}

func boxesWithin(tokens []document.Token, start, end int) []document.BoundingBox {
	var boxes []document.BoundingBox
	for _, token := range tokens {
		if token.Start >= end {
			break
		}
		if token.Box != nil && token.Start >= start && token.End() <= end {
			boxes = append(boxes, *token.Box)
		}
	}
	return boxes
}

func titleWords(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsRun(words, run []string) bool {
	for i := 0; i+len(run) <= len(words); i++ {
		matched := true
		for k, word := range run {
			if words[i+k] != word {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
