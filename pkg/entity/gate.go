package entity

import (
	"context"
	"fmt"

	"github.com/coolbeans/contracta/pkg/classify"
)

// ClassifierGate runs an inner predictor only on texts a classifier labels
// positive with at least MinScore confidence.
type ClassifierGate struct {
	classifier    classify.Predictor
	positiveLabel string
	minScore      float64
	inner         Predictor
}

// NewClassifierGate wraps inner behind classifier.
func NewClassifierGate(classifier classify.Predictor, positiveLabel string, minScore float64, inner Predictor) *ClassifierGate {
	return &ClassifierGate{
		classifier:    classifier,
		positiveLabel: positiveLabel,
		minScore:      minScore,
		inner:         inner,
	}
}

// Predict implements Predictor.
func (gate *ClassifierGate) Predict(ctx context.Context, text string) ([]Candidate, error) {
	predictions, err := gate.classifier.Predict(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("gate classifier: %w", err)
	}
	if len(predictions) != 1 {
		return nil, fmt.Errorf("gate classifier returned %d predictions", len(predictions))
	}
	if predictions[0].Label != gate.positiveLabel || predictions[0].Score < gate.minScore {
		return nil, nil
	}
	return gate.inner.Predict(ctx, text)
}
