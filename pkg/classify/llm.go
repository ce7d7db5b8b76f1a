package classify

import (
	"context"
	"fmt"
	"strings"
)

// Completer is the chat model an LLMPredictor asks.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Truncate(text string, maxTokens int) string
}

// LLMPredictor labels texts by asking a chat model to pick from a fixed label
// set. Replies outside the set get the fallback label with score 0.
type LLMPredictor struct {
	model       Completer
	labels      []string
	fallback    string
	inputTokens int
}

// DefaultInputTokens bounds the text sent per prediction.
const DefaultInputTokens = 1500

// NewLLMPredictor creates a predictor over labels.
func NewLLMPredictor(model Completer, labels []string, fallback string, inputTokens int) (*LLMPredictor, error) {
	if model == nil {
		return nil, fmt.Errorf("llm predictor requires a model")
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("llm predictor requires at least one label")
	}
	if inputTokens <= 0 {
		inputTokens = DefaultInputTokens
	}
	return &LLMPredictor{
		model:       model,
		labels:      labels,
		fallback:    fallback,
		inputTokens: inputTokens,
	}, nil
}

func (predictor *LLMPredictor) instruction() string {
	return "Classify the contract text into exactly one of these labels: " +
		strings.Join(predictor.labels, ", ") +
		". Reply with the label only."
}

// Predict asks the model once per text.
func (predictor *LLMPredictor) Predict(ctx context.Context, texts []string) ([]Prediction, error) {
	predictions := make([]Prediction, len(texts))
	for i, text := range texts {
		reply, err := predictor.model.Complete(ctx, predictor.instruction(), predictor.model.Truncate(text, predictor.inputTokens))
		if err != nil {
			return nil, err
		}
		predictions[i] = predictor.parse(reply)
	}
	return predictions, nil
}

func (predictor *LLMPredictor) parse(reply string) Prediction {
	answer := strings.ToLower(strings.Trim(strings.TrimSpace(reply), `."'`))
	for _, label := range predictor.labels {
		if answer == strings.ToLower(label) {
			return Prediction{Label: label, Score: 1}
		}
	}
	return Prediction{Label: predictor.fallback}
}
