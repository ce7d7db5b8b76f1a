package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/transport"
)

// LabelerConfig configures a LabelerPredictor.
type LabelerConfig struct {
	// Endpoint receives a POST of {"inputs": text}.
	Endpoint string

	// Labels maps the service's entity groups to entity labels. Groups not
	// in the map are dropped. An empty map keeps every group as is.
	Labels map[string]string

	// MinScore drops predictions scored below it.
	MinScore float64

	// Token is sent as a bearer token when set.
	Token string

	// UserAgent is the User-Agent header. Default: transport.DefaultUserAgent.
	UserAgent string

	HTTPClient transport.HTTPClient
}

// LabelerPredictor calls a token-classification service. The service returns
// either aggregated spans carrying "entity_group" or per-token predictions
// carrying a BIO "entity" tag, which are decoded into spans.
type LabelerPredictor struct {
	config     LabelerConfig
	httpClient transport.HTTPClient
}

type labelerPrediction struct {
	EntityGroup string  `json:"entity_group"`
	Entity      string  `json:"entity"`
	Word        string  `json:"word"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Score       float64 `json:"score"`
}

// NewLabelerPredictor creates a predictor for config.Endpoint.
func NewLabelerPredictor(config LabelerConfig) (*LabelerPredictor, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("labeler endpoint is required")
	}
	if config.UserAgent == "" {
		config.UserAgent = transport.DefaultUserAgent
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LabelerPredictor{config: config, httpClient: httpClient}, nil
}

// Predict implements Predictor.
func (labeler *LabelerPredictor) Predict(ctx context.Context, text string) ([]Candidate, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode labeler request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, labeler.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", labeler.config.Endpoint, err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", labeler.config.UserAgent)
	if labeler.config.Token != "" {
		request.Header.Set("Authorization", "Bearer "+labeler.config.Token)
	}

	response, err := labeler.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("labeler request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 400 {
		message, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return nil, fmt.Errorf("labeler returned HTTP %d: %s", response.StatusCode, strings.TrimSpace(string(message)))
	}

	var predictions []labelerPrediction
	if err := json.NewDecoder(response.Body).Decode(&predictions); err != nil {
		return nil, fmt.Errorf("failed to decode labeler response: %w", err)
	}

	byteOffsets(text, predictions)
	return labeler.candidates(text, predictions), nil
}

// byteOffsets rewrites the service's code point offsets as byte offsets into
// text. Offsets past the end of text become -1 and are dropped later.
func byteOffsets(text string, predictions []labelerPrediction) {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	convert := func(index int) int {
		if index < 0 || index >= len(offsets) {
			return -1
		}
		return offsets[index]
	}
	for i := range predictions {
		predictions[i].Start = convert(predictions[i].Start)
		predictions[i].End = convert(predictions[i].End)
	}
}

func (labeler *LabelerPredictor) candidates(text string, predictions []labelerPrediction) []Candidate {
	var raw []Candidate
	if len(predictions) > 0 && predictions[0].EntityGroup == "" && predictions[0].Entity != "" {
		raw = decodeTokenPredictions(predictions)
	} else {
		for _, prediction := range predictions {
			raw = append(raw, Candidate{
				Label: prediction.EntityGroup,
				Start: prediction.Start,
				End:   prediction.End,
				Score: prediction.Score,
			})
		}
	}

	var candidates []Candidate
	for _, candidate := range raw {
		if candidate.Score < labeler.config.MinScore {
			continue
		}
		if candidate.Start < 0 || candidate.End > len(text) || candidate.End <= candidate.Start {
			continue
		}
		label := candidate.Label
		if len(labeler.config.Labels) > 0 {
			mapped, ok := labeler.config.Labels[label]
			if !ok {
				continue
			}
			label = mapped
		}
		candidate.Label = label
		candidate.Name = text[candidate.Start:candidate.End]
		candidates = append(candidates, candidate)
	}
	return candidates
}

// decodeTokenPredictions groups per-token BIO predictions into spans. A span
// scores the lowest of its tokens.
func decodeTokenPredictions(predictions []labelerPrediction) []Candidate {
	tokens := make([]document.Token, len(predictions))
	tags := make([]string, len(predictions))
	for i, prediction := range predictions {
		width := prediction.End - prediction.Start
		if width < 0 {
			width = 0
		}
		tokens[i] = document.Token{Text: strings.Repeat(" ", width), Start: prediction.Start}
		tags[i] = prediction.Entity
	}

	candidates := DecodeBIO(tokens, tags)
	for i := range candidates {
		for _, prediction := range predictions {
			if prediction.Start >= candidates[i].Start && prediction.End <= candidates[i].End {
				if prediction.Score < candidates[i].Score {
					candidates[i].Score = prediction.Score
				}
			}
		}
	}
	return candidates
}
