package entity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/coolbeans/contracta/pkg/classify"
	"github.com/coolbeans/contracta/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
}

func (mockClient *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return mockClient.DoFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestRegexPredictor(t *testing.T) {
	predictor, err := NewRegexPredictor([]Rule{
		{Pattern: `(?P<entity>\d+) days`, Label: "PERIOD"},
		{Pattern: `notice`},
	}, "NOTICE")
	require.NoError(t, err)

	candidates, err := predictor.Predict(context.Background(), "Give notice within 30 days.")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{
		{Name: "30", Label: "PERIOD", Start: 19, End: 21, Score: 1},
		{Name: "notice", Label: "NOTICE", Start: 5, End: 11, Score: 1},
	}, candidates)

	_, err = NewRegexPredictor([]Rule{{Pattern: "x"}}, "")
	assert.Error(t, err)
	_, err = NewRegexPredictor([]Rule{{Pattern: "(", Label: "X"}}, "")
	assert.Error(t, err)
}

func TestDecodeBIO(t *testing.T) {
	tokens := []document.Token{
		{Text: "Acme", Start: 0},
		{Text: "Holdings", Start: 5},
		{Text: "signed", Start: 14},
		{Text: "in", Start: 21},
		{Text: "Paris", Start: 24},
		{Text: "London", Start: 30},
	}
	tags := []string{"B-ORG", "I-ORG", "O", "O", "I-LOC", "B-LOC"}

	assert.Equal(t, []Candidate{
		{Label: "ORG", Start: 0, End: 13, Score: 1},
		{Label: "LOC", Start: 24, End: 29, Score: 1},
		{Label: "LOC", Start: 30, End: 36, Score: 1},
	}, DecodeBIO(tokens, tags))

	assert.Empty(t, DecodeBIO(tokens, []string{"O", "O"}))
	assert.Len(t, DecodeBIO(tokens, []string{"B-ORG"}), 1)
}

func TestClassifierGate(t *testing.T) {
	inner := fixed(Candidate{Label: "signatory", Start: 0, End: 4})

	tests := []struct {
		name  string
		label string
		score float64
		want  int
	}{
		{"positive", "signature_block", 0.9, 1},
		{"low score", "signature_block", 0.4, 0},
		{"other label", "body", 0.99, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := classify.PredictorFunc(func(ctx context.Context, texts []string) ([]classify.Prediction, error) {
				return []classify.Prediction{{Label: tt.label, Score: tt.score}}, nil
			})
			gate := NewClassifierGate(classifier, "signature_block", 0.5, inner)

			candidates, err := gate.Predict(context.Background(), "John Smith")
			require.NoError(t, err)
			assert.Len(t, candidates, tt.want)
		})
	}
}

func TestClassifierGateErrors(t *testing.T) {
	failing := classify.PredictorFunc(func(ctx context.Context, texts []string) ([]classify.Prediction, error) {
		return nil, errors.New("timeout")
	})
	_, err := NewClassifierGate(failing, "x", 0, fixed()).Predict(context.Background(), "text")
	assert.Error(t, err)

	empty := classify.PredictorFunc(func(ctx context.Context, texts []string) ([]classify.Prediction, error) {
		return nil, nil
	})
	_, err = NewClassifierGate(empty, "x", 0, fixed()).Predict(context.Background(), "text")
	assert.Error(t, err)
}

func TestLabelerPredictorGroups(t *testing.T) {
	text := "Signed by Jane Doe for Acme Holdings"
	var sent map[string]string

	mockClient := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			assert.NotEmpty(t, req.Header.Get("User-Agent"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&sent))
			return jsonResponse(http.StatusOK, `[
				{"entity_group": "PER", "word": "Jane Doe", "start": 10, "end": 18, "score": 0.98},
				{"entity_group": "ORG", "word": "Acme Holdings", "start": 23, "end": 36, "score": 0.91},
				{"entity_group": "MISC", "word": "Signed", "start": 0, "end": 6, "score": 0.99},
				{"entity_group": "PER", "word": "for", "start": 19, "end": 22, "score": 0.2}
			]`), nil
		},
	}

	labeler, err := NewLabelerPredictor(LabelerConfig{
		Endpoint:   "http://labeler.test/predict",
		Labels:     map[string]string{"PER": "signatory", "ORG": "legal_entity"},
		MinScore:   0.5,
		Token:      "secret",
		HTTPClient: mockClient,
	})
	require.NoError(t, err)

	candidates, err := labeler.Predict(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, text, sent["inputs"])
	assert.Equal(t, []Candidate{
		{Name: "Jane Doe", Label: "signatory", Start: 10, End: 18, Score: 0.98},
		{Name: "Acme Holdings", Label: "legal_entity", Start: 23, End: 36, Score: 0.91},
	}, candidates)
}

func TestLabelerPredictorTokenTags(t *testing.T) {
	text := "Acme Holdings Ltd"
	mockClient := &MockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `[
				{"entity": "B-ORG", "word": "Acme", "start": 0, "end": 4, "score": 0.9},
				{"entity": "I-ORG", "word": "Holdings", "start": 5, "end": 13, "score": 0.8},
				{"entity": "I-ORG", "word": "Ltd", "start": 14, "end": 17, "score": 0.95}
			]`), nil
		},
	}

	labeler, err := NewLabelerPredictor(LabelerConfig{Endpoint: "http://labeler.test", HTTPClient: mockClient})
	require.NoError(t, err)

	candidates, err := labeler.Predict(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Acme Holdings Ltd", candidates[0].Name)
	assert.Equal(t, "ORG", candidates[0].Label)
	assert.InDelta(t, 0.8, candidates[0].Score, 1e-9)
}

func TestLabelerPredictorCodePointOffsets(t *testing.T) {
	tests := []struct {
		name string
		text string
		body string
		want []Candidate
	}{
		{
			name: "groups",
			text: "Fee: €500 payable to Müller GmbH on signing.",
			body: `[
				{"entity_group": "ORG", "word": "Müller GmbH", "start": 21, "end": 32, "score": 0.9},
				{"entity_group": "ORG", "word": "beyond", "start": 40, "end": 60, "score": 0.9}
			]`,
			want: []Candidate{{Name: "Müller GmbH", Label: "ORG", Start: 23, End: 35, Score: 0.9}},
		},
		{
			name: "token tags",
			text: "Zahlung an Müller GmbH",
			body: `[
				{"entity": "B-ORG", "word": "Müller", "start": 11, "end": 17, "score": 0.9},
				{"entity": "I-ORG", "word": "GmbH", "start": 18, "end": 22, "score": 0.7}
			]`,
			want: []Candidate{{Name: "Müller GmbH", Label: "ORG", Start: 11, End: 23, Score: 0.7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &MockHTTPClient{
				DoFunc: func(req *http.Request) (*http.Response, error) {
					return jsonResponse(http.StatusOK, tt.body), nil
				},
			}
			labeler, err := NewLabelerPredictor(LabelerConfig{Endpoint: "http://labeler.test", HTTPClient: mockClient})
			require.NoError(t, err)

			candidates, err := labeler.Predict(context.Background(), tt.text)
			require.NoError(t, err)
			require.Len(t, candidates, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want.Name, candidates[i].Name)
				assert.Equal(t, want.Label, candidates[i].Label)
				assert.Equal(t, want.Start, candidates[i].Start)
				assert.Equal(t, want.End, candidates[i].End)
				assert.InDelta(t, want.Score, candidates[i].Score, 1e-9)
				assert.Equal(t, want.Name, tt.text[candidates[i].Start:candidates[i].End])
			}
		})
	}
}

func TestLabelerPredictorErrors(t *testing.T) {
	_, err := NewLabelerPredictor(LabelerConfig{})
	assert.Error(t, err)

	tests := []struct {
		name   string
		doFunc func(req *http.Request) (*http.Response, error)
	}{
		{"network", func(req *http.Request) (*http.Response, error) { return nil, errors.New("connection refused") }},
		{"status", func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, "loading model"), nil
		}},
		{"body", func(req *http.Request) (*http.Response, error) { return jsonResponse(http.StatusOK, "{"), nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labeler, err := NewLabelerPredictor(LabelerConfig{Endpoint: "http://labeler.test", HTTPClient: &MockHTTPClient{DoFunc: tt.doFunc}})
			require.NoError(t, err)
			_, err = labeler.Predict(context.Background(), "text")
			assert.Error(t, err)
		})
	}
}
