package classify

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Keyword is a weighted cue for a label.
type Keyword struct {
	Term   string  `yaml:"term" toml:"term" json:"term"`
	Weight float64 `yaml:"weight" toml:"weight" json:"weight"`
}

// KeywordPredictor labels a text by the summed weight of the cues it contains.
// Cues match whole words, ignoring case. A text with no cues gets the
// fallback label with score 0.
type KeywordPredictor struct {
	labels   []string
	cues     map[string][][]string
	weights  map[string][]float64
	fallback string
}

// NewKeywordPredictor builds a predictor from label cues.
func NewKeywordPredictor(cues map[string][]Keyword, fallback string) *KeywordPredictor {
	predictor := &KeywordPredictor{
		cues:     make(map[string][][]string),
		weights:  make(map[string][]float64),
		fallback: fallback,
	}
	for label, keywords := range cues {
		predictor.labels = append(predictor.labels, label)
		for _, keyword := range keywords {
			words := wordsOf(keyword.Term)
			if len(words) == 0 {
				continue
			}
			weight := keyword.Weight
			if weight == 0 {
				weight = 1
			}
			predictor.cues[label] = append(predictor.cues[label], words)
			predictor.weights[label] = append(predictor.weights[label], weight)
		}
	}
	sort.Strings(predictor.labels)
	return predictor
}

// Predict scores each text. The score is the winning label's share of the
// total cue weight found.
func (predictor *KeywordPredictor) Predict(ctx context.Context, texts []string) ([]Prediction, error) {
	predictions := make([]Prediction, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		predictions[i] = predictor.predictOne(text)
	}
	return predictions, nil
}

func (predictor *KeywordPredictor) predictOne(text string) Prediction {
	words := wordsOf(text)

	best, bestScore, total := "", 0.0, 0.0
	for _, label := range predictor.labels {
		score := 0.0
		for i, cue := range predictor.cues[label] {
			score += predictor.weights[label][i] * float64(countRuns(words, cue))
		}
		total += score
		if score > bestScore {
			best, bestScore = label, score
		}
	}
	if best == "" {
		return Prediction{Label: predictor.fallback}
	}
	return Prediction{Label: best, Score: bestScore / total}
}

func wordsOf(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func countRuns(words, run []string) int {
	count := 0
	for i := 0; i+len(run) <= len(words); i++ {
		matched := true
		for k, word := range run {
			if words[i+k] != word {
				matched = false
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}

// DocumentTypeCues are the default cues for the document_type field.
func DocumentTypeCues() map[string][]Keyword {
	return map[string][]Keyword{
		"nda": {
			{Term: "non-disclosure agreement", Weight: 5},
			{Term: "confidentiality agreement", Weight: 5},
			{Term: "confidential information", Weight: 2},
		},
		"lease": {
			{Term: "lease agreement", Weight: 5},
			{Term: "landlord", Weight: 2},
			{Term: "tenant", Weight: 2},
			{Term: "premises", Weight: 1},
		},
		"employment": {
			{Term: "employment agreement", Weight: 5},
			{Term: "employee", Weight: 2},
			{Term: "employer", Weight: 2},
		},
		"purchase": {
			{Term: "purchase agreement", Weight: 5},
			{Term: "share purchase", Weight: 4},
			{Term: "buyer", Weight: 2},
			{Term: "seller", Weight: 2},
		},
		"services": {
			{Term: "services agreement", Weight: 5},
			{Term: "service provider", Weight: 3},
			{Term: "statement of work", Weight: 2},
		},
		"loan": {
			{Term: "loan agreement", Weight: 5},
			{Term: "facility agreement", Weight: 5},
			{Term: "borrower", Weight: 2},
			{Term: "lender", Weight: 2},
		},
		"license": {
			{Term: "license agreement", Weight: 5},
			{Term: "licence agreement", Weight: 5},
			{Term: "licensor", Weight: 2},
			{Term: "licensee", Weight: 2},
		},
	}
}

// LanguageCues are the default cues for the language field, keyed by ISO 639-1 code.
func LanguageCues() map[string][]Keyword {
	return map[string][]Keyword{
		"en": {{Term: "the"}, {Term: "and"}, {Term: "of"}, {Term: "shall"}, {Term: "agreement"}},
		"de": {{Term: "der"}, {Term: "die"}, {Term: "und"}, {Term: "das"}, {Term: "vertrag"}},
		"fr": {{Term: "le"}, {Term: "les"}, {Term: "et"}, {Term: "des"}, {Term: "contrat"}},
		"es": {{Term: "el"}, {Term: "los"}, {Term: "y"}, {Term: "del"}, {Term: "contrato"}},
		"it": {{Term: "il"}, {Term: "gli"}, {Term: "della"}, {Term: "contratto"}},
		"nl": {{Term: "het"}, {Term: "een"}, {Term: "van"}, {Term: "overeenkomst"}},
	}
}
