package tokenize

import (
	"context"
	"strings"
	"testing"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenTexts(tokens []document.Token) []string {
	texts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token.IsSpace() {
			continue
		}
		texts = append(texts, token.Text)
	}
	return texts
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "words and punctuation",
			input: `The "Buyer" means ACME Corp.`,
			want:  []string{"The", `"`, "Buyer", `"`, "means", "ACME", "Corp", "."},
		},
		{
			name:  "grouped amounts stay whole",
			input: "pay USD 1,250,000.00 now",
			want:  []string{"pay", "USD", "1,250,000.00", "now"},
		},
		{
			name:  "apostrophes and hyphens join words",
			input: "the Buyer's non-exclusive right",
			want:  []string{"the", "Buyer's", "non-exclusive", "right"},
		},
		{
			name:  "dotted abbreviations",
			input: "U.S. law, e.g. New York",
			want:  []string{"U.S", ".", "law", ",", "e.g", ".", "New", "York"},
		},
		{
			name:  "section numbers",
			input: "Section 3.2.1. Fees",
			want:  []string{"Section", "3.2.1", ".", "Fees"},
		},
		{
			name:  "ellipsis is one token",
			input: "wait... go",
			want:  []string{"wait", "...", "go"},
		},
		{
			name:  "clause markers",
			input: "(a) first",
			want:  []string{"(", "a", ")", "first"},
		},
		{
			name:  "initial followed by name",
			input: "A.Smith",
			want:  []string{"A", ".", "Smith"},
		},
	}

	tokenizer := NewTokenizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenTexts(tokenizer.Tokenize(tt.input)))
		})
	}
}

func TestTokenizeCoversText(t *testing.T) {
	inputs := []string{
		"SECTION 1. Definitions\nSome body text.\nSECTION 2. Term\nOther text.",
		"Zürich-based Société Générale agrees.  \n\n(iv) done",
		"",
		"   ",
	}

	tokenizer := NewTokenizer()
	for _, input := range inputs {
		tokens := tokenizer.Tokenize(input)

		var builder strings.Builder
		offset := 0
		for _, token := range tokens {
			require.Equal(t, offset, token.Start)
			assert.Equal(t, input[token.Start:token.End()], token.Text)
			builder.WriteString(token.Text)
			offset = token.End()
		}
		assert.Equal(t, input, builder.String())
	}
}

func TestTokenKinds(t *testing.T) {
	tokens := NewTokenizer().Tokenize("Pay 30 days.")
	require.Len(t, tokens, 6)
	assert.Equal(t, document.KindWord, tokens[0].Kind)
	assert.Equal(t, document.KindSpace, tokens[1].Kind)
	assert.Equal(t, document.KindNumber, tokens[2].Kind)
	assert.Equal(t, document.KindWord, tokens[4].Kind)
	assert.Equal(t, document.KindPunct, tokens[5].Kind)
}

func TestAlignBoxes(t *testing.T) {
	tokens := NewTokenizer().Tokenize("ACME Corp. pays XYZ")
	boxes := []document.WordBox{
		{Text: "ACME", Box: document.BoundingBox{Page: 1, X0: 10}},
		{Text: "Corp.", Box: document.BoundingBox{Page: 1, X0: 50}},
		{Text: "pays", Box: document.BoundingBox{Page: 1, X0: 90}},
	}

	AlignBoxes(tokens, boxes)

	byText := map[string]*document.BoundingBox{}
	for _, token := range tokens {
		if !token.IsSpace() {
			byText[token.Text] = token.Box
		}
	}
	require.NotNil(t, byText["ACME"])
	assert.Equal(t, 10.0, byText["ACME"].X0)
	require.NotNil(t, byText["Corp"])
	assert.Equal(t, 50.0, byText["Corp"].X0)
	require.NotNil(t, byText["."])
	assert.Equal(t, 50.0, byText["."].X0)
	require.NotNil(t, byText["pays"])
	assert.Equal(t, 90.0, byText["pays"].X0)
	assert.Nil(t, byText["XYZ"])
}

func TestTokenizerProcess(t *testing.T) {
	doc := document.New("")
	doc.Text = "ACME pays"
	doc.Boxes = []document.WordBox{{Text: "ACME"}, {Text: "pays"}}

	require.NoError(t, NewTokenizer().Process(context.Background(), doc))
	require.Len(t, doc.Tokens, 3)
	assert.NotNil(t, doc.Tokens[0].Box)
	assert.NotNil(t, doc.Tokens[2].Box)
}
