package tokenize

import (
	"context"
	"testing"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitTexts(text string) []string {
	tokens := NewTokenizer().Tokenize(text)
	sentences := NewSentenceSplitter().Split(text, tokens)
	texts := make([]string, len(sentences))
	for i, sentence := range sentences {
		texts[i] = sentence.Text
	}
	return texts
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "headings on their own line",
			input: "SECTION 1. Definitions\nSome body text.\nSECTION 2. Term\nOther text.",
			want:  []string{"SECTION 1. Definitions", "Some body text.", "SECTION 2. Term", "Other text."},
		},
		{
			name:  "abbreviations do not end sentences",
			input: "ACME Inc. shall deliver the goods. The Buyer shall pay.",
			want:  []string{"ACME Inc. shall deliver the goods.", "The Buyer shall pay."},
		},
		{
			name:  "company suffix before a capitalized word",
			input: `The "Buyer" means ACME Corp. The "Seller" means Beta Ltd.`,
			want:  []string{`The "Buyer" means ACME Corp.`, `The "Seller" means Beta Ltd.`},
		},
		{
			name:  "company suffix before an opening quote",
			input: `Payment is due to Beta Inc. "Price" means the fee.`,
			want:  []string{"Payment is due to Beta Inc.", `"Price" means the fee.`},
		},
		{
			name:  "company suffix inside a sentence",
			input: "ACME Co. Ltd., Beta Corp. and Gamma Inc., jointly, shall pay.",
			want:  []string{"ACME Co. Ltd., Beta Corp. and Gamma Inc., jointly, shall pay."},
		},
		{
			name:  "quotation balancing",
			input: `He said "Stop. Now." Then left.`,
			want:  []string{`He said "Stop. Now."`, "Then left."},
		},
		{
			name:  "numbered clauses",
			input: "The parties agree:\n1. The Buyer pays.\n2. The Seller delivers.",
			want:  []string{"The parties agree:", "1. The Buyer pays.", "2. The Seller delivers."},
		},
		{
			name:  "lettered clauses",
			input: "Each party shall\n(a) comply with law; and\n(b) act in good faith.",
			want:  []string{"Each party shall", "(a) comply with law; and", "(b) act in good faith."},
		},
		{
			name:  "paragraph gap",
			input: "First line without stop\n\nSecond paragraph.",
			want:  []string{"First line without stop", "Second paragraph."},
		},
		{
			name:  "wrapped lines are joined",
			input: "The Buyer shall pay the\nSeller on demand.",
			want:  []string{"The Buyer shall pay the\nSeller on demand."},
		},
		{
			name:  "ellipsis and exclamation",
			input: "Wait... Then go! Done?",
			want:  []string{"Wait...", "Then go!", "Done?"},
		},
		{
			name:  "trailing text without terminator",
			input: "IN WITNESS WHEREOF the parties have signed",
			want:  []string{"IN WITNESS WHEREOF the parties have signed"},
		},
		{
			name:  "empty",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitTexts(tt.input))
		})
	}
}

func TestSplitSpans(t *testing.T) {
	text := "The \"Buyer\" means ACME Corp. The Seller means Widget Ltd.\nSECTION 2. Price\nThe price is USD 100."
	tokens := NewTokenizer().Tokenize(text)
	sentences := NewSentenceSplitter().Split(text, tokens)
	require.NotEmpty(t, sentences)

	previousEnd := 0
	for _, sentence := range sentences {
		assert.Equal(t, text[sentence.CharStart:sentence.CharEnd], sentence.Text)
		assert.GreaterOrEqual(t, sentence.CharStart, previousEnd)
		assert.Equal(t, tokens[sentence.Start].Start, sentence.CharStart)
		assert.Equal(t, tokens[sentence.End-1].End(), sentence.CharEnd)
		assert.False(t, tokens[sentence.Start].IsSpace())
		previousEnd = sentence.CharEnd
	}
}

func TestSplitExtraAbbreviations(t *testing.T) {
	text := "Delivered per Sched. Two copies."
	tokens := NewTokenizer().Tokenize(text)

	assert.Len(t, NewSentenceSplitter().Split(text, tokens), 2)
	assert.Len(t, NewSentenceSplitter("Sched.").Split(text, tokens), 1)
}

func TestSentenceSplitterProcess(t *testing.T) {
	doc := document.New("")
	doc.Text = "One. Two."
	doc.Tokens = NewTokenizer().Tokenize(doc.Text)

	splitter := NewSentenceSplitter()
	require.NoError(t, splitter.Process(context.Background(), doc))
	assert.Len(t, doc.Sentences, 2)

	requires, provides := splitter.Contract()
	assert.Equal(t, []document.Field{document.FieldTokens}, requires)
	assert.Equal(t, []document.Field{document.FieldSentences}, provides)
}
