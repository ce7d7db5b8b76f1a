package tokenize

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coolbeans/contracta/pkg/document"
)

// DefaultAbbreviations are tokens after which a period does not end a sentence.
var DefaultAbbreviations = []string{
	"inc", "ltd", "co", "corp", "no", "nos", "mr", "mrs", "ms", "dr", "st",
	"u.s", "e.g", "i.e", "art", "arts", "sec", "sect", "para", "cl", "vs", "v",
	"jr", "sr", "approx", "dept", "fig", "ref", "pp", "p", "viz", "cf",
}

// corporateSuffixes end a company name. A period after one ends the sentence
// when a capitalized word or an opening quote follows.
var corporateSuffixes = map[string]bool{
	"inc": true, "ltd": true, "co": true, "corp": true, "plc": true, "llc": true,
}

// headingWords introduce a number whose trailing period is part of a heading
// ("Section 3.") rather than the end of a sentence.
var headingWords = map[string]bool{
	"section": true, "article": true, "clause": true, "schedule": true,
	"part": true, "chapter": true, "exhibit": true, "annex": true,
	"appendix": true, "paragraph": true, "subsection": true,
}

// DefaultMaxHeadingTokens bounds the length of a line treated as a heading.
const DefaultMaxHeadingTokens = 8

// SentenceSplitter groups tokens into sentences using heuristics for legal
// prose: abbreviations, numbered clauses, quotation balancing and headings
// on their own line.
type SentenceSplitter struct {
	abbreviations    map[string]bool
	maxHeadingTokens int
}

// NewSentenceSplitter creates a splitter that knows DefaultAbbreviations plus extra.
func NewSentenceSplitter(extra ...string) *SentenceSplitter {
	abbreviations := make(map[string]bool, len(DefaultAbbreviations)+len(extra))
	for _, abbreviation := range DefaultAbbreviations {
		abbreviations[abbreviation] = true
	}
	for _, abbreviation := range extra {
		abbreviations[strings.ToLower(strings.TrimSuffix(abbreviation, "."))] = true
	}
	return &SentenceSplitter{
		abbreviations:    abbreviations,
		maxHeadingTokens: DefaultMaxHeadingTokens,
	}
}

// Split groups tokens of text into sentences.
func (splitter *SentenceSplitter) Split(text string, tokens []document.Token) []document.Sentence {
	var sentences []document.Sentence

	start, last := -1, -1
	quoteOpen := false
	lineTokens := 0

	closeSentence := func() {
		if start < 0 {
			return
		}
		charStart := tokens[start].Start
		charEnd := tokens[last].End()
		sentences = append(sentences, document.Sentence{
			Start:     start,
			End:       last + 1,
			CharStart: charStart,
			CharEnd:   charEnd,
			Text:      text[charStart:charEnd],
		})
		start, last = -1, -1
		quoteOpen = false
	}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		if token.IsSpace() {
			newlines := strings.Count(token.Text, "\n")
			if newlines == 0 {
				continue
			}
			if start >= 0 && (newlines > 1 || splitter.breaksAtNewline(tokens, last, i+1, lineTokens)) {
				closeSentence()
			}
			lineTokens = 0
			continue
		}

		if start < 0 {
			start = i
		}
		last = i
		lineTokens++

		if token.Text == `"` {
			quoteOpen = !quoteOpen
			continue
		}
		if !isTerminator(token.Text) {
			continue
		}
		if token.Text == "." && splitter.continuesAfterPeriod(tokens, i) {
			continue
		}

		end := i
		for end+1 < len(tokens) && isCloser(tokens[end+1].Text) {
			if tokens[end+1].Text == `"` {
				quoteOpen = !quoteOpen
			}
			end++
		}
		lineTokens += end - i
		i, last = end, end

		if quoteOpen {
			continue
		}
		closeSentence()
	}
	closeSentence()

	return sentences
}

// continuesAfterPeriod reports whether the period at index does not end a sentence.
func (splitter *SentenceSplitter) continuesAfterPeriod(tokens []document.Token, index int) bool {
	if next := nextWordIndex(tokens, index+1); next >= 0 {
		first, _ := utf8.DecodeRuneInString(tokens[next].Text)
		if unicode.IsLower(first) {
			return true
		}
	}

	previous := index - 1
	if previous < 0 || tokens[previous].IsSpace() {
		return false
	}
	previousText := tokens[previous].Text

	if corporateSuffixes[strings.ToLower(previousText)] {
		return !opensSentence(tokens, index+1)
	}
	if splitter.abbreviations[strings.ToLower(previousText)] {
		return true
	}

	// "(a)." and "(iv)."
	if previousText == ")" && previous >= 2 && isClauseMarker(tokens[previous-1]) && tokens[previous-2].Text == "(" {
		return true
	}

	if !isClauseMarker(tokens[previous]) {
		return false
	}
	if previous == 0 || strings.Contains(tokens[previous-1].Text, "\n") {
		return true
	}
	before := previousWordIndex(tokens, previous-1)
	return before >= 0 && headingWords[strings.ToLower(tokens[before].Text)]
}

// breaksAtNewline decides whether a single line break ends the open sentence.
// last is the final token of the line, next the index after the break.
func (splitter *SentenceSplitter) breaksAtNewline(tokens []document.Token, last, next, lineTokens int) bool {
	if next >= len(tokens) || last < 0 {
		return false
	}
	lastText := tokens[last].Text
	if lastText == ":" || lastText == ";" {
		return true
	}
	if startsEnumeration(tokens, next) {
		return true
	}
	nextRune, _ := utf8.DecodeRuneInString(tokens[next].Text)
	nextOpens := unicode.IsUpper(nextRune) || unicode.IsDigit(nextRune)

	// A period kept open by an abbreviation still ends the line's sentence.
	if isTerminator(lastText) {
		return nextOpens
	}
	if lineTokens > splitter.maxHeadingTokens || lastText == "," {
		return false
	}
	lastRune, _ := utf8.DecodeRuneInString(lastText)
	return !unicode.IsLower(lastRune) && nextOpens
}

// Process implements the pipeline stage contract.
func (splitter *SentenceSplitter) Process(ctx context.Context, doc *document.Document) error {
	doc.Sentences = splitter.Split(doc.Text, doc.Tokens)
	return nil
}

// Contract declares the splitter's fields.
func (splitter *SentenceSplitter) Contract() (requires, provides []document.Field) {
	return []document.Field{document.FieldTokens}, []document.Field{document.FieldSentences}
}

// startsEnumeration reports whether tokens at index open a clause marker:
// "(a)", "(12)", "a)", "1." or "iv.".
func startsEnumeration(tokens []document.Token, index int) bool {
	if index+2 < len(tokens) && tokens[index].Text == "(" && isClauseMarker(tokens[index+1]) && tokens[index+2].Text == ")" {
		return true
	}
	if index+1 < len(tokens) && isClauseMarker(tokens[index]) {
		following := tokens[index+1].Text
		return following == ")" || following == "."
	}
	return false
}

// isClauseMarker reports whether a token can number a clause: a number, a
// single letter or a short Roman numeral.
func isClauseMarker(token document.Token) bool {
	if token.Kind == document.KindNumber {
		return true
	}
	if token.Kind != document.KindWord {
		return false
	}
	if utf8.RuneCountInString(token.Text) == 1 {
		return true
	}
	if len(token.Text) > 4 {
		return false
	}
	for _, r := range strings.ToLower(token.Text) {
		if !strings.ContainsRune("ivxlc", r) {
			return false
		}
	}
	return true
}

func isTerminator(text string) bool {
	if text == "!" || text == "?" {
		return true
	}
	return text != "" && strings.Trim(text, ".") == ""
}

func isCloser(text string) bool {
	return text == `"` || text == "'" || text == ")" || text == "]"
}

// opensSentence reports whether the first word at or after index starts a new
// sentence: a capitalized word that is not itself a corporate suffix ("Co.
// Ltd.") or an opening quote.
func opensSentence(tokens []document.Token, index int) bool {
	next := nextWordIndex(tokens, index)
	if next < 0 {
		return false
	}
	text := tokens[next].Text
	if text == `"` || text == "'" {
		return true
	}
	first, _ := utf8.DecodeRuneInString(text)
	return unicode.IsUpper(first) && !corporateSuffixes[strings.ToLower(text)]
}

func nextWordIndex(tokens []document.Token, index int) int {
	for ; index < len(tokens); index++ {
		if !tokens[index].IsSpace() {
			return index
		}
	}
	return -1
}

func previousWordIndex(tokens []document.Token, index int) int {
	for ; index >= 0; index-- {
		if !tokens[index].IsSpace() {
			return index
		}
	}
	return -1
}
