// Package tokenize splits normalized contract text into tokens and sentences.
//
// Tokens carry byte offsets into the text and cover it exactly: joining the
// token texts in order reproduces the input. Sentences are token ranges with
// the character span they cover.
package tokenize

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coolbeans/contracta/pkg/document"
)

// Tokenizer splits text into word, number, punctuation and whitespace tokens.
type Tokenizer struct{}

// NewTokenizer creates a Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize splits text into tokens.
func (tokenizer *Tokenizer) Tokenize(text string) []document.Token {
	var tokens []document.Token

	position := 0
	for position < len(text) {
		r, size := utf8.DecodeRuneInString(text[position:])
		start := position

		switch {
		case unicode.IsSpace(r):
			position += size
			for position < len(text) {
				next, nextSize := utf8.DecodeRuneInString(text[position:])
				if !unicode.IsSpace(next) {
					break
				}
				position += nextSize
			}
			tokens = append(tokens, document.Token{Text: text[start:position], Start: start, Kind: document.KindSpace})

		case isWordRune(r):
			position = scanWord(text, position)
			kind := document.KindNumber
			for _, wr := range text[start:position] {
				if unicode.IsLetter(wr) {
					kind = document.KindWord
					break
				}
			}
			tokens = append(tokens, document.Token{Text: text[start:position], Start: start, Kind: kind})

		case r == '.':
			position += size
			for position < len(text) && text[position] == '.' {
				position++
			}
			tokens = append(tokens, document.Token{Text: text[start:position], Start: start, Kind: document.KindPunct})

		default:
			position += size
			tokens = append(tokens, document.Token{Text: text[start:position], Start: start, Kind: document.KindPunct})
		}
	}

	return tokens
}

// scanWord consumes a run of letters and digits starting at position. Joiners
// ('-', '\'', '.', ',' and '/') are kept inside the word when a letter or
// digit follows them; '.', ',' and '/' only join digits to digits, except that
// '.' also joins single letters ("U.S", "e.g").
func scanWord(text string, position int) int {
	segmentLength := 0
	var previous rune
	for position < len(text) {
		r, size := utf8.DecodeRuneInString(text[position:])
		if isWordRune(r) {
			position += size
			segmentLength++
			previous = r
			continue
		}

		next, _ := utf8.DecodeRuneInString(text[position+size:])
		if position+size >= len(text) || !isWordRune(next) {
			break
		}

		joins := false
		switch r {
		case '-', '\'':
			joins = true
		case ',', '/':
			joins = unicode.IsDigit(previous) && unicode.IsDigit(next)
		case '.':
			joins = (unicode.IsDigit(previous) && unicode.IsDigit(next)) ||
				(segmentLength == 1 && unicode.IsLetter(previous) && unicode.IsLetter(next) && !followedByWordRun(text, position+size))
		}
		if !joins {
			break
		}

		position += size
		segmentLength = 0
		previous = r
	}
	return position
}

// followedByWordRun reports whether a run of two or more word runes starts at
// position, which keeps "A.Smith" apart while joining "U.S" and "e.g".
func followedByWordRun(text string, position int) bool {
	count := 0
	for _, r := range text[position:] {
		if !isWordRune(r) {
			break
		}
		count++
		if count > 1 {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// Process implements the pipeline stage contract.
func (tokenizer *Tokenizer) Process(ctx context.Context, doc *document.Document) error {
	doc.Tokens = tokenizer.Tokenize(doc.Text)
	if len(doc.Boxes) > 0 {
		AlignBoxes(doc.Tokens, doc.Boxes)
	}
	return nil
}

// Contract declares the tokenizer's fields.
func (tokenizer *Tokenizer) Contract() (requires, provides []document.Field) {
	return []document.Field{document.FieldText}, []document.Field{document.FieldTokens}
}

// AlignBoxes attaches source word boxes to tokens. Boxes are consumed in
// order; a token takes the box of the word that contains it. Tokens that
// cannot be placed keep a nil box.
func AlignBoxes(tokens []document.Token, boxes []document.WordBox) {
	boxIndex, cursor := 0, 0
	for i := range tokens {
		if tokens[i].IsSpace() {
			continue
		}
		for boxIndex < len(boxes) && cursor >= len(boxes[boxIndex].Text) {
			boxIndex++
			cursor = 0
		}
		if boxIndex >= len(boxes) {
			return
		}

		if offset := strings.Index(boxes[boxIndex].Text[cursor:], tokens[i].Text); offset >= 0 {
			box := boxes[boxIndex].Box
			tokens[i].Box = &box
			cursor += offset + len(tokens[i].Text)
			continue
		}

		// The current word may have been only partially tokenized; try the next one.
		if boxIndex+1 < len(boxes) && strings.HasPrefix(boxes[boxIndex+1].Text, tokens[i].Text) {
			boxIndex++
			box := boxes[boxIndex].Box
			tokens[i].Box = &box
			cursor = len(tokens[i].Text)
		}
	}
}
