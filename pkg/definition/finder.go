// Package definition extracts a glossary of quoted terms and their
// definitions from contract sentences.
package definition

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coolbeans/contracta/pkg/document"
	"go.uber.org/zap"
)

var nonTermChars = regexp.MustCompile(`[^0-9a-zA-Z\s]+`)

// Finder scans sentences for defined terms.
type Finder struct {
	patterns []Pattern
	triggers []string
	logger   *zap.Logger
}

// NewFinder creates a Finder with the default patterns and triggers.
func NewFinder(logger *zap.Logger) *Finder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{
		patterns: DefaultPatterns(),
		triggers: Triggers,
		logger:   logger,
	}
}

// Find returns the glossary of the given sentences of text. At most one
// definition is kept per lowercased term; the first one found wins.
func (finder *Finder) Find(text string, sentences []document.Sentence) []document.Definition {
	var glossary []document.Definition
	seen := make(map[string]bool)
	for _, sentence := range sentences {
		if sentence.CharStart < 0 || sentence.CharEnd > len(text) || sentence.CharStart >= sentence.CharEnd {
			continue
		}
		glossary = finder.scan(text[sentence.CharStart:sentence.CharEnd], sentence.CharStart, seen, glossary)
	}
	return glossary
}

// FindInSentences runs the finder over standalone sentences. Offsets are
// relative to each sentence.
func (finder *Finder) FindInSentences(sentences ...string) []document.Definition {
	var glossary []document.Definition
	seen := make(map[string]bool)
	for _, sentence := range sentences {
		glossary = finder.scan(sentence, 0, seen, glossary)
	}
	return glossary
}

func (finder *Finder) scan(raw string, base int, seen map[string]bool, glossary []document.Definition) []document.Definition {
	text, positions := collapseSpace(raw)
	if text == "" {
		return glossary
	}

	for _, pattern := range finder.patterns {
		termGroup := pattern.Regexp.SubexpIndex("term")
		for _, loc := range pattern.Regexp.FindAllStringSubmatchIndex(text, -1) {
			groupStart, groupEnd := loc[2*termGroup], loc[2*termGroup+1]
			if groupStart < 0 {
				continue
			}

			term := strings.TrimSpace(nonTermChars.ReplaceAllString(text[groupStart:groupEnd], ""))
			key := strings.ToLower(term)
			if term == "" || seen[key] {
				continue
			}

			definition, ok := finder.resolve(text, term)
			if !ok {
				continue
			}

			seen[key] = true
			glossary = append(glossary, document.Definition{
				Term:       term,
				Definition: definition,
				Phrase:     text,
				Start:      base + positions[groupStart],
				End:        base + positions[groupEnd-1] + 1,
			})
			finder.logger.Debug("defined term",
				zap.String("term", term),
				zap.String("pattern", pattern.Name))
		}
	}
	return glossary
}

// resolve splits the sentence at the first occurrence of term and tries, in
// order, a trigger phrase, a colon and the acronym expansion.
func (finder *Finder) resolve(sentence, term string) (string, bool) {
	index := strings.Index(sentence, term)
	if index < 0 {
		return "", false
	}
	before, rest := sentence[:index], sentence[index+len(term):]

	for _, trigger := range finder.triggers {
		if at := strings.Index(rest, trigger); at >= 0 {
			if definition := strings.TrimSpace(rest[at+len(trigger):]); definition != "" {
				return definition, true
			}
			break
		}
	}

	if after := strings.TrimLeft(rest, "\"'`“”‘’"); strings.HasPrefix(after, ":") {
		if definition := strings.TrimSpace(after[1:]); definition != "" {
			return definition, true
		}
	}

	if isAcronym(term) {
		return expandAcronym(before, term)
	}
	return "", false
}

// expandAcronym finds the first run of words before the acronym whose
// initials spell it.
func expandAcronym(before, acronym string) (string, bool) {
	words := strings.Fields(before)
	size := utf8.RuneCountInString(acronym)
	for i := 0; i+size <= len(words); i++ {
		window := words[i : i+size]
		var initials strings.Builder
		for _, word := range window {
			first, _ := utf8.DecodeRuneInString(word)
			initials.WriteRune(first)
		}
		if initials.String() == acronym {
			return strings.Join(window, " "), true
		}
	}
	return "", false
}

func isAcronym(term string) bool {
	cased := false
	for _, r := range term {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// collapseSpace trims s and folds whitespace runs into a single space.
// positions maps every byte of the result to its byte offset in s.
func collapseSpace(s string) (string, []int) {
	var builder strings.Builder
	positions := make([]int, 0, len(s))
	pendingSpace := -1
	for offset, r := range s {
		if unicode.IsSpace(r) {
			if pendingSpace < 0 {
				pendingSpace = offset
			}
			continue
		}
		if pendingSpace >= 0 && builder.Len() > 0 {
			builder.WriteByte(' ')
			positions = append(positions, pendingSpace)
		}
		pendingSpace = -1
		width := utf8.RuneLen(r)
		if r == utf8.RuneError {
			_, width = utf8.DecodeRuneInString(s[offset:])
		}
		builder.WriteString(s[offset : offset+width])
		for k := 0; k < width; k++ {
			positions = append(positions, offset+k)
		}
	}
	return builder.String(), positions
}

// Process implements the pipeline stage contract.
func (finder *Finder) Process(ctx context.Context, doc *document.Document) error {
	doc.Glossary = finder.Find(doc.Text, doc.Sentences)
	return nil
}

// Contract declares the finder's fields.
func (finder *Finder) Contract() (requires, provides []document.Field) {
	return []document.Field{document.FieldText, document.FieldSentences}, []document.Field{document.FieldGlossary}
}
