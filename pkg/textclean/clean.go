// Package textclean canonicalizes raw extracted contract text before any
// structural analysis. It removes extraction artifacts (page numbers, page
// breaks, broken line wraps), collapses whitespace and maps typographic
// punctuation onto plain ASCII.
package textclean

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/coolbeans/contracta/pkg/document"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// pageBreakPattern matches the page separators the PDF loader emits.
	pageBreakPattern = regexp.MustCompile(`(?m)^[ \t]*--- PAGE BREAK ---[ \t]*$`)

	// pageFooterPattern matches "Page 3 of 12" style footers on their own line.
	pageFooterPattern = regexp.MustCompile(`(?mi)^[ \t]*page[ \t]+\d+(?:[ \t]+of[ \t]+\d+)?[ \t]*$`)

	// spacePattern matches runs of horizontal whitespace, including no-break spaces.
	spacePattern = regexp.MustCompile(`[\r\t\f\v \x{00A0}\x{2000}-\x{200A}\x{202F}\x{205F}\x{3000}]+`)

	// pageNumberPattern matches a bare number between line breaks, left over
	// from page footers.
	pageNumberPattern = regexp.MustCompile(`\n+\d+\n{2,}`)

	// newlinePattern matches a line break followed by any whitespace, blank lines included.
	newlinePattern = regexp.MustCompile(`(?:\n\s*)+`)

	// hyphenatedLineEndPattern matches lines ending with a hyphen (word break across lines).
	hyphenatedLineEndPattern = regexp.MustCompile(`[a-zA-Z]-$`)

	// numberPattern matches integers, decimals and grouped amounts.
	numberPattern = regexp.MustCompile(`[+-]?\b\d+(?:[.,]\d+)*\b`)
)

var quoteReplacer = strings.NewReplacer(
	"«", `"`, "‹", `"`, "»", `"`, "›", `"`, "„", `"`, "“", `"`, "‟", `"`, "”", `"`,
	"❝", `"`, "❞", `"`, "❮", `"`, "❯", `"`, "〝", `"`, "〞", `"`, "〟", `"`, "＂", `"`,
	"‘", "'", "‛", "'", "’", "'", "❛", "'", "❜", "'", "´", "'",
	"\u0093", `"`, "\u0094", `"`, "\u0091", "'", "\u0092", "'",
	"–", "-", "—", "-", "‒", "-", "―", "-", "−", "-",
	"\u00ad", "",
)

// Options controls optional cleaning steps.
type Options struct {
	// ASCIIFold strips diacritics after normalization ("Zürich" becomes "Zurich").
	ASCIIFold bool `yaml:"ascii_fold" toml:"ascii_fold"`

	// KeepHyphenation disables rejoining of words split across line breaks.
	KeepHyphenation bool `yaml:"keep_hyphenation" toml:"keep_hyphenation"`
}

// Cleaner normalizes raw document text.
type Cleaner struct {
	options Options
}

// New creates a Cleaner.
func New(options Options) *Cleaner {
	return &Cleaner{options: options}
}

// Clean returns the canonical form of raw.
func (cleaner *Cleaner) Clean(raw string) string {
	text := norm.NFKC.String(raw)
	if cleaner.options.ASCIIFold {
		text = foldASCII(text)
	}
	text = quoteReplacer.Replace(text)

	text = pageBreakPattern.ReplaceAllString(text, "\n\n")
	text = pageFooterPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	text = pageNumberPattern.ReplaceAllString(text, "\n")

	if !cleaner.options.KeepHyphenation {
		lines := rejoinHyphenatedLines(strings.Split(text, "\n"))
		text = strings.Join(lines, "\n")
	}

	text = newlinePattern.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// Process implements the pipeline stage contract.
func (cleaner *Cleaner) Process(ctx context.Context, doc *document.Document) error {
	doc.Text = cleaner.Clean(doc.Raw)
	return nil
}

// Contract declares that the cleaner writes the normalized text.
func (cleaner *Cleaner) Contract() (requires, provides []document.Field) {
	return nil, []document.Field{document.FieldText}
}

// FeatureText prepares text for a statistical classifier: cleaned, optionally
// lowercased, optionally stripped of numbers.
func (cleaner *Cleaner) FeatureText(text string, lower, removeNumbers bool) string {
	text = cleaner.Clean(text)
	if lower {
		text = strings.ToLower(text)
	}
	if removeNumbers {
		text = numberPattern.ReplaceAllString(text, "")
		text = spacePattern.ReplaceAllString(text, " ")
	}
	return strings.TrimSpace(text)
}

func foldASCII(text string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		return text
	}
	return folded
}

// rejoinHyphenatedLines merges lines where a word is split across a line
// break with a hyphen. For example:
//
//	"the Supplier shall indem-"
//	"nify the Customer"
//
// becomes:
//
//	"the Supplier shall indemnify the Customer"
func rejoinHyphenatedLines(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}

	var result []string
	for i := 0; i < len(lines); i++ {
		trimmedCurrent := strings.TrimRight(lines[i], " ")

		if i+1 < len(lines) && hyphenatedLineEndPattern.MatchString(trimmedCurrent) {
			trimmedNext := strings.TrimSpace(lines[i+1])

			// Only a lowercase continuation is a word break; anything else is
			// a list dash or a new heading.
			if len(trimmedNext) > 0 && trimmedNext[0] >= 'a' && trimmedNext[0] <= 'z' {
				result = append(result, trimmedCurrent[:len(trimmedCurrent)-1]+trimmedNext)
				i++
				continue
			}
		}

		result = append(result, lines[i])
	}

	return result
}
