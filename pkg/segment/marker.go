// Package segment partitions normalized contract text into titled sections.
//
// Each line is tried against an ordered catalog of structural markers
// (numbered headings, articles, schedules, signature blocks, letter
// salutations). An accepted marker closes the running segment and opens a
// new one at the start of the line, so the emitted segments are contiguous
// and cover the whole text.
package segment

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match is a marker hit on a single line. Offsets are relative to the line.
type Match struct {
	// Text is the matched prefix of the line.
	Text string

	HasTitle   bool
	Title      string
	TitleStart int
	TitleEnd   int

	HasSection bool
	Section    string
}

// Marker recognizes a structural marker at the start of a line.
type Marker interface {
	Name() string
	Match(line string) (Match, bool)
}

// RegexMarker is a Marker backed by a regular expression anchored at the
// start of the line. Optional named groups "title" and "section" seed the
// segment fields.
type RegexMarker struct {
	name    string
	pattern *regexp.Regexp
	title   int
	section int
}

// NewRegexMarker compiles pattern into a marker. Only matches starting at
// the first character of the line count.
func NewRegexMarker(name, pattern string) (*RegexMarker, error) {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexMarker{
		name:    name,
		pattern: compiled,
		title:   compiled.SubexpIndex("title"),
		section: compiled.SubexpIndex("section"),
	}, nil
}

// MustRegexMarker is NewRegexMarker that panics on an invalid pattern.
func MustRegexMarker(name, pattern string) *RegexMarker {
	marker, err := NewRegexMarker(name, pattern)
	if err != nil {
		panic("segment: marker " + name + ": " + err.Error())
	}
	return marker
}

// Name returns the marker name.
func (marker *RegexMarker) Name() string {
	return marker.name
}

// Match applies the marker to a line.
func (marker *RegexMarker) Match(line string) (Match, bool) {
	loc := marker.pattern.FindStringSubmatchIndex(line)
	if loc == nil || loc[0] != 0 {
		return Match{}, false
	}

	match := Match{Text: line[loc[0]:loc[1]]}
	if marker.title > 0 {
		start, end := loc[2*marker.title], loc[2*marker.title+1]
		if start >= 0 && end > start {
			match.HasTitle = true
			match.Title = strings.TrimSpace(line[start:end])
			match.TitleStart = start
			match.TitleEnd = end
		}
	}
	if marker.section > 0 {
		start, end := loc[2*marker.section], loc[2*marker.section+1]
		if start >= 0 && end > start {
			match.HasSection = true
			match.Section = line[start:end]
		}
	}
	return match, true
}

var (
	// numberedHeadingPrefix matches an optional SECTION keyword and a dotted
	// section number, up to where the title begins.
	numberedHeadingPrefix = regexp.MustCompile(`^(?:[SECTIONsection]{7})?\s*([IVX\d]+(?:\.[IVX\d]+)*)(?:\.|\s|$)\s*`)

	// addressContinuation matches text that makes a heading candidate look
	// like a street address ("12 Main Street", "Suite 400").
	addressContinuation = regexp.MustCompile(`^(?:\d{1,5}\s+[A-Za-z.,]+|[A-Za-z.,]+\s*\d{1,5})`)
)

// NumberedHeadingMarker recognizes "SECTION 1. Title", "1.2 Title" and
// "IV. Title". The title runs to the first period (or the end of the line)
// whose continuation is neither address-like nor a percentage.
type NumberedHeadingMarker struct{}

// Name returns the marker name.
func (NumberedHeadingMarker) Name() string {
	return "numbered_heading"
}

// Match applies the marker to a line.
func (NumberedHeadingMarker) Match(line string) (Match, bool) {
	prefix := numberedHeadingPrefix.FindStringSubmatchIndex(line)
	if prefix == nil {
		return Match{}, false
	}

	titleStart := prefix[1]
	first, size := utf8.DecodeRuneInString(line[titleStart:])
	if size == 0 || !(('A' <= first && first <= 'Z') || unicode.IsDigit(first)) {
		return Match{}, false
	}

	for k := titleStart + size; k <= len(line); {
		end := -1
		var r rune
		width := 1
		if k == len(line) {
			end = k
		} else {
			r, width = utf8.DecodeRuneInString(line[k:])
			if r == '.' {
				end = k + 1
			}
		}

		if end >= 0 && !blocksHeading(line[end:]) {
			return Match{
				Text:       line[:end],
				HasTitle:   true,
				Title:      strings.TrimSpace(line[titleStart:k]),
				TitleStart: titleStart,
				TitleEnd:   k,
				HasSection: true,
				Section:    line[prefix[2]:prefix[3]],
			}, true
		}
		k += width
	}
	return Match{}, false
}

func blocksHeading(rest string) bool {
	return strings.HasPrefix(rest, "%") || addressContinuation.MatchString(rest)
}

// DefaultCatalog returns the built-in marker catalog in priority order.
// Later markers override earlier ones on the same line.
func DefaultCatalog() []Marker {
	return []Marker{
		MustRegexMarker("roman_heading", `(?i)^(?:section|part|chapter|article)\s*[IVXLCDM]+(?:\s*[-–]\s*[IVXLCDM]+)?\b`),
		MustRegexMarker("subsection", `(?i)^(?:sub\s*[-–]?\s*section|subsection)\s*[A-Za-z0-9]+\b`),
		MustRegexMarker("roman_chain", `^(?:[IVXLCDMivxlcdm]+\.\s*)+[A-Za-z0-9]+\b`),
		NumberedHeadingMarker{},
		MustRegexMarker("article", `^(?:ARTICLE|[Aa]rticle)\s*(?P<section>[IVX\d]+(?:\.[IVX\d]+)*):?\s*(?P<title>.*)$`),
		MustRegexMarker("witness", `^(?P<title>IN\s+WITNESS\s+WHEREOF)`),
		MustRegexMarker("signatures", `^(?P<title>SIGNATURES)`),
		MustRegexMarker("signed_by", `^(?P<title>Signed\s+by\s+the\s+Parties)(?:\s|$)`),
		MustRegexMarker("schedule", `^(?P<title>(?:Schedule|Appendix|Addendum|Annex|Exhibit|Annexure)\s.*)$`),
		MustRegexMarker("salutation", `^(?:Dear\s(.+?)|(Ladies\sand\sGentlemen:))`),
		MustRegexMarker("letter_closing", `^(?:Best\sregards|Sincerely|Yours\ssincerely|Kind\sregards|Very\struly\syours)\b`),
		MustRegexMarker("table_of_contents", `^(?P<title>TABLE OF CONTENTS)\b`),
	}
}
