package definition

import (
	"regexp"
	"strings"
)

// quote matches every opening or closing quotation form seen in contracts:
// ASCII, typographic, doubled backticks and apostrophes, and the cp1252
// code points that survive a bad decode.
const quote = `(?:"|\x{93}|\x{94}|\x60\x60|\x{91}|\x{92}|\x{201C}|\x{201D}|''|\x{2019}\x{2019}|\x{2018}\x{2019}|\x{2019}\x{2018})`

// termChars is a quoted term: anything but a double quote form.
const termChars = `[^"\x{93}\x{94}\x60\x{91}\x{92}\x{201C}\x{201D}\x{2018}\x{2019}]`

// Triggers introduce the definition that follows a term, in resolution order.
var Triggers = []string{
	"will mean", "will be defined", "shall be defined", "shall have the meaning",
	"will have the meaning", "includes", "shall mean", "means", "shallmean", "rneans",
	"significa", "shall for purposes", "have meaning", "has the meaning", "referred to",
	"known as", "refers to", "shall refer to", "as used", "for purposes",
	"shall be deemed to", "may be used", "is hereby changed to", "is defined",
	"shall be interpreted", "means each of", "is a reference to", "a reference to",
}

// leadTriggers precede a quoted term: `hereinafter "Seller"`.
var leadTriggers = []string{
	`called`, `herein`, `herein\s+as`, `collectively\s+as`, `individually\s+as`,
	`together\s+with`, `referred\s+to\s+as`, `being`, `shall\s+be`, `definition\s+as`,
	`known\s+as`, `designated\s+as`, `hereinafter`, `hereinafter\s+as`, `hereafter`,
	`hereafter\s+as`, `in\s+this\s+section`, `in\s+this\s+paragraph`, `individually`,
	`collectively`,
}

// Pattern is a named term pattern. Each pattern has a "term" group.
type Pattern struct {
	Name   string
	Regexp *regexp.Regexp
}

func triggerAlternation(triggers []string) string {
	parts := make([]string, len(triggers))
	for i, trigger := range triggers {
		parts[i] = strings.ReplaceAll(regexp.QuoteMeta(trigger), " ", `\s+`)
	}
	return strings.Join(parts, "|")
}

// DefaultPatterns returns the term patterns in priority order.
func DefaultPatterns() []Pattern {
	term := `(?P<term>` + termChars + `{1,75})`
	lazyTerm := `(?P<term>` + termChars + `{1,75}?)`
	closing := `(?:` + quote + `|[\s,])`

	return []Pattern{
		{
			Name: "quoted_trigger",
			Regexp: regexp.MustCompile(`(?:(?:word|term|phrase)?\s+|[:,.]\s*|^)?` + quote + term + closing +
				`\s+(?:` + triggerAlternation(Triggers) + `)(?:\s|[,:]\s){1,2}`),
		},
		{
			Name:   "quoted",
			Regexp: regexp.MustCompile(`(?:each,?\s+)?(?:(?:the|a|an)\s+)?` + quote + term + `\.?` + quote),
		},
		{
			Name:   "parenthetical",
			Regexp: regexp.MustCompile(`\(\s?(?i:the)\s` + quote + term + closing),
		},
		{
			Name:   "colon",
			Regexp: regexp.MustCompile(quote + term + quote + `:\s`),
		},
		{
			Name: "lead_trigger",
			Regexp: regexp.MustCompile(`(?:` + strings.Join(leadTriggers, "|") + `)[\s+,]{1,2}(?:(?:the|a|an)\s+)?` +
				quote + lazyTerm + quote),
		},
	}
}
