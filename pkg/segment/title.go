package segment

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultTitleThreshold is the minimum ScoreTitle value for a structural title.
const DefaultTitleThreshold = 5

// Feature weights, in order: numbered start, word count, offset, schedule
// keyword, case.
var titleWeights = [5]int{15, 5, 10, 10, 15}

var (
	titleNumberPattern  = regexp.MustCompile(`^(?:\d+\.|[XIV]{1,3}\.)`)
	titleEnumPattern    = regexp.MustCompile(`^(?:\(?[a-zA-Z]{1,2}\)?\.?|\(\d{1,2}\)\.?)`)
	titleSectionPattern = regexp.MustCompile(`^(?:S(?:ection|\s?ECTION)|Article|\s?RTICLE)?\s*(?:\d{1,2}\.)*\d{1,2}\.?`)
)

var scheduleKeywords = []string{"schedule", "appendix", "addendum", "annex", "exhibit", "annexure"}

// ScoreTitle rates how much a candidate heading looks like a structural title.
// start is the candidate's offset in the document.
func ScoreTitle(title string, start int) int {
	numbered := 0
	if titleNumberPattern.MatchString(title) {
		numbered++
	}
	if titleEnumPattern.MatchString(strings.ToLower(title)) {
		numbered++
	}
	if titleSectionPattern.MatchString(title) {
		numbered++
	}

	length := 0
	if words := len(strings.Fields(title)); words >= 2 && words <= 6 {
		length = 1
	}

	position := 0
	if start >= 3 {
		position = 1
	}

	schedule := 0
	lower := strings.ToLower(title)
	for _, keyword := range scheduleKeywords {
		if strings.Contains(lower, keyword) {
			schedule = 1
			break
		}
	}

	casing := 0
	if isUpperCase(title) || isTitleCase(title) {
		casing = 1
	}

	return numbered*titleWeights[0] + length*titleWeights[1] + position*titleWeights[2] +
		schedule*titleWeights[3] + casing*titleWeights[4]
}

// isUpperCase reports whether s has at least one cased letter and no lowercase ones.
func isUpperCase(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

// isTitleCase reports whether every cased run in s starts with exactly one
// uppercase letter followed by lowercase letters.
func isTitleCase(s string) bool {
	cased, previousCased := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			if previousCased {
				return false
			}
			previousCased, cased = true, true
		case unicode.IsLower(r):
			if !previousCased {
				return false
			}
		default:
			previousCased = false
		}
	}
	return cased
}
