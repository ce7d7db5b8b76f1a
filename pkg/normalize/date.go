// Package normalize maps accepted entity text to canonical values: ISO dates,
// jurisdictions, currency amounts and registered legal entity names.
package normalize

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/coolbeans/contracta/pkg/document"
	"go.uber.org/zap"
)

// ISODate is the layout of normalized dates.
const ISODate = "2006-01-02"

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	monthWord     = regexp.MustCompile(`(?i)\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)
	firstDigit    = regexp.MustCompile(`\d`)
	longDigitRun  = regexp.MustCompile(`\d{5,}`)
	ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	noiseWords    = regexp.MustCompile(`(?i)\b(?:day|of|the|[a-z])\b`)
	separators    = regexp.MustCompile(`[,\s]+`)
	numberPart    = regexp.MustCompile(`\d+`)
)

// DateNormalizer parses free-form contract dates into YYYY-MM-DD.
type DateNormalizer struct {
	logger *zap.Logger
}

// NewDateNormalizer creates a date normalizer.
func NewDateNormalizer(logger *zap.Logger) *DateNormalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DateNormalizer{logger: logger}
}

// Normalize sets entity.Normalized, or leaves it empty when no strategy parses.
func (normalizer *DateNormalizer) Normalize(ctx context.Context, entity *document.Entity) {
	value, ok := ParseDate(entity.Name)
	if !ok {
		normalizer.logger.Warn("unparseable date", zap.String("text", entity.Name))
		return
	}
	entity.Normalized = value
}

// ParseDate tries the general parser, then the parser again on the text with
// noise removed, then assembles the day, month and year components directly.
func ParseDate(text string) (string, bool) {
	text = stripLeadIn(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}

	if parsed, ok := parseAny(text); ok {
		return parsed.Format(ISODate), true
	}

	cleaned := removeNoise(text)
	if parsed, ok := parseAny(cleaned); ok {
		return parsed.Format(ISODate), true
	}

	if parsed, ok := assemble(cleaned); ok {
		return parsed.Format(ISODate), true
	}
	return "", false
}

func parseAny(text string) (time.Time, bool) {
	parsed, err := dateparse.ParseAny(text)
	if err != nil || parsed.Year() < 1000 {
		return time.Time{}, false
	}
	return parsed, true
}

// stripLeadIn drops words before the first month name or digit.
func stripLeadIn(text string) string {
	start := len(text)
	if loc := monthWord.FindStringIndex(text); loc != nil {
		start = loc[0]
	}
	if loc := firstDigit.FindStringIndex(text); loc != nil && loc[0] < start {
		start = loc[0]
	}
	if start == len(text) {
		return text
	}
	return text[start:]
}

func removeNoise(text string) string {
	text = longDigitRun.ReplaceAllString(text, " ")
	text = ordinalSuffix.ReplaceAllString(text, "$1")
	text = noiseWords.ReplaceAllString(text, " ")
	text = strings.Trim(text, " .,")
	return separators.ReplaceAllString(text, " ")
}

// assemble builds a date from a month name, a four-digit year and an
// optional day. A missing day is the first of the month.
func assemble(text string) (time.Time, bool) {
	monthLoc := monthWord.FindStringIndex(text)
	if monthLoc == nil {
		return time.Time{}, false
	}
	month := months[strings.ToLower(text[monthLoc[0]:monthLoc[1]])]

	year, day := 0, 0
	for _, number := range numberPart.FindAllString(text, -1) {
		value, _ := strconv.Atoi(number)
		switch {
		case len(number) == 4 && year == 0:
			year = value
		case len(number) <= 2 && day == 0 && value >= 1 && value <= 31:
			day = value
		}
	}
	if year == 0 {
		return time.Time{}, false
	}
	if day == 0 {
		day = 1
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}
