package segment

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/coolbeans/contracta/pkg/document"
	"go.uber.org/zap"
)

// Policy decides how a marker match becomes a section boundary.
type Policy int

const (
	// DirectAccept takes every match that passes the address and digit guards.
	DirectAccept Policy = iota

	// Scored additionally requires ScoreTitle of the matched text to reach the threshold.
	Scored
)

// ParsePolicy resolves a policy name ("direct" or "scored").
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "direct":
		return DirectAccept, nil
	case "scored":
		return Scored, nil
	}
	return DirectAccept, fmt.Errorf("unknown segmentation policy %q", name)
}

// String returns the policy name.
func (policy Policy) String() string {
	if policy == Scored {
		return "scored"
	}
	return "direct"
}

// DefaultDenyList holds street-address tokens that disqualify a heading match.
var DefaultDenyList = []string{
	"Street", "St", "Avenue", "Ave", "Road", "Rd", "Boulevard", "Blvd",
	"Lane", "Ln", "Drive", "Suite", "Floor", "Parkway", "Pkwy",
	"Highway", "Hwy", "Square", "Plaza",
}

// Options configures a Segmenter. Zero values select the defaults.
type Options struct {
	Catalog   []Marker
	DenyList  []string
	Policy    Policy
	Threshold int
	Logger    *zap.Logger
}

// Segmenter partitions text into segments.
type Segmenter struct {
	catalog   []Marker
	deny      map[string]bool
	policy    Policy
	threshold int
	logger    *zap.Logger
}

// New creates a Segmenter.
func New(options Options) *Segmenter {
	catalog := options.Catalog
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	denyList := options.DenyList
	if denyList == nil {
		denyList = DefaultDenyList
	}
	deny := make(map[string]bool, len(denyList))
	for _, token := range denyList {
		deny[strings.TrimSuffix(token, ".")] = true
	}
	threshold := options.Threshold
	if threshold <= 0 {
		threshold = DefaultTitleThreshold
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Segmenter{
		catalog:   catalog,
		deny:      deny,
		policy:    options.Policy,
		threshold: threshold,
		logger:    logger,
	}
}

type boundary struct {
	offset int
	marker string
	match  Match
}

// Segment partitions text. The returned segments are ordered, contiguous and
// cover [0, len(text)); empty text yields no segments.
func (segmenter *Segmenter) Segment(text string) []document.Segment {
	if text == "" {
		return nil
	}

	boundaries := []boundary{{offset: 0}}
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if accepted, ok := segmenter.matchLine(line, offset); ok {
			boundaries = append(boundaries, accepted)
		}
		offset += len(line) + 1
	}

	return buildSegments(text, boundaries)
}

// matchLine tries every marker on the line. The last accepted match wins.
func (segmenter *Segmenter) matchLine(line string, offset int) (boundary, bool) {
	var accepted boundary
	found := false
	for _, marker := range segmenter.catalog {
		match, ok := marker.Match(line)
		if !ok || !segmenter.accepts(match, offset) {
			continue
		}
		accepted = boundary{offset: offset, marker: marker.Name(), match: match}
		found = true
	}
	if found {
		segmenter.logger.Debug("section boundary",
			zap.String("marker", accepted.marker),
			zap.Int("offset", offset),
			zap.String("title", accepted.match.Title))
	}
	return accepted, found
}

// accepts applies the address deny-list, the trailing-digit guard and, under
// the scored policy, the title threshold.
func (segmenter *Segmenter) accepts(match Match, offset int) bool {
	trimmed := strings.TrimSpace(match.Text)
	if trimmed == "" {
		return false
	}
	if last := rune(trimmed[len(trimmed)-1]); unicode.IsDigit(last) {
		return false
	}
	for _, field := range strings.Fields(trimmed) {
		token := strings.TrimSuffix(strings.Trim(field, ",;:()"), ".")
		if segmenter.deny[token] {
			return false
		}
	}
	if segmenter.policy == Scored && ScoreTitle(match.Text, offset) < segmenter.threshold {
		return false
	}
	return true
}

func buildSegments(text string, boundaries []boundary) []document.Segment {
	segments := make([]document.Segment, 0, len(boundaries))
	for i, b := range boundaries {
		end := len(text)
		if i+1 < len(boundaries) {
			end = boundaries[i+1].offset
		}
		if end <= b.offset {
			continue
		}

		segment := document.Segment{
			Start:      b.offset,
			End:        end,
			TitleStart: b.offset,
			TitleEnd:   b.offset,
		}
		if b.match.HasTitle {
			segment.Title = b.match.Title
			segment.TitleStart = b.offset + b.match.TitleStart
			segment.TitleEnd = b.offset + b.match.TitleEnd
		}
		if b.match.HasSection {
			segment.Section, segment.Subsection = splitSection(b.match.Section)
		}
		body := strings.TrimLeft(text[segment.TitleEnd:end], ".")
		segment.Text = strings.TrimLeft(body, "\n")

		segments = append(segments, segment)
	}
	return segments
}

// splitSection splits "3.2.1" into "3" and "2.1".
func splitSection(section string) (string, string) {
	parts := strings.SplitN(section, ".", 2)
	major := strings.TrimRight(parts[0], ".")
	if len(parts) == 1 {
		return major, ""
	}
	return major, strings.TrimRight(parts[1], ".")
}

// titleMatch locates title within line for boundaries proposed by a model.
func titleMatch(line, title string) Match {
	match := Match{Text: line, HasTitle: true, Title: strings.TrimSpace(title)}
	if index := strings.Index(line, match.Title); index >= 0 {
		match.TitleStart = index
		match.TitleEnd = index + len(match.Title)
	}
	return match
}

// Process implements the pipeline stage contract.
func (segmenter *Segmenter) Process(ctx context.Context, doc *document.Document) error {
	doc.Segments = segmenter.Segment(doc.Text)
	return nil
}

// Contract declares the segmenter's fields.
func (segmenter *Segmenter) Contract() (requires, provides []document.Field) {
	return []document.Field{document.FieldText}, []document.Field{document.FieldSegments}
}
