package segment

import (
	"context"
	"testing"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSections = "SECTION 1. Definitions\nSome body text.\nSECTION 2. Term\nOther text."

func assertCoverage(t *testing.T, text string, segments []document.Segment) {
	t.Helper()
	if text == "" {
		assert.Empty(t, segments)
		return
	}
	require.NotEmpty(t, segments)
	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, len(text), segments[len(segments)-1].End)
	for i, segment := range segments {
		assert.Less(t, segment.Start, segment.End, "segment %d is empty", i)
		assert.LessOrEqual(t, segment.Start, segment.TitleStart)
		assert.LessOrEqual(t, segment.TitleStart, segment.TitleEnd)
		assert.LessOrEqual(t, segment.TitleEnd, segment.End)
		if i > 0 {
			assert.Equal(t, segments[i-1].End, segment.Start, "gap before segment %d", i)
		}
	}
}

func TestSegmentTwoSections(t *testing.T) {
	segments := New(Options{}).Segment(twoSections)
	assertCoverage(t, twoSections, segments)
	require.Len(t, segments, 2)

	first := segments[0]
	assert.Equal(t, "1", first.Section)
	assert.Equal(t, "", first.Subsection)
	assert.Equal(t, "Definitions", first.Title)
	assert.Equal(t, 0, first.Start)
	assert.Equal(t, 39, first.End)
	assert.Equal(t, "Definitions", twoSections[first.TitleStart:first.TitleEnd])
	assert.Equal(t, "Some body text.\n", first.Text)

	second := segments[1]
	assert.Equal(t, "2", second.Section)
	assert.Equal(t, "Term", second.Title)
	assert.Equal(t, 39, second.Start)
	assert.Equal(t, "Other text.", second.Text)
}

func TestSegmentMarkers(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		count      int
		title      string
		section    string
		subsection string
	}{
		{
			name:    "article with colon",
			input:   "Preamble\nARTICLE 4: Payment Terms\nBody.",
			count:   2,
			title:   "Payment Terms",
			section: "4",
		},
		{
			name:       "dotted subsection number",
			input:      "Intro\n1.2 Fees\nPay.",
			count:      2,
			title:      "Fees",
			section:    "1",
			subsection: "2",
		},
		{
			name:    "roman numeral heading prefers numbered title",
			input:   "PREAMBLE text\nI. Introduction\nText here.",
			count:   2,
			title:   "Introduction",
			section: "I",
		},
		{
			name:  "schedule",
			input: "Main terms.\nSchedule A Pricing\nItems.",
			count: 2,
			title: "Schedule A Pricing",
		},
		{
			name:  "witness clause",
			input: "Last clause.\nIN WITNESS WHEREOF, the parties have signed.",
			count: 2,
			title: "IN WITNESS WHEREOF",
		},
		{
			name:  "street address is not a heading",
			input: "Notices go to:\n1. Delivery to 200 Main Street.\nbody",
			count: 1,
		},
		{
			name:  "trailing page number is not a heading",
			input: "Contents\n1. Definitions 3\nbody",
			count: 1,
		},
		{
			name:  "numbered schedule reference is not a heading",
			input: "See below.\nExhibit 1\nbody",
			count: 1,
		},
		{
			name:  "no markers",
			input: "Plain prose without any headings.",
			count: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := New(Options{}).Segment(tt.input)
			assertCoverage(t, tt.input, segments)
			require.Len(t, segments, tt.count)

			last := segments[len(segments)-1]
			assert.Equal(t, tt.title, last.Title)
			assert.Equal(t, tt.section, last.Section)
			assert.Equal(t, tt.subsection, last.Subsection)
			if last.Title != "" {
				assert.Equal(t, last.Title, tt.input[last.TitleStart:last.TitleEnd])
			}
		})
	}
}

func TestSegmentUntitledPreamble(t *testing.T) {
	text := "PREAMBLE text\nI. Introduction\nText here."
	segments := New(Options{}).Segment(text)
	require.Len(t, segments, 2)

	assert.Equal(t, "", segments[0].Title)
	assert.Equal(t, 0, segments[0].TitleStart)
	assert.Equal(t, 0, segments[0].TitleEnd)
	assert.Equal(t, "PREAMBLE text\n", segments[0].Text)
	assert.Equal(t, "Text here.", segments[1].Text)
}

func TestSegmentEmpty(t *testing.T) {
	assert.Empty(t, New(Options{}).Segment(""))
}

func TestSegmentCoverage(t *testing.T) {
	inputs := []string{
		"\n\n\n",
		"SECTION 1. Only heading",
		"TABLE OF CONTENTS\n1. Definitions 2\n2. Term 5\nSECTION 1. Definitions\nText.\nSECTION 2. Term\nMore.",
		"Dear Sir,\nThank you.\nSincerely\nJane",
		"ARTICLE IV - Remedies\nText.\nSigned by the Parties\n",
	}
	segmenter := New(Options{})
	for _, input := range inputs {
		assertCoverage(t, input, segmenter.Segment(input))
	}
}

func TestSegmentCustomCatalogLastMatchWins(t *testing.T) {
	catalog := []Marker{
		MustRegexMarker("first", `^(?P<title>Part)\b`),
		MustRegexMarker("second", `^Part\s+(?P<section>[A-Z])\s+(?P<title>.+)$`),
	}
	text := "Intro\nPart B Warranties\nBody."
	segments := New(Options{Catalog: catalog}).Segment(text)
	require.Len(t, segments, 2)
	assert.Equal(t, "Warranties", segments[1].Title)
	assert.Equal(t, "B", segments[1].Section)
}

func TestSegmentDenyListOverride(t *testing.T) {
	text := "Notices go to:\n1. Delivery to 200 Main Street.\nbody"
	segments := New(Options{DenyList: []string{}}).Segment(text)
	require.Len(t, segments, 2)
	assert.Equal(t, "Delivery to 200 Main Street", segments[1].Title)
}

func TestSegmentScoredPolicy(t *testing.T) {
	segments := New(Options{Policy: Scored, Threshold: 40}).Segment(twoSections)
	assertCoverage(t, twoSections, segments)
	require.Len(t, segments, 2)
	assert.Equal(t, "", segments[0].Title)
	assert.Equal(t, "Term", segments[1].Title)

	segments = New(Options{Policy: Scored}).Segment(twoSections)
	assert.Len(t, segments, 2)
	assert.Equal(t, "Definitions", segments[0].Title)
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy("Scored")
	require.NoError(t, err)
	assert.Equal(t, Scored, policy)
	assert.Equal(t, "scored", policy.String())

	policy, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DirectAccept, policy)

	_, err = ParsePolicy("neural")
	assert.Error(t, err)
}

func TestScoreTitle(t *testing.T) {
	tests := []struct {
		title string
		start int
		want  int
	}{
		{"Schedule A Pricing", 10, 55},
		{"1. DEFINITIONS", 0, 50},
		{"SECTION 1. Definitions", 0, 35},
		{"SECTION 2. Term", 39, 45},
		{"whereas the parties agree", 100, 30},
		{"", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreTitle(tt.title, tt.start))
		})
	}
}

func TestRegexMarkerRequiresLineStart(t *testing.T) {
	marker := MustRegexMarker("schedule", `(?P<title>Schedule\s.*)$`)
	_, ok := marker.Match("See Schedule B")
	assert.False(t, ok)

	match, ok := marker.Match("Schedule B")
	require.True(t, ok)
	assert.Equal(t, "Schedule B", match.Title)
}

func TestNewRegexMarkerInvalid(t *testing.T) {
	_, err := NewRegexMarker("broken", `(`)
	assert.Error(t, err)
	assert.Panics(t, func() { MustRegexMarker("broken", `(`) })
}

func TestNumberedHeadingMarker(t *testing.T) {
	tests := []struct {
		line    string
		ok      bool
		title   string
		section string
	}{
		{"SECTION 1. Definitions", true, "Definitions", "1"},
		{"3.1 Payment. The Buyer pays.", true, "Payment", "3.1"},
		{"IV. Remedies", true, "Remedies", "IV"},
		{"2. interest accrues", false, "", ""},
		{"1. Acme Corp.100 Main St", true, "Acme Corp.100 Main St", "1"},
		{"6. Rate.%", true, "Rate.%", "6"},
		{"The Buyer", false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			match, ok := NumberedHeadingMarker{}.Match(tt.line)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.title, match.Title)
			assert.Equal(t, tt.section, match.Section)
			assert.Equal(t, tt.title, tt.line[match.TitleStart:match.TitleEnd])
		})
	}
}

func TestSegmenterProcess(t *testing.T) {
	doc := document.New(twoSections)
	doc.Text = twoSections

	segmenter := New(Options{})
	require.NoError(t, segmenter.Process(context.Background(), doc))
	assert.Len(t, doc.Segments, 2)

	requires, provides := segmenter.Contract()
	assert.Equal(t, []document.Field{document.FieldText}, requires)
	assert.Equal(t, []document.Field{document.FieldSegments}, provides)
}
