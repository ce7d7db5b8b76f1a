// Package document defines the contract document record threaded through the
// annotation pipeline and the annotations each stage attaches to it.
package document

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Document is the unit of processing. Raw is fixed at creation; every other
// field is owned by exactly one pipeline stage.
type Document struct {
	ID     string `json:"id"`
	Source string `json:"source,omitempty"`

	// Raw is the extracted text as received. It is never modified.
	Raw string `json:"-"`

	// Text is the normalized text all offsets refer to.
	Text string `json:"text"`

	Tokens    []Token      `json:"-"`
	Sentences []Sentence   `json:"sentences,omitempty"`
	Segments  []Segment    `json:"segments,omitempty"`
	Glossary  []Definition `json:"glossary,omitempty"`
	Entities  []Entity     `json:"entities,omitempty"`

	// Boxes holds word positions from the source file, when the loader had them.
	Boxes []WordBox `json:"-"`

	DocumentType string `json:"document_type,omitempty"`
	Language     string `json:"language,omitempty"`
}

// New creates a document for raw extracted text.
func New(raw string) *Document {
	return &Document{
		ID:  uuid.NewString(),
		Raw: raw,
	}
}

// TokenKind classifies a token.
type TokenKind int

const (
	KindWord TokenKind = iota
	KindNumber
	KindPunct
	KindSpace
)

// String returns the lowercase kind name.
func (kind TokenKind) String() string {
	switch kind {
	case KindWord:
		return "word"
	case KindNumber:
		return "number"
	case KindPunct:
		return "punct"
	case KindSpace:
		return "space"
	}
	return "unknown"
}

// Token is an atomic word, number, punctuation or whitespace run.
type Token struct {
	Text  string       `json:"text"`
	Start int          `json:"start"`
	Kind  TokenKind    `json:"kind"`
	Box   *BoundingBox `json:"box,omitempty"`
}

// End returns the offset just past the token.
func (token Token) End() int {
	return token.Start + len(token.Text)
}

// IsSpace reports whether the token is whitespace.
func (token Token) IsSpace() bool {
	return token.Kind == KindSpace
}

// Sentence spans tokens [Start, End) and characters [CharStart, CharEnd).
type Sentence struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
	Text      string `json:"text"`
}

// Segment is a titled or untitled slice of the text between two structural
// markers. Section and Subsection are empty when the marker had no number.
type Segment struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Section    string `json:"section,omitempty"`
	Subsection string `json:"subsection,omitempty"`
	Title      string `json:"title"`
	TitleStart int    `json:"title_start"`
	TitleEnd   int    `json:"title_end"`
	Text       string `json:"text"`
}

// Definition is a glossary entry. Start and End locate the term in the text.
type Definition struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Phrase     string `json:"phrase"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// Key returns the dedup key for the term.
func (definition Definition) Key() string {
	return strings.ToLower(definition.Term)
}

// Entity is a labeled character span.
type Entity struct {
	Name       string        `json:"name"`
	Normalized string        `json:"normalized,omitempty"`
	Label      string        `json:"label"`
	Start      int           `json:"start"`
	End        int           `json:"end"`
	Source     string        `json:"source,omitempty"`
	Score      float64       `json:"score,omitempty"`
	LEI        *LEIRecord    `json:"lei_info,omitempty"`
	Boxes      []BoundingBox `json:"boxes,omitempty"`
}

// Overlaps reports whether two entities share at least one character.
func (entity Entity) Overlaps(other Entity) bool {
	return entity.Start < other.End && other.Start < entity.End
}

// LEIRecord is the registry metadata attached to a legal entity.
type LEIRecord struct {
	LEI          string  `json:"lei"`
	LegalName    string  `json:"legal_name"`
	Status       string  `json:"status,omitempty"`
	Headquarters Address `json:"headquarters"`
}

// Address is a postal address as published by the LEI registry.
type Address struct {
	Lines      []string `json:"lines,omitempty"`
	City       string   `json:"city,omitempty"`
	Region     string   `json:"region,omitempty"`
	Country    string   `json:"country,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
}

// BoundingBox locates text on a source page.
type BoundingBox struct {
	Page int     `json:"page"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

// WordBox is a word and its position as extracted from the source file.
type WordBox struct {
	Text string      `json:"text"`
	Box  BoundingBox `json:"box"`
}

// EntitiesByLabel returns the entities carrying label, in acceptance order.
func (doc *Document) EntitiesByLabel(label string) []Entity {
	var entities []Entity
	for _, entity := range doc.Entities {
		if entity.Label == label {
			entities = append(entities, entity)
		}
	}
	return entities
}

// Definition looks up a glossary entry by term, ignoring case.
func (doc *Document) Definition(term string) (Definition, bool) {
	key := strings.ToLower(term)
	for _, definition := range doc.Glossary {
		if definition.Key() == key {
			return definition, true
		}
	}
	return Definition{}, false
}

// SegmentAt returns the index of the segment containing offset, or -1.
func (doc *Document) SegmentAt(offset int) int {
	index := sort.Search(len(doc.Segments), func(i int) bool {
		return doc.Segments[i].End > offset
	})
	if index < len(doc.Segments) && doc.Segments[index].Start <= offset {
		return index
	}
	return -1
}

// SentenceText returns the text of sentence i, or "" when i is out of range.
func (doc *Document) SentenceText(i int) string {
	if i < 0 || i >= len(doc.Sentences) {
		return ""
	}
	return doc.Sentences[i].Text
}

// TableOfContents lists (section, subsection, title) for every titled segment.
func (doc *Document) TableOfContents() [][3]string {
	var contents [][3]string
	for _, segment := range doc.Segments {
		if segment.Title == "" {
			continue
		}
		contents = append(contents, [3]string{segment.Section, segment.Subsection, segment.Title})
	}
	return contents
}
