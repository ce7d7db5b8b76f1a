// Package report renders annotated documents for the terminal or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// DefaultWidth is used when the output is not a terminal.
const DefaultWidth = 100

// Options configures a Renderer.
type Options struct {
	// Width wraps long lines. Zero asks the terminal, falling back to DefaultWidth.
	Width   int
	NoColor bool
}

// Renderer formats documents as colored, wrapped text.
type Renderer struct {
	width  int
	colors map[string]*color.Color
}

// NewRenderer creates a renderer.
func NewRenderer(options Options) *Renderer {
	width := options.Width
	if width <= 0 {
		width = TerminalWidth(os.Stdout)
	}

	renderer := &Renderer{
		width: width,
		colors: map[string]*color.Color{
			"heading": color.New(color.FgWhite, color.Bold),
			"section": color.New(color.FgCyan),
			"term":    color.New(color.FgGreen, color.Bold),
			"label":   color.New(color.FgMagenta),
			"value":   color.New(color.FgYellow),
			"dim":     color.New(color.FgBlue),
		},
	}
	if options.NoColor {
		for _, c := range renderer.colors {
			c.DisableColor()
		}
	}
	return renderer
}

// TerminalWidth returns the width of f when it is a terminal, or DefaultWidth.
func TerminalWidth(f *os.File) int {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return DefaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultWidth
	}
	return width
}

// Summary renders the document counts and scalar fields.
func (renderer *Renderer) Summary(doc *document.Document) string {
	var builder strings.Builder
	builder.WriteString(renderer.colors["heading"].Sprint("Document "+doc.ID) + "\n")
	if doc.Source != "" {
		builder.WriteString(fmt.Sprintf("  Source:        %s\n", doc.Source))
	}
	if doc.DocumentType != "" {
		builder.WriteString(fmt.Sprintf("  Type:          %s\n", doc.DocumentType))
	}
	if doc.Language != "" {
		builder.WriteString(fmt.Sprintf("  Language:      %s\n", doc.Language))
	}
	builder.WriteString(fmt.Sprintf("  Sentences:     %d\n", len(doc.Sentences)))
	builder.WriteString(fmt.Sprintf("  Segments:      %d\n", len(doc.Segments)))
	builder.WriteString(fmt.Sprintf("  Definitions:   %d\n", len(doc.Glossary)))
	builder.WriteString(fmt.Sprintf("  Entities:      %d\n", len(doc.Entities)))

	counts := make(map[string]int)
	for _, entity := range doc.Entities {
		counts[entity.Label]++
	}
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		builder.WriteString(fmt.Sprintf("    %-16s %d\n", renderer.colors["label"].Sprint(label), counts[label]))
	}
	return builder.String()
}

// Segments renders the table of contents with offsets.
func (renderer *Renderer) Segments(doc *document.Document) string {
	if len(doc.Segments) == 0 {
		return "No segments found.\n"
	}

	var builder strings.Builder
	builder.WriteString(renderer.colors["heading"].Sprint("Segments") + "\n")
	for _, segment := range doc.Segments {
		number := segment.Section
		if segment.Subsection != "" {
			number += "." + segment.Subsection
		}
		title := segment.Title
		if title == "" {
			title = "(untitled)"
		}
		line := fmt.Sprintf("  %s %s %s",
			renderer.colors["section"].Sprintf("%-8s", number),
			title,
			renderer.colors["dim"].Sprintf("[%d:%d]", segment.Start, segment.End))
		builder.WriteString(line + "\n")
	}
	return builder.String()
}

// TableOfContents renders the titled segments as an indented outline.
func (renderer *Renderer) TableOfContents(doc *document.Document) string {
	contents := doc.TableOfContents()
	if len(contents) == 0 {
		return "No titled sections found.\n"
	}

	var builder strings.Builder
	builder.WriteString(renderer.colors["heading"].Sprint("Contents") + "\n")
	for _, entry := range contents {
		section, subsection, title := entry[0], entry[1], entry[2]
		indent, number := "  ", section
		if subsection != "" {
			indent, number = "    ", section+"."+subsection
		}
		builder.WriteString(indent + renderer.colors["section"].Sprint(number) + " " + title + "\n")
	}
	return builder.String()
}

// Glossary renders each defined term with its wrapped definition.
func (renderer *Renderer) Glossary(doc *document.Document) string {
	if len(doc.Glossary) == 0 {
		return "No definitions found.\n"
	}

	var builder strings.Builder
	builder.WriteString(renderer.colors["heading"].Sprint("Glossary") + "\n")
	for _, definition := range doc.Glossary {
		builder.WriteString("  " + renderer.colors["term"].Sprint(definition.Term) + "\n")
		for _, line := range Wrap(definition.Definition, renderer.width-6) {
			builder.WriteString("      " + line + "\n")
		}
	}
	return builder.String()
}

// Entities renders the entities carrying label, or all of them when label is empty.
func (renderer *Renderer) Entities(doc *document.Document, label string) string {
	entities := doc.Entities
	if label != "" {
		entities = doc.EntitiesByLabel(label)
	}
	if len(entities) == 0 {
		return "No entities found.\n"
	}

	var builder strings.Builder
	builder.WriteString(renderer.colors["heading"].Sprint("Entities") + "\n")
	for _, entity := range entities {
		line := fmt.Sprintf("  %s %s", renderer.colors["label"].Sprintf("%-16s", entity.Label), entity.Name)
		if entity.Normalized != "" && entity.Normalized != entity.Name {
			line += " => " + renderer.colors["value"].Sprint(entity.Normalized)
		}
		line += renderer.colors["dim"].Sprintf(" [%d:%d]", entity.Start, entity.End)
		builder.WriteString(line + "\n")

		if entity.LEI != nil {
			builder.WriteString(fmt.Sprintf("      LEI %s  %s", entity.LEI.LEI, entity.LEI.LegalName))
			if entity.LEI.Status != "" {
				builder.WriteString("  (" + entity.LEI.Status + ")")
			}
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

// Document renders the summary followed by every section.
func (renderer *Renderer) Document(doc *document.Document) string {
	return strings.Join([]string{
		renderer.Summary(doc),
		renderer.Segments(doc),
		renderer.Glossary(doc),
		renderer.Entities(doc, ""),
	}, "\n")
}

// Annotation is the JSON projection of an annotated document.
type Annotation struct {
	ID           string                `json:"id"`
	Source       string                `json:"source,omitempty"`
	DocumentType string                `json:"document_type,omitempty"`
	Language     string                `json:"language,omitempty"`
	Segments     []document.Segment    `json:"segments"`
	Glossary     []document.Definition `json:"glossary"`
	Entities     []document.Entity     `json:"entities"`
}

// NewAnnotation builds the JSON projection of doc.
func NewAnnotation(doc *document.Document) Annotation {
	annotation := Annotation{
		ID:           doc.ID,
		Source:       doc.Source,
		DocumentType: doc.DocumentType,
		Language:     doc.Language,
		Segments:     doc.Segments,
		Glossary:     doc.Glossary,
		Entities:     doc.Entities,
	}
	if annotation.Segments == nil {
		annotation.Segments = []document.Segment{}
	}
	if annotation.Glossary == nil {
		annotation.Glossary = []document.Definition{}
	}
	if annotation.Entities == nil {
		annotation.Entities = []document.Entity{}
	}
	return annotation
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Wrap breaks text into lines of at most width runes at word boundaries.
// Words longer than width get a line of their own.
func Wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if width < 10 {
		width = 10
	}

	var (
		lines   []string
		current strings.Builder
		length  int
	)
	for _, word := range words {
		wordLength := len([]rune(word))
		if length > 0 && length+1+wordLength > width {
			lines = append(lines, current.String())
			current.Reset()
			length = 0
		}
		if length > 0 {
			current.WriteByte(' ')
			length++
		}
		current.WriteString(word)
		length += wordLength
	}
	return append(lines, current.String())
}
