// Package loader reads contract sources into text and, for PDFs, word boxes.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/ledongthuc/pdf"
)

// PageBreak separates pages in text extracted from a PDF.
const PageBreak = "\n--- PAGE BREAK ---\n"

// Source is the text of a loaded file.
type Source struct {
	Path  string
	Text  string
	Boxes []document.WordBox
	Pages int
}

// Document creates a pipeline document from the source.
func (source *Source) Document() *document.Document {
	doc := document.New(source.Text)
	doc.Source = source.Path
	doc.Boxes = source.Boxes
	return doc
}

// Load reads path. PDFs go through the text layer; anything else is read as
// UTF-8 text.
func Load(path string) (*Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return LoadPDF(path)
	}
	return LoadText(path)
}

// LoadText reads a plain text or Markdown file.
func LoadText(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", path)
	}
	return &Source{Path: path, Text: string(data), Pages: 1}, nil
}

// LoadPDF extracts the text layer row by row. Pages that fail to extract are
// skipped.
func LoadPDF(path string) (*Source, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening PDF %s: %w", path, err)
	}
	defer file.Close()

	source := &Source{Path: path, Pages: reader.NumPage()}
	var builder strings.Builder
	for number := 1; number <= source.Pages; number++ {
		page := reader.Page(number)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}

		var lines [][]glyph
		for _, row := range rows {
			if row == nil || len(row.Content) == 0 {
				continue
			}
			line := make([]glyph, 0, len(row.Content))
			for _, text := range row.Content {
				line = append(line, glyph{Text: text.S, X: text.X, Y: text.Y, Width: text.W, Size: text.FontSize})
			}
			lines = append(lines, line)
		}

		text, boxes := layoutPage(number, lines)
		if strings.TrimSpace(text) == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(PageBreak)
		}
		builder.WriteString(text)
		source.Boxes = append(source.Boxes, boxes...)
	}

	source.Text = builder.String()
	return source, nil
}

type glyph struct {
	Text  string
	X, Y  float64
	Width float64
	Size  float64
}

// wordGapRatio is the horizontal gap, as a share of the font size, that
// separates two words when the PDF has no explicit space glyph.
const wordGapRatio = 0.25

// layoutPage turns rows of glyphs into page text and one box per word.
func layoutPage(page int, lines [][]glyph) (string, []document.WordBox) {
	var (
		builder strings.Builder
		boxes   []document.WordBox
	)
	for _, line := range lines {
		words := groupWords(page, line)
		if len(words) == 0 {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		for i, word := range words {
			if i > 0 {
				builder.WriteByte(' ')
			}
			builder.WriteString(word.Text)
		}
		boxes = append(boxes, words...)
	}
	return builder.String(), boxes
}

func groupWords(page int, line []glyph) []document.WordBox {
	sorted := append([]glyph(nil), line...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var (
		words   []document.WordBox
		current *document.WordBox
		lastEnd float64
	)
	flush := func() {
		if current != nil && current.Text != "" {
			words = append(words, *current)
		}
		current = nil
	}

	for _, g := range sorted {
		if strings.TrimFunc(g.Text, unicode.IsSpace) == "" {
			flush()
			continue
		}
		if current != nil && g.X-lastEnd > g.Size*wordGapRatio {
			flush()
		}
		if current == nil {
			current = &document.WordBox{Box: document.BoundingBox{
				Page: page,
				X0:   g.X,
				Y0:   g.Y,
				X1:   g.X + g.Width,
				Y1:   g.Y + g.Size,
			}}
		}
		current.Text += g.Text
		current.Box.X1 = max(current.Box.X1, g.X+g.Width)
		current.Box.Y0 = min(current.Box.Y0, g.Y)
		current.Box.Y1 = max(current.Box.Y1, g.Y+g.Size)
		lastEnd = g.X + g.Width
	}
	flush()
	return words
}
