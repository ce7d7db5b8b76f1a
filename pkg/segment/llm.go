package segment

import (
	"context"
	"fmt"
	"strings"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/coolbeans/contracta/pkg/llm"
	"go.uber.org/zap"
)

const headingInstruction = `You read contracts. List every section heading line that appears in the text, ` +
	`in order, one per line, copied exactly as written. Do not number or explain them. ` +
	`Reply NONE if there are no headings.`

// HeadingModel proposes heading lines for a chunk of text.
type HeadingModel interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Chunk(text string, maxTokens int) []llm.Chunk
}

// LLMSegmenter asks a chat model for the heading lines of a document and
// builds segments at those lines. When the model fails the rule-based
// segmenter takes over.
type LLMSegmenter struct {
	model       HeadingModel
	fallback    *Segmenter
	chunkTokens int
	logger      *zap.Logger
}

// NewLLMSegmenter creates a model-backed segmenter. fallback may be nil.
func NewLLMSegmenter(model HeadingModel, fallback *Segmenter, chunkTokens int, logger *zap.Logger) *LLMSegmenter {
	if fallback == nil {
		fallback = New(Options{Logger: logger})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMSegmenter{
		model:       model,
		fallback:    fallback,
		chunkTokens: chunkTokens,
		logger:      logger,
	}
}

type textLine struct {
	offset int
	text   string
}

// Segment partitions text at the heading lines named by the model.
func (segmenter *LLMSegmenter) Segment(ctx context.Context, text string) ([]document.Segment, error) {
	if text == "" {
		return nil, nil
	}

	var lines []textLine
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		lines = append(lines, textLine{offset: offset, text: line})
		offset += len(line) + 1
	}

	boundaries := []boundary{{offset: 0}}
	next := 0
	for _, chunk := range segmenter.model.Chunk(text, segmenter.chunkTokens) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, err := segmenter.model.Complete(ctx, headingInstruction, chunk.Text)
		if err != nil {
			return nil, fmt.Errorf("heading extraction at offset %d failed: %w", chunk.Start, err)
		}

		for _, heading := range parseHeadings(reply) {
			index := findHeadingLine(lines, next, chunk.End, heading)
			if index < 0 {
				segmenter.logger.Debug("heading not found in text", zap.String("heading", heading))
				continue
			}
			line := lines[index]
			if matched, ok := segmenter.fallback.matchLine(line.text, line.offset); ok {
				boundaries = append(boundaries, matched)
			} else {
				boundaries = append(boundaries, boundary{
					offset: line.offset,
					marker: "llm",
					match:  titleMatch(line.text, heading),
				})
			}
			next = index + 1
		}
	}

	return buildSegments(text, boundaries), nil
}

// Process implements the pipeline stage contract.
func (segmenter *LLMSegmenter) Process(ctx context.Context, doc *document.Document) error {
	segments, err := segmenter.Segment(ctx, doc.Text)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		segmenter.logger.Warn("model segmentation failed, using rules", zap.Error(err))
		segments = segmenter.fallback.Segment(doc.Text)
	}
	doc.Segments = segments
	return nil
}

// Contract declares the segmenter's fields.
func (segmenter *LLMSegmenter) Contract() (requires, provides []document.Field) {
	return segmenter.fallback.Contract()
}

// parseHeadings reads one heading per reply line, dropping list bullets and quotes.
func parseHeadings(reply string) []string {
	var headings []string
	for _, line := range strings.Split(reply, "\n") {
		heading := strings.TrimSpace(line)
		heading = strings.TrimLeft(heading, "-*•")
		heading = strings.Trim(strings.TrimSpace(heading), "\"`")
		if heading == "" || strings.EqualFold(heading, "none") {
			continue
		}
		headings = append(headings, heading)
	}
	return headings
}

// findHeadingLine returns the first line at or after from, starting before
// limit, that begins with heading.
func findHeadingLine(lines []textLine, from, limit int, heading string) int {
	for i := from; i < len(lines) && lines[i].offset < limit; i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i].text), heading) {
			return i
		}
	}
	return -1
}
