package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/coolbeans/contracta/pkg/document"
)

func newResult(name string) *GateResult {
	return &GateResult{Gate: name, Metrics: make(map[string]float64)}
}

func fraction(good, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(good) / float64(total)
}

func inRange(text string, start, end int) bool {
	return start >= 0 && end <= len(text) && start < end
}

// TokenGate checks that tokens tile the text.
type TokenGate struct{}

// NewTokenGate creates the token gate.
func NewTokenGate() *TokenGate { return &TokenGate{} }

// Name returns "tokens".
func (gate *TokenGate) Name() string { return "tokens" }

// Thresholds requires exact coverage.
func (gate *TokenGate) Thresholds() map[string]float64 {
	return map[string]float64{"token_alignment": 1.0, "token_coverage": 1.0}
}

// Run measures token alignment and coverage.
func (gate *TokenGate) Run(doc *document.Document) *GateResult {
	started := time.Now()
	result := newResult(gate.Name())

	aligned, cursor, covered := 0, 0, 0
	for _, token := range doc.Tokens {
		if inRange(doc.Text, token.Start, token.End()) && doc.Text[token.Start:token.End()] == token.Text {
			aligned++
		}
		if token.Start == cursor {
			covered += len(token.Text)
			cursor = token.End()
		}
	}
	result.Metrics["token_alignment"] = fraction(aligned, len(doc.Tokens))
	if len(doc.Tokens) > 0 || doc.Text != "" {
		result.Metrics["token_coverage"] = fraction(covered, len(doc.Text))
	}

	result.Duration = time.Since(started)
	return result
}

// StructureGate checks that segments partition the text and sentences are
// ordered and disjoint.
type StructureGate struct{}

// NewStructureGate creates the structure gate.
func NewStructureGate() *StructureGate { return &StructureGate{} }

// Name returns "structure".
func (gate *StructureGate) Name() string { return "structure" }

// Thresholds requires a full partition.
func (gate *StructureGate) Thresholds() map[string]float64 {
	return map[string]float64{"segment_coverage": 1.0, "sentence_order": 1.0}
}

// Run measures segment coverage and sentence ordering.
func (gate *StructureGate) Run(doc *document.Document) *GateResult {
	started := time.Now()
	result := newResult(gate.Name())

	if len(doc.Segments) > 0 {
		cursor, covered := 0, 0
		for i, segment := range doc.Segments {
			if segment.Start != cursor {
				result.Problems = append(result.Problems, Problem{
					Metric:  "segment_coverage",
					Message: fmt.Sprintf("segment %d starts at %d, expected %d", i, segment.Start, cursor),
				})
			} else if segment.End > segment.Start {
				covered += segment.End - segment.Start
			}
			cursor = segment.End
		}
		result.Metrics["segment_coverage"] = fraction(covered, len(doc.Text))
	}

	ordered, previous := 0, 0
	for _, sentence := range doc.Sentences {
		if sentence.CharStart >= previous && sentence.CharEnd >= sentence.CharStart && sentence.CharEnd <= len(doc.Text) {
			ordered++
		}
		previous = sentence.CharEnd
	}
	result.Metrics["sentence_order"] = fraction(ordered, len(doc.Sentences))

	result.Duration = time.Since(started)
	return result
}

// GlossaryGate checks that defined terms are unique and located in the text.
type GlossaryGate struct{}

// NewGlossaryGate creates the glossary gate.
func NewGlossaryGate() *GlossaryGate { return &GlossaryGate{} }

// Name returns "glossary".
func (gate *GlossaryGate) Name() string { return "glossary" }

// Thresholds requires unique, in-range terms.
func (gate *GlossaryGate) Thresholds() map[string]float64 {
	return map[string]float64{"glossary_unique": 1.0, "glossary_offsets": 1.0}
}

// Run measures term uniqueness and offsets.
func (gate *GlossaryGate) Run(doc *document.Document) *GateResult {
	started := time.Now()
	result := newResult(gate.Name())

	seen := make(map[string]bool, len(doc.Glossary))
	unique, located := 0, 0
	for _, definition := range doc.Glossary {
		if !seen[definition.Key()] {
			unique++
			seen[definition.Key()] = true
		}
		if inRange(doc.Text, definition.Start, definition.End) {
			located++
		}
	}
	result.Metrics["glossary_unique"] = fraction(unique, len(doc.Glossary))
	result.Metrics["glossary_offsets"] = fraction(located, len(doc.Glossary))

	result.Duration = time.Since(started)
	return result
}

// EntityGate checks that entities are disjoint and inside the text.
type EntityGate struct{}

// NewEntityGate creates the entity gate.
func NewEntityGate() *EntityGate { return &EntityGate{} }

// Name returns "entities".
func (gate *EntityGate) Name() string { return "entities" }

// Thresholds requires disjoint, in-range entities.
func (gate *EntityGate) Thresholds() map[string]float64 {
	return map[string]float64{"entity_disjoint": 1.0, "entity_offsets": 1.0}
}

// Run measures entity overlap and offsets.
func (gate *EntityGate) Run(doc *document.Document) *GateResult {
	started := time.Now()
	result := newResult(gate.Name())

	disjoint, located := 0, 0
	for i, entity := range doc.Entities {
		overlapping := false
		for j, other := range doc.Entities {
			if i != j && entity.Overlaps(other) {
				overlapping = true
				if i < j {
					result.Problems = append(result.Problems, Problem{
						Metric: "entity_disjoint",
						Message: fmt.Sprintf("%s %q [%d:%d] overlaps %s %q [%d:%d]",
							entity.Label, entity.Name, entity.Start, entity.End,
							other.Label, other.Name, other.Start, other.End),
					})
				}
			}
		}
		if !overlapping {
			disjoint++
		}
		if inRange(doc.Text, entity.Start, entity.End) && strings.TrimSpace(doc.Text[entity.Start:entity.End]) != "" {
			located++
		}
	}
	result.Metrics["entity_disjoint"] = fraction(disjoint, len(doc.Entities))
	result.Metrics["entity_offsets"] = fraction(located, len(doc.Entities))

	result.Duration = time.Since(started)
	return result
}
