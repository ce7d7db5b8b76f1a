// Package entity runs named-entity recognizers over document segments and
// resolves their proposals into one non-overlapping entity set.
//
// Recognizers run in pipeline order and share the claimed character ranges of
// every entity accepted so far: a proposal is accepted only when none of its
// characters is already claimed, so earlier recognizers take precedence.
package entity

import (
	"sort"

	"github.com/coolbeans/contracta/pkg/document"
)

type span struct {
	start, end int
}

// SpanRegistry tracks claimed character ranges. Claimed ranges never overlap,
// so they are kept sorted by both start and end.
type SpanRegistry struct {
	spans []span
}

// NewSpanRegistry seeds a registry with the spans of already accepted entities.
func NewSpanRegistry(entities []document.Entity) *SpanRegistry {
	registry := &SpanRegistry{}
	for _, entity := range entities {
		registry.Claim(entity.Start, entity.End)
	}
	return registry
}

// Overlaps reports whether any character of [start, end) is claimed.
func (registry *SpanRegistry) Overlaps(start, end int) bool {
	index := registry.firstEndingAfter(start)
	return index < len(registry.spans) && registry.spans[index].start < end
}

// Claim records [start, end) if it is non-empty and free, and reports whether
// it did.
func (registry *SpanRegistry) Claim(start, end int) bool {
	if start < 0 || end <= start {
		return false
	}
	index := registry.firstEndingAfter(start)
	if index < len(registry.spans) && registry.spans[index].start < end {
		return false
	}
	registry.spans = append(registry.spans, span{})
	copy(registry.spans[index+1:], registry.spans[index:])
	registry.spans[index] = span{start: start, end: end}
	return true
}

// Len returns the number of claimed ranges.
func (registry *SpanRegistry) Len() int {
	return len(registry.spans)
}

func (registry *SpanRegistry) firstEndingAfter(offset int) int {
	return sort.Search(len(registry.spans), func(i int) bool {
		return registry.spans[i].end > offset
	})
}
