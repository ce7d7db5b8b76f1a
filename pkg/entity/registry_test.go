package entity

import (
	"math/rand"
	"testing"

	"github.com/coolbeans/contracta/pkg/document"
	"github.com/stretchr/testify/assert"
)

func TestSpanRegistryClaim(t *testing.T) {
	registry := &SpanRegistry{}

	assert.True(t, registry.Claim(10, 20))
	assert.False(t, registry.Claim(15, 25), "overlap on the right")
	assert.False(t, registry.Claim(5, 11), "overlap on the left")
	assert.False(t, registry.Claim(12, 14), "contained")
	assert.False(t, registry.Claim(0, 30), "containing")
	assert.True(t, registry.Claim(20, 25), "adjacent after")
	assert.True(t, registry.Claim(0, 10), "adjacent before")
	assert.False(t, registry.Claim(3, 3), "empty")
	assert.False(t, registry.Claim(-1, 2), "negative")
	assert.Equal(t, 3, registry.Len())
}

func TestSpanRegistryOverlaps(t *testing.T) {
	registry := NewSpanRegistry([]document.Entity{{Start: 4, End: 8}, {Start: 20, End: 30}})

	assert.True(t, registry.Overlaps(7, 9))
	assert.True(t, registry.Overlaps(25, 26))
	assert.False(t, registry.Overlaps(8, 20))
	assert.False(t, registry.Overlaps(0, 4))
	assert.False(t, registry.Overlaps(30, 40))
}

func TestSpanRegistryNeverOverlaps(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	registry := &SpanRegistry{}
	var accepted []document.Entity

	for i := 0; i < 2000; i++ {
		start := random.Intn(500)
		end := start + 1 + random.Intn(12)
		candidate := document.Entity{Start: start, End: end}

		free := true
		for _, entity := range accepted {
			if entity.Overlaps(candidate) {
				free = false
				break
			}
		}

		assert.Equal(t, free, registry.Claim(start, end), "claim [%d,%d)", start, end)
		if free {
			accepted = append(accepted, candidate)
		}
	}

	for i := 1; i < len(registry.spans); i++ {
		assert.LessOrEqual(t, registry.spans[i-1].end, registry.spans[i].start)
	}
}
