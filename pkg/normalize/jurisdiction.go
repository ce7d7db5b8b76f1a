package normalize

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/coolbeans/contracta/pkg/document"
	"gopkg.in/yaml.v3"
)

// JurisdictionEntry maps a name found in governing-law text to a location.
// Lower priorities take precedence.
type JurisdictionEntry struct {
	Key      string `yaml:"key"`
	Location string `yaml:"location"`
	Priority int    `yaml:"priority"`
}

// JurisdictionTable is an immutable jurisdiction lookup.
type JurisdictionTable struct {
	entries []JurisdictionEntry
}

type jurisdictionFile struct {
	Jurisdictions []JurisdictionEntry `yaml:"jurisdictions"`
}

//go:embed jurisdictions.yaml
var defaultJurisdictions []byte

// NewJurisdictionTable builds a table from entries. Keys must be non-empty.
func NewJurisdictionTable(entries []JurisdictionEntry) (*JurisdictionTable, error) {
	table := &JurisdictionTable{}
	for i, entry := range entries {
		key := strings.ToLower(strings.TrimSpace(entry.Key))
		if key == "" {
			return nil, fmt.Errorf("jurisdiction %d has an empty key", i)
		}
		if entry.Location == "" {
			return nil, fmt.Errorf("jurisdiction %q has no location", entry.Key)
		}
		table.entries = append(table.entries, JurisdictionEntry{Key: key, Location: entry.Location, Priority: entry.Priority})
	}
	return table, nil
}

// ParseJurisdictionTable decodes a YAML table.
func ParseJurisdictionTable(data []byte) (*JurisdictionTable, error) {
	var file jurisdictionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing jurisdiction table: %w", err)
	}
	return NewJurisdictionTable(file.Jurisdictions)
}

// LoadJurisdictionTable reads a YAML table from path.
func LoadJurisdictionTable(path string) (*JurisdictionTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jurisdiction table: %w", err)
	}
	return ParseJurisdictionTable(data)
}

// DefaultJurisdictionTable returns the built-in table.
func DefaultJurisdictionTable() *JurisdictionTable {
	table, err := ParseJurisdictionTable(defaultJurisdictions)
	if err != nil {
		panic(fmt.Sprintf("built-in jurisdiction table: %v", err))
	}
	return table
}

// Len returns the number of entries.
func (table *JurisdictionTable) Len() int {
	return len(table.entries)
}

// Resolve returns the location of the best key contained in text. The lowest
// priority wins; equal priorities go to the longer key.
func (table *JurisdictionTable) Resolve(text string) (string, bool) {
	lowered := strings.ToLower(strings.ReplaceAll(text, "\n", " "))

	var best *JurisdictionEntry
	for i := range table.entries {
		entry := &table.entries[i]
		if !strings.Contains(lowered, entry.Key) {
			continue
		}
		if best == nil || entry.Priority < best.Priority ||
			(entry.Priority == best.Priority && len(entry.Key) > len(best.Key)) {
			best = entry
		}
	}
	if best == nil {
		return "", false
	}
	return best.Location, true
}

// JurisdictionNormalizer resolves governing-law entities through a table.
type JurisdictionNormalizer struct {
	table *JurisdictionTable
}

// NewJurisdictionNormalizer uses table, or the built-in table when nil.
func NewJurisdictionNormalizer(table *JurisdictionTable) *JurisdictionNormalizer {
	if table == nil {
		table = DefaultJurisdictionTable()
	}
	return &JurisdictionNormalizer{table: table}
}

// Normalize sets the resolved location. Unknown places keep the entity text.
func (normalizer *JurisdictionNormalizer) Normalize(ctx context.Context, entity *document.Entity) {
	if location, ok := normalizer.table.Resolve(entity.Name); ok {
		entity.Normalized = location
		return
	}
	entity.Normalized = entity.Name
}
