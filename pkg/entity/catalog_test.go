package entity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const termRules = `name: term
version: "1.0.0"
label: TERM
keywords: [term]
rules:
  - pattern: '(?P<entity>\d+)\s+months'
`

const noticeRules = `name: notice
version: "1.0.0"
label: NOTICE
rules:
  - pattern: '(?i)written notice'
`

func writeRuleFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCatalogRegistryLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "term.yaml", termRules)
	writeRuleFile(t, dir, "notice.yml", noticeRules)
	writeRuleFile(t, dir, "README.md", "not a rule set")

	registry, err := NewCatalogRegistryWithDirectory(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, registry.Count())

	ruleSets := registry.List()
	require.Len(t, ruleSets, 2)
	assert.Equal(t, "notice", ruleSets[0].Name)
	assert.Equal(t, "term", ruleSets[1].Name)

	term, ok := registry.Get("term")
	require.True(t, ok)
	assert.Equal(t, []string{"term"}, term.Keywords)
	assert.True(t, term.IsCompiled())
}

func TestCatalogRegistryMissingDirectory(t *testing.T) {
	registry, err := NewCatalogRegistryWithDirectory(filepath.Join(t.TempDir(), "absent"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, registry.Count())
}

func TestCatalogRegistryInvalidFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no name", "version: \"1\"\nlabel: X\nrules:\n  - pattern: 'x'\n"},
		{"no rules", "name: empty\nlabel: X\n"},
		{"no label", "name: bare\nrules:\n  - pattern: 'x'\n"},
		{"bad pattern", "name: broken\nlabel: X\nrules:\n  - pattern: '(unclosed'\n"},
		{"bad yaml", "name: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeRuleFile(t, dir, "rules.yaml", tt.content)

			registry := NewCatalogRegistry(nil)
			assert.Error(t, registry.LoadFile(path))
			assert.Equal(t, 0, registry.Count())
		})
	}
}

func TestCatalogRegistryRegister(t *testing.T) {
	registry := NewCatalogRegistry(nil)
	ruleSet := &RuleSet{Name: "notice", Version: "1", Label: "NOTICE", Rules: []Rule{{Pattern: "notice"}}}

	require.NoError(t, registry.Register(ruleSet))
	assert.Error(t, registry.Register(&RuleSet{Name: "notice", Version: "1", Label: "NOTICE", Rules: []Rule{{Pattern: "x"}}}))
	require.NoError(t, registry.Register(&RuleSet{Name: "notice", Version: "2", Label: "NOTICE", Rules: []Rule{{Pattern: "x"}}}))

	current, ok := registry.Get("notice")
	require.True(t, ok)
	assert.Equal(t, "2", current.Version)

	assert.Error(t, registry.Register(nil))
	require.NoError(t, registry.Unregister("notice"))
	assert.Error(t, registry.Unregister("notice"))
}

func TestCatalogRegistryReload(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "term.yaml", termRules)

	registry, err := NewCatalogRegistryWithDirectory(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Count())

	writeRuleFile(t, dir, "notice.yaml", noticeRules)
	require.NoError(t, registry.Reload())
	assert.Equal(t, 2, registry.Count())

	assert.Error(t, NewCatalogRegistry(nil).Reload())
}

func TestCatalogRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	registry, err := NewCatalogRegistryWithDirectory(dir, nil)
	require.NoError(t, err)

	changes := make(chan string, 8)
	registry.SetOnChange(func(event string, ruleSet *RuleSet) {
		if ruleSet != nil {
			changes <- ruleSet.Name
		}
	})

	require.NoError(t, registry.Watch())
	defer registry.StopWatch()

	writeRuleFile(t, dir, "notice.yaml", noticeRules)

	select {
	case name := <-changes:
		assert.Equal(t, "notice", name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the rule set to load")
	}

	_, ok := registry.Get("notice")
	assert.True(t, ok)
}

func TestCatalogRegistryWatchWithoutDirectory(t *testing.T) {
	assert.Error(t, NewCatalogRegistry(nil).Watch())
}
