package entity

import (
	"embed"
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

// RuleSet is a named catalog of regex rules with its recognizer settings.
type RuleSet struct {
	Name       string   `yaml:"name" json:"name"`
	Version    string   `yaml:"version" json:"version"`
	Label      string   `yaml:"label" json:"label"`
	Keywords   []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Normalizer string   `yaml:"normalizer,omitempty" json:"normalizer,omitempty"`
	Rules      []Rule   `yaml:"rules" json:"rules"`

	predictor *RegexPredictor
}

// Validate checks the required fields.
func (ruleSet *RuleSet) Validate() error {
	if ruleSet.Name == "" {
		return fmt.Errorf("rule set name is required")
	}
	if len(ruleSet.Rules) == 0 {
		return fmt.Errorf("rule set %q has no rules", ruleSet.Name)
	}
	for i, rule := range ruleSet.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rule set %q: rule %d has an empty pattern", ruleSet.Name, i)
		}
		if rule.Label == "" && ruleSet.Label == "" {
			return fmt.Errorf("rule set %q: rule %d has no label", ruleSet.Name, i)
		}
	}
	return nil
}

// Compile builds the rule set's predictor.
func (ruleSet *RuleSet) Compile() error {
	predictor, err := NewRegexPredictor(ruleSet.Rules, ruleSet.Label)
	if err != nil {
		return fmt.Errorf("rule set %q: %w", ruleSet.Name, err)
	}
	ruleSet.predictor = predictor
	return nil
}

// IsCompiled reports whether Compile has succeeded.
func (ruleSet *RuleSet) IsCompiled() bool {
	return ruleSet.predictor != nil
}

// Predictor returns the compiled predictor, compiling on first use.
func (ruleSet *RuleSet) Predictor() (*RegexPredictor, error) {
	if !ruleSet.IsCompiled() {
		if err := ruleSet.Compile(); err != nil {
			return nil, err
		}
	}
	return ruleSet.predictor, nil
}

// ParseRuleSet decodes and validates a YAML rule set.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var ruleSet RuleSet
	if err := yaml.Unmarshal(data, &ruleSet); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := ruleSet.Validate(); err != nil {
		return nil, err
	}
	if err := ruleSet.Compile(); err != nil {
		return nil, err
	}
	return &ruleSet, nil
}

//go:embed rules/*.yaml
var defaultRules embed.FS

// DefaultOrder is the recognizer order of the built-in rule sets. Earlier
// rule sets win overlapping spans.
var DefaultOrder = []string{"effective_date", "currency", "governing_law", "legal_entity"}

// DefaultRuleSets returns the built-in rule sets in DefaultOrder.
func DefaultRuleSets() ([]*RuleSet, error) {
	entries, err := defaultRules.ReadDir("rules")
	if err != nil {
		return nil, fmt.Errorf("reading built-in rules: %w", err)
	}

	byName := make(map[string]*RuleSet, len(entries))
	for _, entry := range entries {
		data, err := defaultRules.ReadFile(path.Join("rules", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		ruleSet, err := ParseRuleSet(data)
		if err != nil {
			return nil, fmt.Errorf("built-in rules %s: %w", entry.Name(), err)
		}
		byName[ruleSet.Name] = ruleSet
	}

	ruleSets := make([]*RuleSet, 0, len(byName))
	for _, name := range DefaultOrder {
		if ruleSet, ok := byName[name]; ok {
			ruleSets = append(ruleSets, ruleSet)
			delete(byName, name)
		}
	}
	var rest []string
	for name := range byName {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		ruleSets = append(ruleSets, byName[name])
	}
	return ruleSets, nil
}
