package entity

import (
	"context"
	"fmt"
	"regexp"
)

// Rule pairs a regular expression with the label of its matches. When the
// pattern has a named group "entity", the group is the entity span;
// otherwise the whole match is.
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Label   string `yaml:"label,omitempty" json:"label,omitempty"`
}

type compiledRule struct {
	pattern *regexp.Regexp
	label   string
	group   int
}

// RegexPredictor proposes the matches of an ordered rule list.
type RegexPredictor struct {
	rules []compiledRule
}

// NewRegexPredictor compiles rules. Rules without a label use defaultLabel.
func NewRegexPredictor(rules []Rule, defaultLabel string) (*RegexPredictor, error) {
	predictor := &RegexPredictor{}
	for i, rule := range rules {
		compiled, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %d: %w", i, err)
		}
		label := rule.Label
		if label == "" {
			label = defaultLabel
		}
		if label == "" {
			return nil, fmt.Errorf("rule %d has no label", i)
		}
		predictor.rules = append(predictor.rules, compiledRule{
			pattern: compiled,
			label:   label,
			group:   compiled.SubexpIndex("entity"),
		})
	}
	return predictor, nil
}

// Predict returns the matches of every rule, rule by rule in order.
func (predictor *RegexPredictor) Predict(ctx context.Context, text string) ([]Candidate, error) {
	var candidates []Candidate
	for _, rule := range predictor.rules {
		for _, loc := range rule.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if rule.group > 0 && loc[2*rule.group] >= 0 {
				start, end = loc[2*rule.group], loc[2*rule.group+1]
			}
			if end <= start {
				continue
			}
			candidates = append(candidates, Candidate{
				Name:  text[start:end],
				Label: rule.label,
				Start: start,
				End:   end,
				Score: 1,
			})
		}
	}
	return candidates, nil
}
