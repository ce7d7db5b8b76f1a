// Package validate checks an annotated document against the structural
// guarantees of the pipeline: tokens and segments cover the text, entities
// do not overlap and glossary terms are unique.
package validate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coolbeans/contracta/pkg/document"
)

// Gate is one group of checks over an annotated document.
type Gate interface {
	// Name returns the gate identifier, e.g. "structure".
	Name() string

	// Run measures the document. Metrics are fractions in [0, 1].
	Run(doc *document.Document) *GateResult

	// Thresholds returns the minimum acceptable value per metric.
	Thresholds() map[string]float64
}

// Config holds threshold overrides and skipped gates.
type Config struct {
	// Thresholds overrides gate thresholds. Keys are "gate.metric".
	Thresholds map[string]float64

	SkipGates []string
}

// GateResult is the outcome of one gate.
type GateResult struct {
	Gate     string             `json:"gate"`
	Passed   bool               `json:"passed"`
	Score    float64            `json:"score"`
	Metrics  map[string]float64 `json:"metrics"`
	Problems []Problem          `json:"problems,omitempty"`
	Duration time.Duration      `json:"duration"`
	Skipped  bool               `json:"skipped,omitempty"`
}

// Problem is a metric below its threshold, or a specific offending span.
type Problem struct {
	Metric  string `json:"metric"`
	Message string `json:"message"`
}

// Report aggregates the results of every gate.
type Report struct {
	Results     []*GateResult `json:"results"`
	OverallPass bool          `json:"overall_pass"`
	Duration    time.Duration `json:"duration"`
}

// ToJSON serializes the report as indented JSON.
func (report *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// String returns a human-readable report.
func (report *Report) String() string {
	var builder strings.Builder
	builder.WriteString("Annotation checks\n")

	for _, result := range report.Results {
		status := "PASS"
		if result.Skipped {
			status = "SKIP"
		} else if !result.Passed {
			status = "FAIL"
		}
		builder.WriteString(fmt.Sprintf("[%s] %s (score: %.1f%%)\n", status, result.Gate, result.Score*100))

		names := make([]string, 0, len(result.Metrics))
		for name := range result.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			builder.WriteString(fmt.Sprintf("  %s: %.1f%%\n", name, result.Metrics[name]*100))
		}
		for _, problem := range result.Problems {
			builder.WriteString(fmt.Sprintf("  ERROR [%s]: %s\n", problem.Metric, problem.Message))
		}
	}

	overall := "PASS"
	if !report.OverallPass {
		overall = "FAIL"
	}
	builder.WriteString(fmt.Sprintf("Status: %s\n", overall))
	return builder.String()
}

// Checker runs gates in registration order.
type Checker struct {
	gates  []Gate
	config Config
}

// NewChecker creates a checker with the default gates.
func NewChecker(config Config) *Checker {
	checker := &Checker{config: config}
	checker.Register(NewTokenGate())
	checker.Register(NewStructureGate())
	checker.Register(NewGlossaryGate())
	checker.Register(NewEntityGate())
	return checker
}

// Register appends a gate.
func (checker *Checker) Register(gate Gate) {
	checker.gates = append(checker.gates, gate)
}

// Check runs every gate that is not skipped.
func (checker *Checker) Check(doc *document.Document) *Report {
	started := time.Now()
	report := &Report{OverallPass: true}

	for _, gate := range checker.gates {
		if checker.skipped(gate.Name()) {
			report.Results = append(report.Results, &GateResult{Gate: gate.Name(), Skipped: true, Metrics: map[string]float64{}})
			continue
		}
		result := gate.Run(doc)
		checker.evaluate(result, gate)
		if !result.Passed {
			report.OverallPass = false
		}
		report.Results = append(report.Results, result)
	}

	report.Duration = time.Since(started)
	return report
}

func (checker *Checker) skipped(name string) bool {
	for _, skip := range checker.config.SkipGates {
		if strings.EqualFold(skip, name) {
			return true
		}
	}
	return false
}

func (checker *Checker) threshold(gate Gate, metric string) float64 {
	if value, ok := checker.config.Thresholds[gate.Name()+"."+metric]; ok {
		return value
	}
	if value, ok := gate.Thresholds()[metric]; ok {
		return value
	}
	return 1.0
}

// evaluate scores the result and records every metric below its threshold.
func (checker *Checker) evaluate(result *GateResult, gate Gate) {
	if len(result.Metrics) == 0 {
		result.Score = 1.0
		result.Passed = len(result.Problems) == 0
		return
	}

	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0.0
	passed := true
	for _, name := range names {
		value := result.Metrics[name]
		total += value
		if threshold := checker.threshold(gate, name); value < threshold {
			passed = false
			result.Problems = append(result.Problems, Problem{
				Metric:  name,
				Message: fmt.Sprintf("%s (%.1f%%) below threshold (%.1f%%)", name, value*100, threshold*100),
			})
		}
	}
	result.Score = total / float64(len(names))
	result.Passed = passed
}
