// Package pipeline runs an ordered list of named stages over one document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coolbeans/contracta/pkg/document"
	"go.uber.org/zap"
)

var (
	// ErrConflictingAnchors is returned when a stage is placed both before and after another.
	ErrConflictingAnchors = errors.New("both before and after given")

	// ErrStageNotFound is returned when an anchor or removal target does not exist.
	ErrStageNotFound = errors.New("stage not found")
)

// ConfigError reports a pipeline assembly error.
type ConfigError struct {
	Op      string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("pipeline %s: %s", e.Op, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Stage mutates the fields of a document it owns.
type Stage interface {
	Process(ctx context.Context, doc *document.Document) error
}

// Contract is implemented by stages that declare the fields they read and write.
type Contract interface {
	Contract() (requires, provides []document.Field)
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, doc *document.Document) error

// Process calls f.
func (f StageFunc) Process(ctx context.Context, doc *document.Document) error {
	return f(ctx, doc)
}

type namedStage struct {
	name  string
	stage Stage
}

// Pipeline is an ordered list of named stages. Names need not be unique.
type Pipeline struct {
	stages []namedStage
	logger *zap.Logger
}

// New creates an empty pipeline.
func New(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

type placement struct {
	before, after string
}

// Option places a stage relative to an existing one.
type Option func(*placement)

// Before inserts the stage ahead of the first stage named name.
func Before(name string) Option {
	return func(p *placement) { p.before = name }
}

// After inserts the stage behind the first stage named name.
func After(name string) Option {
	return func(p *placement) { p.after = name }
}

// Add inserts a stage. Without options it is appended.
func (pipeline *Pipeline) Add(name string, stage Stage, options ...Option) error {
	if stage == nil {
		return &ConfigError{Op: "add", Message: fmt.Sprintf("stage %q is nil", name)}
	}

	var where placement
	for _, option := range options {
		option(&where)
	}
	if where.before != "" && where.after != "" {
		return &ConfigError{Op: "add", Message: fmt.Sprintf("stage %q", name), Err: ErrConflictingAnchors}
	}

	entry := namedStage{name: name, stage: stage}
	switch {
	case where.before != "":
		index := pipeline.index(where.before)
		if index < 0 {
			return &ConfigError{Op: "add", Message: fmt.Sprintf("anchor %q for stage %q", where.before, name), Err: ErrStageNotFound}
		}
		pipeline.insert(index, entry)
	case where.after != "":
		index := pipeline.index(where.after)
		if index < 0 {
			return &ConfigError{Op: "add", Message: fmt.Sprintf("anchor %q for stage %q", where.after, name), Err: ErrStageNotFound}
		}
		pipeline.insert(index+1, entry)
	default:
		pipeline.stages = append(pipeline.stages, entry)
	}
	return nil
}

// MustAdd is Add that panics on error, for fixed assemblies.
func (pipeline *Pipeline) MustAdd(name string, stage Stage, options ...Option) {
	if err := pipeline.Add(name, stage, options...); err != nil {
		panic(err)
	}
}

// Remove deletes the first stage named name.
func (pipeline *Pipeline) Remove(name string) error {
	index := pipeline.index(name)
	if index < 0 {
		return &ConfigError{Op: "remove", Message: fmt.Sprintf("stage %q", name), Err: ErrStageNotFound}
	}
	pipeline.stages = append(pipeline.stages[:index], pipeline.stages[index+1:]...)
	return nil
}

// Names returns the stage names in run order.
func (pipeline *Pipeline) Names() []string {
	names := make([]string, len(pipeline.stages))
	for i, entry := range pipeline.stages {
		names[i] = entry.name
	}
	return names
}

// Stage returns the first stage named name.
func (pipeline *Pipeline) Stage(name string) (Stage, bool) {
	index := pipeline.index(name)
	if index < 0 {
		return nil, false
	}
	return pipeline.stages[index].stage, true
}

// Len returns the number of stages.
func (pipeline *Pipeline) Len() int {
	return len(pipeline.stages)
}

// Validate checks that every field a stage requires is text or is provided by
// an earlier stage.
func (pipeline *Pipeline) Validate() error {
	available := map[document.Field]bool{document.FieldText: true}
	for _, entry := range pipeline.stages {
		contract, ok := entry.stage.(Contract)
		if !ok {
			continue
		}
		requires, provides := contract.Contract()
		for _, field := range requires {
			if !available[field] {
				return &ConfigError{Op: "validate", Message: fmt.Sprintf("stage %q requires %s, which no earlier stage provides", entry.name, field)}
			}
		}
		for _, field := range provides {
			available[field] = true
		}
	}
	return nil
}

// Run creates a document from raw text and processes it.
func (pipeline *Pipeline) Run(ctx context.Context, raw string) (*document.Document, error) {
	doc := document.New(raw)
	if err := pipeline.Process(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Process runs every stage in order on doc. The first stage error stops the run.
func (pipeline *Pipeline) Process(ctx context.Context, doc *document.Document) error {
	if doc.Text == "" {
		doc.Text = doc.Raw
	}
	for _, entry := range pipeline.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stage %s: %w", entry.name, err)
		}
		started := time.Now()
		if err := entry.stage.Process(ctx, doc); err != nil {
			return fmt.Errorf("stage %s: %w", entry.name, err)
		}
		pipeline.logger.Debug("stage finished",
			zap.String("stage", entry.name),
			zap.String("document", doc.ID),
			zap.Duration("elapsed", time.Since(started)))
	}
	return nil
}

func (pipeline *Pipeline) index(name string) int {
	for i, entry := range pipeline.stages {
		if entry.name == name {
			return i
		}
	}
	return -1
}

func (pipeline *Pipeline) insert(index int, entry namedStage) {
	pipeline.stages = append(pipeline.stages, namedStage{})
	copy(pipeline.stages[index+1:], pipeline.stages[index:])
	pipeline.stages[index] = entry
}
