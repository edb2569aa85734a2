// Package pipeline is the core runtime: steps, the step registry, and the
// dispatcher that drives a pipeline of transformations to quiescence over
// a content-addressed record store.
//
// A pipeline is a DAG of steps. Each step consumes records from one key
// space and produces records in another; generator steps have no input
// key and mint fresh ids instead. The dispatcher repeatedly asks each
// step for pending inputs, executes them on the step's worker pool, and
// persists every result through the store's claim/commit/abort protocol,
// so a run can be killed and resumed at any point without duplicating
// work.
package pipeline

import (
	"context"
	"fmt"

	"github.com/worldforge/scribe/pipeline/store"
)

// Meta is the execution metadata committed alongside a payload: timestamp,
// model name, sampler parameters, image dimensions, whatever the step
// wants the record to carry.
type Meta map[string]any

// Result is the output of one step execution.
type Result struct {
	// Payload is the produced artifact. A nil or otherwise empty payload
	// tells the dispatcher to abort the output slot instead of committing.
	Payload any

	// Meta is committed with the payload. Nil is normalized to an empty
	// object; committed records always have non-null meta.
	Meta Meta
}

// Runner executes a step's transformation for a single record.
//
// Run must be pure of the store: it receives a read-only snapshot of the
// input payload and returns the output, and never touches records
// directly. It must be safe for concurrent use, since the step's pool
// invokes it from several workers at once. The step argument is the
// registered instance, so a shared Runner sees per-instance parameter
// overrides.
type Runner interface {
	Run(ctx context.Context, step *Step, id string, input any) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, step *Step, id string, input any) (Result, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, step *Step, id string, input any) (Result, error) {
	return f(ctx, step, id, input)
}

// Input is one unit of pending work for a step.
type Input struct {
	// ID is the record id the output will be stored under. Transform
	// steps inherit it from the input record; generators mint fresh
	// UUIDs.
	ID string

	// Payload is the input record's payload; nil for generator steps.
	Payload any
}

// Source overrides a step's pending-input discovery.
//
// Most steps rely on the built-in discovery (set difference of input and
// output key spaces for transforms, a target count of fresh UUIDs for
// generators). A custom Source serves steps whose notion of "work left to
// do" is something else entirely. The inflight set holds ids currently
// queued or executing for this step; discovery must not re-yield them.
type Source interface {
	PendingInputs(ctx context.Context, st store.Store, step *Step, inflight map[string]bool) ([]Input, error)
}

// Step is one stage of a pipeline.
//
// A Step value registered with a Registry acts as a prototype: the CLI
// clones it per --step argument and overlays parameter bundles, so the
// same logic can run several times against different key spaces in one
// pipeline.
type Step struct {
	// Name identifies the step in logs, events, and --step arguments.
	Name string

	// InKey is the key space the step consumes. Empty for generator
	// steps.
	InKey string

	// OutKey is the key space the step produces into.
	OutKey string

	// Params configures the step. Well-known keys are declared in
	// params.go; steps parse their own keys at run time so CLI overrides
	// apply without re-wiring.
	Params Params

	// Runner executes the transformation.
	Runner Runner

	// Source optionally overrides pending-input discovery.
	Source Source
}

// Clone returns a deep copy of the step's configuration. Runner and
// Source are shared; they are stateless by contract.
func (s *Step) Clone() *Step {
	clone := *s
	clone.Params = s.Params.Clone()
	return &clone
}

// Apply sets one configuration value from a k=v CLI segment. The
// structural fields inkey and outkey are recognized by name; everything
// else lands in Params.
func (s *Step) Apply(key, value string) {
	switch key {
	case "inkey":
		s.InKey = value
	case "outkey":
		s.OutKey = value
	default:
		if s.Params == nil {
			s.Params = Params{}
		}
		s.Params[key] = value
	}
}

// IsGenerator reports whether the step mints its own ids rather than
// consuming an input key space.
func (s *Step) IsGenerator() bool {
	return s.InKey == ""
}

// Parallel returns the step's worker pool size (parameter "parallel",
// default 1).
func (s *Step) Parallel() (int, error) {
	n, err := s.Params.Int(ParamParallel, 1)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, &ValidationError{Step: s.Name, Msg: fmt.Sprintf("parallel must be positive, got %d", n)}
	}
	return n, nil
}

// QDepth returns the step's maximum in-flight work items (parameter
// "qdepth", 0 meaning unlimited).
func (s *Step) QDepth() (int, error) {
	return s.Params.Int(ParamQDepth, 0)
}
