package unwind

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
)

// StepState represents the execution state of a step within one saga run.
type StepState int

const (
	StepStatePending StepState = iota
	StepStateRunning
	StepStateCompleted
	StepStateFailed
	StepStateCompensating
	StepStateCompensated
	StepStateCompensationFailed
)

func (s StepState) String() string {
	switch s {
	case StepStatePending:
		return "pending"
	case StepStateRunning:
		return "running"
	case StepStateCompleted:
		return "completed"
	case StepStateFailed:
		return "failed"
	case StepStateCompensating:
		return "compensating"
	case StepStateCompensated:
		return "compensated"
	case StepStateCompensationFailed:
		return "compensation_failed"
	default:
		return "unknown"
	}
}

// StepReport tracks the execution of a single step: its final state, how
// many attempts the action and compensation consumed, timing, and the error
// that settled it, if any.
type StepReport struct {
	Step                 string
	State                StepState
	Attempts             int
	CompensationAttempts int
	StartedAt            time.Time
	FinishedAt           time.Time
	Err                  error
}

// Result is the sole output of Execute. Every failure path resolves into it;
// Execute never surfaces errors through a separate channel.
type Result[T any] struct {
	// ExecutionID uniquely identifies this Execute call, and tags every
	// log line the engine emits for it.
	ExecutionID uuid.UUID

	// Success is true when every step completed and no escalated hook
	// error displaced the outcome.
	Success bool

	// Context is the caller-owned saga context, as mutated by the steps.
	Context T

	// CompletedSteps holds the names of steps whose action succeeded, in
	// registration order. It is always a strict prefix of the attempted
	// sequence.
	CompletedSteps []string

	// CompensatedSteps holds the names of steps whose compensation
	// succeeded, in exact reverse completion order.
	CompensatedSteps []string

	// FailedCompensations holds the names of steps whose compensation was
	// attempted and failed.
	FailedCompensations []string

	// Err is the error that settled the run: the failed step's error (or
	// its escalated hook replacement), or a CompensationError when the
	// rollback pass itself halted.
	Err error

	// FailedStep names the step whose failure triggered the rollback.
	FailedStep string

	// CompensationFailedStep is set only when the saga halts on
	// compensation failure; it names the step whose compensation broke
	// the pass.
	CompensationFailedStep string

	// CompensationErrs aggregates individual compensation failures when
	// the pass continues past them.
	CompensationErrs error

	StartedAt  time.Time
	FinishedAt time.Time

	order   []string
	reports *btree.Map[string, *StepReport]
}

func newResult[T any](c T, steps []Step[T]) *Result[T] {
	r := &Result[T]{
		ExecutionID:         uuid.New(),
		Context:             c,
		CompletedSteps:      make([]string, 0, len(steps)),
		CompensatedSteps:    make([]string, 0),
		FailedCompensations: make([]string, 0),
		StartedAt:           time.Now(),
		order:               make([]string, 0, len(steps)),
		reports:             btree.NewMap[string, *StepReport](10),
	}
	for i := range steps {
		name := steps[i].Name
		r.order = append(r.order, name)
		r.reports.Set(name, &StepReport{Step: name, State: StepStatePending})
	}
	return r
}

// Report returns the report for the named step.
func (r *Result[T]) Report(step string) (*StepReport, bool) {
	return r.reports.Get(step)
}

// Reports returns the step reports in registration order. Steps the run
// never reached remain pending.
func (r *Result[T]) Reports() []*StepReport {
	out := make([]*StepReport, 0, len(r.order))
	for _, name := range r.order {
		if rep, ok := r.reports.Get(name); ok {
			out = append(out, rep)
		}
	}
	return out
}

// Unwound reports whether the rollback pass fully undid the run: every
// completed step that carried a compensation was compensated successfully.
func (r *Result[T]) Unwound() bool {
	return !r.Success && len(r.FailedCompensations) == 0 && r.CompensationFailedStep == ""
}

// report returns the mutable report for a step, creating one if the step was
// not known at result construction.
func (r *Result[T]) report(step string) *StepReport {
	rep, ok := r.reports.Get(step)
	if !ok {
		rep = &StepReport{Step: step, State: StepStatePending}
		r.reports.Set(step, rep)
		r.order = append(r.order, step)
	}
	return rep
}
