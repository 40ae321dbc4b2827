package unwind

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
)

// Saga owns an ordered list of steps and drives their execution. The forward
// pass runs actions in registration order; when one fails, the completed
// steps are compensated newest-first.
//
// A Saga is built once by chained AddStep calls and may then be reused across
// independent Execute calls: all execution state lives on the call stack, not
// in the Saga. Concurrent Execute calls sharing one mutable saga context are
// not supported.
type Saga[T any] struct {
	steps  []Step[T]
	logger logr.Logger

	failOnHookError         bool
	haltOnCompensationError bool

	onStepComplete      StepHook[T]
	onStepFail          StepErrorHook[T]
	onCompensate        StepHook[T]
	onCompensationError StepErrorHook[T]
}

// New creates an empty saga. By default the compensation pass continues past
// individual compensation failures, hook errors are swallowed, and logging
// is discarded.
func New[T any]() *Saga[T] {
	return &Saga[T]{logger: logr.Discard()}
}

// WithLogger sets the logger used for step transitions, retry attempts, and
// swallowed hook errors.
func (s *Saga[T]) WithLogger(log logr.Logger) *Saga[T] {
	s.logger = log
	return s
}

// FailOnHookError escalates hook failures: a failing OnStepComplete displaces
// the step's successful outcome, a failing OnStepFail replaces the reported
// error, a failing OnCompensate marks the compensation as failed, and a
// failing OnCompensationError halts the compensation pass.
func (s *Saga[T]) FailOnHookError() *Saga[T] {
	s.failOnHookError = true
	return s
}

// HaltOnCompensationError stops the compensation pass at the first failed
// compensation, surfacing a CompensationError. The default is to continue
// unwinding the remaining steps.
func (s *Saga[T]) HaltOnCompensationError() *Saga[T] {
	s.haltOnCompensationError = true
	return s
}

// OnStepComplete registers a hook invoked after each step's action succeeds,
// before the next step begins.
func (s *Saga[T]) OnStepComplete(fn StepHook[T]) *Saga[T] {
	s.onStepComplete = fn
	return s
}

// OnStepFail registers a hook invoked when a step's action fails, before
// compensation starts. Its own failure never blocks compensation.
func (s *Saga[T]) OnStepFail(fn StepErrorHook[T]) *Saga[T] {
	s.onStepFail = fn
	return s
}

// OnCompensate registers a hook invoked after each successful compensation.
func (s *Saga[T]) OnCompensate(fn StepHook[T]) *Saga[T] {
	s.onCompensate = fn
	return s
}

// OnCompensationError registers a hook invoked when a compensation fails and
// the pass continues past it.
func (s *Saga[T]) OnCompensationError(fn StepErrorHook[T]) *Saga[T] {
	s.onCompensationError = fn
	return s
}

// AddStep appends a step to the saga.
func (s *Saga[T]) AddStep(step Step[T]) *Saga[T] {
	s.steps = append(s.steps, step)
	return s
}

// Steps returns a defensive copy of the registered steps. Mutating the
// returned slice or its elements does not affect the saga.
func (s *Saga[T]) Steps() []Step[T] {
	out := make([]Step[T], len(s.steps))
	copy(out, s.steps)
	return out
}

// execution holds the state of a single Execute call.
type execution[T any] struct {
	saga      *Saga[T]
	c         T
	res       *Result[T]
	log       logr.Logger
	completed []*Step[T]
}

// Execute runs the saga against the given context object. The ctx argument
// is the external cancellation signal: it is checked before each step starts
// and linked into every running attempt, so a mid-attempt abort propagates
// into in-flight work and triggers the normal compensation path.
//
// Execute never panics past this call and has no separate error channel;
// every failure resolves into the Result.
func (s *Saga[T]) Execute(ctx context.Context, c T) *Result[T] {
	e := &execution[T]{
		saga: s,
		c:    c,
		res:  newResult(c, s.steps),
	}
	e.log = s.logger.WithValues("execution_id", e.res.ExecutionID.String())
	defer func() {
		e.res.FinishedAt = time.Now()
	}()

	for i := range s.steps {
		step := &s.steps[i]
		rep := e.res.report(step.Name)

		if ctx.Err() != nil {
			// Signaled before the step started: fail it without
			// making an attempt.
			return e.fail(ctx, step, abortError(ctx))
		}

		rep.State = StepStateRunning
		rep.StartedAt = time.Now()
		attempts, err := runOp(ctx, e.log.WithValues("step", step.Name, "phase", "action"), step.Action, c, step.Retry, step.ActionTimeout)
		rep.Attempts = attempts
		rep.FinishedAt = time.Now()

		if err != nil {
			return e.fail(ctx, step, err)
		}

		rep.State = StepStateCompleted
		e.completed = append(e.completed, step)
		e.res.CompletedSteps = append(e.res.CompletedSteps, step.Name)
		e.log.V(1).Info("step completed", "step", step.Name, "attempts", attempts)

		if hookErr := e.fireStepComplete(step.Name); hookErr != nil {
			// The escalated hook error replaces the step's successful
			// outcome: the step is compensated along with everything
			// before it.
			return e.fail(ctx, step, hookErr)
		}
	}

	e.res.Success = true
	e.log.V(1).Info("saga completed", "steps", len(e.res.CompletedSteps))
	return e.res
}

// fail settles a step failure: it fires OnStepFail, records the failure on
// the result, runs the compensation pass, and folds a halted pass back into
// the result's error.
func (e *execution[T]) fail(ctx context.Context, step *Step[T], cause error) *Result[T] {
	rep := e.res.report(step.Name)
	rep.State = StepStateFailed
	rep.Err = cause
	e.log.V(1).Info("step failed", "step", step.Name, "reason", cause.Error())

	if hookErr := e.fireStepFail(step.Name, cause); hookErr != nil {
		cause = hookErr
	}
	e.res.FailedStep = step.Name
	e.res.Err = cause

	if compErr := e.compensate(ctx); compErr != nil {
		var halted *CompensationError
		if errors.As(compErr, &halted) {
			e.res.CompensationFailedStep = halted.StepName
		}
		e.res.Err = compErr
	}
	return e.res
}
