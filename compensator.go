package unwind

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// compensate unwinds the completed stack newest-first, running each step's
// compensation through the retry executor with the step's own compensation
// policy and timeout. Steps without a compensation are skipped silently.
//
// It returns nil after attempting every eligible compensation, or an error
// when the pass must halt early: a CompensationError when the saga halts on
// compensation failure, or an escalated OnCompensationError hook failure.
// The stack is never reordered or revisited.
func (e *execution[T]) compensate(ctx context.Context) error {
	for i := len(e.completed) - 1; i >= 0; i-- {
		step := e.completed[i]
		if step.Compensation == nil {
			continue
		}
		rep := e.res.report(step.Name)
		rep.State = StepStateCompensating

		attempts, err := runOp(ctx, e.log.WithValues("step", step.Name, "phase", "compensation"), step.Compensation, e.c, step.CompensationRetry, step.CompensationTimeout)
		rep.CompensationAttempts = attempts

		if err == nil {
			// An escalated OnCompensate failure demotes the
			// compensation from succeeded to failed.
			err = e.fireCompensate(step.Name)
		}

		if err == nil {
			rep.State = StepStateCompensated
			e.res.CompensatedSteps = append(e.res.CompensatedSteps, step.Name)
			e.log.V(1).Info("step compensated", "step", step.Name, "attempts", attempts)
			continue
		}

		rep.State = StepStateCompensationFailed
		rep.Err = err
		e.res.FailedCompensations = append(e.res.FailedCompensations, step.Name)
		e.log.Error(err, "compensation failed", "step", step.Name)

		if e.saga.haltOnCompensationError {
			return &CompensationError{StepName: step.Name, Cause: err}
		}
		e.res.CompensationErrs = multierror.Append(e.res.CompensationErrs, fmt.Errorf("step %q: %w", step.Name, err))

		if hookErr := e.fireCompensationError(step.Name, err); hookErr != nil {
			return hookErr
		}
	}
	return nil
}
