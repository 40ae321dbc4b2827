package unwind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compensationFixture builds the scenario used throughout: s1 and s2
// complete with broken compensations, s3's action fails.
func compensationFixture(saga *Saga[*orderState], compErr error) *Saga[*orderState] {
	return saga.
		AddStep(Step[*orderState]{
			Name:   "s1",
			Action: func(ctx context.Context, c *orderState) error { return nil },
			Compensation: func(ctx context.Context, c *orderState) error {
				return compErr
			},
		}).
		AddStep(Step[*orderState]{
			Name:   "s2",
			Action: func(ctx context.Context, c *orderState) error { return nil },
			Compensation: func(ctx context.Context, c *orderState) error {
				return compErr
			},
		}).
		AddStep(failingStep("s3", errors.New("s3 action failed")))
}

func TestCompensationContinuesPastFailures(t *testing.T) {
	compErr := errors.New("undo failed")
	result := compensationFixture(New[*orderState](), compErr).
		Execute(context.Background(), &orderState{})

	require.False(t, result.Success)
	assert.Equal(t, "s3", result.FailedStep)
	assert.Equal(t, "s3 action failed", result.Err.Error())
	assert.Empty(t, result.CompensatedSteps)
	assert.Equal(t, []string{"s2", "s1"}, result.FailedCompensations)
	assert.Empty(t, result.CompensationFailedStep)

	// Each failure is retained in the aggregate.
	require.Error(t, result.CompensationErrs)
	assert.Contains(t, result.CompensationErrs.Error(), `step "s1"`)
	assert.Contains(t, result.CompensationErrs.Error(), `step "s2"`)
	assert.False(t, result.Unwound())
}

func TestCompensationHaltsOnFirstFailure(t *testing.T) {
	compErr := errors.New("undo failed")
	result := compensationFixture(New[*orderState]().HaltOnCompensationError(), compErr).
		Execute(context.Background(), &orderState{})

	require.False(t, result.Success)
	assert.Empty(t, result.CompensatedSteps)
	// The pass stops at s2: s1's compensation is never invoked.
	assert.Equal(t, []string{"s2"}, result.FailedCompensations)
	assert.Equal(t, "s2", result.CompensationFailedStep)
	assert.Equal(t, "s3", result.FailedStep)

	var halted *CompensationError
	require.ErrorAs(t, result.Err, &halted)
	assert.Equal(t, "s2", halted.StepName)
	assert.Equal(t, compErr, halted.Cause)

	rep, ok := result.Report("s1")
	require.True(t, ok)
	assert.Equal(t, StepStateCompleted, rep.State, "s1 compensation was never attempted")
}

func TestCompensationUsesItsOwnRetryPolicy(t *testing.T) {
	compCalls := 0
	result := New[*orderState]().
		AddStep(Step[*orderState]{
			Name:   "flaky_undo",
			Action: func(ctx context.Context, c *orderState) error { return nil },
			Compensation: func(ctx context.Context, c *orderState) error {
				compCalls++
				if compCalls < 3 {
					return errors.New("transient undo failure")
				}
				return nil
			},
			CompensationRetry: &RetryPolicy{MaxAttempts: 3},
		}).
		AddStep(failingStep("trigger", errors.New("boom"))).
		Execute(context.Background(), &orderState{})

	require.False(t, result.Success)
	assert.Equal(t, []string{"flaky_undo"}, result.CompensatedSteps)
	assert.Empty(t, result.FailedCompensations)

	rep, ok := result.Report("flaky_undo")
	require.True(t, ok)
	assert.Equal(t, StepStateCompensated, rep.State)
	assert.Equal(t, 3, rep.CompensationAttempts)
}

func TestCompensationTimeoutSurfacesAsFailure(t *testing.T) {
	result := New[*orderState]().
		AddStep(Step[*orderState]{
			Name:   "slow_undo",
			Action: func(ctx context.Context, c *orderState) error { return nil },
			Compensation: func(ctx context.Context, c *orderState) error {
				<-ctx.Done()
				return ctx.Err()
			},
			CompensationTimeout: 15 * time.Millisecond,
		}).
		AddStep(failingStep("trigger", errors.New("boom"))).
		Execute(context.Background(), &orderState{})

	require.False(t, result.Success)
	assert.Equal(t, []string{"slow_undo"}, result.FailedCompensations)

	rep, ok := result.Report("slow_undo")
	require.True(t, ok)
	assert.True(t, IsTimeout(rep.Err))
}

func TestOnCompensateHookObservesEachCompensation(t *testing.T) {
	var observed []string
	result := New[*orderState]().
		OnCompensate(func(c *orderState, step string) error {
			observed = append(observed, step)
			return nil
		}).
		AddStep(reserveStep()).
		AddStep(chargeStep()).
		AddStep(failingStep("trigger", errors.New("boom"))).
		Execute(context.Background(), &orderState{OrderID: "x"})

	require.False(t, result.Success)
	assert.Equal(t, []string{"charge_payment", "reserve_inventory"}, observed)
}

func TestOnCompensateEscalationDemotesToFailure(t *testing.T) {
	hookErr := errors.New("ledger reconciliation hook failed")
	result := New[*orderState]().
		FailOnHookError().
		OnCompensate(func(c *orderState, step string) error {
			if step == "charge_payment" {
				return hookErr
			}
			return nil
		}).
		AddStep(reserveStep()).
		AddStep(chargeStep()).
		AddStep(failingStep("trigger", errors.New("boom"))).
		Execute(context.Background(), &orderState{OrderID: "x"})

	require.False(t, result.Success)
	// charge_payment's compensation ran fine, but the escalated hook
	// failure demotes it to failed; the pass continues to the next step.
	assert.Equal(t, []string{"charge_payment"}, result.FailedCompensations)
	assert.Equal(t, []string{"reserve_inventory"}, result.CompensatedSteps)

	rep, ok := result.Report("charge_payment")
	require.True(t, ok)
	assert.Equal(t, StepStateCompensationFailed, rep.State)
	assert.Equal(t, hookErr, rep.Err)
}

func TestOnCompensationErrorEscalationStopsPass(t *testing.T) {
	hookErr := errors.New("incident pipeline rejected report")
	compErr := errors.New("undo failed")

	result := compensationFixture(
		New[*orderState]().
			FailOnHookError().
			OnCompensationError(func(c *orderState, step string, err error) error {
				return hookErr
			}),
		compErr,
	).Execute(context.Background(), &orderState{})

	require.False(t, result.Success)
	// s2's compensation failure invokes the hook, whose escalated error
	// stops the pass before s1 is attempted.
	assert.Equal(t, []string{"s2"}, result.FailedCompensations)
	assert.Equal(t, hookErr, result.Err)
	assert.Empty(t, result.CompensationFailedStep)
}

func TestOnCompensationErrorHookSwallowedByDefault(t *testing.T) {
	compErr := errors.New("undo failed")
	hookCalls := 0

	result := compensationFixture(
		New[*orderState]().
			OnCompensationError(func(c *orderState, step string, err error) error {
				hookCalls++
				return errors.New("hook itself failed")
			}),
		compErr,
	).Execute(context.Background(), &orderState{})

	require.False(t, result.Success)
	assert.Equal(t, 2, hookCalls)
	assert.Equal(t, []string{"s2", "s1"}, result.FailedCompensations)
	assert.Equal(t, "s3 action failed", result.Err.Error())
}
