package unwind

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-logr/logr"
)

// runOp executes one action or compensation with bounded retries and a
// per-attempt deadline. It resolves on the first successful attempt and
// otherwise returns the most recent attempt's error, never an aggregate.
// Aborts short-circuit: a signaled saga context is reported as an AbortError
// without consuming further attempts.
func runOp[T any](ctx context.Context, log logr.Logger, op ActionFunc[T], c T, policy *RetryPolicy, timeout time.Duration) (int, error) {
	attempts := 0
	opts := []retry.Option{
		retry.Attempts(policy.attempts()),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			// n is the zero-based index of the attempt that just
			// failed; the policy speaks 1-based attempt numbers.
			return policy.delay(int(n) + 1)
		}),
		retry.RetryIf(func(err error) bool {
			if IsAbort(err) {
				return false
			}
			return policy.shouldRetry(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.V(1).Info("retrying after failed attempt", "attempt", n+1, "reason", err.Error())
		}),
		retry.LastErrorOnly(true),
	}
	if ctx.Err() == nil {
		// Watching the saga context cuts backoff waits short when the
		// abort fires. An already-signaled context is still handed to
		// the operation itself: compensations run after an abort, and
		// only fail if they observe the signal.
		opts = append(opts, retry.Context(ctx))
	}

	err := retry.Do(
		func() error {
			attempts++
			return runAttempt(ctx, op, c, timeout)
		},
		opts...,
	)
	if err != nil && ctx.Err() != nil && !IsAbort(err) && isContextErr(err) {
		// The saga context fired while waiting out a backoff delay;
		// retry.Do hands back the raw context error in that case.
		err = abortError(ctx)
	}
	return attempts, err
}

// isContextErr reports whether err stems from context cancellation or an
// elapsed deadline.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// runAttempt makes a single attempt, deriving a child context linked to both
// the saga-level cancellation signal and the per-attempt deadline. The child
// context's timer is released when the attempt ends.
func runAttempt[T any](parent context.Context, op ActionFunc[T], c T, timeout time.Duration) error {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(parent, timeout, &TimeoutError{Timeout: timeout})
		defer cancel()
	}

	err := invoke(ctx, op, c)
	if err == nil {
		return nil
	}
	if parent.Err() != nil && isContextErr(err) {
		return abortError(parent)
	}
	if ctx.Err() != nil && isContextErr(err) {
		var timedOut *TimeoutError
		if errors.As(context.Cause(ctx), &timedOut) {
			return timedOut
		}
	}
	return err
}

// invoke calls a user closure, converting a panic into an ordinary error.
func invoke[T any](ctx context.Context, op ActionFunc[T], c T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalizePanic(r)
		}
	}()
	return op(ctx, c)
}

// abortError builds an AbortError carrying the context's cancellation cause.
func abortError(ctx context.Context) *AbortError {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return &AbortError{}
	}
	return &AbortError{Cause: cause}
}
