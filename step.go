package unwind

import (
	"context"
	"time"
)

// ActionFunc is the signature shared by step actions and compensations. The
// context carries the saga-level cancellation signal, narrowed by the
// per-attempt timeout when one is configured; implementations performing
// blocking work should observe it. The second argument is the caller-owned
// saga context, mutated in place.
type ActionFunc[T any] func(ctx context.Context, c T) error

// Step pairs a forward action with an optional compensation that undoes it
// when a later step fails. Names identify steps in results and reports and
// are expected to be unique within a saga; uniqueness is caller-enforced.
type Step[T any] struct {
	Name string

	// Action performs the step's forward work.
	Action ActionFunc[T]

	// Compensation undoes a completed Action during rollback. Steps
	// without a compensation are skipped silently when unwinding.
	Compensation ActionFunc[T]

	// Retry and CompensationRetry bound the attempts made for the action
	// and compensation respectively. A nil policy means a single attempt.
	Retry             *RetryPolicy
	CompensationRetry *RetryPolicy

	// ActionTimeout and CompensationTimeout set a per-attempt deadline.
	// Zero means no deadline.
	ActionTimeout       time.Duration
	CompensationTimeout time.Duration
}

// RetryPolicy bounds the attempts made for a single action or compensation.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are coerced to 1.
	MaxAttempts int

	// Backoff is a constant delay between attempts.
	Backoff time.Duration

	// BackoffFunc computes the delay from the 1-based number of the
	// attempt that just failed. When set it takes precedence over Backoff.
	BackoffFunc func(attempt int) time.Duration

	// RetryOn decides whether a failed attempt should be retried. Nil
	// means every error is retryable. Aborts are never retried, whatever
	// this returns.
	RetryOn func(err error) bool
}

// attempts returns the bounded attempt count for the policy.
func (p *RetryPolicy) attempts() uint {
	if p == nil || p.MaxAttempts < 1 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// delay returns the backoff before the attempt following the given failed
// attempt number.
func (p *RetryPolicy) delay(attempt int) time.Duration {
	if p == nil {
		return 0
	}
	if p.BackoffFunc != nil {
		return p.BackoffFunc(attempt)
	}
	return p.Backoff
}

// shouldRetry consults the policy's predicate for a failed attempt.
func (p *RetryPolicy) shouldRetry(err error) bool {
	if p == nil || p.RetryOn == nil {
		return true
	}
	return p.RetryOn(err)
}
