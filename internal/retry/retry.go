// Package retry runs a single operation with bounded attempts and backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/remote"
)

// Policy describes how one call site retries. It is a plain value; every call
// site passes its own copy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff
	// Jitter is a fraction in [0, 1) applied symmetrically to each delay.
	Jitter float64
	// Retryable classifies errors; nil means remote.IsRetryable.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy used when configuration supplies none.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MinDelay:    100 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Backoff:     Exponential,
	}
}

// Error is returned when an operation gives up. It wraps the last error.
type Error struct {
	Label    string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: failed after %d attempt(s): %v", e.Label, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default context-aware SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor runs operations under a Policy. The zero value is usable.
type Executor struct {
	Sleep SleepFunc
	// Logger overrides the logger carried in the context.
	Logger *logger.Logger
}

// NewExecutor creates an Executor with the real clock.
func NewExecutor() *Executor {
	return &Executor{Sleep: Sleep}
}

// WithRetry runs op up to maxAttempts times with exponential backoff from
// baseDelay, using the default retry predicate. baseDelay is not floored.
func (e *Executor) WithRetry(ctx context.Context, op func(ctx context.Context) error, maxAttempts int, baseDelay time.Duration, label string) error {
	policy := DefaultPolicy()
	policy.MaxAttempts = maxAttempts
	policy.BaseDelay = baseDelay
	policy.MinDelay = 0
	_, err := Do(ctx, e, policy, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do runs op under policy. It invokes op at most policy.MaxAttempts times,
// stops at the first terminal error, and returns an *Error tagged with label
// once it gives up.
func Do[T any](ctx context.Context, e *Executor, policy Policy, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	sleep := Sleep
	if e != nil && e.Sleep != nil {
		sleep = e.Sleep
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = remote.IsRetryable
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	log := logger.FromContext(ctx)
	if e != nil && e.Logger != nil {
		log = e.Logger
	}
	log = log.WithField("operation", label)

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		value, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.WithField(logger.FieldAttempt, attempt).Debug("Operation succeeded after retry")
			}
			return value, nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}
		if attempt == maxAttempts {
			break
		}

		wait := policy.delay(attempt)
		log.WithFields(logger.Fields{
			logger.FieldAttempt: attempt,
			"max_attempts":      maxAttempts,
			"delay_ms":          wait.Milliseconds(),
		}).WithError(err).Warn("Attempt failed, retrying")

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			lastErr = errors.Join(err, sleepErr)
			break
		}
	}

	log.WithFields(logger.Fields{
		logger.FieldAttempt: attempt,
		"max_attempts":      maxAttempts,
	}).WithError(lastErr).Error("Operation failed")

	return zero, &Error{Label: label, Attempts: attempt, Err: lastErr}
}
