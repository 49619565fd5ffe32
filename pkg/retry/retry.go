// Package retry wraps remote calls with rate limiting, bounded retries and
// a three-way outcome.
//
// Every attempt first acquires a permit from the shared limiter. A call ends in
// one of three states:
//
//   - Success: the operation returned a value.
//   - Missing: the caller's predicate recognised the absence of data (for
//     example a skipped slot). This is not an error and is never retried.
//   - Failure: every attempt failed, the error was permanent, or the context
//     was cancelled.
//
// Usage:
//
//	caller := retry.NewCaller(limiter, retry.DefaultPolicy(), logger)
//	out := retry.Do(ctx, caller, "getBlock", func(ctx context.Context) (*rpcfetch.Block, error) {
//	    return client.GetBlock(ctx, slot)
//	}, retry.MissingOn[*rpcfetch.Block](rpcfetch.IsSlotSkipped))
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/fortiblox/stratus-reports/pkg/ratelimit"
)

// DefaultMaxAttempts is the attempt bound used when a policy does not set one.
const DefaultMaxAttempts = 3

// Status classifies the result of a call.
type Status int

const (
	// StatusSuccess means the call returned a usable value.
	StatusSuccess Status = iota

	// StatusMissing means the call answered that the value does not exist,
	// such as a skipped slot. It is not retried.
	StatusMissing

	// StatusFailure means every attempt failed or the error was not retryable.
	StatusFailure
)

// String returns the lowercase status name used in reports and metrics.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusMissing:
		return "missing"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of Do.
type Outcome[T any] struct {
	Status   Status
	Value    T
	Err      error
	Attempts int
}

// OK reports whether the call succeeded.
func (o Outcome[T]) OK() bool {
	return o.Status == StatusSuccess
}

// Policy bounds retries for a caller.
type Policy struct {
	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int

	// NewBackoff builds the delay schedule for one call. Nil means retry
	// immediately (limiter pacing still applies). A factory is used because
	// backoff implementations carry per-call state.
	NewBackoff func() backoff.BackOff

	// Retryable reports whether an error is worth another attempt.
	// Nil treats every error as transient.
	Retryable func(error) bool
}

// DefaultPolicy retries three times with no extra delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts}
}

// ConstantPolicy sleeps a fixed interval between failed attempts.
func ConstantPolicy(attempts int, interval time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		NewBackoff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(interval)
		},
	}
}

// ExponentialPolicy doubles the delay between attempts up to maxInterval.
func ExponentialPolicy(attempts int, initial, maxInterval time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		NewBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxInterval
			b.Multiplier = 2
			return b
		},
	}
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Observer receives attempt and outcome events.
type Observer interface {
	ObserveAttempt(op string, err error)
	ObserveOutcome(op string, status Status, attempts int)
}

// Caller carries the shared limiter and retry policy for one remote boundary.
type Caller struct {
	limiter  ratelimit.Limiter
	policy   Policy
	logger   *zap.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a caller. A nil limiter means calls are not paced.
func NewCaller(limiter ratelimit.Limiter, policy Policy, logger *zap.Logger) *Caller {
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		limiter: limiter,
		policy:  policy,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// WithObserver returns a copy of c reporting to o.
func (c *Caller) WithObserver(o Observer) *Caller {
	cp := *c
	cp.observer = o
	return &cp
}

// WithPolicy returns a copy of c using p. The limiter stays shared.
func (c *Caller) WithPolicy(p Policy) *Caller {
	cp := *c
	cp.policy = p
	return &cp
}

// Limiter returns the limiter shared by this caller.
func (c *Caller) Limiter() ratelimit.Limiter {
	return c.limiter
}

// Policy returns the caller's retry policy.
func (c *Caller) Policy() Policy {
	return c.policy
}

// MissingFunc reports whether a call result means the data does not exist.
type MissingFunc[T any] func(value T, err error) bool

// MissingOn adapts an error classifier such as rpcfetch.IsSlotSkipped.
func MissingOn[T any](is func(error) bool) MissingFunc[T] {
	return func(_ T, err error) bool {
		return err != nil && is(err)
	}
}

// Do runs fn until it succeeds, reports missing data, or the policy is exhausted.
func Do[T any](ctx context.Context, c *Caller, op string, fn func(ctx context.Context) (T, error), missing MissingFunc[T]) Outcome[T] {
	attempts := c.policy.maxAttempts()

	var bo backoff.BackOff
	if c.policy.NewBackoff != nil {
		bo = c.policy.NewBackoff()
		bo.Reset()
	}

	var lastErr error
	attempt := 0
	for attempt < attempts {
		if err := c.limiter.Acquire(ctx); err != nil {
			lastErr = err
			break
		}
		attempt++

		value, err := fn(ctx)
		c.observeAttempt(op, err)

		if missing != nil && missing(value, err) {
			c.logger.Info("no data",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return finish(c, op, Outcome[T]{Status: StatusMissing, Value: value, Attempts: attempt})
		}
		if err == nil {
			return finish(c, op, Outcome[T]{Status: StatusSuccess, Value: value, Attempts: attempt})
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if c.policy.Retryable != nil && !c.policy.Retryable(err) {
			c.logger.Warn("call failed with permanent error",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
			break
		}
		if attempt == attempts {
			break
		}

		c.logger.Warn("call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if bo != nil {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				break
			}
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	c.logger.Error("call failed",
		zap.String("op", op),
		zap.Int("attempts", attempt),
		zap.Error(lastErr))

	var zero T
	return finish(c, op, Outcome[T]{Status: StatusFailure, Value: zero, Err: lastErr, Attempts: attempt})
}

func (c *Caller) observeAttempt(op string, err error) {
	if c.observer != nil {
		c.observer.ObserveAttempt(op, err)
	}
}

func finish[T any](c *Caller, op string, out Outcome[T]) Outcome[T] {
	if c.observer != nil {
		c.observer.ObserveOutcome(op, out.Status, out.Attempts)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
