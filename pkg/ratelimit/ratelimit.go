// Package ratelimit paces outbound calls to a remote endpoint.
//
// A Limiter is shared by every worker talking to the same endpoint. Acquire
// blocks until one more call is permitted and never rejects; the only error it
// returns is the context's.
//
// Two strategies are available:
//
//   - interval: permits are spaced 1/N seconds apart. The limiter sleeps exactly
//     the remaining deficit since the previous permit.
//   - window: a fixed one-second window admits N permits; once exhausted,
//     Acquire sleeps until the window ends and starts a new one.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Strategy selects the pacing algorithm.
type Strategy string

const (
	// StrategyInterval spaces permits evenly.
	StrategyInterval Strategy = "interval"

	// StrategyWindow counts permits in fixed one-second windows.
	StrategyWindow Strategy = "window"
)

// DefaultMaxPerSecond is the budget used when none is configured.
const DefaultMaxPerSecond = 10

var (
	// ErrInvalidBudget is returned for a non-positive budget.
	ErrInvalidBudget = errors.New("max per second must be positive")

	// ErrUnknownStrategy is returned for an unrecognised strategy name.
	ErrUnknownStrategy = errors.New("unknown rate limit strategy")
)

// Limiter blocks callers until a call is permitted.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config holds limiter construction parameters.
type Config struct {
	// MaxPerSecond is the call budget.
	MaxPerSecond int

	// Strategy defaults to StrategyInterval.
	Strategy Strategy

	// OnWait, if set, is called with every non-zero wait.
	OnWait func(time.Duration)
}

// New builds a limiter for cfg.
func New(cfg Config, logger *zap.Logger) (Limiter, error) {
	if cfg.MaxPerSecond <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBudget, cfg.MaxPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Strategy {
	case "", StrategyInterval:
		return NewInterval(cfg.MaxPerSecond, cfg.OnWait, logger), nil
	case StrategyWindow:
		return NewWindow(cfg.MaxPerSecond, cfg.OnWait, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyInterval:
		return StrategyInterval, nil
	case StrategyWindow:
		return StrategyWindow, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

type unlimited struct{}

func (unlimited) Acquire(ctx context.Context) error {
	return ctx.Err()
}

// Unlimited returns a limiter that never waits.
func Unlimited() Limiter {
	return unlimited{}
}

// sleepContext waits for d or until ctx is done.
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
