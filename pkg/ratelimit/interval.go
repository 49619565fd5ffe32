package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IntervalLimiter spaces permits 1/N seconds apart.
//
// It wraps a rate.Limiter with a burst of one, so an idle limiter never
// accumulates more than a single permit.
type IntervalLimiter struct {
	lim    *rate.Limiter
	onWait func(time.Duration)
	logger *zap.Logger
}

// NewInterval creates an interval limiter admitting maxPerSecond calls per second.
func NewInterval(maxPerSecond int, onWait func(time.Duration), logger *zap.Logger) *IntervalLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalLimiter{
		lim:    rate.NewLimiter(rate.Limit(maxPerSecond), 1),
		onWait: onWait,
		logger: logger,
	}
}

// Acquire blocks until the next permit is due.
func (l *IntervalLimiter) Acquire(ctx context.Context) error {
	r := l.lim.Reserve()
	if !r.OK() {
		// Burst is one, so a single permit is always reservable.
		return l.lim.Wait(ctx)
	}

	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	l.logger.Debug("rate limit reached, waiting", zap.Duration("wait", delay))
	if l.onWait != nil {
		l.onWait(delay)
	}

	if err := sleepContext(ctx, delay); err != nil {
		r.Cancel()
		return err
	}
	return nil
}
