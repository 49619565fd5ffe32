package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WindowLimiter admits up to N permits per fixed one-second window.
//
// All state changes happen under mu, and a caller that has to wait for the
// window to end holds mu while sleeping. Concurrent callers therefore queue
// behind it and the budget holds across every goroutine sharing the limiter.
type WindowLimiter struct {
	mu          sync.Mutex
	max         int
	window      time.Duration
	windowStart time.Time
	count       int

	// Clock and Sleep are replaced in tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	onWait func(time.Duration)
	logger *zap.Logger
}

// NewWindow creates a fixed-window limiter admitting maxPerSecond calls per window.
func NewWindow(maxPerSecond int, onWait func(time.Duration), logger *zap.Logger) *WindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{
		max:    maxPerSecond,
		window: time.Second,
		Clock:  time.Now,
		Sleep:  sleepContext,
		onWait: onWait,
		logger: logger,
	}
}

// Acquire blocks until the current window has room, then counts the call.
func (l *WindowLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Clock()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.max {
		wait := l.window - now.Sub(l.windowStart)
		l.logger.Debug("rate limit window exhausted, waiting",
			zap.Int("count", l.count),
			zap.Duration("wait", wait))
		if l.onWait != nil {
			l.onWait(wait)
		}
		if err := l.Sleep(ctx, wait); err != nil {
			return err
		}
		l.windowStart = l.Clock()
		l.count = 0
	}

	l.count++
	return nil
}
