package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	errTransient = errors.New("connection reset")
	errGone      = errors.New("slot was skipped")
)

type countingLimiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.calls++
	return nil
}

type recordingObserver struct {
	attempts int
	outcomes []Status
}

func (o *recordingObserver) ObserveAttempt(string, error) { o.attempts++ }

func (o *recordingObserver) ObserveOutcome(_ string, s Status, _ int) {
	o.outcomes = append(o.outcomes, s)
}

func newTestCaller(l *countingLimiter, p Policy) (*Caller, *[]time.Duration) {
	c := NewCaller(l, p, zap.NewNop())
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

// failing returns an op that fails the first n calls, then returns value.
func failing(n int, value string) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls <= n {
			return "", errTransient
		}
		return value, nil
	}, &calls
}

func isGone(err error) bool { return errors.Is(err, errGone) }

func TestDoMissingStopsImmediately(t *testing.T) {
	lim := &countingLimiter{}
	c, _ := newTestCaller(lim, DefaultPolicy())

	calls := 0
	out := Do(context.Background(), c, "getBlock", func(context.Context) (string, error) {
		calls++
		return "", errGone
	}, MissingOn[string](isGone))

	require.Equal(t, StatusMissing, out.Status)
	require.Equal(t, 1, out.Attempts)
	require.NoError(t, out.Err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, lim.calls)
}

func TestDoMissingOnValue(t *testing.T) {
	c, _ := newTestCaller(&countingLimiter{}, DefaultPolicy())

	out := Do(context.Background(), c, "query", func(context.Context) ([]int, error) {
		return nil, nil
	}, func(v []int, err error) bool { return err == nil && len(v) == 0 })

	require.Equal(t, StatusMissing, out.Status)
	require.Equal(t, 1, out.Attempts)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	for m := 0; m < DefaultMaxAttempts; m++ {
		lim := &countingLimiter{}
		c, _ := newTestCaller(lim, DefaultPolicy())
		op, calls := failing(m, "ok")

		out := Do(context.Background(), c, "getSlot", op, nil)

		require.True(t, out.OK())
		require.Equal(t, "ok", out.Value)
		require.Equal(t, m+1, out.Attempts)
		require.Equal(t, m+1, *calls)
		require.Equal(t, m+1, lim.calls, "every attempt acquires a permit")
	}
}

func TestDoFailsAfterMaxAttempts(t *testing.T) {
	lim := &countingLimiter{}
	c, _ := newTestCaller(lim, Policy{MaxAttempts: 4})
	op, calls := failing(10, "never")

	out := Do(context.Background(), c, "getBlock", op, nil)

	require.Equal(t, StatusFailure, out.Status)
	require.ErrorIs(t, out.Err, errTransient)
	require.Equal(t, 4, out.Attempts)
	require.Equal(t, 4, *calls)
	require.Empty(t, out.Value)
}

func TestDoPermanentErrorNotRetried(t *testing.T) {
	p := DefaultPolicy()
	p.Retryable = func(err error) bool { return !errors.Is(err, errTransient) }
	c, _ := newTestCaller(&countingLimiter{}, p)
	op, calls := failing(10, "never")

	out := Do(context.Background(), c, "query", op, nil)

	require.Equal(t, StatusFailure, out.Status)
	require.Equal(t, 1, out.Attempts)
	require.Equal(t, 1, *calls)
}

func TestDoConstantBackoffBetweenFailures(t *testing.T) {
	c, slept := newTestCaller(&countingLimiter{}, ConstantPolicy(3, 2*time.Second))
	op, _ := failing(10, "never")

	out := Do(context.Background(), c, "getSlot", op, nil)

	require.Equal(t, 3, out.Attempts)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *slept)
}

func TestDoScheduleBackoff(t *testing.T) {
	p := SchedulePolicy(100*time.Millisecond, 300*time.Millisecond)
	c, slept := newTestCaller(&countingLimiter{}, p)
	op, _ := failing(2, "ok")

	out := Do(context.Background(), c, "getBlock", op, nil)

	require.True(t, out.OK())
	require.Equal(t, 3, out.Attempts)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}, *slept)
}

func TestDoExponentialBackoffGrows(t *testing.T) {
	p := ExponentialPolicy(4, 10*time.Millisecond, time.Second)
	c, slept := newTestCaller(&countingLimiter{}, p)
	op, _ := failing(10, "never")

	Do(context.Background(), c, "getBlock", op, nil)

	require.Len(t, *slept, 3)
	for _, d := range *slept {
		require.Positive(t, d)
		require.LessOrEqual(t, d, time.Second+time.Second/2)
	}
}

func TestDoLimiterCancelled(t *testing.T) {
	lim := &countingLimiter{err: context.Canceled}
	c, _ := newTestCaller(lim, DefaultPolicy())
	op, calls := failing(0, "ok")

	out := Do(context.Background(), c, "getSlot", op, nil)

	require.Equal(t, StatusFailure, out.Status)
	require.ErrorIs(t, out.Err, context.Canceled)
	require.Zero(t, out.Attempts)
	require.Zero(t, *calls)
}

func TestDoObserver(t *testing.T) {
	obs := &recordingObserver{}
	c, _ := newTestCaller(&countingLimiter{}, DefaultPolicy())
	c = c.WithObserver(obs)
	op, _ := failing(1, "ok")

	Do(context.Background(), c, "getSlot", op, nil)

	require.Equal(t, 2, obs.attempts)
	require.Equal(t, []Status{StatusSuccess}, obs.outcomes)
}

func TestWithPolicySharesLimiter(t *testing.T) {
	lim := &countingLimiter{}
	c := NewCaller(lim, DefaultPolicy(), nil)
	probe := c.WithPolicy(Policy{MaxAttempts: 10})

	require.Same(t, c.Limiter(), probe.Limiter())
	require.Equal(t, 10, probe.Policy().MaxAttempts)
	require.Equal(t, DefaultMaxAttempts, c.Policy().MaxAttempts)
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "success", StatusSuccess.String())
	require.Equal(t, "missing", StatusMissing.String())
	require.Equal(t, "failure", StatusFailure.String())
}
