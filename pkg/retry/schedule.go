package retry

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Schedule is a backoff.BackOff that walks a fixed list of delays and stops
// after the last one.
type Schedule struct {
	Delays []time.Duration
	next   int
}

// NextBackOff returns the next delay or backoff.Stop.
func (s *Schedule) NextBackOff() time.Duration {
	if s.next >= len(s.Delays) {
		return backoff.Stop
	}
	d := s.Delays[s.next]
	s.next++
	return d
}

// Reset rewinds the schedule.
func (s *Schedule) Reset() {
	s.next = 0
}

// SchedulePolicy allows one attempt more than there are delays.
func SchedulePolicy(delays ...time.Duration) Policy {
	return Policy{
		MaxAttempts: len(delays) + 1,
		NewBackoff: func() backoff.BackOff {
			return &Schedule{Delays: delays}
		},
	}
}
