package timer

import (
	"math/rand"
	"time"
)

// reminderSchedule fires once at start, then on every interval boundary after
// it, each later fire delayed by a random amount below jitter. Boundaries stay
// anchored to start so jitter never accumulates.
type reminderSchedule struct {
	start  time.Time
	every  time.Duration
	jitter time.Duration
	spread func(max time.Duration) time.Duration
}

func newReminderSchedule(start time.Time, every, jitter time.Duration) *reminderSchedule {
	return &reminderSchedule{start: start, every: every, jitter: jitter, spread: randomSpread}
}

func (s *reminderSchedule) Next(t time.Time) time.Time {
	if t.Before(s.start) {
		return s.start
	}
	n := t.Sub(s.start)/s.every + 1
	next := s.start.Add(n * s.every)
	if s.jitter > 0 {
		next = next.Add(s.spread(s.jitter))
	}
	return next
}

func randomSpread(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
