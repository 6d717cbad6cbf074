package scheduler

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// jitterSchedule delays every activation of base by a fresh random amount
// in [0, max].
type jitterSchedule struct {
	base cron.Schedule
	max  time.Duration
	rand func(n int64) int64
}

func withJitter(base cron.Schedule, max time.Duration) cron.Schedule {
	if max <= 0 {
		return base
	}
	return &jitterSchedule{base: base, max: max, rand: rand.Int64N}
}

func (s *jitterSchedule) Next(t time.Time) time.Time {
	next := s.base.Next(t)
	if next.IsZero() {
		return next
	}
	return next.Add(time.Duration(s.rand(int64(s.max) + 1)))
}
