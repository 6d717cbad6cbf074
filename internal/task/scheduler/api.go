package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/internal/task/engine"
	logx "relaybot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// AddDaily registers job every day at hour:minute in the scheduler zone,
// delayed by a random amount in [0, jitter]. A definition with the same name
// is replaced.
func (s *Service) AddDaily(name string, hour, minute int, jitter, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid time %02d:%02d", hour, minute)
	}
	d := &def{
		name:    name,
		spec:    fmt.Sprintf("%d %d * * *", minute, hour),
		jitter:  jitter,
		timeout: timeout,
		job:     job,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs[name] = d
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(d); err != nil {
		delete(s.defs, name)
		return err
	}
	if s.log.Enabled(logx.LevelDebug) {
		s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", d.spec), logx.Time("next", s.c.Entry(d.entryID).Next))
	}
	return nil
}

// Remove unregisters name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(strings.TrimSpace(name))
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Has reports whether name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[name]
	return ok
}

// Names returns registered names, sorted.
func (s *Service) Names() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.defs))
	for name := range s.defs {
		out = append(out, name)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Trigger enqueues name's job now, as if its time had come.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule %q not registered", name)
	}
	return s.enqueue(d)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Timezone: s.loc.String(), Running: s.c != nil}
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Jitter: d.jitter}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	s.mu.Unlock()
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	if s.engine != nil {
		snap.Engine = s.engine.Snapshot()
	}
	return snap
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	return true
}

func (s *Service) addCronLocked(d *def) error {
	base, err := s.parser.Parse(d.spec)
	if err != nil {
		return err
	}
	d.entryID = s.c.Schedule(withJitter(base, d.jitter), cron.FuncJob(func() {
		if err := s.enqueue(d); err != nil {
			s.reportEnqueueError(d.name, err)
		}
	}))
	return nil
}

func (s *Service) enqueue(d *def) error {
	if s.engine == nil {
		return engine.ErrStopped
	}
	return s.engine.Enqueue(engine.Task{
		Name:    d.name,
		Timeout: d.timeout,
		Run:     d.job,
		Overlap: engine.OverlapSkipIfRunning,
	})
}

func (s *Service) reportEnqueueError(name string, err error) {
	// Overlap skips are the coalescing rule, not a fault.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Info("schedule firing skipped: previous run still active", logx.String("schedule", name))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
