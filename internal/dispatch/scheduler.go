// Package dispatch keeps one daily job per stored schedule and forwards the
// schedule's message when the job fires.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"relaybot/internal/eventbus"
	"relaybot/internal/storage"
	"relaybot/internal/task/scheduler"
	logx "relaybot/pkg/logx"
)

const (
	jobPrefix = "schedule_"

	// ReconcileJob is the daily rebuild trigger. It is not a schedule job.
	ReconcileJob = "reconcile"
)

// JobKey names the job of schedule id.
func JobKey(id int64) string { return jobPrefix + strconv.FormatInt(id, 10) }

// ParseJobKey reverses JobKey.
func ParseJobKey(name string) (int64, bool) {
	rest, ok := strings.CutPrefix(name, jobPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}

// Store is the slice of storage.Store the scheduler needs.
type Store interface {
	Exec(ctx context.Context, cmd storage.Command) error
	Get(ctx context.Context, id int64) (storage.Schedule, error)
}

// Runner executes a due dispatch.
type Runner interface {
	Execute(ctx context.Context, d Dispatch) (Report, error)
}

type Config struct {
	Jitter      time.Duration
	ReconcileAt storage.Clock
}

// Scheduler owns the job set. Reconcile, Register and Cancel are serialized.
type Scheduler struct {
	mu     sync.Mutex
	store  Store
	sched  *scheduler.Service
	runner Runner
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time

	// clocks holds the time of day each registered job fires at.
	clocks map[int64]storage.Clock
}

func NewScheduler(cfg Config, store Store, sched *scheduler.Service, runner Runner, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Scheduler{store: store, sched: sched, runner: runner, cfg: cfg, log: log, bus: bus, now: time.Now, clocks: map[int64]storage.Clock{}}
}

// Start reconciles once and registers the daily reconcile job.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.Reconcile(ctx); err != nil {
		return err
	}
	at := s.cfg.ReconcileAt
	return s.sched.AddDaily(ReconcileJob, at.Hour, at.Minute, 0, 0, func(ctx context.Context) error {
		_, err := s.Reconcile(ctx)
		return err
	})
}

// Reconcile advances elapsed schedules in the store, then brings the job set
// in line with the stored rows: jobs without a row are removed, new rows get
// a job and a job is replaced only when its time of day changed. Jobs that
// match their row are left alone so a firing due in the current minute is
// not lost. On a store error the job set is untouched. It returns the job
// count.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	adv := &storage.AdvanceElapsed{Now: s.now(), Location: s.sched.Location()}
	if err := s.store.Exec(ctx, adv); err != nil {
		return 0, fmt.Errorf("advance schedules: %w", err)
	}

	rows := make(map[int64]bool, len(adv.Schedules))
	for _, sc := range adv.Schedules {
		rows[sc.ID] = true
	}
	removed := 0
	for _, name := range s.sched.Names() {
		if id, ok := ParseJobKey(name); ok && !rows[id] {
			s.sched.Remove(name)
			delete(s.clocks, id)
			removed++
		}
	}

	n := 0
	for _, sc := range adv.Schedules {
		if err := s.registerLocked(sc); err != nil {
			s.log.Error("schedule job not registered", logx.Int64("schedule", sc.ID), logx.Err(err))
			continue
		}
		n++
	}
	s.log.Info("schedules reconciled", logx.Int("jobs", n), logx.Int("advanced", adv.Advanced), logx.Int("removed", removed))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeReconciled, Data: n})
	return n, nil
}

// Register adds or replaces the job for sc without touching other jobs.
func (s *Scheduler) Register(sc storage.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerLocked(sc)
}

// Cancel removes schedule id's job. A missing job is a no-op.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clocks, id)
	return s.sched.Remove(JobKey(id))
}

// Keys returns the schedule ids with an active job, sorted.
func (s *Scheduler) Keys() []int64 {
	var ids []int64
	for _, name := range s.sched.Names() {
		if id, ok := ParseJobKey(name); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// registerLocked keeps an existing job whose time of day is unchanged.
func (s *Scheduler) registerLocked(sc storage.Schedule) error {
	key := JobKey(sc.ID)
	at := sc.ClockIn(s.sched.Location())
	if prev, ok := s.clocks[sc.ID]; ok && prev == at && s.sched.Has(key) {
		return nil
	}
	if err := s.sched.AddDaily(key, at.Hour, at.Minute, s.cfg.Jitter, 0, s.fire(sc.ID)); err != nil {
		return err
	}
	s.clocks[sc.ID] = at
	return nil
}

// fire loads the schedule when the job runs so edits made after
// registration are honored.
func (s *Scheduler) fire(id int64) scheduler.Job {
	return func(ctx context.Context) error {
		sc, err := s.store.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("fired schedule no longer exists", logx.Int64("schedule", id))
			return nil
		}
		if err != nil {
			return fmt.Errorf("load schedule %d: %w", id, err)
		}
		_, err = s.runner.Execute(ctx, Dispatch{
			ScheduleID: sc.ID,
			UserID:     sc.UserID,
			Message:    sc.Message,
			Chats:      sc.Chats,
		})
		return err
	}
}
