package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"relaybot/internal/gateway"
	"relaybot/internal/storage"
	logx "relaybot/pkg/logx"
)

type Outcome int

const (
	OutcomeShowChats Outcome = iota
	OutcomeEmptySelection
	OutcomeAskTimes
	OutcomeBadTimes
	OutcomeAskMessage
	OutcomeEmptyMessage
	OutcomeAskTime
	OutcomeCreated
	OutcomeTimeSaved
	OutcomeMessageSaved
	OutcomeChatsSaved
	OutcomeNotFound
	OutcomeUnexpected
	OutcomeFailed
)

// Result is what the controller renders after a wizard event.
type Result struct {
	Outcome   Outcome
	Err       error
	Schedules []storage.Schedule
}

// Input is a message the user sent while a wizard waits for text.
type Input struct {
	Text     string
	HasMedia bool
}

func (in Input) empty() bool { return strings.TrimSpace(in.Text) == "" && !in.HasMedia }

type Connector interface {
	Open(ctx context.Context, userID int64) (gateway.Conn, error)
}

type Store interface {
	Exec(ctx context.Context, cmd storage.Command) error
	Get(ctx context.Context, id int64) (storage.Schedule, error)
}

// Registrar keeps dispatch jobs in step with stored schedules.
type Registrar interface {
	Register(sc storage.Schedule) error
}

type Config struct {
	BotID    int64
	PageSize int
	Location func() *time.Location
}

type Wizard struct {
	cfg   Config
	conns Connector
	store Store
	jobs  Registrar
	log   logx.Logger
	now   func() time.Time
}

func NewWizard(cfg Config, conns Connector, store Store, jobs Registrar, log logx.Logger) *Wizard {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 5
	}
	if cfg.Location == nil {
		cfg.Location = func() *time.Location { return time.Local }
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Wizard{cfg: cfg, conns: conns, store: store, jobs: jobs, log: log, now: time.Now}
}

func (w *Wizard) PageSize() int { return w.cfg.PageSize }

// StartCreate begins the create wizard with the user's chats as candidates.
func (w *Wizard) StartCreate(ctx context.Context, userID int64) (*State, error) {
	chats, err := w.chats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &State{Kind: KindCreate, Step: StepSelectChats, Candidates: chats}, nil
}

// StartEdit begins a single-field edit of one of the user's schedules.
func (w *Wizard) StartEdit(ctx context.Context, userID int64, kind Kind, scheduleID int64) (*State, Result) {
	if _, err := w.owned(ctx, userID, scheduleID); err != nil {
		return nil, w.fail(err)
	}
	st := &State{Kind: kind, ScheduleID: scheduleID}
	switch kind {
	case KindEditTime:
		st.Step = StepEnterTime
		return st, Result{Outcome: OutcomeAskTime}
	case KindEditMessage:
		st.Step = StepEnterMessage
		return st, Result{Outcome: OutcomeAskMessage}
	case KindEditChats:
		chats, err := w.chats(ctx, userID)
		if err != nil {
			return nil, w.fail(err)
		}
		st.Step = StepSelectChats
		st.Candidates = chats
		return st, Result{Outcome: OutcomeShowChats}
	}
	return nil, Result{Outcome: OutcomeUnexpected}
}

// Select adds a chat on the selector step.
func (w *Wizard) Select(st *State, chatID int64) Result {
	if st.Step != StepSelectChats {
		return Result{Outcome: OutcomeUnexpected}
	}
	if err := st.Select(chatID); err != nil {
		return Result{Outcome: OutcomeShowChats, Err: err}
	}
	return Result{Outcome: OutcomeShowChats}
}

// Done finishes chat selection. The create wizard moves on to times; the
// chats edit replaces the stored set.
func (w *Wizard) Done(ctx context.Context, userID int64, st *State) Result {
	if st.Step != StepSelectChats {
		return Result{Outcome: OutcomeUnexpected}
	}
	if len(st.Selected) == 0 {
		return Result{Outcome: OutcomeEmptySelection}
	}
	if st.Kind == KindCreate {
		st.Step = StepEnterTimes
		return Result{Outcome: OutcomeAskTimes}
	}
	if _, err := w.owned(ctx, userID, st.ScheduleID); err != nil {
		return w.fail(err)
	}
	cmd := &storage.SetChats{ID: st.ScheduleID, Chats: append([]int64(nil), st.Selected...)}
	if err := w.store.Exec(ctx, cmd); err != nil {
		return w.fail(err)
	}
	st.Step = StepDone
	return Result{Outcome: OutcomeChatsSaved}
}

// Text handles a message typed while the wizard waits for input.
func (w *Wizard) Text(ctx context.Context, userID int64, st *State, in Input) Result {
	switch st.Step {
	case StepEnterTimes:
		times, err := ParseTimes(in.Text)
		if err != nil {
			return Result{Outcome: OutcomeBadTimes, Err: err}
		}
		st.Times = times
		st.Step = StepEnterMessage
		return Result{Outcome: OutcomeAskMessage}

	case StepEnterTime:
		c, err := storage.ParseClock(in.Text)
		if err != nil {
			return Result{Outcome: OutcomeBadTimes, Err: err}
		}
		return w.saveTime(ctx, userID, st, c)

	case StepEnterMessage:
		if in.empty() {
			return Result{Outcome: OutcomeEmptyMessage}
		}
		msgID, err := w.latestMessage(ctx, userID)
		if err != nil {
			return w.fail(err)
		}
		if st.Kind == KindCreate {
			return w.create(ctx, userID, st, msgID)
		}
		if _, err := w.owned(ctx, userID, st.ScheduleID); err != nil {
			return w.fail(err)
		}
		if err := w.store.Exec(ctx, &storage.SetMessage{ID: st.ScheduleID, Message: msgID}); err != nil {
			return w.fail(err)
		}
		st.Step = StepDone
		return Result{Outcome: OutcomeMessageSaved}
	}
	return Result{Outcome: OutcomeUnexpected}
}

func (w *Wizard) create(ctx context.Context, userID int64, st *State, msgID int64) Result {
	cmd := &storage.CreateSchedules{
		UserID:   userID,
		Message:  msgID,
		Times:    st.Times,
		Chats:    append([]int64(nil), st.Selected...),
		Now:      w.now(),
		Location: w.cfg.Location(),
	}
	if err := w.store.Exec(ctx, cmd); err != nil {
		return w.fail(err)
	}
	for _, sc := range cmd.Created {
		if err := w.jobs.Register(sc); err != nil {
			w.log.Error("job not registered", logx.Int64("schedule", sc.ID), logx.Err(err))
		}
	}
	st.Step = StepDone
	w.log.Info("schedules created", logx.Int64("user", userID), logx.Int("count", len(cmd.Created)))
	return Result{Outcome: OutcomeCreated, Schedules: cmd.Created}
}

func (w *Wizard) saveTime(ctx context.Context, userID int64, st *State, c storage.Clock) Result {
	if _, err := w.owned(ctx, userID, st.ScheduleID); err != nil {
		return w.fail(err)
	}
	cmd := &storage.SetTime{ID: st.ScheduleID, Time: c, Now: w.now(), Location: w.cfg.Location()}
	if err := w.store.Exec(ctx, cmd); err != nil {
		return w.fail(err)
	}
	if err := w.jobs.Register(cmd.Schedule); err != nil {
		w.log.Error("job not re-registered", logx.Int64("schedule", st.ScheduleID), logx.Err(err))
	}
	st.Step = StepDone
	return Result{Outcome: OutcomeTimeSaved, Schedules: []storage.Schedule{cmd.Schedule}}
}

// owned loads id and hides other users' schedules behind ErrNotFound.
func (w *Wizard) owned(ctx context.Context, userID, id int64) (storage.Schedule, error) {
	sc, err := w.store.Get(ctx, id)
	if err != nil {
		return storage.Schedule{}, err
	}
	if sc.UserID != userID {
		return storage.Schedule{}, storage.ErrNotFound
	}
	return sc, nil
}

func (w *Wizard) chats(ctx context.Context, userID int64) ([]gateway.Chat, error) {
	conn, err := w.conns.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	chats, err := conn.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (w *Wizard) latestMessage(ctx context.Context, userID int64) (int64, error) {
	conn, err := w.conns.Open(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return conn.LatestSelfMessageID(ctx, w.cfg.BotID)
}

func (w *Wizard) fail(err error) Result {
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: OutcomeNotFound, Err: err}
	}
	w.log.Warn("dialog step failed", logx.Err(err))
	return Result{Outcome: OutcomeFailed, Err: err}
}
