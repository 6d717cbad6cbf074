package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	logx "relaybot/pkg/logx"
)

var moscow = time.FixedZone("MSK", 3*60*60)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func clock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q) error: %v", s, err)
	}
	return c
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: Clock{9, 0}},
		{in: " 18:30 ", want: Clock{18, 30}},
		{in: "7:05", want: Clock{7, 5}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1230", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "09:+5", wantErr: true},
		{in: "+9:30", wantErr: true},
		{in: "-0:00", wantErr: true},
		{in: "9:-1", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseClock(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseClock(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestNextAt(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, moscow)
	if got := NextAt(Clock{9, 0}, now, moscow); !got.Equal(time.Date(2024, 3, 11, 9, 0, 0, 0, moscow)) {
		t.Fatalf("NextAt(09:00) = %v, want tomorrow", got)
	}
	if got := NextAt(Clock{18, 30}, now, moscow); !got.Equal(time.Date(2024, 3, 10, 18, 30, 0, 0, moscow)) {
		t.Fatalf("NextAt(18:30) = %v, want today", got)
	}
	if got := NextAt(Clock{10, 0}, now, moscow); !got.Equal(now) {
		t.Fatalf("NextAt(now) = %v, want %v", got, now)
	}
}

func TestCreateSchedulesTwoTimes(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 10, 0, 0, 0, moscow)

	cmd := &CreateSchedules{
		UserID:   1,
		Message:  55,
		Times:    []Clock{clock(t, "09:00"), clock(t, "18:30")},
		Chats:    []int64{-100, -200},
		Now:      now,
		Location: moscow,
	}
	if err := st.Exec(ctx, cmd); err != nil {
		t.Fatalf("CreateSchedules error: %v", err)
	}
	if len(cmd.Created) != 2 {
		t.Fatalf("created %d schedules, want 2", len(cmd.Created))
	}

	list, err := st.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByUser len = %d, want 2", len(list))
	}
	want := []time.Time{
		time.Date(2024, 3, 11, 9, 0, 0, 0, moscow),
		time.Date(2024, 3, 10, 18, 30, 0, 0, moscow),
	}
	for i, sc := range list {
		if !sc.ScheduledAt.Equal(want[i]) {
			t.Fatalf("schedule %d at %v, want %v", i, sc.ScheduledAt, want[i])
		}
		if !reflect.DeepEqual(sc.Chats, []int64{-100, -200}) {
			t.Fatalf("schedule %d chats = %v", i, sc.Chats)
		}
		if sc.Message != 55 {
			t.Fatalf("schedule %d message = %d, want 55", i, sc.Message)
		}
	}
	if ok, _ := st.HasUser(ctx, 1); !ok {
		t.Fatal("CreateSchedules should ensure the user row")
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := st.Exec(ctx, &EnsureUser{UserID: 42}); err != nil {
			t.Fatalf("EnsureUser error: %v", err)
		}
	}
	if n, _ := st.CountUsers(ctx); n != 1 {
		t.Fatalf("CountUsers = %d, want 1", n)
	}
}

func TestAdvanceElapsedPersists(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	created := time.Date(2024, 3, 10, 8, 0, 0, 0, moscow)
	if err := st.Exec(ctx, &CreateSchedules{
		UserID: 1, Message: 1, Chats: []int64{5},
		Times: []Clock{{9, 0}, {23, 0}}, Now: created, Location: moscow,
	}); err != nil {
		t.Fatalf("CreateSchedules error: %v", err)
	}

	// Three days later.
	now := time.Date(2024, 3, 13, 12, 0, 0, 0, moscow)
	adv := &AdvanceElapsed{Now: now, Location: moscow}
	if err := st.Exec(ctx, adv); err != nil {
		t.Fatalf("AdvanceElapsed error: %v", err)
	}
	if adv.Advanced != 2 {
		t.Fatalf("Advanced = %d, want 2", adv.Advanced)
	}
	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	for _, sc := range list {
		if sc.ScheduledAt.Before(now) {
			t.Fatalf("schedule %d still elapsed: %v", sc.ID, sc.ScheduledAt)
		}
		if sc.ScheduledAt.Sub(now) > 24*time.Hour {
			t.Fatalf("schedule %d advanced too far: %v", sc.ID, sc.ScheduledAt)
		}
	}
	if got := list[0].ScheduledAt.In(moscow); got.Hour() != 9 || got.Day() != 14 {
		t.Fatalf("first schedule = %v, want 14th 09:00", got)
	}
	if got := list[1].ScheduledAt.In(moscow); got.Hour() != 23 || got.Day() != 13 {
		t.Fatalf("second schedule = %v, want 13th 23:00", got)
	}
}

func TestPatchesAndNotFound(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, moscow)
	cmd := &CreateSchedules{UserID: 1, Message: 1, Chats: []int64{5}, Times: []Clock{{9, 0}}, Now: now, Location: moscow}
	if err := st.Exec(ctx, cmd); err != nil {
		t.Fatalf("CreateSchedules error: %v", err)
	}
	id := cmd.Created[0].ID

	st2 := &SetTime{ID: id, Time: Clock{7, 15}, Now: now, Location: moscow}
	if err := st.Exec(ctx, st2); err != nil {
		t.Fatalf("SetTime error: %v", err)
	}
	if got := st2.Schedule.ScheduledAt.In(moscow); got.Hour() != 7 || got.Minute() != 15 || got.Day() != 11 {
		t.Fatalf("SetTime result = %v, want 11th 07:15", got)
	}
	if err := st.Exec(ctx, &SetMessage{ID: id, Message: 99}); err != nil {
		t.Fatalf("SetMessage error: %v", err)
	}
	if err := st.Exec(ctx, &SetChats{ID: id, Chats: []int64{7, 8}}); err != nil {
		t.Fatalf("SetChats error: %v", err)
	}
	sc, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if sc.Message != 99 || !reflect.DeepEqual(sc.Chats, []int64{7, 8}) {
		t.Fatalf("Get = %+v", sc)
	}
	if err := st.Exec(ctx, &SetChats{ID: id}); err == nil {
		t.Fatal("SetChats with empty selection should fail")
	}

	if err := st.Exec(ctx, &DeleteSchedule{ID: id}); err != nil {
		t.Fatalf("DeleteSchedule error: %v", err)
	}
	for _, c := range []Command{
		&DeleteSchedule{ID: id},
		&SetMessage{ID: id, Message: 1},
		&SetTime{ID: id, Time: Clock{1, 0}, Location: moscow},
	} {
		if err := st.Exec(ctx, c); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Exec(%T) on missing id = %v, want ErrNotFound", c, err)
		}
	}
	if _, err := st.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	for _, uid := range []int64{1, 2} {
		if err := st.Exec(ctx, &CreateSchedules{
			UserID: uid, Message: 1, Chats: []int64{5},
			Times: []Clock{{9, 0}, {10, 0}}, Location: moscow,
		}); err != nil {
			t.Fatalf("CreateSchedules error: %v", err)
		}
	}
	del := &DeleteUser{UserID: 1}
	if err := st.Exec(ctx, del); err != nil {
		t.Fatalf("DeleteUser error: %v", err)
	}
	if !reflect.DeepEqual(del.Deleted, []int64{1, 2}) {
		t.Fatalf("Deleted = %v, want [1 2]", del.Deleted)
	}
	if list, _ := st.ListByUser(ctx, 1); len(list) != 0 {
		t.Fatalf("user 1 still has %d schedules", len(list))
	}
	if list, _ := st.ListByUser(ctx, 2); len(list) != 2 {
		t.Fatalf("user 2 has %d schedules, want 2", len(list))
	}
}

func TestConcurrentPatchesSerialize(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	cmd := &CreateSchedules{UserID: 1, Message: 0, Chats: []int64{5}, Times: []Clock{{9, 0}}, Location: moscow}
	if err := st.Exec(ctx, cmd); err != nil {
		t.Fatalf("CreateSchedules error: %v", err)
	}
	id := cmd.Created[0].ID

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(msg int64) {
			defer wg.Done()
			if err := st.Exec(ctx, &SetMessage{ID: id, Message: msg}); err != nil {
				t.Errorf("SetMessage(%d) error: %v", msg, err)
			}
		}(int64(i))
	}
	wg.Wait()
	sc, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if sc.Message < 1 || sc.Message > 20 {
		t.Fatalf("Message = %d, want one of the written values", sc.Message)
	}
}

func TestRunJournal(t *testing.T) {
	t.Parallel()
	st := openTest(t)
	ctx := context.Background()
	start := time.Unix(1700000000, 0)
	_ = st.AppendRun(ctx, RunRecord{Name: "schedule_1", StartedAt: start, Took: 1500 * time.Millisecond})
	_ = st.AppendRun(ctx, RunRecord{Name: "reconcile", StartedAt: start, Err: "boom"})
	runs, err := st.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(runs) != 2 || runs[0].Name != "reconcile" || runs[0].Err != "boom" {
		t.Fatalf("RecentRuns = %+v", runs)
	}
	if runs[1].Took != 1500*time.Millisecond {
		t.Fatalf("Took = %v, want 1.5s", runs[1].Took)
	}
}

func TestSessionFileRemoveIsPerUser(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.json")
	f := NewSessionFile(path, logx.Nop())
	if err := f.Load(); err != nil {
		t.Fatalf("Load missing file error: %v", err)
	}
	if err := f.Put(1, []byte("one")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := f.Put(2, []byte("two")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := f.Remove(1); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if err := f.Remove(1); err != nil {
		t.Fatalf("second Remove error: %v", err)
	}

	reloaded := NewSessionFile(path, logx.Nop())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if _, ok := reloaded.Get(1); ok {
		t.Fatal("user 1 session should be gone")
	}
	if b, ok := reloaded.Get(2); !ok || string(b) != "two" {
		t.Fatalf("user 2 session = %q, %v", b, ok)
	}
}

func TestScheduleClockIn(t *testing.T) {
	t.Parallel()
	sc := Schedule{ScheduledAt: time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC)}
	if got := sc.ClockIn(moscow); got != (Clock{9, 30}) {
		t.Fatalf("ClockIn(moscow) = %v, want 09:30", got)
	}
	if got := sc.ClockIn(nil); got != (Clock{6, 30}) {
		t.Fatalf("ClockIn(nil) = %v, want 06:30", got)
	}
}
