package dialog

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"relaybot/internal/account"
	"relaybot/internal/gateway"
	"relaybot/internal/gateway/gatewaytest"
	"relaybot/internal/storage"
	logx "relaybot/pkg/logx"
)

func TestParseTimes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    []storage.Clock
		wantErr bool
	}{
		{in: "09:00, 18:30", want: []storage.Clock{{Hour: 9}, {Hour: 18, Minute: 30}}},
		{in: "09:00,09:00,7:15", want: []storage.Clock{{Hour: 9}, {Hour: 7, Minute: 15}}},
		{in: "09:00, 25:00", wantErr: true},
		{in: "09:00,,10:00", wantErr: true},
		{in: "09:00, 09:+5", wantErr: true},
		{in: "+9:30", wantErr: true},
		{in: "noon", wantErr: true},
		{in: " ", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimes(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTimes(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil || !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ParseTimes(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func candidates(n int) []gateway.Chat {
	out := make([]gateway.Chat, n)
	for i := range out {
		out[i] = gateway.Chat{ID: int64(-(i + 1)), Title: fmt.Sprintf("chat %d", i+1)}
	}
	return out
}

func TestPaginationIsExhaustiveAndSkipsSelected(t *testing.T) {
	t.Parallel()
	st := &State{Step: StepSelectChats, Candidates: candidates(12)}
	if err := st.Select(-3); err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if err := st.Select(-3); err == nil {
		t.Fatal("selecting twice should fail")
	}
	if err := st.Select(-99); err == nil {
		t.Fatal("selecting a non-candidate should fail")
	}

	seen := map[int64]int{}
	for {
		p := st.ChatPage(5)
		for _, c := range p.Items {
			seen[c.ID]++
		}
		if !p.HasNext {
			break
		}
		st.NextPage()
	}
	if len(seen) != 11 {
		t.Fatalf("offered %d chats, want 11", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("chat %d offered %d times", id, n)
		}
	}
	if seen[-3] != 0 {
		t.Fatal("selected chat was offered again")
	}

	// Paging past the end clamps to the last page.
	st.NextPage()
	st.NextPage()
	if p := st.ChatPage(5); p.Index != 2 || len(p.Items) != 1 {
		t.Fatalf("clamped page = %d with %d items, want 2 with 1", p.Index, len(p.Items))
	}
}

type jobs struct {
	mu  sync.Mutex
	reg []storage.Schedule
}

func (j *jobs) Register(sc storage.Schedule) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reg = append(j.reg, sc)
	return nil
}

type env struct {
	store *storage.Store
	gw    *gatewaytest.Gateway
	jobs  *jobs
	w     *Wizard
	loc   *time.Location
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(storage.Config{Path: filepath.Join(dir, "relay.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	sessions := storage.NewSessionFile(filepath.Join(dir, "sessions.json"), logx.Nop())
	_ = sessions.Put(1, gatewaytest.SessionFor("+1555"))

	gw := gatewaytest.New("+1555", "12")
	gw.Chats = candidates(7)
	gw.LatestMessage = 314
	loc := time.FixedZone("MSK", 3*60*60)
	j := &jobs{}
	reg := account.NewRegistry(gw, store, sessions, logx.Nop())
	w := NewWizard(Config{BotID: 9, PageSize: 5, Location: func() *time.Location { return loc }}, reg, store, j, logx.Nop())
	w.now = func() time.Time { return time.Date(2024, 3, 10, 10, 0, 0, 0, loc) }
	return &env{store: store, gw: gw, jobs: j, w: w, loc: loc}
}

func TestCreateWizardEndToEnd(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	st, err := e.w.StartCreate(ctx, 1)
	if err != nil {
		t.Fatalf("StartCreate error: %v", err)
	}
	if res := e.w.Done(ctx, 1, st); res.Outcome != OutcomeEmptySelection {
		t.Fatalf("Done with nothing = %v, want OutcomeEmptySelection", res.Outcome)
	}
	e.w.Select(st, -1)
	e.w.Select(st, -6)
	if res := e.w.Done(ctx, 1, st); res.Outcome != OutcomeAskTimes {
		t.Fatalf("Done = %v, want OutcomeAskTimes", res.Outcome)
	}
	if res := e.w.Text(ctx, 1, st, Input{Text: "09:00, 9:7"}); res.Outcome != OutcomeBadTimes || st.Step != StepEnterTimes {
		t.Fatalf("bad times = %v at %v, want OutcomeBadTimes on same step", res.Outcome, st.Step)
	}
	if res := e.w.Text(ctx, 1, st, Input{Text: "09:00, 18:30"}); res.Outcome != OutcomeAskMessage {
		t.Fatalf("times = %v, want OutcomeAskMessage", res.Outcome)
	}
	if res := e.w.Text(ctx, 1, st, Input{Text: "   "}); res.Outcome != OutcomeEmptyMessage {
		t.Fatalf("empty message = %v, want OutcomeEmptyMessage", res.Outcome)
	}
	res := e.w.Text(ctx, 1, st, Input{HasMedia: true})
	if res.Outcome != OutcomeCreated || len(res.Schedules) != 2 {
		t.Fatalf("message = %v with %d schedules, want 2 created", res.Outcome, len(res.Schedules))
	}
	if len(e.jobs.reg) != 2 {
		t.Fatalf("registered %d jobs, want 2", len(e.jobs.reg))
	}
	first, second := res.Schedules[0], res.Schedules[1]
	if got := first.ScheduledAt.In(e.loc); got.Day() != 11 || got.Hour() != 9 {
		t.Fatalf("09:00 at %v, want tomorrow", got)
	}
	if got := second.ScheduledAt.In(e.loc); got.Day() != 10 || got.Hour() != 18 {
		t.Fatalf("18:30 at %v, want today", got)
	}
	if first.Message != 314 || !reflect.DeepEqual(first.Chats, []int64{-1, -6}) {
		t.Fatalf("schedule = %+v", first)
	}
}

func (e *env) seed(t *testing.T) storage.Schedule {
	t.Helper()
	cmd := &storage.CreateSchedules{UserID: 1, Message: 1, Chats: []int64{-1}, Times: []storage.Clock{{Hour: 9}}, Location: e.loc}
	if err := e.store.Exec(context.Background(), cmd); err != nil {
		t.Fatalf("CreateSchedules error: %v", err)
	}
	return cmd.Created[0]
}

func TestEditTime(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	sc := e.seed(t)

	st, res := e.w.StartEdit(ctx, 1, KindEditTime, sc.ID)
	if res.Outcome != OutcomeAskTime {
		t.Fatalf("StartEdit = %v, want OutcomeAskTime", res.Outcome)
	}
	if res := e.w.Text(ctx, 1, st, Input{Text: "10:00, 11:00"}); res.Outcome != OutcomeBadTimes {
		t.Fatalf("two times = %v, want OutcomeBadTimes", res.Outcome)
	}
	if res := e.w.Text(ctx, 1, st, Input{Text: "21:45"}); res.Outcome != OutcomeTimeSaved {
		t.Fatalf("edit time = %v, want OutcomeTimeSaved", res.Outcome)
	}
	got, _ := e.store.Get(ctx, sc.ID)
	if at := got.ScheduledAt.In(e.loc); at.Hour() != 21 || at.Minute() != 45 {
		t.Fatalf("stored time = %v, want 21:45", at)
	}
	if len(e.jobs.reg) != 1 || e.jobs.reg[0].ID != sc.ID {
		t.Fatalf("re-registered = %+v", e.jobs.reg)
	}
}

func TestEditMessageAndChats(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	sc := e.seed(t)

	st, _ := e.w.StartEdit(ctx, 1, KindEditMessage, sc.ID)
	if res := e.w.Text(ctx, 1, st, Input{Text: "new text"}); res.Outcome != OutcomeMessageSaved {
		t.Fatalf("edit message = %v", res.Outcome)
	}

	st, res := e.w.StartEdit(ctx, 1, KindEditChats, sc.ID)
	if res.Outcome != OutcomeShowChats || len(st.Selected) != 0 {
		t.Fatalf("StartEdit chats = %v with %v selected", res.Outcome, st.Selected)
	}
	if res := e.w.Done(ctx, 1, st); res.Outcome != OutcomeEmptySelection {
		t.Fatalf("Done empty = %v", res.Outcome)
	}
	e.w.Select(st, -4)
	e.w.Select(st, -2)
	if res := e.w.Done(ctx, 1, st); res.Outcome != OutcomeChatsSaved {
		t.Fatalf("Done = %v, want OutcomeChatsSaved", res.Outcome)
	}
	got, _ := e.store.Get(ctx, sc.ID)
	if got.Message != 314 || !reflect.DeepEqual(got.Chats, []int64{-4, -2}) {
		t.Fatalf("stored = %+v", got)
	}
}

func TestEditMissingOrForeignSchedule(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	if _, res := e.w.StartEdit(ctx, 1, KindEditTime, 404); res.Outcome != OutcomeNotFound {
		t.Fatalf("missing = %v, want OutcomeNotFound", res.Outcome)
	}
	sc := e.seed(t)
	if _, res := e.w.StartEdit(ctx, 2, KindEditMessage, sc.ID); res.Outcome != OutcomeNotFound {
		t.Fatalf("foreign = %v, want OutcomeNotFound", res.Outcome)
	}

	st, _ := e.w.StartEdit(ctx, 1, KindEditTime, sc.ID)
	_ = e.store.Exec(ctx, &storage.DeleteSchedule{ID: sc.ID})
	if res := e.w.Text(ctx, 1, st, Input{Text: "08:00"}); res.Outcome != OutcomeNotFound {
		t.Fatalf("deleted mid-edit = %v, want OutcomeNotFound", res.Outcome)
	}
}
