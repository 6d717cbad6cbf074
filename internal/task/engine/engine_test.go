package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"relaybot/internal/eventbus"
	logx "relaybot/pkg/logx"
)

func startEngine(t *testing.T, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(Config{Workers: 2, QueueSize: 8}, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	s := startEngine(t, bus)

	var ran atomic.Int32
	if err := s.Enqueue(Task{Name: "schedule_1", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if ran.Load() != 1 {
		t.Fatalf("ran = %d, want 1", ran.Load())
	}
	if e := <-events; e.Type != eventbus.TypeJobStarted {
		t.Fatalf("first event = %q, want %q", e.Type, eventbus.TypeJobStarted)
	}
	if e := <-events; e.Type != eventbus.TypeJobFinished {
		t.Fatalf("second event = %q, want %q", e.Type, eventbus.TypeJobFinished)
	}
}

func TestOverlapIsSkippedWhileRunning(t *testing.T) {
	t.Parallel()
	s := startEngine(t, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	task := Task{Name: "schedule_7", Run: func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	}}

	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first Enqueue error: %v", err)
	}
	<-started
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue = %v, want ErrOverlapSkip", err)
	}
	if !s.Busy("schedule_7") {
		t.Fatal("Busy should report the running task")
	}
	close(release)
	waitFor(t, func() bool { return !s.Busy("schedule_7") })

	if err := s.Enqueue(task); err != nil {
		t.Fatalf("Enqueue after finish error: %v", err)
	}
	waitFor(t, func() bool { return runs.Load() == 2 })
}

func TestPanicIsRecorded(t *testing.T) {
	t.Parallel()
	s := startEngine(t, nil)
	if err := s.Enqueue(Task{Name: "bad", Run: func(context.Context) error { panic("boom") }}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if got := s.Snapshot().History[0].Error; got != "panic: boom" {
		t.Fatalf("history error = %q, want panic: boom", got)
	}
	// Workers survive the panic.
	done := make(chan struct{})
	_ = s.Enqueue(Task{Name: "good", Run: func(context.Context) error { close(done); return nil }})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine stopped running tasks after a panic")
	}
}

func TestEnqueueWhenStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue = %v, want ErrStopped", err)
	}
	if s.Busy("x") {
		t.Fatal("rejected task must not hold its run state")
	}
}
