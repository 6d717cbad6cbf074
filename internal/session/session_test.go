package session

import (
	"sync"
	"testing"

	"relaybot/internal/dialog"
)

func TestGetCreatesOnce(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if _, ok := s.Peek(1); ok {
		t.Fatal("Peek on empty store found a session")
	}
	a := s.Get(1)
	a.SchedulePage = 2
	if b := s.Get(1); b != a || b.SchedulePage != 2 {
		t.Fatalf("Get returned a different session")
	}
	if !a.Idle() {
		t.Fatal("new session should be idle")
	}
	a.Dialog = &dialog.State{}
	if a.Idle() {
		t.Fatal("session with a dialog should not be idle")
	}
}

func TestClearIsPerUser(t *testing.T) {
	t.Parallel()
	s := NewStore()
	s.Get(1).SchedulePage = 1
	s.Get(2).SchedulePage = 2

	old := s.Clear(1)
	if old == nil || old.SchedulePage != 1 {
		t.Fatalf("Clear returned %+v", old)
	}
	if s.Clear(1) != nil {
		t.Fatal("second Clear should return nil")
	}
	if got, ok := s.Peek(2); !ok || got.SchedulePage != 2 {
		t.Fatalf("other user's session = %+v, %v", got, ok)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestConcurrentUsers(t *testing.T) {
	t.Parallel()
	s := NewStore()
	var wg sync.WaitGroup
	for i := int64(0); i < 32; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Get(id).SchedulePage = int(id)
			if id%2 == 0 {
				s.Clear(id)
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 16 {
		t.Fatalf("Len = %d, want 16", s.Len())
	}
}
