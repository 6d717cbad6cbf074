package pprof

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relaybot/internal/storage"
	"relaybot/internal/task/scheduler"
	logx "relaybot/pkg/logx"
)

type fakeSource struct{}

func (fakeSource) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Timezone: "UTC", Running: true, Schedules: []scheduler.ScheduleInfo{{Name: "schedule:1"}}}
}

func (fakeSource) RecentRuns(context.Context, int) ([]storage.RunRecord, error) {
	return []storage.RunRecord{{Name: "schedule:1", StartedAt: time.Unix(0, 0).UTC()}}, nil
}

func TestHandlerAuth(t *testing.T) {
	t.Parallel()
	h := New(Config{}, fakeSource{}, logx.Nop()).Handler("secret")
	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "no token", target: "/healthz", want: http.StatusUnauthorized},
		{name: "query token", target: "/healthz?token=secret", want: http.StatusOK},
		{name: "bearer", target: "/healthz", header: "Bearer secret", want: http.StatusOK},
		{name: "wrong bearer", target: "/healthz", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStatusReportsJobsAndRuns(t *testing.T) {
	t.Parallel()
	h := New(Config{}, fakeSource{}, logx.Nop()).Handler("")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(st.Scheduler.Schedules) != 1 || len(st.Runs) != 1 || st.Runs[0].Name != "schedule:1" {
		t.Fatalf("status = %+v", st)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.0.0.5:6060":  false,
		"nonsense":       false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestStartRefusesPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0"}, fakeSource{}, logx.Nop())
	if err := s.serve(context.Background(), s.cfg); err == nil {
		t.Fatalf("serve on public addr without token succeeded")
	}
}
