package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, "debug").With(String("comp", "dispatch"))
	log.Info("sent", Int64("schedule", 7), Bool("ok", true))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if m["comp"] != "dispatch" {
		t.Fatalf("comp = %v, want dispatch", m["comp"])
	}
	if m["schedule"] != float64(7) {
		t.Fatalf("schedule = %v, want 7", m["schedule"])
	}
	if m["message"] != "sent" {
		t.Fatalf("message = %v, want sent", m["message"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("debug enabled at warn level")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
}

func TestFormatChatJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"forward failed","chat":"-100","err":"boom"}`)
	got := formatChatJSON(line)
	want := "[WARN] forward failed\n- chat=-100\n- err=boom"
	if got != want {
		t.Fatalf("formatChatJSON = %q, want %q", got, want)
	}
	if raw := formatChatJSON([]byte("  plain text \n")); raw != "plain text" {
		t.Fatalf("formatChatJSON(raw) = %q", raw)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 50)
	if got := truncate(s, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
}
