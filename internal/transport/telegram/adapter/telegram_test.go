package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	logx "relaybot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		in        string
		limit     int
		parseMode string
		want      int
	}{
		{name: "short", in: "hello", limit: 10, want: 1},
		{name: "exact", in: strings.Repeat("a", 10), limit: 10, want: 1},
		{name: "hard cut", in: strings.Repeat("a", 25), limit: 10, want: 3},
		{name: "newline", in: strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6), limit: 10, want: 2},
		{name: "runes", in: strings.Repeat("ж", 12), limit: 5, want: 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tt.in, tt.limit, tt.parseMode)
			if len(got) != tt.want {
				t.Fatalf("splitText = %d chunks %q, want %d", len(got), got, tt.want)
			}
			for _, c := range got {
				if utf8.RuneCountInString(c) > tt.limit {
					t.Fatalf("chunk %q exceeds %d runes", c, tt.limit)
				}
			}
		})
	}
}

func TestSplitTextKeepsNewlineBoundary(t *testing.T) {
	t.Parallel()
	got := splitText("aaaaaa\nbbbbbb", 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextAvoidsOpenTag(t *testing.T) {
	t.Parallel()
	got := splitText("abcdef<b>xyz</b>", 8, "HTML")
	if got[0] != "abcdef" {
		t.Fatalf("first chunk = %q, want abcdef", got[0])
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: " "}, logx.Nop()); err == nil {
		t.Fatal("New with empty token should fail")
	}
}
