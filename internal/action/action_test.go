package action

import (
	"errors"
	"testing"

	"relaybot/pkg/tgui"
)

func TestEncodeDecodeEveryKind(t *testing.T) {
	t.Parallel()
	for k, info := range kinds {
		a := Action{Kind: k}
		if info.hasID {
			a.ID = -1000000000123
		}
		data, err := a.Encode()
		if err != nil {
			t.Fatalf("Encode(%v) error: %v", k, err)
		}
		if len(data) > tgui.MaxCallbackDataLen {
			t.Fatalf("Encode(%v) = %d bytes, over the limit", k, len(data))
		}
		got, err := Decode(data)
		if err != nil || got != a {
			t.Fatalf("Decode(%q) = %+v, %v, want %+v", data, got, err, a)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	for _, data := range []string{"", "r", "x:auth", "r:nope", "r:show", "r:show:abc", "r:auth:1", "r:show:1:2"} {
		if _, err := Decode(data); !errors.Is(err, ErrUnknown) {
			t.Fatalf("Decode(%q) = %v, want ErrUnknown", data, err)
		}
	}
}

func TestEncodeFormat(t *testing.T) {
	t.Parallel()
	if got, _ := WithID(ScheduleDetails, 7).Encode(); got != "r:show:7" {
		t.Fatalf("Encode = %q, want r:show:7", got)
	}
	if got, _ := New(Back).Encode(); got != "r:back" {
		t.Fatalf("Encode = %q, want r:back", got)
	}
	if _, err := (Action{Kind: 99}).Encode(); !errors.Is(err, ErrUnknown) {
		t.Fatalf("Encode(unknown) = %v, want ErrUnknown", err)
	}
}
