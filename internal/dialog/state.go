// Package dialog drives the multi-step schedule wizards: create, and the
// edits of time, message and chats.
package dialog

import (
	"errors"
	"fmt"
	"strings"

	"relaybot/internal/gateway"
	"relaybot/internal/storage"
	"relaybot/pkg/tgui"
)

type Kind int

const (
	KindCreate Kind = iota
	KindEditTime
	KindEditMessage
	KindEditChats
)

type Step int

const (
	StepSelectChats Step = iota
	StepEnterTimes
	StepEnterMessage
	StepEnterTime
	StepDone
)

var (
	ErrEmptyTimes   = errors.New("no times given")
	ErrNotCandidate = errors.New("chat is not offered")
)

// State is one user's wizard in progress.
type State struct {
	Kind       Kind
	Step       Step
	ScheduleID int64

	// Candidates are fetched once when the wizard starts.
	Candidates []gateway.Chat
	Selected   []int64
	Page       int

	Times []storage.Clock
}

func (s *State) selected(id int64) bool {
	for _, v := range s.Selected {
		if v == id {
			return true
		}
	}
	return false
}

// Available is Candidates minus Selected, in candidate order.
func (s *State) Available() []gateway.Chat {
	out := make([]gateway.Chat, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		if !s.selected(c.ID) {
			out = append(out, c)
		}
	}
	return out
}

// ChatPage is the current page of Available. The stored index is clamped.
func (s *State) ChatPage(size int) tgui.Page[gateway.Chat] {
	p := tgui.Paginate(s.Available(), s.Page, size)
	s.Page = p.Index
	return p
}

func (s *State) NextPage() { s.Page++ }

func (s *State) PrevPage() {
	if s.Page > 0 {
		s.Page--
	}
}

// Select adds id to the selection. A chat already chosen or never offered is
// rejected.
func (s *State) Select(id int64) error {
	if s.selected(id) {
		return fmt.Errorf("%w: %d already selected", ErrNotCandidate, id)
	}
	for _, c := range s.Candidates {
		if c.ID == id {
			s.Selected = append(s.Selected, id)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrNotCandidate, id)
}

// Title returns the candidate title for id, or "" when unknown.
func (s *State) Title(id int64) string {
	for _, c := range s.Candidates {
		if c.ID == id {
			return c.Title
		}
	}
	return ""
}

// ParseTimes parses "HH:MM, HH:MM, ...". One bad entry rejects the whole
// list. Duplicates collapse, first occurrence wins.
func ParseTimes(input string) ([]storage.Clock, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyTimes
	}
	var (
		out  []storage.Clock
		seen = map[storage.Clock]bool{}
	)
	for _, part := range strings.Split(input, ",") {
		c, err := storage.ParseClock(part)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
