package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("storage closed")
)

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}

// Schedule is one daily forward of Message to Chats.
type Schedule struct {
	ID          int64
	UserID      int64
	Message     int64 // message id in the operator's chat with the bot
	ScheduledAt time.Time
	Chats       []int64
}

// ClockIn returns the daily firing time as seen in loc. A nil loc means UTC.
func (s Schedule) ClockIn(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	at := s.ScheduledAt.In(loc)
	return Clock{Hour: at.Hour(), Minute: at.Minute()}
}

// RunRecord is one finished engine task.
type RunRecord struct {
	Name      string
	StartedAt time.Time
	Took      time.Duration
	Err       string
}

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses a 24h "HH:MM". A single-digit hour is accepted; signs
// and other non-digits are not.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || len(ms) != 2 || len(hs) == 0 || len(hs) > 2 || !digits(hs) || !digits(ms) {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NextAt returns today's occurrence of c in loc, or tomorrow's if it is
// strictly before now.
func NextAt(c Clock, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	n := now.In(loc)
	t := time.Date(n.Year(), n.Month(), n.Day(), c.Hour, c.Minute, 0, 0, loc)
	return Advance(t, now, loc)
}

// Advance moves t forward in whole local days until it is not before now.
func Advance(t, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	for t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
