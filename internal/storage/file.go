package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "relaybot/pkg/logx"
)

// SessionFile keeps opaque gateway sessions keyed by user id in one JSON
// file. Every change rewrites the file through a temp file and rename.
type SessionFile struct {
	path string
	log  logx.Logger

	mu       sync.Mutex
	sessions map[int64][]byte
}

func NewSessionFile(path string, log logx.Logger) *SessionFile {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SessionFile{path: path, log: log, sessions: map[int64][]byte{}}
}

// Load reads the file. A missing file is an empty set.
func (f *SessionFile) Load() error {
	if strings.TrimSpace(f.path) == "" {
		return errors.New("sessions path is required")
	}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.mu.Lock()
		f.sessions = map[int64][]byte{}
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}
	m := map[int64][]byte{}
	if len(strings.TrimSpace(string(b))) > 0 {
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.sessions = m
	f.mu.Unlock()
	f.log.Debug("sessions loaded", logx.Int("count", len(m)))
	return nil
}

func (f *SessionFile) Get(userID int64) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.sessions[userID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Users returns the ids with a stored session.
func (f *SessionFile) Users() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, 0, len(f.sessions))
	for id := range f.sessions {
		out = append(out, id)
	}
	return out
}

func (f *SessionFile) Put(userID int64, session []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.sessions[userID]
	f.sessions[userID] = append([]byte(nil), session...)
	if err := f.writeLocked(); err != nil {
		if had {
			f.sessions[userID] = prev
		} else {
			delete(f.sessions, userID)
		}
		return err
	}
	return nil
}

// Remove drops only userID's entry. Removing an absent entry is a no-op.
func (f *SessionFile) Remove(userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.sessions[userID]
	if !had {
		return nil
	}
	delete(f.sessions, userID)
	if err := f.writeLocked(); err != nil {
		f.sessions[userID] = prev
		return err
	}
	return nil
}

func (f *SessionFile) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(f.sessions)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
