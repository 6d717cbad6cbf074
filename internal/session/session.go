// Package session keeps the in-memory conversation state of each bot user.
// Nothing here is persisted; a restart drops every pending flow.
package session

import (
	"sync"

	"relaybot/internal/auth"
	"relaybot/internal/dialog"
)

// Session is one user's pending flows. At most one of Auth and Dialog is
// set at a time.
type Session struct {
	Auth   *auth.Flow
	Dialog *dialog.State

	// SchedulePage is the page of the schedules list last shown.
	SchedulePage int
}

// Idle reports whether no flow is pending.
func (s *Session) Idle() bool { return s.Auth == nil && s.Dialog == nil }

// Store maps user ids to sessions. A session is only touched by its user's
// serial worker; the mutex guards the map itself.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns userID's session, creating it on first use.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{}
		s.sessions[userID] = sess
	}
	return sess
}

// Peek returns userID's session without creating one.
func (s *Store) Peek(userID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Clear drops userID's session and returns what it held, so the caller can
// release resources such as an open auth connection.
func (s *Store) Clear(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[userID]
	delete(s.sessions, userID)
	return sess
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
