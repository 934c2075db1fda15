package session

import (
	"sync"

	"github.com/mcoot/soundboard-relay/internal/dependencies/clock"
	"github.com/mcoot/soundboard-relay/internal/model"
)

// Store holds the sessions of all live connections, keyed by connection id
type Store struct {
	clock clock.Clock

	mu       sync.RWMutex
	sessions map[model.ConnectionID]*Session
}

// NewStore creates an empty Store
func NewStore(clock clock.Clock) *Store {
	return &Store{
		clock:    clock,
		sessions: make(map[model.ConnectionID]*Session),
	}
}

// Open returns the session for id, creating it on first use
func (s *Store) Open(id model.ConnectionID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess
	}
	sess := newSession(id, s.clock.Now())
	s.sessions[id] = sess
	return sess
}

// Get returns the session for id if one exists
func (s *Store) Get(id model.ConnectionID) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Close forgets the session for id
func (s *Store) Close(id model.ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of open sessions
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
