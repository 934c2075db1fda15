package session

import (
	"sync"
	"time"

	"github.com/mcoot/soundboard-relay/internal/model"
)

// Session is the protocol-owned state of one connection: its client data,
// the board it is bound to and the sounds it has announced as played
type Session struct {
	ID          model.ConnectionID
	ConnectedAt time.Time

	mu           sync.Mutex
	clientData   any
	hasClient    bool
	boardID      model.BoardID
	playedSounds map[string]struct{}
}

func newSession(id model.ConnectionID, connectedAt time.Time) *Session {
	return &Session{
		ID:           id,
		ConnectedAt:  connectedAt,
		playedSounds: make(map[string]struct{}),
	}
}

// Client returns the public view of the session
func (s *Session) Client() model.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Client{ID: s.ID, Data: s.clientData}
}

// ClientData returns the client data and whether it was ever set
func (s *Session) ClientData() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientData, s.hasClient
}

// SetClientData replaces the client data
func (s *Session) SetClientData(data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientData = data
	s.hasClient = true
}

// BoardID returns the bound board and whether the session is bound
func (s *Session) BoardID() (model.BoardID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boardID, s.boardID != ""
}

// Bind attaches the session to a board
func (s *Session) Bind(id model.BoardID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boardID = id
}

// Unbind detaches the session from its board and forgets its played sounds
func (s *Session) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boardID = ""
	s.playedSounds = make(map[string]struct{})
}

// MarkPlayed records that the session announced soundID
func (s *Session) MarkPlayed(soundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playedSounds[soundID] = struct{}{}
}

// HasPlayed reports whether the session announced soundID
func (s *Session) HasPlayed(soundID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.playedSounds[soundID]
	return ok
}
