package state

import (
	"database/sql"
	"sync"
)

// Mock is a test double for Manager. Safe for concurrent use so tests
// can poll it while a persistence goroutine writes.
type Mock struct {
	mu          sync.Mutex
	playerState *PlayerState
	session     *LastfmSession
	closed      bool
}

// NewMock creates a new mock state manager for testing.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) DB() *sql.DB { return nil }

func (m *Mock) SavePlayer(state PlayerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerState = &state
}

func (m *Mock) GetPlayer() (*PlayerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playerState == nil {
		return &PlayerState{CurrentIndex: -1, Volume: 1.0}, nil
	}
	return m.playerState, nil
}

func (m *Mock) GetLastfmSession() (*LastfmSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

func (m *Mock) SaveLastfmSession(username, sessionKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &LastfmSession{Username: username, SessionKey: sessionKey}
	return nil
}

func (m *Mock) DeleteLastfmSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test helpers

func (m *Mock) SetPlayer(state *PlayerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerState = state
}

func (m *Mock) SavedPlayer() *PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerState
}

func (m *Mock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
