package state

import "database/sql"

// Interface defines the state manager contract for dependency injection and testing.
type Interface interface {
	DB() *sql.DB
	SavePlayer(state PlayerState)
	GetPlayer() (*PlayerState, error)
	GetLastfmSession() (*LastfmSession, error)
	SaveLastfmSession(username, sessionKey string) error
	DeleteLastfmSession() error
	Close() error
}

// Verify Manager implements Interface at compile time.
var _ Interface = (*Manager)(nil)
