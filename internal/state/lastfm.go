package state

import (
	"database/sql"
	"errors"
	"time"
)

// LastfmSession represents a stored Last.fm session.
type LastfmSession struct {
	Username   string
	SessionKey string
	LinkedAt   time.Time
}

// GetLastfmSession returns the stored Last.fm session, or nil if not linked.
func (m *Manager) GetLastfmSession() (*LastfmSession, error) {
	var username, sessionKey string
	var linkedAt int64

	err := m.db.QueryRow(`
		SELECT username, session_key, linked_at FROM lastfm_session WHERE id = 1
	`).Scan(&username, &sessionKey, &linkedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil session means not linked, not an error
	}
	if err != nil {
		return nil, err
	}

	return &LastfmSession{
		Username:   username,
		SessionKey: sessionKey,
		LinkedAt:   time.Unix(linkedAt, 0),
	}, nil
}

// SaveLastfmSession stores the Last.fm session after successful authentication.
func (m *Manager) SaveLastfmSession(username, sessionKey string) error {
	now := time.Now().Unix()
	_, err := m.db.Exec(`
		INSERT INTO lastfm_session (id, username, session_key, linked_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			session_key = excluded.session_key,
			linked_at = excluded.linked_at
	`, username, sessionKey, now)
	return err
}

// DeleteLastfmSession removes the stored Last.fm session (unlink).
func (m *Manager) DeleteLastfmSession() error {
	_, err := m.db.Exec(`DELETE FROM lastfm_session WHERE id = 1`)
	return err
}
