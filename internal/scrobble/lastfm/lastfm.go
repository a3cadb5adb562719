// Package lastfm adapts the Last.fm API to the scrobble reporter contract.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shkh/lastfm-go/lastfm"

	"github.com/llehouerou/sonique/internal/queue"
	"github.com/llehouerou/sonique/internal/scrobble"
)

// ErrNotAuthenticated is returned when no session key is set.
var ErrNotAuthenticated = errors.New("not authenticated")

// Client wraps the Last.fm API for play-event reporting.
type Client struct {
	api        *lastfm.Api
	apiKey     string
	sessionKey string
}

// New creates a new Last.fm client with the given API credentials.
func New(apiKey, apiSecret string) *Client {
	return &Client{
		api:    lastfm.New(apiKey, apiSecret),
		apiKey: apiKey,
	}
}

// SetSessionKey sets the authenticated session key.
func (c *Client) SetSessionKey(key string) {
	c.sessionKey = key
	c.api.SetSession(key)
}

// IsAuthenticated returns true if a session key is set.
func (c *Client) IsAuthenticated() bool {
	return c.sessionKey != ""
}

// GetToken requests an authentication token from Last.fm.
func (c *Client) GetToken() (string, error) {
	token, err := c.api.GetToken()
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return token, nil
}

// GetAuthURL returns the URL for user authorization (desktop auth flow).
func (c *Client) GetAuthURL(token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s", c.apiKey, token)
}

// GetSession exchanges an authorized token for a session key and
// resolves the linked account's username.
func (c *Client) GetSession(token string) (username, sessionKey string, err error) {
	if err := c.api.LoginWithToken(token); err != nil {
		return "", "", fmt.Errorf("get session: %w", err)
	}
	c.sessionKey = c.api.GetSessionKey()

	user, err := c.api.User.GetInfo(nil)
	if err != nil {
		return "unknown", c.sessionKey, nil
	}
	return user.Name, c.sessionKey, nil
}

// ReportPlay sends a now-playing notice or a scrobble submission.
func (c *Client) ReportPlay(_ context.Context, track queue.Track, submission bool) error {
	if !c.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	params := lastfm.P{
		"artist": track.Artist,
		"track":  track.Title,
	}
	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.Duration > 0 {
		params["duration"] = int(track.Duration.Seconds())
	}

	if !submission {
		if _, err := c.api.Track.UpdateNowPlaying(params); err != nil {
			return fmt.Errorf("update now playing: %w", err)
		}
		return nil
	}

	params["timestamp"] = time.Now().Unix()
	if _, err := c.api.Track.Scrobble(params); err != nil {
		return fmt.Errorf("scrobble: %w", err)
	}
	return nil
}

// Verify Client implements the reporter contract at compile time.
var _ scrobble.PlayEventReporter = (*Client)(nil)
