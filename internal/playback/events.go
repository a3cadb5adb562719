package playback

import (
	"time"

	"github.com/llehouerou/sonique/internal/queue"
)

// StatusChange is emitted when the playback status changes.
type StatusChange struct {
	Previous Status
	Current  Status
}

// TrackChange is emitted when playback moves to a different track.
//
// Emitted by:
//   - PlayTrack/PlayTracks: when the loaded track differs from the last one
//   - PlayNext/PlayPrevious/PlayAt: when navigating with playback
//   - the transport ended handler: when a track finishes and advances
//
// NOT emitted by:
//   - queue edits that keep the current track in place
//   - pause/stop status changes
//
// Subscribers handle track side effects (notifications, artwork, lyrics)
// in response to this event; scrobbling is already handled internally.
type TrackChange struct {
	Previous      *queue.Track
	Current       *queue.Track
	PreviousIndex int
	Index         int
}

// QueueChange is emitted when the queue contents or cursor change.
type QueueChange struct {
	Tracks []queue.Track
	Index  int
}

// ModeChange is emitted when repeat or shuffle mode changes.
type ModeChange struct {
	RepeatMode queue.RepeatMode
	Shuffle    bool
}

// PositionChange is emitted when a seek or restart occurs.
type PositionChange struct {
	Position time.Duration
}

// ErrorEvent is emitted when an error occurs during playback.
// Errors are informational: the engine has already settled into a valid
// state by the time the event is delivered.
type ErrorEvent struct {
	Operation string // e.g. "resolve", "transport"
	TrackID   string
	Err       error
}
