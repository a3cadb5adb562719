package queue

import "time"

// Track represents a track in the queue.
// Fields are catalog-provided and read-only to the engine.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	ArtistID string
	AlbumID  string
	Duration time.Duration // zero when the server did not report one
	CoverArt string        // cover art identifier, empty if none
	Starred  bool
}
