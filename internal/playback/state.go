package playback

import (
	"time"

	"github.com/llehouerou/sonique/internal/queue"
)

// State is a consistent snapshot of the player, taken synchronously after
// a mutation. Observers never see partial updates; the slices and track
// pointer are copies the caller may keep.
type State struct {
	CurrentTrack *queue.Track
	Queue        []queue.Track
	QueueIndex   int // -1 when the queue is empty
	Status       Status
	Position     time.Duration
	Duration     time.Duration
	Volume       float64 // always within [0, 1]
	Shuffle      bool
	RepeatMode   queue.RepeatMode
}
