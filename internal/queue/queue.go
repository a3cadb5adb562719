// Package queue holds the play order and computes track transitions
// according to shuffle and repeat policy. Pure data, no I/O.
package queue

import "time"

// RepeatMode defines the repeat behavior.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "Off"
	case RepeatAll:
		return "All"
	case RepeatOne:
		return "One"
	default:
		return "Unknown"
	}
}

// Cycle returns the next mode in the Off -> All -> One -> Off cycle.
func (m RepeatMode) Cycle() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// RestartThreshold is the elapsed position beyond which "previous"
// restarts the current track instead of stepping back.
const RestartThreshold = 3 * time.Second

// Queue is an ordered track list with a current-position cursor.
// When shuffle is enabled the track slice holds the materialized shuffled
// order and the insertion order is kept aside for restoring.
type Queue struct {
	tracks   []Track
	index    int // -1 when nothing is current
	shuffle  bool
	original []Track // insertion order, retained while shuffle is on
}

// New creates a new empty queue.
func New() *Queue {
	return &Queue{index: -1}
}

// SetTracks replaces the queue contents and cursor.
// An out-of-range startIndex is clamped to 0 when the queue is non-empty;
// an empty track list resets the cursor to -1.
func (q *Queue) SetTracks(tracks []Track, startIndex int) {
	q.tracks = make([]Track, len(tracks))
	copy(q.tracks, tracks)
	q.original = nil
	q.shuffle = false
	if len(q.tracks) == 0 {
		q.index = -1
		return
	}
	if startIndex < 0 || startIndex >= len(q.tracks) {
		startIndex = 0
	}
	q.index = startIndex
}

// Add appends tracks to the tail without changing the cursor.
func (q *Queue) Add(tracks ...Track) {
	q.tracks = append(q.tracks, tracks...)
	if q.shuffle {
		q.original = append(q.original, tracks...)
	}
}

// RemoveAt removes the track at the given index and reports whether the
// removed entry was the current one. Out-of-range indices are no-ops.
// When the current track is removed the cursor is left pointing at the
// entry that took its place (clamped to the new tail); the caller decides
// what "current" means until the next explicit track change.
func (q *Queue) RemoveAt(index int) (removed, wasCurrent bool) {
	if index < 0 || index >= len(q.tracks) {
		return false, false
	}
	t := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	if q.shuffle {
		q.removeFromOriginal(t.ID)
	}

	switch {
	case q.index > index:
		q.index--
	case q.index == index:
		wasCurrent = true
		if q.index >= len(q.tracks) {
			q.index = len(q.tracks) - 1
		}
	}
	return true, wasCurrent
}

// removeFromOriginal drops the first entry with the given id from the
// retained insertion order. Lowest index wins when ids repeat.
func (q *Queue) removeFromOriginal(id string) {
	for i, t := range q.original {
		if t.ID == id {
			q.original = append(q.original[:i], q.original[i+1:]...)
			return
		}
	}
}

// Current returns the current track, or nil if none.
func (q *Queue) Current() *Track {
	if q.index < 0 || q.index >= len(q.tracks) {
		return nil
	}
	t := q.tracks[q.index]
	return &t
}

// CurrentIndex returns the cursor position (-1 if none).
func (q *Queue) CurrentIndex() int {
	return q.index
}

// JumpTo moves the cursor to the given index.
// Returns the track at that position, or nil if out of range.
func (q *Queue) JumpTo(index int) *Track {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	q.index = index
	return q.Current()
}

// NextIndex computes where playback goes after the current track.
// ok is false when the queue is exhausted (RepeatOff past the tail) or empty.
// Traversal is always sequential over the materialized order; shuffle
// reorders the slice at toggle time, not here.
func (q *Queue) NextIndex(repeat RepeatMode) (index int, ok bool) {
	if len(q.tracks) == 0 || q.index < 0 {
		return -1, false
	}
	if repeat == RepeatOne {
		return q.index, true
	}
	if q.index+1 < len(q.tracks) {
		return q.index + 1, true
	}
	if repeat == RepeatAll {
		return 0, true
	}
	return -1, false
}

// Previous decides what "previous" means given the elapsed position.
// Past RestartThreshold it signals a restart of the current track;
// otherwise it steps back one, bounded at 0. Previous never wraps to the
// tail, even under RepeatAll.
func (q *Queue) Previous(position time.Duration) (index int, restart bool) {
	if position > RestartThreshold {
		return q.index, true
	}
	if q.index <= 0 {
		return 0, false
	}
	return q.index - 1, false
}

// Tracks returns a copy of the queue in its materialized order.
func (q *Queue) Tracks() []Track {
	result := make([]Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// ReplaceAt overwrites the track at the given index.
// Out-of-range indices are no-ops.
func (q *Queue) ReplaceAt(index int, track Track) {
	if index < 0 || index >= len(q.tracks) {
		return
	}
	q.tracks[index] = track
	if q.shuffle {
		for i, t := range q.original {
			if t.ID == track.ID {
				q.original[i] = track
				break
			}
		}
	}
}

// Track returns the track at the given index, or nil if out of range.
func (q *Queue) Track(index int) *Track {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	t := q.tracks[index]
	return &t
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.tracks) == 0
}
