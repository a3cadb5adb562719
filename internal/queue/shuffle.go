package queue

import "math/rand"

// Shuffle reports whether shuffle is enabled.
func (q *Queue) Shuffle() bool {
	return q.shuffle
}

// SetShuffle toggles shuffle on or off.
//
// Turning shuffle on materializes a uniformly-random permutation with the
// current track anchored at position 0, so playback continues undisturbed.
// Turning it off restores the insertion order; the cursor is recovered by
// identity lookup on the current track's id (lowest index wins when a
// track appears more than once).
func (q *Queue) SetShuffle(enabled bool) {
	if enabled == q.shuffle {
		return
	}
	if enabled {
		q.shuffleOn()
	} else {
		q.shuffleOff()
	}
}

// ToggleShuffle flips shuffle and returns the new setting.
func (q *Queue) ToggleShuffle() bool {
	q.SetShuffle(!q.shuffle)
	return q.shuffle
}

func (q *Queue) shuffleOn() {
	q.shuffle = true
	q.original = make([]Track, len(q.tracks))
	copy(q.original, q.tracks)

	if len(q.tracks) == 0 {
		return
	}

	shuffled := make([]Track, 0, len(q.tracks))
	rest := make([]Track, 0, len(q.tracks))
	if q.index >= 0 {
		shuffled = append(shuffled, q.tracks[q.index])
		rest = append(rest, q.tracks[:q.index]...)
		rest = append(rest, q.tracks[q.index+1:]...)
	} else {
		rest = append(rest, q.tracks...)
	}
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	q.tracks = append(shuffled, rest...)
	if q.index >= 0 {
		q.index = 0
	}
}

func (q *Queue) shuffleOff() {
	q.shuffle = false
	current := q.Current()
	q.tracks = q.original
	q.original = nil

	if current == nil {
		return
	}
	q.index = indexOf(q.tracks, current.ID)
}

// indexOf returns the lowest index of the track with the given id, or -1.
func indexOf(tracks []Track, id string) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
