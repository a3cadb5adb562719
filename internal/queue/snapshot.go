package queue

// Snapshot captures queue contents and cursor for a reversible clear.
// It records the materialized order, exactly what the user was looking at.
type Snapshot struct {
	Tracks []Track
	Index  int
}

// Clear empties the queue and returns a snapshot of what it held.
// Returns nil if the queue was already empty (nothing to undo).
func (q *Queue) Clear() *Snapshot {
	if len(q.tracks) == 0 {
		return nil
	}
	snap := &Snapshot{
		Tracks: q.tracks,
		Index:  q.index,
	}
	q.tracks = nil
	q.original = nil
	q.shuffle = false
	q.index = -1
	return snap
}

// Restore reinstates queue contents and cursor from a snapshot.
// A nil snapshot is a no-op.
func (q *Queue) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	q.tracks = make([]Track, len(snap.Tracks))
	copy(q.tracks, snap.Tracks)
	q.original = nil
	q.shuffle = false
	q.index = snap.Index
	if q.index >= len(q.tracks) {
		q.index = len(q.tracks) - 1
	}
	if len(q.tracks) == 0 {
		q.index = -1
	}
}
