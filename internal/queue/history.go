package queue

// History maintains a bounded stack of queue snapshots for undo/redo.
type History struct {
	states  []Snapshot
	current int // index of current state (-1 = before any state)
	maxSize int
}

// NewHistory creates a new history with the given maximum size.
func NewHistory(maxSize int) *History {
	return &History{
		states:  make([]Snapshot, 0, maxSize),
		current: -1,
		maxSize: maxSize,
	}
}

// Push saves a snapshot of the given tracks and cursor.
// Clears any redo states and trims if over limit.
func (h *History) Push(tracks []Track, index int) {
	snapshot := Snapshot{
		Tracks: make([]Track, len(tracks)),
		Index:  index,
	}
	copy(snapshot.Tracks, tracks)

	// Clear redo states (everything after current)
	if h.current < len(h.states)-1 {
		h.states = h.states[:h.current+1]
	}

	h.states = append(h.states, snapshot)
	h.current = len(h.states) - 1

	if len(h.states) > h.maxSize {
		excess := len(h.states) - h.maxSize
		h.states = h.states[excess:]
		h.current -= excess
	}
}

// Undo returns the previous state.
// Returns nil and false if nothing to undo.
func (h *History) Undo() (*Snapshot, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.current--
	return h.copyAt(h.current), true
}

// Redo returns the next state.
// Returns nil and false if nothing to redo.
func (h *History) Redo() (*Snapshot, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.current++
	return h.copyAt(h.current), true
}

// CanUndo returns true if there is a previous state to undo to.
func (h *History) CanUndo() bool {
	return h.current > 0
}

// CanRedo returns true if there is a next state to redo to.
func (h *History) CanRedo() bool {
	return h.current < len(h.states)-1
}

func (h *History) copyAt(i int) *Snapshot {
	snap := Snapshot{
		Tracks: make([]Track, len(h.states[i].Tracks)),
		Index:  h.states[i].Index,
	}
	copy(snap.Tracks, h.states[i].Tracks)
	return &snap
}
