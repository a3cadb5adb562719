package playback

// Status represents the playback status state machine.
//
// Valid transitions:
//   - any     → Loading (new track load, or transport buffering)
//   - Loading → Playing (transport reports rendering)
//   - Playing → Paused  (user pause or transport report)
//   - Paused  → Playing (resume)
//   - Playing/Paused → Ended (queue exhausted after natural completion)
//   - any     → Idle    (queue cleared, or load/transport failure)
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusPlaying
	StatusPaused
	StatusEnded
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusLoading:
		return "Loading"
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	case StatusEnded:
		return "Ended"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a source is loaded (playing, paused or loading).
func (s Status) IsActive() bool {
	return s == StatusPlaying || s == StatusPaused || s == StatusLoading
}
