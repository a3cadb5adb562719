// Package transport defines the contract for the component that actually
// renders audio. Any concrete transport (local speaker output, external
// process, remote device) implements the same interface, so the engine can
// be tested against a fake.
package transport

import "time"

// Interface is the transport contract.
//
// Load assigns a new source without starting playback; Play starts or
// resumes rendering. Progress and lifecycle are reported through Events,
// never by polling.
type Interface interface {
	Load(url string) error
	Play()
	Pause()
	Stop()
	SeekTo(position time.Duration)
	SetVolume(level float64)
	Position() time.Duration
	Duration() time.Duration
	Events() <-chan Event
	Close() error
}

// Event is a playback notification emitted by a transport.
type Event interface {
	transportEvent()
}

// TimeEvent reports playback progress.
type TimeEvent struct {
	Position time.Duration
}

// DurationEvent reports that the source duration became known.
type DurationEvent struct {
	Duration time.Duration
}

// EndedEvent reports natural end of the current source.
type EndedEvent struct{}

// PlayingEvent reports that rendering started or resumed.
type PlayingEvent struct{}

// PausedEvent reports that rendering paused.
type PausedEvent struct{}

// BufferingEvent reports that rendering stalled waiting for data.
type BufferingEvent struct{}

// ReadyEvent reports that enough data is buffered to resume.
type ReadyEvent struct{}

// ErrorEvent reports a playback failure. The transport does not advance
// past a failed source; that decision belongs to the engine.
type ErrorEvent struct {
	Err error
}

func (TimeEvent) transportEvent() {}
func (DurationEvent) transportEvent() {}
func (EndedEvent) transportEvent() {}
func (PlayingEvent) transportEvent() {}
func (PausedEvent) transportEvent() {}
func (BufferingEvent) transportEvent() {}
func (ReadyEvent) transportEvent() {}
func (ErrorEvent) transportEvent() {}
