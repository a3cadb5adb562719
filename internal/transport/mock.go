package transport

import (
	"sync"
	"time"
)

// Mock is a test double for a transport.
type Mock struct {
	mu        sync.Mutex
	source    string
	playing   bool
	position  time.Duration
	duration  time.Duration
	volume    float64
	loadErr   error
	loadCalls []string
	playCalls int
	stopCalls int
	seekCalls []time.Duration
	events    chan Event
	closed    bool
}

// NewMock creates a new mock transport for testing.
func NewMock() *Mock {
	return &Mock{
		volume: 1,
		events: make(chan Event, 64),
	}
}

func (m *Mock) Load(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls = append(m.loadCalls, url)
	if m.loadErr != nil {
		return m.loadErr
	}
	m.source = url
	m.position = 0
	return nil
}

func (m *Mock) Play() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playCalls++
	if m.source == "" {
		return
	}
	m.playing = true
	m.emitLocked(PlayingEvent{})
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return
	}
	m.playing = false
	m.emitLocked(PausedEvent{})
}

func (m *Mock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	m.playing = false
	m.source = ""
	m.position = 0
}

func (m *Mock) SeekTo(position time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, position)
	m.position = position
}

func (m *Mock) SetVolume(level float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = level
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.events)
	return nil
}

func (m *Mock) emitLocked(e Event) {
	if m.closed {
		return
	}
	select {
	case m.events <- e:
	default:
	}
}

// Test helpers

// Emit sends an event to subscribers, simulating transport callbacks.
func (m *Mock) Emit(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(e)
}

// SetLoadError makes subsequent Load calls fail.
func (m *Mock) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetDuration sets the reported duration.
func (m *Mock) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

// SetPosition sets the reported position.
func (m *Mock) SetPosition(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = d
}

// Source returns the currently loaded source URL.
func (m *Mock) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

// LoadCalls returns the URLs passed to Load.
func (m *Mock) LoadCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loadCalls...)
}

// StopCalls returns how many times Stop was called.
func (m *Mock) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

// SeekCalls returns the positions passed to SeekTo.
func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.seekCalls...)
}

// Volume returns the last volume set.
func (m *Mock) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Playing reports whether the mock considers itself playing.
func (m *Mock) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
