// Package playback implements the player engine: it owns the transport,
// the playback status state machine, and the queue, and orchestrates
// scrobble reporting in response to user intents and transport events.
package playback

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/llehouerou/sonique/internal/optimistic"
	"github.com/llehouerou/sonique/internal/queue"
	"github.com/llehouerou/sonique/internal/scrobble"
	"github.com/llehouerou/sonique/internal/transport"
)

// StreamURLResolver resolves a track id to a streamable URL.
// Resolution is a network call and may be slow; the engine discards
// results that arrive after a newer intent superseded them.
type StreamURLResolver interface {
	StreamURL(ctx context.Context, trackID string) (string, error)
}

// ResolverFunc adapts a function to the StreamURLResolver interface.
type ResolverFunc func(ctx context.Context, trackID string) (string, error)

func (f ResolverFunc) StreamURL(ctx context.Context, trackID string) (string, error) {
	return f(ctx, trackID)
}

// StarSetter persists a track's starred flag on the catalog side.
type StarSetter interface {
	SetStarred(ctx context.Context, trackID string, starred bool) error
}

const defaultHistorySize = 50

// Options configures a new Engine.
type Options struct {
	Transport transport.Interface
	Resolver  StreamURLResolver
	Reporter  *scrobble.Reporter // nil disables play-event reporting
	Stars     StarSetter         // nil disables remote star sync
	Volume    float64            // initial volume; zero or out of range means full
	History   int                // undo/redo depth, defaultHistorySize if zero
}

// Engine is the playback engine. One instance owns the transport and all
// mutable player state for the process lifetime.
type Engine struct {
	mu sync.Mutex

	transport transport.Interface
	resolver  StreamURLResolver
	reporter  *scrobble.Reporter
	stars     StarSetter

	queue   *queue.Queue
	history *queue.History

	status   Status
	current  *queue.Track
	detached bool // current was removed from the queue, still rendering
	position time.Duration
	duration time.Duration
	volume   float64
	repeat   queue.RepeatMode

	// generation stamps each load intent; a resolution result is applied
	// only while its token still matches (latest intent wins).
	generation uint64

	// buffering records that Loading was entered from a transport stall,
	// together with the status to return to once data is available.
	buffering    bool
	resumeStatus Status

	subs   []*Subscription
	subsMu sync.RWMutex

	done   chan struct{}
	closed bool
}

// New creates an engine and starts consuming transport events.
func New(opts Options) *Engine {
	volume := opts.Volume
	if volume <= 0 || volume > 1 {
		volume = 1
	}
	historySize := opts.History
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	e := &Engine{
		transport: opts.Transport,
		resolver:  opts.Resolver,
		reporter:  opts.Reporter,
		stars:     opts.Stars,
		queue:     queue.New(),
		history:   queue.NewHistory(historySize),
		volume:    volume,
		done:      make(chan struct{}),
	}
	e.transport.SetVolume(volume)
	e.history.Push(nil, -1)
	go e.run()
	return e
}

// SetReporter swaps the scrobble reporter at runtime. A nil reporter
// disables play reporting. Takes effect on the next track load.
func (e *Engine) SetReporter(r *scrobble.Reporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reporter = r
}

// run dispatches transport events until the engine closes.
func (e *Engine) run() {
	events := e.transport.Events()
	for {
		select {
		case <-e.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleTransportEvent(ev)
		}
	}
}

// --- User intents ---

// PlayTrack replaces the queue with the single given track and plays it.
func (e *Engine) PlayTrack(track queue.Track) {
	e.PlayTracks([]queue.Track{track}, 0)
}

// PlayTracks replaces the queue and starts playback at startIndex.
// An empty track list is a no-op; an out-of-range startIndex plays from 0.
func (e *Engine) PlayTracks(tracks []queue.Track, startIndex int) {
	if len(tracks) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.SetTracks(tracks, startIndex)
	e.pushHistoryLocked()
	e.emitQueueLocked()
	e.loadCurrentLocked()
}

// PlayAt starts playback of the queue entry at the given index.
// Out-of-range indices are no-ops. The queue order is preserved.
func (e *Engine) PlayAt(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue.JumpTo(index) == nil {
		return
	}
	e.emitQueueLocked()
	e.loadCurrentLocked()
}

// TogglePlayPause pauses when playing, resumes when paused, and does
// nothing when no source is loaded.
func (e *Engine) TogglePlayPause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.status {
	case StatusPlaying:
		e.transport.Pause()
		e.setStatusLocked(StatusPaused)
	case StatusPaused:
		e.transport.Play()
		e.setStatusLocked(StatusPlaying)
	default:
		// Nothing loaded yet
	}
}

// PlayNext advances to the next track per repeat mode. At queue
// exhaustion playback halts; the last track stays current for display.
func (e *Engine) PlayNext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playNextLocked()
}

func (e *Engine) playNextLocked() {
	if e.queue.IsEmpty() {
		if e.detached {
			e.haltLocked()
		}
		return
	}
	if e.detached {
		// The cursor already points at the successor of the removed
		// current track; play it rather than skipping past it.
		e.detached = false
		e.loadCurrentLocked()
		return
	}
	if e.queue.CurrentIndex() < 0 {
		// Tracks were added without ever starting playback; begin at
		// the head instead of treating the queue as exhausted.
		e.queue.JumpTo(0)
		e.loadCurrentLocked()
		return
	}
	index, ok := e.queue.NextIndex(e.repeat)
	if !ok {
		e.haltLocked()
		return
	}
	e.queue.JumpTo(index)
	e.loadCurrentLocked()
}

// haltLocked stops the transport at queue exhaustion. The current track
// is kept for display; invalidating the generation discards any load
// still in flight.
func (e *Engine) haltLocked() {
	e.generation++
	e.transport.Stop()
	e.position = 0
	e.buffering = false
	e.setStatusLocked(StatusEnded)
}

// PlayPrevious restarts the current track when more than a few seconds
// in, otherwise steps back one queue entry. Never wraps to the tail.
func (e *Engine) PlayPrevious() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue.IsEmpty() {
		return
	}
	index, restart := e.queue.Previous(e.position)
	if restart {
		e.transport.SeekTo(0)
		e.position = 0
		e.emitPositionLocked(0)
		return
	}
	if index == e.queue.CurrentIndex() && e.status.IsActive() && !e.detached {
		// Already at the head: restart from the top instead of reloading.
		e.transport.SeekTo(0)
		e.position = 0
		e.emitPositionLocked(0)
		return
	}
	e.detached = false
	e.queue.JumpTo(index)
	e.loadCurrentLocked()
}

// Seek moves the playback position, clamped to [0, duration].
// No-op when no source is loaded. Does not change the status.
func (e *Engine) Seek(position time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.status.IsActive() {
		return
	}
	if position < 0 {
		position = 0
	}
	if e.duration > 0 && position > e.duration {
		position = e.duration
	}
	e.transport.SeekTo(position)
	e.position = position
	e.emitPositionLocked(position)
}

// SetVolume sets the volume, clamped to [0, 1]. Independent of status.
func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	e.volume = volume
	e.transport.SetVolume(volume)
}

// Volume returns the current volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// ToggleShuffle flips shuffle. Turning it on permutes the queue with the
// current track anchored first; turning it off restores insertion order.
// Playback continuity is never interrupted.
func (e *Engine) ToggleShuffle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	enabled := e.queue.ToggleShuffle()
	e.emitQueueLocked()
	e.emitModeLocked()
	return enabled
}

// CycleRepeat cycles Off -> All -> One -> Off.
func (e *Engine) CycleRepeat() queue.RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeat = e.repeat.Cycle()
	e.emitModeLocked()
	return e.repeat
}

// SetRepeatMode sets the repeat mode directly.
func (e *Engine) SetRepeatMode(mode queue.RepeatMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if mode == e.repeat {
		return
	}
	e.repeat = mode
	e.emitModeLocked()
}

// SetShuffle sets shuffle directly.
func (e *Engine) SetShuffle(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if enabled == e.queue.Shuffle() {
		return
	}
	e.queue.SetShuffle(enabled)
	e.emitQueueLocked()
	e.emitModeLocked()
}

// AddToQueue appends tracks to the tail without touching playback.
func (e *Engine) AddToQueue(tracks ...queue.Track) {
	if len(tracks) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.Add(tracks...)
	e.pushHistoryLocked()
	e.emitQueueLocked()
}

// RemoveFromQueue removes one queue entry. Removing the currently
// playing entry does not stop playback: the track keeps rendering,
// detached from the queue until the next explicit track change.
func (e *Engine) RemoveFromQueue(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed, wasCurrent := e.queue.RemoveAt(index)
	if !removed {
		return
	}
	if wasCurrent {
		e.detached = true
	}
	e.pushHistoryLocked()
	e.emitQueueLocked()
}

// ClearQueue stops the transport, resets the player to defaults, and
// returns a snapshot enabling undo. Returns nil if the queue was already
// empty (nothing to undo).
func (e *Engine) ClearQueue() *queue.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := e.queue.Clear()
	if snap == nil {
		return nil
	}
	e.generation++
	e.transport.Stop()
	e.current = nil
	e.detached = false
	e.position = 0
	e.duration = 0
	e.buffering = false
	e.pushHistoryLocked()
	e.setStatusLocked(StatusIdle)
	e.emitQueueLocked()
	return snap
}

// RestoreQueue reinstates queue contents and cursor from a snapshot
// without resuming playback: this is a queue restore, not a playback
// restore, so no transport source is reattached.
func (e *Engine) RestoreQueue(snap *queue.Snapshot) {
	if snap == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restoreLocked(snap)
	e.pushHistoryLocked()
}

func (e *Engine) restoreLocked(snap *queue.Snapshot) {
	e.queue.Restore(snap)
	if e.current == nil {
		e.current = e.queue.Current()
	} else if cur := e.queue.Current(); cur == nil || cur.ID != e.current.ID {
		e.detached = true
	}
	e.emitQueueLocked()
}

// Undo reverts the queue to its previous recorded state, load-not-play.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.history.Undo()
	if !ok {
		return false
	}
	e.restoreLocked(snap)
	return true
}

// Redo re-applies an undone queue state, load-not-play.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap, ok := e.history.Redo()
	if !ok {
		return false
	}
	e.restoreLocked(snap)
	return true
}

// SetStarred toggles a track's starred flag optimistically: the local
// state changes immediately and rolls back if the catalog call fails.
func (e *Engine) SetStarred(trackID string, starred bool) <-chan struct{} {
	apply := func(value bool) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.setStarredLocked(trackID, value)
		e.emitQueueLocked()
	}
	return optimistic.Do(optimistic.Mutation{
		Op:    "set starred",
		Apply: func() { apply(starred) },
		Attempt: func(ctx context.Context) error {
			if e.stars == nil {
				return nil
			}
			return e.stars.SetStarred(ctx, trackID, starred)
		},
		Rollback: func() { apply(!starred) },
	})
}

func (e *Engine) setStarredLocked(trackID string, starred bool) {
	for i, t := range e.queue.Tracks() {
		if t.ID == trackID {
			t.Starred = starred
			e.queue.ReplaceAt(i, t)
		}
	}
	if e.current != nil && e.current.ID == trackID {
		e.current.Starred = starred
	}
}

// --- Loading ---

// loadCurrentLocked starts loading the track under the queue cursor.
// Each call stamps a new generation; a resolution completing for an
// older generation is silently discarded.
func (e *Engine) loadCurrentLocked() {
	track := e.queue.Current()
	if track == nil {
		return
	}
	e.detached = false
	e.generation++
	generation := e.generation

	prev := e.current
	prevIndex := -1
	if prev != nil {
		prevIndex = e.queueIndexOfLocked(prev.ID)
	}
	e.current = track
	e.position = 0
	e.duration = track.Duration
	e.buffering = false
	e.setStatusLocked(StatusLoading)
	if prev == nil || prev.ID != track.ID {
		e.emitTrackLocked(TrackChange{
			Previous:      prev,
			Current:       track,
			PreviousIndex: prevIndex,
			Index:         e.queue.CurrentIndex(),
		})
	}
	if e.reporter != nil {
		e.reporter.TrackLoaded(*track)
	}

	go e.resolveAndPlay(*track, generation)
}

// resolveAndPlay performs the suspending URL resolution off the lock and
// applies the result only if the intent is still current.
func (e *Engine) resolveAndPlay(track queue.Track, generation uint64) {
	url, err := e.resolver.StreamURL(context.Background(), track.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if generation != e.generation {
		log.WithField("track", track.ID).Debug("discarding stale stream resolution")
		return
	}
	if err != nil {
		e.loadFailedLocked("resolve", track.ID, err)
		return
	}
	if err := e.transport.Load(url); err != nil {
		e.loadFailedLocked("transport", track.ID, err)
		return
	}
	e.transport.Play()
}

// loadFailedLocked recovers from a resolution or load failure: back to
// Idle, error surfaced on the subscription, never thrown.
func (e *Engine) loadFailedLocked(operation, trackID string, err error) {
	log.WithField("track", trackID).WithError(err).Warnf("%s failed", operation)
	e.buffering = false
	e.setStatusLocked(StatusIdle)
	e.emitErrorLocked(ErrorEvent{Operation: operation, TrackID: trackID, Err: err})
}

// --- Transport events ---

func (e *Engine) handleTransportEvent(ev transport.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch ev := ev.(type) {
	case transport.TimeEvent:
		e.position = ev.Position
		e.reportProgressLocked()
	case transport.DurationEvent:
		e.duration = ev.Duration
	case transport.EndedEvent:
		e.playNextLocked()
	case transport.PlayingEvent:
		e.buffering = false
		e.setStatusLocked(StatusPlaying)
	case transport.PausedEvent:
		if e.status == StatusPlaying {
			e.setStatusLocked(StatusPaused)
		}
	case transport.BufferingEvent:
		if e.status == StatusPlaying || e.status == StatusPaused {
			e.buffering = true
			e.resumeStatus = e.status
			e.setStatusLocked(StatusLoading)
		}
	case transport.ReadyEvent:
		// Only clears Loading entered through buffering; a fresh load
		// stays Loading until the transport reports rendering.
		if e.status == StatusLoading && e.buffering {
			e.buffering = false
			e.setStatusLocked(e.resumeStatus)
		}
	case transport.ErrorEvent:
		e.transportErrorLocked(ev.Err)
	}
}

// transportErrorLocked recovers from a playback failure. The track stays
// selected for display and the engine never auto-advances on error:
// "ended naturally" and "failed" are different things.
func (e *Engine) transportErrorLocked(err error) {
	trackID := ""
	if e.current != nil {
		trackID = e.current.ID
	}
	log.WithField("track", trackID).WithError(err).Warn("transport error")
	e.buffering = false
	e.setStatusLocked(StatusIdle)
	e.emitErrorLocked(ErrorEvent{Operation: "transport", TrackID: trackID, Err: err})
}

// reportProgressLocked feeds the scrobble reporter on progress updates.
func (e *Engine) reportProgressLocked() {
	if e.reporter == nil || e.current == nil {
		return
	}
	duration := e.duration
	if duration <= 0 {
		duration = e.current.Duration
	}
	e.reporter.TimeUpdate(*e.current, e.position, duration)
}

// --- Queries ---

// State returns a snapshot of the player.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	var current *queue.Track
	if e.current != nil {
		t := *e.current
		current = &t
	}
	return State{
		CurrentTrack: current,
		Queue:        e.queue.Tracks(),
		QueueIndex:   e.queue.CurrentIndex(),
		Status:       e.status,
		Position:     e.position,
		Duration:     e.duration,
		Volume:       e.volume,
		Shuffle:      e.queue.Shuffle(),
		RepeatMode:   e.repeat,
	}
}

// CurrentTrack returns the current track, or nil if none.
func (e *Engine) CurrentTrack() *queue.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	t := *e.current
	return &t
}

// Status returns the current playback status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Position returns the current playback position.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// QueueTracks returns a copy of the queue.
func (e *Engine) QueueTracks() []queue.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Tracks()
}

// QueueIndex returns the queue cursor (-1 if none).
func (e *Engine) QueueIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.CurrentIndex()
}

// RepeatMode returns the current repeat mode.
func (e *Engine) RepeatMode() queue.RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeat
}

// Shuffle reports whether shuffle is enabled.
func (e *Engine) Shuffle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Shuffle()
}

func (e *Engine) queueIndexOfLocked(id string) int {
	for i, t := range e.queue.Tracks() {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// --- Subscriptions ---

// Subscribe creates a new event subscription.
func (e *Engine) Subscribe() *Subscription {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	sub := newSubscription()
	e.subs = append(e.subs, sub)
	return sub
}

// Close shuts down the engine and its subscriptions.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.generation++
	close(e.done)
	e.mu.Unlock()

	e.subsMu.Lock()
	for _, sub := range e.subs {
		sub.close()
	}
	e.subs = nil
	e.subsMu.Unlock()

	return e.transport.Close()
}

// --- Emission helpers (all called with e.mu held) ---

func (e *Engine) setStatusLocked(status Status) {
	if status == e.status {
		return
	}
	prev := e.status
	e.status = status
	e.forEachSub(func(s *Subscription) {
		s.sendStatus(StatusChange{Previous: prev, Current: status})
	})
}

func (e *Engine) emitTrackLocked(change TrackChange) {
	e.forEachSub(func(s *Subscription) { s.sendTrack(change) })
}

func (e *Engine) emitQueueLocked() {
	change := QueueChange{Tracks: e.queue.Tracks(), Index: e.queue.CurrentIndex()}
	e.forEachSub(func(s *Subscription) { s.sendQueue(change) })
}

func (e *Engine) emitModeLocked() {
	change := ModeChange{RepeatMode: e.repeat, Shuffle: e.queue.Shuffle()}
	e.forEachSub(func(s *Subscription) { s.sendMode(change) })
}

func (e *Engine) emitPositionLocked(pos time.Duration) {
	e.forEachSub(func(s *Subscription) { s.sendPosition(pos) })
}

func (e *Engine) emitErrorLocked(ev ErrorEvent) {
	e.forEachSub(func(s *Subscription) { s.sendError(ev) })
}

func (e *Engine) forEachSub(fn func(*Subscription)) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		fn(sub)
	}
}

func (e *Engine) pushHistoryLocked() {
	e.history.Push(e.queue.Tracks(), e.queue.CurrentIndex())
}
