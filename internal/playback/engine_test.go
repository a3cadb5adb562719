package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/llehouerou/sonique/internal/queue"
	"github.com/llehouerou/sonique/internal/scrobble"
	"github.com/llehouerou/sonique/internal/transport"
)

func testTracks() []queue.Track {
	return []queue.Track{
		{ID: "t1", Title: "One", Duration: 180 * time.Second},
		{ID: "t2", Title: "Two", Duration: 200 * time.Second},
		{ID: "t3", Title: "Three", Duration: 220 * time.Second},
	}
}

func passthroughResolver() ResolverFunc {
	return func(_ context.Context, trackID string) (string, error) {
		return "stream://" + trackID, nil
	}
}

func newTestEngine(t *testing.T, resolver StreamURLResolver) (*Engine, *transport.Mock) {
	t.Helper()
	mock := transport.NewMock()
	if resolver == nil {
		resolver = passthroughResolver()
	}
	e := New(Options{Transport: mock, Resolver: resolver})
	t.Cleanup(func() { e.Close() })
	return e, mock
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func waitPlaying(t *testing.T, e *Engine, source string, mock *transport.Mock) {
	t.Helper()
	waitFor(t, func() bool {
		return e.Status() == StatusPlaying && mock.Source() == source
	}, "timed out waiting for "+source+" to play")
}

func TestEngine_InitialState(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	state := e.State()

	if state.CurrentTrack != nil {
		t.Error("CurrentTrack should be nil initially")
	}
	if state.QueueIndex != -1 {
		t.Errorf("QueueIndex = %d, want -1", state.QueueIndex)
	}
	if state.Status != StatusIdle {
		t.Errorf("Status = %v, want Idle", state.Status)
	}
	if state.Volume != 1 {
		t.Errorf("Volume = %v, want 1", state.Volume)
	}
}

func TestEngine_PlayTracks(t *testing.T) {
	e, mock := newTestEngine(t, nil)

	e.PlayTracks(testTracks(), 0)

	waitPlaying(t, e, "stream://t1", mock)
	state := e.State()
	if state.CurrentTrack == nil || state.CurrentTrack.ID != "t1" {
		t.Errorf("CurrentTrack = %v, want t1", state.CurrentTrack)
	}
	if state.QueueIndex != 0 {
		t.Errorf("QueueIndex = %d, want 0", state.QueueIndex)
	}
}

func TestEngine_PlayTracks_Empty(t *testing.T) {
	e, mock := newTestEngine(t, nil)

	e.PlayTracks(nil, 0)

	if e.Status() != StatusIdle {
		t.Errorf("Status = %v, want Idle (empty list is a no-op)", e.Status())
	}
	if len(mock.LoadCalls()) != 0 {
		t.Error("no load should happen for an empty track list")
	}
}

func TestEngine_PlayTrack_SingletonQueue(t *testing.T) {
	e, mock := newTestEngine(t, nil)

	e.PlayTrack(queue.Track{ID: "solo"})

	waitPlaying(t, e, "stream://solo", mock)
	if n := len(e.QueueTracks()); n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}

func TestEngine_TogglePlayPause(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	e.TogglePlayPause()
	if e.Status() != StatusPaused {
		t.Errorf("Status = %v, want Paused", e.Status())
	}

	e.TogglePlayPause()
	if e.Status() != StatusPlaying {
		t.Errorf("Status = %v, want Playing", e.Status())
	}
}

func TestEngine_TogglePlayPause_NothingLoaded(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	e.TogglePlayPause()
	e.TogglePlayPause()

	if e.Status() != StatusIdle {
		t.Errorf("Status = %v, want Idle (no source loaded)", e.Status())
	}
}

// Queue [t1,t2,t3], repeat off: three natural completions walk to the
// tail and halt with the cursor still on the last track.
func TestEngine_NaturalCompletion_WalksQueueAndHalts(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	mock.Emit(transport.EndedEvent{})
	waitPlaying(t, e, "stream://t2", mock)
	if e.QueueIndex() != 1 {
		t.Errorf("QueueIndex = %d, want 1", e.QueueIndex())
	}

	mock.Emit(transport.EndedEvent{})
	waitPlaying(t, e, "stream://t3", mock)
	if e.QueueIndex() != 2 {
		t.Errorf("QueueIndex = %d, want 2", e.QueueIndex())
	}

	mock.Emit(transport.EndedEvent{})
	waitFor(t, func() bool { return e.Status() == StatusEnded }, "expected halt after last track")
	state := e.State()
	if state.QueueIndex != 2 {
		t.Errorf("QueueIndex = %d, want 2 (unchanged at exhaustion)", state.QueueIndex)
	}
	if state.CurrentTrack == nil || state.CurrentTrack.ID != "t3" {
		t.Errorf("CurrentTrack = %v, want t3 (kept for display)", state.CurrentTrack)
	}
}

func TestEngine_PlayNext_RepeatAll_WrapsToHead(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.SetRepeatMode(queue.RepeatAll)
	e.PlayTracks(testTracks(), 2)
	waitPlaying(t, e, "stream://t3", mock)

	e.PlayNext()

	waitPlaying(t, e, "stream://t1", mock)
	if e.QueueIndex() != 0 {
		t.Errorf("QueueIndex = %d, want 0", e.QueueIndex())
	}
}

func TestEngine_PlayNext_RepeatOne_Replays(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.SetRepeatMode(queue.RepeatOne)
	e.PlayTracks(testTracks(), 1)
	waitPlaying(t, e, "stream://t2", mock)
	loads := len(mock.LoadCalls())

	mock.Emit(transport.EndedEvent{})

	waitFor(t, func() bool { return len(mock.LoadCalls()) == loads+1 }, "expected a reload")
	if e.QueueIndex() != 1 {
		t.Errorf("QueueIndex = %d, want 1 (unchanged)", e.QueueIndex())
	}
	if calls := mock.LoadCalls(); calls[len(calls)-1] != "stream://t2" {
		t.Errorf("reloaded %q, want stream://t2", calls[len(calls)-1])
	}
}

func TestEngine_PlayPrevious_RestartsPastThreshold(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 2)
	waitPlaying(t, e, "stream://t3", mock)
	mock.Emit(transport.TimeEvent{Position: 5 * time.Second})
	waitFor(t, func() bool { return e.Position() == 5*time.Second }, "position not updated")

	e.PlayPrevious()

	if e.QueueIndex() != 2 {
		t.Errorf("QueueIndex = %d, want 2 (restart, not step back)", e.QueueIndex())
	}
	if e.Position() != 0 {
		t.Errorf("Position = %v, want 0", e.Position())
	}
	if calls := mock.SeekCalls(); len(calls) == 0 || calls[len(calls)-1] != 0 {
		t.Error("expected a seek to 0")
	}
}

func TestEngine_PlayPrevious_StepsBackEarly(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 2)
	waitPlaying(t, e, "stream://t3", mock)
	mock.Emit(transport.TimeEvent{Position: 1 * time.Second})
	waitFor(t, func() bool { return e.Position() == 1*time.Second }, "position not updated")

	e.PlayPrevious()

	waitPlaying(t, e, "stream://t2", mock)
	if e.QueueIndex() != 1 {
		t.Errorf("QueueIndex = %d, want 1", e.QueueIndex())
	}
}

func TestEngine_PlayPrevious_NeverWrapsAtHead(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.SetRepeatMode(queue.RepeatAll)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	e.PlayPrevious()

	if e.QueueIndex() != 0 {
		t.Errorf("QueueIndex = %d, want 0 (previous never wraps)", e.QueueIndex())
	}
}

func TestEngine_Seek_Clamps(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)
	mock.Emit(transport.DurationEvent{Duration: 100 * time.Second})
	waitFor(t, func() bool { return e.State().Duration == 100*time.Second }, "duration not updated")

	e.Seek(500 * time.Second)
	if e.Position() != 100*time.Second {
		t.Errorf("Position = %v, want 100s (clamped to duration)", e.Position())
	}

	e.Seek(-5 * time.Second)
	if e.Position() != 0 {
		t.Errorf("Position = %v, want 0 (clamped low)", e.Position())
	}

	if e.Status() != StatusPlaying {
		t.Errorf("Status = %v, want Playing (seek does not change status)", e.Status())
	}
}

func TestEngine_Seek_NoSource(t *testing.T) {
	e, mock := newTestEngine(t, nil)

	e.Seek(10 * time.Second)

	if len(mock.SeekCalls()) != 0 {
		t.Error("seek with no source loaded should be a no-op")
	}
}

func TestEngine_SetVolume_Clamps(t *testing.T) {
	e, mock := newTestEngine(t, nil)

	e.SetVolume(1.7)
	if e.Volume() != 1 {
		t.Errorf("Volume() = %v, want 1", e.Volume())
	}

	e.SetVolume(-0.3)
	if e.Volume() != 0 {
		t.Errorf("Volume() = %v, want 0", e.Volume())
	}

	e.SetVolume(0.42)
	if mock.Volume() != 0.42 {
		t.Errorf("transport volume = %v, want 0.42", mock.Volume())
	}
}

func TestEngine_CycleRepeat(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	modes := []queue.RepeatMode{queue.RepeatAll, queue.RepeatOne, queue.RepeatOff}
	for _, want := range modes {
		if got := e.CycleRepeat(); got != want {
			t.Errorf("CycleRepeat() = %v, want %v", got, want)
		}
	}
}

func TestEngine_ToggleShuffle_RoundTripPreservesOrder(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	tracks := testTracks()
	e.PlayTracks(tracks, 1)
	waitPlaying(t, e, "stream://t2", mock)
	loads := len(mock.LoadCalls())

	e.ToggleShuffle()
	if cur := e.CurrentTrack(); cur == nil || cur.ID != "t2" {
		t.Errorf("CurrentTrack = %v, want t2 (identity preserved)", cur)
	}
	e.ToggleShuffle()

	got := e.QueueTracks()
	for i := range tracks {
		if got[i].ID != tracks[i].ID {
			t.Fatalf("queue[%d] = %q, want %q", i, got[i].ID, tracks[i].ID)
		}
	}
	if e.QueueIndex() != 1 {
		t.Errorf("QueueIndex = %d, want 1", e.QueueIndex())
	}
	if len(mock.LoadCalls()) != loads {
		t.Error("shuffle toggles must not reload the transport")
	}
}

func TestEngine_ClearQueue_RoundTrip(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 1)
	waitPlaying(t, e, "stream://t2", mock)

	snap := e.ClearQueue()

	if snap == nil {
		t.Fatal("ClearQueue() returned nil for a non-empty queue")
	}
	state := e.State()
	if state.Status != StatusIdle {
		t.Errorf("Status = %v, want Idle", state.Status)
	}
	if state.CurrentTrack != nil || state.QueueIndex != -1 {
		t.Errorf("state = (%v, %d), want (nil, -1)", state.CurrentTrack, state.QueueIndex)
	}
	if mock.StopCalls() == 0 {
		t.Error("transport should be stopped on clear")
	}

	e.RestoreQueue(snap)

	state = e.State()
	if len(state.Queue) != 3 || state.QueueIndex != 1 {
		t.Errorf("restored = (%d tracks, index %d), want (3, 1)", len(state.Queue), state.QueueIndex)
	}
	if state.Status != StatusIdle {
		t.Errorf("Status = %v, want Idle (load-not-play)", state.Status)
	}
	if state.CurrentTrack == nil || state.CurrentTrack.ID != "t2" {
		t.Errorf("CurrentTrack = %v, want t2 for display", state.CurrentTrack)
	}
}

func TestEngine_ClearQueue_EmptyReturnsNil(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	if snap := e.ClearQueue(); snap != nil {
		t.Errorf("ClearQueue() = %v, want nil", snap)
	}
}

func TestEngine_RemoveFromQueue_CurrentKeepsPlaying(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 1)
	waitPlaying(t, e, "stream://t2", mock)

	e.RemoveFromQueue(1)

	if e.Status() != StatusPlaying {
		t.Errorf("Status = %v, want Playing (removal must not stop playback)", e.Status())
	}
	if cur := e.CurrentTrack(); cur == nil || cur.ID != "t2" {
		t.Errorf("CurrentTrack = %v, want t2 (detached but still rendering)", cur)
	}
	if n := len(e.QueueTracks()); n != 2 {
		t.Errorf("queue length = %d, want 2", n)
	}

	// The next explicit change plays the successor, not the one after it.
	e.PlayNext()
	waitPlaying(t, e, "stream://t3", mock)
}

func TestEngine_RemoveFromQueue_OutOfRange(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	e.RemoveFromQueue(9)

	if n := len(e.QueueTracks()); n != 3 {
		t.Errorf("queue length = %d, want 3 (out of range is a no-op)", n)
	}
}

// blockingResolver holds each resolution until its gate is released.
type blockingResolver struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

func newBlockingResolver() *blockingResolver {
	return &blockingResolver{gates: make(map[string]chan struct{})}
}

func (r *blockingResolver) gate(trackID string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[trackID]
	if !ok {
		g = make(chan struct{})
		r.gates[trackID] = g
	}
	return g
}

func (r *blockingResolver) StreamURL(_ context.Context, trackID string) (string, error) {
	<-r.gate(trackID)
	return "stream://" + trackID, nil
}

// A slow stale resolution must not overwrite state set by a newer,
// faster request: latest intent wins.
func TestEngine_StaleResolution_IsDiscarded(t *testing.T) {
	resolver := newBlockingResolver()
	e, mock := newTestEngine(t, resolver)

	e.PlayTrack(queue.Track{ID: "a"})
	e.PlayTrack(queue.Track{ID: "b"})

	close(resolver.gate("b"))
	waitPlaying(t, e, "stream://b", mock)

	close(resolver.gate("a"))
	time.Sleep(50 * time.Millisecond)

	if src := mock.Source(); src != "stream://b" {
		t.Errorf("source = %q, want stream://b (stale result discarded)", src)
	}
	if cur := e.CurrentTrack(); cur == nil || cur.ID != "b" {
		t.Errorf("CurrentTrack = %v, want b", cur)
	}
	for _, url := range mock.LoadCalls() {
		if url == "stream://a" {
			t.Error("stale resolution must never reach the transport")
		}
	}
}

func TestEngine_ResolveFailure_ReturnsToIdle(t *testing.T) {
	e, _ := newTestEngine(t, ResolverFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("not reachable")
	}))
	sub := e.Subscribe()

	e.PlayTrack(queue.Track{ID: "t1"})

	waitFor(t, func() bool { return e.Status() == StatusIdle }, "expected Idle after resolve failure")

	select {
	case ev := <-sub.Error:
		if ev.Operation != "resolve" || ev.TrackID != "t1" {
			t.Errorf("error event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an error event")
	}
}

func TestEngine_TransportError_NoAutoAdvance(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)
	loads := len(mock.LoadCalls())

	mock.Emit(transport.ErrorEvent{Err: errors.New("decode failed")})

	waitFor(t, func() bool { return e.Status() == StatusIdle }, "expected Idle after transport error")
	if cur := e.CurrentTrack(); cur == nil || cur.ID != "t1" {
		t.Errorf("CurrentTrack = %v, want t1 (stays selected for display)", cur)
	}
	time.Sleep(20 * time.Millisecond)
	if len(mock.LoadCalls()) != loads {
		t.Error("errors must not auto-advance to the next track")
	}
}

func TestEngine_Buffering_RoundTrip(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	mock.Emit(transport.BufferingEvent{})
	waitFor(t, func() bool { return e.Status() == StatusLoading }, "expected Loading while buffering")

	mock.Emit(transport.ReadyEvent{})
	waitFor(t, func() bool { return e.Status() == StatusPlaying }, "expected Playing after buffer refill")
}

func TestEngine_Ready_DoesNotClearFreshLoad(t *testing.T) {
	resolver := newBlockingResolver()
	e, mock := newTestEngine(t, resolver)

	e.PlayTrack(queue.Track{ID: "a"})
	if e.Status() != StatusLoading {
		t.Fatalf("Status = %v, want Loading", e.Status())
	}

	mock.Emit(transport.ReadyEvent{})
	time.Sleep(20 * time.Millisecond)

	if e.Status() != StatusLoading {
		t.Errorf("Status = %v, want Loading (ready only clears buffering)", e.Status())
	}
	close(resolver.gate("a"))
	waitPlaying(t, e, "stream://a", mock)
}

func TestEngine_AddToQueue_KeepsPlayback(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	e.AddToQueue(queue.Track{ID: "t4"})

	if n := len(e.QueueTracks()); n != 4 {
		t.Errorf("queue length = %d, want 4", n)
	}
	if e.QueueIndex() != 0 {
		t.Errorf("QueueIndex = %d, want 0 (unchanged)", e.QueueIndex())
	}
}

func TestEngine_UndoRedo(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	e.AddToQueue(queue.Track{ID: "t4"})
	if !e.Undo() {
		t.Fatal("Undo() should succeed")
	}
	if n := len(e.QueueTracks()); n != 3 {
		t.Errorf("queue length after undo = %d, want 3", n)
	}
	if !e.Redo() {
		t.Fatal("Redo() should succeed")
	}
	if n := len(e.QueueTracks()); n != 4 {
		t.Errorf("queue length after redo = %d, want 4", n)
	}
}

func TestEngine_Invariant_CurrentAndIndexCoupled(t *testing.T) {
	e, mock := newTestEngine(t, nil)

	check := func(context string) {
		t.Helper()
		state := e.State()
		hasTrack := state.CurrentTrack != nil
		hasIndex := state.QueueIndex != -1
		if hasTrack != hasIndex {
			t.Errorf("%s: CurrentTrack set = %v but QueueIndex = %d", context, hasTrack, state.QueueIndex)
		}
		if state.Volume < 0 || state.Volume > 1 {
			t.Errorf("%s: Volume = %v outside [0,1]", context, state.Volume)
		}
	}

	check("initial")
	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)
	check("playing")
	e.ClearQueue()
	check("cleared")
}

func TestEngine_StatusEvents_Delivered(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	sub := e.Subscribe()

	e.PlayTracks(testTracks(), 0)
	waitPlaying(t, e, "stream://t1", mock)

	// First transition out of Idle is to Loading.
	select {
	case ev := <-sub.StatusChanged:
		if ev.Previous != StatusIdle || ev.Current != StatusLoading {
			t.Errorf("first status change = %+v, want Idle->Loading", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a status change event")
	}

	select {
	case ev := <-sub.TrackChanged:
		if ev.Current == nil || ev.Current.ID != "t1" {
			t.Errorf("track change = %+v, want t1", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a track change event")
	}
}

func TestEngine_Close_Idempotent(t *testing.T) {
	mock := transport.NewMock()
	e := New(Options{Transport: mock, Resolver: passthroughResolver()})

	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestEngine_PlayNext_FreshQueueStartsAtHead(t *testing.T) {
	e, mock := newTestEngine(t, nil)
	e.AddToQueue(testTracks()...)

	e.PlayNext()

	waitPlaying(t, e, "stream://t1", mock)
	if idx := e.QueueIndex(); idx != 0 {
		t.Errorf("QueueIndex = %d, want 0", idx)
	}
}

func TestEngine_SetReporter_EnablesReporting(t *testing.T) {
	e, mock := newTestEngine(t, nil)

	var mu sync.Mutex
	var reported []string
	recorder := scrobble.ReporterFunc(func(_ context.Context, track queue.Track, submission bool) error {
		mu.Lock()
		defer mu.Unlock()
		if !submission {
			reported = append(reported, track.ID)
		}
		return nil
	})
	e.SetReporter(scrobble.New(recorder))

	e.PlayTrack(testTracks()[0])
	waitPlaying(t, e, "stream://t1", mock)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) > 0 && reported[0] == "t1"
	}, "now-playing report never reached the reporter")

	// A nil reporter turns reporting back off.
	e.SetReporter(nil)
	e.PlayNext()
}
