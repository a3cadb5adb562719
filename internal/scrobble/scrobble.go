// Package scrobble reports listening activity to an external collaborator:
// a non-counting "now playing" notice when a track loads, and a single
// counting submission once the track has been heard past the threshold.
// Delivery is best-effort; failures never reach playback.
package scrobble

import (
	"context"
	"sync"
	"time"

	"github.com/llehouerou/sonique/internal/queue"
	"github.com/llehouerou/sonique/internal/task"
)

// PlayEventReporter is the remote side. submission distinguishes the
// counting scrobble from the now-playing notice.
type PlayEventReporter interface {
	ReportPlay(ctx context.Context, track queue.Track, submission bool) error
}

// ReporterFunc adapts a function to the PlayEventReporter interface.
type ReporterFunc func(ctx context.Context, track queue.Track, submission bool) error

func (f ReporterFunc) ReportPlay(ctx context.Context, track queue.Track, submission bool) error {
	return f(ctx, track, submission)
}

// submission threshold: half the track, capped at four minutes.
const maxThreshold = 4 * time.Minute

// Reporter tracks per-track dedup state and fires play events.
type Reporter struct {
	mu     sync.Mutex
	remote PlayEventReporter

	nowPlayingFor string // last track id reported as now playing
	scrobbledFor  string // track id whose submission already fired
}

// New creates a reporter. A nil remote disables reporting entirely.
func New(remote PlayEventReporter) *Reporter {
	return &Reporter{remote: remote}
}

// TrackLoaded records that a new track load was requested. The scrobbled
// flag resets when the target differs from the previous one, and a
// now-playing notice fires unless this exact track id was the immediately
// preceding report. The returned channel closes when the notice settled;
// it is nil when nothing was sent.
func (r *Reporter) TrackLoaded(track queue.Track) <-chan struct{} {
	if r == nil || r.remote == nil || track.ID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if track.ID != r.scrobbledFor {
		r.scrobbledFor = ""
	}
	if track.ID == r.nowPlayingFor {
		return nil
	}
	r.nowPlayingFor = track.ID

	return task.Go("now playing report", func(ctx context.Context) error {
		return r.remote.ReportPlay(ctx, track, false)
	})
}

// TimeUpdate evaluates the submission threshold for a progress report.
// Once position reaches min(4min, duration/2) the submission fires exactly
// once for this track until a different track loads. The returned channel
// closes when the submission settled; it is nil when nothing was sent.
func (r *Reporter) TimeUpdate(track queue.Track, position, duration time.Duration) <-chan struct{} {
	if r == nil || r.remote == nil || track.ID == "" || duration <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if track.ID == r.scrobbledFor {
		return nil
	}

	threshold := duration / 2
	if threshold > maxThreshold {
		threshold = maxThreshold
	}
	if position < threshold {
		return nil
	}

	r.scrobbledFor = track.ID
	return task.Go("scrobble submission", func(ctx context.Context) error {
		return r.remote.ReportPlay(ctx, track, true)
	})
}

// Reset clears all dedup state, e.g. when playback stops entirely.
func (r *Reporter) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowPlayingFor = ""
	r.scrobbledFor = ""
}
