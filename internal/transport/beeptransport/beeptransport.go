// Package beeptransport renders audio through the beep speaker. Stream
// URLs are spooled to a temporary file so the decoders can seek.
package beeptransport

import (
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/llehouerou/sonique/internal/transport"
)

const (
	eventBufferSize = 64
	tickInterval    = 500 * time.Millisecond
)

var (
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

type Transport struct {
	client *http.Client

	events chan transport.Event
	done   chan struct{}

	// mu guards the stream fields below against the tick goroutine.
	// Where beep requires its own lock, t.mu is always taken first.
	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	spool       *os.File
	spoolIsTemp bool
	volumeLevel float64

	closed bool

	// session invalidates finish callbacks from a cleared stream.
	// Atomic because the finish callback runs under the speaker lock,
	// where taking t.mu would invert the lock order against tickLoop.
	session atomic.Uint64
}

func New() *Transport {
	t := &Transport{
		client:      &http.Client{Timeout: 5 * time.Minute},
		events:      make(chan transport.Event, eventBufferSize),
		done:        make(chan struct{}),
		volumeLevel: 1,
	}
	go t.tickLoop()
	return t
}

// Load fetches the stream, decodes it, and attaches it to the speaker
// paused. Play starts rendering.
func (t *Transport) Load(url string) error {
	t.Stop()

	spool, kind, isTemp, err := t.fetch(url)
	if err != nil {
		return err
	}
	cleanup := func() {
		spool.Close()
		if isTemp {
			os.Remove(spool.Name())
		}
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch kind {
	case "mp3":
		streamer, format, err = mp3.Decode(spool)
	case "flac":
		if err := skipID3v2(spool); err != nil {
			cleanup()
			return err
		}
		streamer, format, err = flac.Decode(spool)
	default:
		cleanup()
		return fmt.Errorf("unsupported stream format: %s", kind)
	}
	if err != nil {
		cleanup()
		return err
	}

	if !speakerInitialized {
		speakerSampleRate = format.SampleRate
		if err := speaker.Init(speakerSampleRate, speakerSampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			cleanup()
			return err
		}
		speakerInitialized = true
	}

	t.mu.Lock()
	t.spool = spool
	t.spoolIsTemp = isTemp
	t.streamer = streamer
	t.format = format

	// Resample if the track's sample rate differs from the speaker's
	var playStreamer beep.Streamer = streamer
	if format.SampleRate != speakerSampleRate {
		playStreamer = beep.Resample(4, format.SampleRate, speakerSampleRate, streamer)
	}
	t.ctrl = &beep.Ctrl{Streamer: playStreamer, Paused: true}
	t.volume = &effects.Volume{Streamer: t.ctrl, Base: 2, Volume: levelToVolume(t.volumeLevel), Silent: t.volumeLevel <= 0}

	session := t.session.Add(1)
	seq := beep.Seq(t.volume, beep.Callback(func() {
		if t.session.Load() == session {
			t.emit(transport.EndedEvent{})
		}
	}))
	t.mu.Unlock()

	t.emit(transport.DurationEvent{Duration: format.SampleRate.D(streamer.Len())})
	speaker.Play(seq)

	return nil
}

func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctrl == nil {
		return
	}
	speaker.Lock()
	t.ctrl.Paused = false
	speaker.Unlock()
	t.emit(transport.PlayingEvent{})
}

func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctrl == nil {
		return
	}
	speaker.Lock()
	t.ctrl.Paused = true
	speaker.Unlock()
	t.emit(transport.PausedEvent{})
}

func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Transport) stopLocked() {
	if t.streamer == nil {
		return
	}
	t.session.Add(1)
	speaker.Clear()

	t.streamer.Close()
	t.streamer = nil
	if t.spool != nil {
		t.spool.Close()
		if t.spoolIsTemp {
			os.Remove(t.spool.Name())
		}
		t.spool = nil
	}
	t.ctrl = nil
	t.volume = nil
}

// SeekTo moves to an absolute position. The stream is muted over the
// seek to avoid audible artifacts from stale buffer contents.
func (t *Transport) SeekTo(position time.Duration) {
	t.mu.Lock()
	if t.streamer == nil || t.volume == nil {
		t.mu.Unlock()
		return
	}
	sample := t.format.SampleRate.N(position)
	sample = max(sample, 0)
	if limit := t.streamer.Len(); sample >= limit {
		t.mu.Unlock()
		t.emit(transport.EndedEvent{})
		return
	}

	session := t.session.Load()
	speaker.Lock()
	t.volume.Silent = true
	_ = t.streamer.Seek(sample)
	speaker.Unlock()
	t.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	t.mu.Lock()
	if t.session.Load() == session && t.volume != nil {
		speaker.Lock()
		t.volume.Silent = t.volumeLevel <= 0
		speaker.Unlock()
	}
	t.mu.Unlock()
}

func (t *Transport) SetVolume(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.volumeLevel = level
	if t.volume != nil {
		speaker.Lock()
		t.volume.Volume = levelToVolume(level)
		t.volume.Silent = level <= 0
		speaker.Unlock()
	}
}

func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamer == nil {
		return 0
	}
	return t.format.SampleRate.D(t.streamer.Position())
}

func (t *Transport) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.streamer == nil {
		return 0
	}
	return t.format.SampleRate.D(t.streamer.Len())
}

func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.stopLocked()
	t.mu.Unlock()
	close(t.done)
	return nil
}

// tickLoop publishes the playback position while a stream is rendering.
func (t *Transport) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.ctrl == nil || t.streamer == nil {
				t.mu.Unlock()
				continue
			}
			speaker.Lock()
			paused := t.ctrl.Paused
			pos := t.format.SampleRate.D(t.streamer.Position())
			speaker.Unlock()
			t.mu.Unlock()
			if !paused {
				t.emit(transport.TimeEvent{Position: pos})
			}
		}
	}
}

func (t *Transport) emit(e transport.Event) {
	select {
	case t.events <- e:
	default:
		// Drop rather than block the render path
	}
}

// fetch makes the source seekable: HTTP streams spool to a temporary
// file, anything else is treated as a local path and opened in place.
// The format is detected by Content-Type first and extension second.
func (t *Transport) fetch(url string) (f *os.File, kind string, isTemp bool, err error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		f, err = os.Open(url)
		if err != nil {
			return nil, "", false, err
		}
		return f, formatFromURL(url), false, nil
	}

	resp, err := t.client.Get(url)
	if err != nil {
		return nil, "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", false, fmt.Errorf("stream fetch: unexpected status %s", resp.Status)
	}

	kind = formatFromContentType(resp.Header.Get("Content-Type"))
	if kind == "" {
		kind = formatFromURL(url)
	}

	spool, err := os.CreateTemp("", "sonique-stream-*")
	if err != nil {
		return nil, "", false, err
	}
	if _, err := io.Copy(spool, resp.Body); err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, "", false, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, "", false, err
	}
	return spool, kind, true, nil
}

func formatFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/flac", "audio/x-flac":
		return "flac"
	}
	return ""
}

func formatFromURL(url string) string {
	ext := strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0]))
	switch ext {
	case ".mp3":
		return "mp3"
	case ".flac":
		return "flac"
	}
	return ""
}

// levelToVolume converts a 0.0-1.0 level to beep's Volume value.
// beep uses a logarithmic scale with base 2: 0 means unchanged,
// -1 half volume, -2 quarter. 1.0 -> 0, 0.5 -> -1, 0 -> silent.
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}

// skipID3v2 skips an ID3v2 tag if present. Some taggers prepend ID3v2
// to FLAC files, which the FLAC decoder does not handle.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := r.Read(header)
	if err != nil {
		return err
	}
	if n < 10 || string(header[0:3]) != "ID3" {
		_, err = r.Seek(0, io.SeekStart)
		return err
	}

	// ID3v2 size is a syncsafe integer in bytes 6-9 (7 bits per byte)
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])

	_, err = r.Seek(10+size, io.SeekStart)
	return err
}

// Verify Transport implements the interface at compile time.
var _ transport.Interface = (*Transport)(nil)
