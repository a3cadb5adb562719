package main

import (
	"context"
	"testing"
	"time"

	"github.com/llehouerou/sonique/internal/config"
	"github.com/llehouerou/sonique/internal/playback"
	"github.com/llehouerou/sonique/internal/queue"
	"github.com/llehouerou/sonique/internal/state"
	"github.com/llehouerou/sonique/internal/transport"
)

func TestBuildReporter_NoKeysConfigured(t *testing.T) {
	store := state.NewMock()

	if r := buildReporter(&config.Config{}, store); r != nil {
		t.Error("expected nil reporter without Last.fm keys")
	}
}

func TestBuildReporter_NoLinkedSession(t *testing.T) {
	cfg := &config.Config{}
	cfg.Lastfm.APIKey = "key"
	cfg.Lastfm.APISecret = "secret"
	store := state.NewMock()

	if r := buildReporter(cfg, store); r != nil {
		t.Error("expected nil reporter when no session is linked")
	}
}

func TestBuildReporter_LinkedSession(t *testing.T) {
	cfg := &config.Config{}
	cfg.Lastfm.APIKey = "key"
	cfg.Lastfm.APISecret = "secret"
	store := state.NewMock()
	if err := store.SaveLastfmSession("someone", "sk-123"); err != nil {
		t.Fatal(err)
	}

	if r := buildReporter(cfg, store); r == nil {
		t.Error("expected a reporter for a linked session")
	}
}

func TestPersistLoop_SavesOnQueueChange(t *testing.T) {
	mock := transport.NewMock()
	engine := playback.New(playback.Options{
		Transport: mock,
		Resolver: playback.ResolverFunc(func(_ context.Context, id string) (string, error) {
			return "stream://" + id, nil
		}),
	})
	defer engine.Close()

	store := state.NewMock()
	go persistLoop(engine, store)

	engine.PlayTracks([]queue.Track{
		{ID: "t1", Title: "One"},
		{ID: "t2", Title: "Two"},
	}, 1)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if saved := store.SavedPlayer(); saved != nil && len(saved.Tracks) == 2 {
			if saved.CurrentIndex != 1 {
				t.Errorf("saved CurrentIndex = %d, want 1", saved.CurrentIndex)
			}
			if saved.Tracks[0].ID != "t1" || saved.Tracks[1].ID != "t2" {
				t.Errorf("saved queue = %v", saved.Tracks)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("queue change was never persisted")
		}
		time.Sleep(time.Millisecond)
	}
}
