package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/llehouerou/sonique/internal/config"
	"github.com/llehouerou/sonique/internal/coverart"
	"github.com/llehouerou/sonique/internal/errmsg"
	"github.com/llehouerou/sonique/internal/playback"
	"github.com/llehouerou/sonique/internal/queue"
	"github.com/llehouerou/sonique/internal/scrobble"
	"github.com/llehouerou/sonique/internal/scrobble/lastfm"
	"github.com/llehouerou/sonique/internal/state"
	"github.com/llehouerou/sonique/internal/tags"
	"github.com/llehouerou/sonique/internal/transport/beeptransport"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpInitialize, err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	playbackCfg := cfg.GetPlaybackConfig()

	stateMgr, err := state.Open()
	if err != nil {
		return err
	}
	defer stateMgr.Close()

	saved, err := stateMgr.GetPlayer()
	if err != nil {
		log.WithError(err).Warn(errmsg.Format(errmsg.OpQueueLoad, err))
		saved = &state.PlayerState{CurrentIndex: -1, Volume: playbackCfg.Volume}
	}
	volume := saved.Volume
	if volume <= 0 || volume > 1 {
		volume = playbackCfg.Volume
	}

	reporter := buildReporter(cfg, stateMgr)

	covers := coverart.New(coverart.ProviderFunc(func(_ context.Context, id string, size int) (string, error) {
		if !cfg.HasServerConfig() {
			return "", fmt.Errorf("no server configured")
		}
		return fmt.Sprintf("%s/cover/%s?size=%d", cfg.Server.URL, url.PathEscape(id), size), nil
	}))

	engine := playback.New(playback.Options{
		Transport: beeptransport.New(),
		Resolver:  buildResolver(cfg),
		Reporter:  reporter,
		Volume:    volume,
		History:   playbackCfg.HistoryDepth,
	})
	defer engine.Close()

	engine.SetRepeatMode(saved.RepeatMode)
	if len(saved.Tracks) > 0 {
		engine.RestoreQueue(&queue.Snapshot{Tracks: saved.Tracks, Index: saved.CurrentIndex})
		engine.SetShuffle(saved.Shuffle)
	}

	go persistLoop(engine, stateMgr)

	repl(engine, covers, cfg, stateMgr, playbackCfg.CoverSize)
	return nil
}

// buildResolver maps track ids to stream URLs. With a server configured
// the id is resolved against it; otherwise ids are taken as local paths
// so the player works standalone.
func buildResolver(cfg *config.Config) playback.StreamURLResolver {
	if cfg.HasServerConfig() {
		server := cfg.Server
		return playback.ResolverFunc(func(_ context.Context, trackID string) (string, error) {
			u := fmt.Sprintf("%s/stream/%s", server.URL, url.PathEscape(trackID))
			if server.Username != "" {
				u += "?u=" + url.QueryEscape(server.Username) + "&p=" + url.QueryEscape(server.Password)
			}
			return u, nil
		})
	}
	return playback.ResolverFunc(func(_ context.Context, trackID string) (string, error) {
		if _, err := os.Stat(trackID); err != nil {
			return "", err
		}
		return trackID, nil
	})
}

// buildReporter wires Last.fm scrobbling when keys are configured and a
// session was linked. Returns nil otherwise; the engine treats a nil
// reporter as reporting disabled.
func buildReporter(cfg *config.Config, store state.Interface) *scrobble.Reporter {
	if !cfg.HasLastfmConfig() {
		return nil
	}
	client := lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)
	session, err := store.GetLastfmSession()
	if err != nil {
		log.WithError(err).Warn("could not load Last.fm session")
		return nil
	}
	if session == nil {
		log.Info("Last.fm keys configured but no linked session, scrobbling off")
		return nil
	}
	client.SetSessionKey(session.SessionKey)
	log.WithField("user", session.Username).Info("Last.fm scrobbling enabled")
	return scrobble.New(client)
}

// persistLoop saves the player state whenever the queue, modes, or
// volume change. Saves are debounced by the state manager.
func persistLoop(engine *playback.Engine, store state.Interface) {
	sub := engine.Subscribe()
	for {
		select {
		case <-sub.Done:
			return
		case _, ok := <-sub.QueueChanged:
			if !ok {
				return
			}
		case _, ok := <-sub.ModeChanged:
			if !ok {
				return
			}
		case ev, ok := <-sub.Error:
			if !ok {
				return
			}
			op := errmsg.OpPlaybackStart
			if ev.Operation == "resolve" {
				op = errmsg.OpPlaybackResolve
			}
			fmt.Println(errmsg.FormatWith(op, ev.TrackID, ev.Err))
			continue
		}
		s := engine.State()
		store.SavePlayer(state.PlayerState{
			CurrentIndex: s.QueueIndex,
			RepeatMode:   s.RepeatMode,
			Shuffle:      s.Shuffle,
			Volume:       s.Volume,
			Tracks:       s.Queue,
		})
	}
}

func repl(engine *playback.Engine, covers *coverart.Resolver, cfg *config.Config, store state.Interface, coverSize int) {
	fmt.Println("sonique — type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			printHelp()
		case "add":
			addTracks(engine, args)
		case "play":
			if len(args) == 0 {
				engine.TogglePlayPause()
				break
			}
			if i, err := strconv.Atoi(args[0]); err == nil {
				engine.PlayAt(i)
			}
		case "pause", "p":
			engine.TogglePlayPause()
		case "next", "n":
			engine.PlayNext()
		case "prev", "b":
			engine.PlayPrevious()
		case "seek":
			if len(args) == 1 {
				if secs, err := strconv.Atoi(args[0]); err == nil {
					engine.Seek(time.Duration(secs) * time.Second)
				}
			}
		case "vol":
			if len(args) == 1 {
				if pct, err := strconv.Atoi(args[0]); err == nil {
					engine.SetVolume(float64(pct) / 100)
				}
			}
		case "shuffle":
			fmt.Printf("shuffle: %v\n", engine.ToggleShuffle())
		case "repeat":
			fmt.Printf("repeat: %s\n", engine.CycleRepeat())
		case "rm":
			if len(args) == 1 {
				if i, err := strconv.Atoi(args[0]); err == nil {
					engine.RemoveFromQueue(i)
				}
			}
		case "clear":
			engine.ClearQueue()
		case "undo":
			if !engine.Undo() {
				fmt.Println("nothing to undo")
			}
		case "redo":
			if !engine.Redo() {
				fmt.Println("nothing to redo")
			}
		case "star":
			if len(args) == 1 {
				if i, err := strconv.Atoi(args[0]); err == nil {
					starAt(engine, i, true)
				}
			}
		case "unstar":
			if len(args) == 1 {
				if i, err := strconv.Atoi(args[0]); err == nil {
					starAt(engine, i, false)
				}
			}
		case "cover":
			if cur := engine.CurrentTrack(); cur != nil {
				u, err := covers.Resolve(context.Background(), cur.CoverArt, coverSize)
				if err != nil {
					fmt.Println(errmsg.Format(errmsg.OpCoverArt, err))
					break
				}
				fmt.Println(u)
			}
		case "lastfm-link":
			linkLastfm(engine, cfg, store, scanner)
		case "lastfm-unlink":
			unlinkLastfm(engine, store)
		case "queue", "ls":
			printQueue(engine)
		case "status":
			printStatus(engine)
		case "quit", "q", "exit":
			return
		default:
			fmt.Printf("unknown command %q, try 'help'\n", cmd)
		}
	}
}

// linkLastfm runs the desktop auth flow: request a token, have the
// user authorize it in a browser, then exchange it for a session that
// is persisted and attached to the engine.
func linkLastfm(engine *playback.Engine, cfg *config.Config, store state.Interface, scanner *bufio.Scanner) {
	if !cfg.HasLastfmConfig() {
		fmt.Println("set lastfm.api_key and lastfm.api_secret in config.toml first")
		return
	}
	client := lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret)

	token, err := client.GetToken()
	if err != nil {
		fmt.Println(errmsg.Format(errmsg.OpLastfmAuth, err))
		return
	}
	fmt.Println("authorize sonique in your browser:")
	fmt.Println("  " + client.GetAuthURL(token))
	fmt.Print("press Enter once done... ")
	if !scanner.Scan() {
		return
	}

	username, sessionKey, err := client.GetSession(token)
	if err != nil {
		fmt.Println(errmsg.Format(errmsg.OpLastfmAuth, err))
		return
	}
	if err := store.SaveLastfmSession(username, sessionKey); err != nil {
		fmt.Println(errmsg.Format(errmsg.OpLastfmAuth, err))
		return
	}
	engine.SetReporter(scrobble.New(client))
	fmt.Printf("linked as %s, scrobbling on\n", username)
}

func unlinkLastfm(engine *playback.Engine, store state.Interface) {
	if err := store.DeleteLastfmSession(); err != nil {
		fmt.Println(errmsg.Format(errmsg.OpLastfmAuth, err))
		return
	}
	engine.SetReporter(nil)
	fmt.Println("unlinked, scrobbling off")
}

func addTracks(engine *playback.Engine, paths []string) {
	var tracks []queue.Track
	for _, p := range paths {
		tracks = append(tracks, tags.ReadTrack(p))
	}
	if len(tracks) == 0 {
		return
	}
	if engine.CurrentTrack() == nil {
		engine.PlayTracks(tracks, 0)
		return
	}
	engine.AddToQueue(tracks...)
}

func starAt(engine *playback.Engine, index int, starred bool) {
	tracks := engine.QueueTracks()
	if index < 0 || index >= len(tracks) {
		return
	}
	engine.SetStarred(tracks[index].ID, starred)
}

func printQueue(engine *playback.Engine) {
	s := engine.State()
	for i, t := range s.Queue {
		marker := "  "
		if i == s.QueueIndex {
			marker = "> "
		}
		star := ""
		if t.Starred {
			star = " *"
		}
		fmt.Printf("%s%2d  %s%s\n", marker, i, describe(t), star)
	}
	if len(s.Queue) == 0 {
		fmt.Println("(queue empty)")
	}
}

func printStatus(engine *playback.Engine) {
	s := engine.State()
	fmt.Printf("status: %s  repeat: %s  shuffle: %v  volume: %d%%\n",
		s.Status, s.RepeatMode, s.Shuffle, int(s.Volume*100))
	if s.CurrentTrack != nil {
		fmt.Printf("track: %s  [%s / %s]\n",
			describe(*s.CurrentTrack), formatDuration(s.Position), formatDuration(s.Duration))
	}
}

func describe(t queue.Track) string {
	if t.Artist != "" {
		return t.Artist + " - " + t.Title
	}
	return t.Title
}

func formatDuration(d time.Duration) string {
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}

func printHelp() {
	fmt.Print(`commands:
  add <path|id>...   append tracks (starts playback if idle)
  play [i]           toggle play/pause, or play queue entry i
  next / prev        track navigation
  seek <seconds>     absolute seek
  vol <0-100>        set volume
  shuffle            toggle shuffle
  repeat             cycle repeat mode
  rm <i>             remove queue entry
  clear              clear the queue
  undo / redo        revert queue edits
  star/unstar <i>    toggle favorite
  lastfm-link        link a Last.fm account for scrobbling
  lastfm-unlink      unlink and stop scrobbling
  cover              cover art URL of the current track
  queue              list the queue
  status             show player state
  quit
`)
}
