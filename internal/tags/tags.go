// Package tags reads embedded metadata from local audio files.
package tags

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/llehouerou/sonique/internal/queue"
)

// ReadTrack builds a queue entry for a local file. The title falls
// back to the filename when the file has no readable tag; duration
// is left zero since it only becomes known once the file is decoded.
func ReadTrack(path string) queue.Track {
	t := queue.Track{
		ID:    path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	f, err := os.Open(path)
	if err != nil {
		return t
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return t
	}
	if title := strings.TrimSpace(m.Title()); title != "" {
		t.Title = title
	}
	t.Artist = strings.TrimSpace(m.Artist())
	t.Album = strings.TrimSpace(m.Album())
	return t
}
