package state

import (
	"database/sql"
	"errors"
	"time"

	dbutil "github.com/llehouerou/sonique/internal/db"
	"github.com/llehouerou/sonique/internal/queue"
)

// PlayerState is the persisted player snapshot: queue contents in their
// visible order plus cursor, modes and volume.
type PlayerState struct {
	CurrentIndex int
	RepeatMode   queue.RepeatMode
	Shuffle      bool
	Volume       float64
	Tracks       []queue.Track
}

func getPlayer(db *sql.DB) (*PlayerState, error) {
	var currentIndex, repeatMode int
	var shuffle bool
	var volume float64
	row := db.QueryRow(`SELECT current_index, repeat_mode, shuffle, volume FROM player_state WHERE id = 1`)
	err := row.Scan(&currentIndex, &repeatMode, &shuffle, &volume)
	if errors.Is(err, sql.ErrNoRows) {
		return &PlayerState{CurrentIndex: -1, Volume: 1.0}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT track_id, title, artist, album, artist_id, album_id, duration_ms, cover_art, starred
		FROM queue_tracks
		ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []queue.Track
	for rows.Next() {
		var t queue.Track
		var artist, album, artistID, albumID, coverArt sql.NullString
		var durationMS int64

		err := rows.Scan(&t.ID, &t.Title, &artist, &album, &artistID, &albumID, &durationMS, &coverArt, &t.Starred)
		if err != nil {
			return nil, err
		}

		t.Artist = dbutil.NullStringValue(artist)
		t.Album = dbutil.NullStringValue(album)
		t.ArtistID = dbutil.NullStringValue(artistID)
		t.AlbumID = dbutil.NullStringValue(albumID)
		t.CoverArt = dbutil.NullStringValue(coverArt)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &PlayerState{
		CurrentIndex: currentIndex,
		RepeatMode:   queue.RepeatMode(repeatMode),
		Shuffle:      shuffle,
		Volume:       volume,
		Tracks:       tracks,
	}, nil
}

func savePlayer(sqlDB *sql.DB, state PlayerState) error {
	return dbutil.WithTx(sqlDB, func(tx *sql.Tx) error {
		// Clear existing queue
		_, err := tx.Exec(`DELETE FROM queue_tracks`)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO player_state (id, current_index, repeat_mode, shuffle, volume)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				repeat_mode = excluded.repeat_mode,
				shuffle = excluded.shuffle,
				volume = excluded.volume
		`, state.CurrentIndex, int(state.RepeatMode), state.Shuffle, state.Volume)
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO queue_tracks
			(position, track_id, title, artist, album, artist_id, album_id, duration_ms, cover_art, starred)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range state.Tracks {
			_, err = stmt.Exec(i, t.ID, t.Title, t.Artist, t.Album, t.ArtistID, t.AlbumID,
				t.Duration.Milliseconds(), t.CoverArt, t.Starred)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
