// Package store implements the Changelog Store: a SQLite-backed log of every successful (or attempted) track
// mutation, written by the Batch Processor (C9) and read back by the
// problematic-albums report drill-down.
package store

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sundial-audio/yearkeeper/models"
)

// Store wraps a *sql.DB with an embedded connection plus a component
// logger.
type Store struct {
	*sql.DB
	logger *log.Logger
}

// New opens (creating if necessary) the SQLite database at path.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Store{
		DB:     db,
		logger: log.New(os.Stdout, "store: ", log.LstdFlags|log.Lmsgprefix),
	}, nil
}

// Initialize issues the idempotent CREATE TABLE for change_log.
func (s *Store) Initialize() error {
	_, err := s.Exec(`
	CREATE TABLE IF NOT EXISTS change_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		change_type TEXT NOT NULL,
		track_id TEXT NOT NULL,
		artist TEXT,
		album_name TEXT,
		track_name TEXT,
		old_year TEXT,
		new_year TEXT,
		old_track_name TEXT,
		new_track_name TEXT,
		old_album_name TEXT,
		new_album_name TEXT
	)`)
	if err != nil {
		return err
	}

	_, err = s.Exec(`CREATE INDEX IF NOT EXISTS change_log_album ON change_log(artist, album_name)`)
	return err
}

// Record inserts one ChangeLogEntry.
func (s *Store) Record(entry models.ChangeLogEntry) error {
	_, err := s.Exec(`
	INSERT INTO change_log (
		timestamp, change_type, track_id, artist, album_name, track_name,
		old_year, new_year, old_track_name, new_track_name, old_album_name, new_album_name
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.ChangeType, entry.TrackID, entry.Artist, entry.AlbumName, entry.TrackName,
		entry.OldYear, entry.NewYear, entry.OldTrackName, entry.NewTrackName, entry.OldAlbumName, entry.NewAlbumName)
	return err
}

// RecentChangesForAlbum supports the problematic-albums report's
// "show recent changes for this album" drill-down
// (reporting.change_display_mode).
func (s *Store) RecentChangesForAlbum(artist, album string, limit int) ([]models.ChangeLogEntry, error) {
	rows, err := s.Query(`
	SELECT timestamp, change_type, track_id, artist, album_name, track_name,
	       old_year, new_year, old_track_name, new_track_name, old_album_name, new_album_name
	FROM change_log
	WHERE artist = ? AND album_name = ?
	ORDER BY timestamp DESC
	LIMIT ?`, artist, album, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ChangeLogEntry
	for rows.Next() {
		var e models.ChangeLogEntry
		var ts time.Time
		if err := rows.Scan(&ts, &e.ChangeType, &e.TrackID, &e.Artist, &e.AlbumName, &e.TrackName,
			&e.OldYear, &e.NewYear, &e.OldTrackName, &e.NewTrackName, &e.OldAlbumName, &e.NewAlbumName); err != nil {
			return nil, err
		}
		e.Timestamp = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
