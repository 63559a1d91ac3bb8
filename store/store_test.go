package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sundial-audio/yearkeeper/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "changelog.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecentChangesForAlbum(t *testing.T) {
	s := newTestStore(t)

	entries := []models.ChangeLogEntry{
		{Timestamp: time.Now(), ChangeType: "year_update", TrackID: "t1", Artist: "Pink Floyd", AlbumName: "The Wall", OldYear: "1980", NewYear: "1979"},
		{Timestamp: time.Now(), ChangeType: "year_update", TrackID: "t2", Artist: "Pink Floyd", AlbumName: "The Wall", OldYear: "1980", NewYear: "1979"},
		{Timestamp: time.Now(), ChangeType: "year_update", TrackID: "t3", Artist: "Radiohead", AlbumName: "OK Computer", OldYear: "1998", NewYear: "1997"},
	}
	for _, e := range entries {
		if err := s.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	changes, err := s.RecentChangesForAlbum("Pink Floyd", "The Wall", 10)
	if err != nil {
		t.Fatalf("RecentChangesForAlbum: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	for _, c := range changes {
		if c.Artist != "Pink Floyd" || c.AlbumName != "The Wall" {
			t.Errorf("unexpected change leaked in from another album: %+v", c)
		}
	}
}

func TestRecentChangesForAlbumRespectsLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		if err := s.Record(models.ChangeLogEntry{
			Timestamp: time.Now(), ChangeType: "year_update", TrackID: "t", Artist: "Artist", AlbumName: "Album",
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	changes, err := s.RecentChangesForAlbum("Artist", "Album", 2)
	if err != nil {
		t.Fatalf("RecentChangesForAlbum: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2 (limit)", len(changes))
	}
}
