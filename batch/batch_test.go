package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sundial-audio/yearkeeper/library"
	"github.com/sundial-audio/yearkeeper/models"
)

// stubDecider returns a fixed decision for every album, tracking calls.
type stubDecider struct {
	mu       sync.Mutex
	decision models.YearDecision
	calls    []string
}

func (d *stubDecider) Decide(ctx context.Context, group *models.AlbumGroup, force bool) models.YearDecision {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, group.Key.Artist+"|"+group.Key.Album)
	return d.decision
}

// stubLibrary records UpdateProperty calls and can be made to fail the
// first N attempts per track, to exercise the retry path.
type stubLibrary struct {
	library.Client
	mu         sync.Mutex
	failsLeft  map[string]int
	updates    []library.PropertyUpdate
}

func (l *stubLibrary) UpdateProperty(ctx context.Context, trackID, property, value string) (library.UpdateResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, library.PropertyUpdate{TrackID: trackID, Property: property, Value: value})
	if n, ok := l.failsLeft[trackID]; ok && n > 0 {
		l.failsLeft[trackID] = n - 1
		return library.UpdateResult{}, errTransient
	}
	return library.UpdateResult{Old: "", New: value}, nil
}

var errTransient = &transientError{}

type transientError struct{}

func (e *transientError) Error() string { return "transient failure" }

type stubChangelog struct {
	mu      sync.Mutex
	entries []models.ChangeLogEntry
}

func (c *stubChangelog) Record(entry models.ChangeLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	return nil
}

func testTrack(id, year string, status models.TrackStatus) models.Track {
	return models.Track{ID: id, Year: year, TrackStatus: status}
}

type invalidateCall struct {
	artist, originalArtist, album string
	sources                       []string
}

type stubInvalidator struct {
	mu    sync.Mutex
	calls []invalidateCall
}

func (i *stubInvalidator) InvalidateForTrack(artist, originalArtist, album string, sources []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, invalidateCall{artist, originalArtist, album, sources})
}

func TestProcessorInvalidatesCacheAfterUpdate(t *testing.T) {
	decider := &stubDecider{decision: models.YearDecision{Year: "1973", IsDefinitive: true}}
	lib := &stubLibrary{failsLeft: map[string]int{}}
	changelog := &stubChangelog{}
	invalidator := &stubInvalidator{}

	p := NewProcessor(decider, lib, changelog, invalidator, Config{
		BatchSize: 10, AdaptiveDelay: false, ConcurrencyLimit: 1,
		TrackRetryAttempts: 3, TrackRetryDelay: time.Millisecond,
	})

	tracks := []models.Track{testTrack("t1", "1980", models.StatusSubscription)}
	tracks[0].Artist, tracks[0].Album = "Pink Floyd", "Dark Side of the Moon"

	if err := p.Run(context.Background(), tracks); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(invalidator.calls) != 1 {
		t.Fatalf("got %d invalidation calls, want 1", len(invalidator.calls))
	}
	call := invalidator.calls[0]
	if call.artist != "Pink Floyd" || call.album != "Dark Side of the Moon" {
		t.Errorf("got invalidation %+v, want artist=Pink Floyd album=Dark Side of the Moon", call)
	}
	if len(call.sources) == 0 {
		t.Errorf("got empty sources, want every known provider")
	}
}

func TestProcessorUpdatesWritableTracksAndRecordsChangelog(t *testing.T) {
	decider := &stubDecider{decision: models.YearDecision{Year: "1973", IsDefinitive: true}}
	lib := &stubLibrary{failsLeft: map[string]int{}}
	changelog := &stubChangelog{}

	p := NewProcessor(decider, lib, changelog, nil, Config{
		BatchSize: 10, AdaptiveDelay: false, ConcurrencyLimit: 1,
		TrackRetryAttempts: 3, TrackRetryDelay: time.Millisecond,
	})

	tracks := []models.Track{
		testTrack("t1", "1980", models.StatusSubscription),
		testTrack("t2", "1973", models.StatusSubscription), // already matches, should be skipped
		testTrack("t3", "1980", models.StatusPurchased),    // read-only, should be skipped
	}
	tracks[0].Artist, tracks[0].Album = "Pink Floyd", "Dark Side of the Moon"
	tracks[1].Artist, tracks[1].Album = "Pink Floyd", "Dark Side of the Moon"
	tracks[2].Artist, tracks[2].Album = "Pink Floyd", "Dark Side of the Moon"

	if err := p.Run(context.Background(), tracks); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(lib.updates) != 1 || lib.updates[0].TrackID != "t1" {
		t.Fatalf("got updates %+v, want exactly one update for t1", lib.updates)
	}
	if len(changelog.entries) != 1 || changelog.entries[0].NewYear != "1973" {
		t.Fatalf("got changelog %+v, want one entry with NewYear=1973", changelog.entries)
	}
}

func TestProcessorSkipsAlbumWithNoDecision(t *testing.T) {
	decider := &stubDecider{decision: models.YearDecision{}}
	lib := &stubLibrary{failsLeft: map[string]int{}}
	changelog := &stubChangelog{}

	p := NewProcessor(decider, lib, changelog, nil, Config{
		BatchSize: 10, AdaptiveDelay: false, ConcurrencyLimit: 1,
		TrackRetryAttempts: 3, TrackRetryDelay: time.Millisecond,
	})

	tracks := []models.Track{testTrack("t1", "1980", models.StatusSubscription)}
	tracks[0].Artist, tracks[0].Album = "Some Artist", "Some Album"

	if err := p.Run(context.Background(), tracks); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(lib.updates) != 0 {
		t.Fatalf("expected no updates when the decision engine returns no year, got %+v", lib.updates)
	}
}

func TestProcessorRetriesTransientFailures(t *testing.T) {
	decider := &stubDecider{decision: models.YearDecision{Year: "1973", IsDefinitive: true}}
	lib := &stubLibrary{failsLeft: map[string]int{"t1": 2}}
	changelog := &stubChangelog{}

	p := NewProcessor(decider, lib, changelog, nil, Config{
		BatchSize: 10, AdaptiveDelay: false, ConcurrencyLimit: 1,
		TrackRetryAttempts: 3, TrackRetryDelay: time.Millisecond,
	})

	tracks := []models.Track{testTrack("t1", "1980", models.StatusSubscription)}
	tracks[0].Artist, tracks[0].Album = "Pink Floyd", "Dark Side of the Moon"

	if err := p.Run(context.Background(), tracks); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(lib.updates) != 3 {
		t.Fatalf("expected 2 failed attempts + 1 success = 3 calls, got %d", len(lib.updates))
	}
	if len(changelog.entries) != 1 {
		t.Fatalf("expected one changelog entry once the retry succeeds, got %d", len(changelog.entries))
	}
}

func TestProcessorConcurrentModeProcessesEveryAlbum(t *testing.T) {
	decider := &stubDecider{decision: models.YearDecision{Year: "1973", IsDefinitive: true}}
	lib := &stubLibrary{failsLeft: map[string]int{}}
	changelog := &stubChangelog{}

	p := NewProcessor(decider, lib, changelog, nil, Config{
		BatchSize: 10, AdaptiveDelay: true, ConcurrencyLimit: 4,
		TrackRetryAttempts: 2, TrackRetryDelay: time.Millisecond,
	})

	var tracks []models.Track
	for i := 0; i < 9; i++ {
		tr := testTrack(string(rune('a'+i)), "1980", models.StatusSubscription)
		tr.Artist = "Artist"
		tr.Album = "Album " + string(rune('A'+i))
		tracks = append(tracks, tr)
	}

	if err := p.Run(context.Background(), tracks); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	decider.mu.Lock()
	defer decider.mu.Unlock()
	if len(decider.calls) != 9 {
		t.Fatalf("expected the decider to be consulted for all 9 albums, got %d calls", len(decider.calls))
	}
}
