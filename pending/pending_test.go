package pending

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/sundial-audio/yearkeeper/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pending.csv")
	return New(path, 30, 14, 7), path
}

func TestMarkForVerificationIdempotentAttemptCount(t *testing.T) {
	s, _ := newTestStore(t)

	s.MarkForVerification("Radiohead", "OK Computer", models.ReasonNoYearFound, nil, 0)
	s.MarkForVerification("Radiohead", "OK Computer", models.ReasonNoYearFound, nil, 0)
	s.MarkForVerification("Radiohead", "OK Computer", models.ReasonNoYearFound, nil, 0)

	all := s.GetAllPendingAlbums()
	if len(all) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(all))
	}
	if all[0].AttemptCount != 3 {
		t.Errorf("expected attempt_count 3, got %d", all[0].AttemptCount)
	}
}

func TestRemoveFromPendingNoopWhenAbsent(t *testing.T) {
	s, _ := newTestStore(t)
	s.RemoveFromPending("Nobody", "Nothing")
	if len(s.GetAllPendingAlbums()) != 0 {
		t.Error("expected empty store")
	}
}

func TestPendingCSVRoundtrip(t *testing.T) {
	s, path := newTestStore(t)
	s.MarkForVerification("Pink Floyd", "The Wall", models.ReasonSuspiciousYearChange, map[string]string{"unique_years": "3"}, 0)
	s.MarkForVerification("XX", "Hi", models.ReasonSuspiciousAlbumName, nil, 0)

	reloaded := New(path, 30, 14, 7)
	if err := reloaded.LoadFromDisk(); err != nil {
		t.Fatalf("LoadFromDisk: %v", err)
	}

	before := s.GetAllPendingAlbums()
	after := reloaded.GetAllPendingAlbums()
	if len(before) != len(after) {
		t.Fatalf("roundtrip entry count mismatch: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Artist != after[i].Artist || before[i].Album != after[i].Album || before[i].Reason != after[i].Reason {
			t.Errorf("entry %d mismatch: %+v vs %+v", i, before[i], after[i])
		}
	}
}

func TestGenerateProblematicAlbumsReportFiltersByMinAttempts(t *testing.T) {
	s, _ := newTestStore(t)
	s.MarkForVerification("A", "One", models.ReasonNoYearFound, nil, 0)
	s.MarkForVerification("B", "Two", models.ReasonNoYearFound, nil, 0)
	s.MarkForVerification("B", "Two", models.ReasonNoYearFound, nil, 0)
	s.MarkForVerification("B", "Two", models.ReasonNoYearFound, nil, 0)

	reportPath := filepath.Join(t.TempDir(), "problematic.csv")
	if err := s.GenerateProblematicAlbumsReport(reportPath, 3); err != nil {
		t.Fatalf("GenerateProblematicAlbumsReport: %v", err)
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if got := string(data); !contains(got, "Two") || contains(got, "One") {
		t.Errorf("report did not filter by min attempts:\n%s", got)
	}
}

// Confirms the coalescing limiter skips the second write in a burst and
// that Flush picks it up afterward, instead of every mutation hitting
// disk (the scenario the limiter is installed for: a batch run marking
// many albums in a row).
func TestMarkForVerificationCoalescesDiskWrites(t *testing.T) {
	s, path := newTestStore(t)
	s.persistLimiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	s.MarkForVerification("Artist", "Album", models.ReasonNoYearFound, nil, 0)
	firstWrite, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected first mark to write immediately: %v", err)
	}

	s.MarkForVerification("Artist", "Album", models.ReasonNoYearFound, nil, 0)
	secondWrite, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading after second mark: %v", err)
	}
	if string(firstWrite) != string(secondWrite) {
		t.Fatalf("expected second mark to be coalesced, file changed before Flush")
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	flushed, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading after Flush: %v", err)
	}
	if !contains(string(flushed), ",2\n") && !contains(string(flushed), ",2\r\n") {
		t.Errorf("expected Flush to persist attempt_count=2, got:\n%s", flushed)
	}
}

func TestFlushIsNoopWithoutPendingWrite(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush on clean store: %v", err)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
