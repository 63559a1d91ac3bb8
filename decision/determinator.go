package decision

import (
	"context"
	"log"
	"os"

	"github.com/sundial-audio/yearkeeper/cache"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/pending"
)

// APIOrchestrator is the narrow contract the Determinator needs from the
// API Orchestrator (C7): resolve an album's year from provider lookups.
type APIOrchestrator interface {
	GetAlbumYear(ctx context.Context, artist, album, currentLibraryYear string) models.YearDecision
}

// DeterminatorConfig carries every threshold the Determinator and its
// gating helpers read from year_retrieval.*.
type DeterminatorConfig struct {
	Consistency             ConsistencyConfig
	SuspiciousAlbumNameMaxLength     int
	SuspiciousAlbumNameMinUniqueYears int
	PrereleaseRecheckDays   int
	FutureYearThreshold     int
	Fallback                FallbackConfig
}

// Determinator is the decision order that turns one
// AlbumGroup into a YearDecision, consulting the Album-Year cache before
// ever reaching the API Orchestrator.
type Determinator struct {
	AlbumYears *cache.AlbumYearCache
	API        APIOrchestrator
	Pending    *pending.Store
	Fallback   *FallbackHandler
	cfg        DeterminatorConfig
	logger     *log.Logger
}

func NewDeterminator(albumYears *cache.AlbumYearCache, api APIOrchestrator, pendingStore *pending.Store, cfg DeterminatorConfig) *Determinator {
	return &Determinator{
		AlbumYears: albumYears,
		API:        api,
		Pending:    pendingStore,
		Fallback:   NewFallbackHandler(cfg.Fallback),
		cfg:        cfg,
		logger:     log.New(os.Stdout, "decision: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Decide runs the full gate-then-decide pipeline for one album group.
// force bypasses the cache-equality skip in ShouldSkipAlbum but never the
// suspicious-name, prerelease, or future-year guardrails — those protect
// against acting on obviously bad data regardless of operator intent.
func (d *Determinator) Decide(ctx context.Context, group *models.AlbumGroup, force bool) models.YearDecision {
	artist, album := group.Key.Artist, group.Key.Album

	if d.CheckSuspiciousAlbum(group) {
		return models.YearDecision{}
	}
	if d.CheckPrereleaseStatus(group) {
		return models.YearDecision{}
	}
	if !d.HandleFutureYears(group) {
		return models.YearDecision{}
	}

	existingYear, _ := MostCommonYear(group.Tracks)

	if d.ShouldSkipAlbum(group, force) {
		return models.YearDecision{Year: existingYear, IsDefinitive: true}
	}

	// 1. Dominant local year.
	if year, ok := GetDominantYear(group.Tracks, d.cfg.Consistency); ok {
		return models.YearDecision{Year: year, IsDefinitive: true}
	}

	// 2. Cached album year.
	if entry, ok := d.AlbumYears.Get(artist, album); ok {
		return models.YearDecision{Year: entry.Year, IsDefinitive: true}
	}

	// 3. Consensus release year.
	if year, ok := GetConsensusReleaseYear(group.Tracks, d.cfg.Consistency); ok {
		d.AlbumYears.Set(artist, album, year)
		return models.YearDecision{Year: year, IsDefinitive: true}
	}

	// 4. API Orchestrator, filtered through the Fallback Handler.
	proposed := d.API.GetAlbumYear(ctx, artist, album, existingYear)
	result := d.Fallback.Decide(album, proposed, existingYear)

	switch result.Action {
	case ActionApply:
		if result.Reason != "" {
			d.Pending.MarkForVerification(artist, album, result.Reason, nil, 0)
		}
		if result.MarkNonDefinitive {
			d.Pending.MarkForVerification(artist, album, models.ReasonNoYearFound, nil, 0)
		} else {
			d.AlbumYears.Set(artist, album, result.Year)
		}
		return models.YearDecision{Year: result.Year, IsDefinitive: !result.MarkNonDefinitive}
	case ActionPreserve:
		d.Pending.MarkForVerification(artist, album, result.Reason, nil, 0)
		return models.YearDecision{Year: result.Year, IsDefinitive: true}
	default: // ActionSkip
		d.Pending.MarkForVerification(artist, album, result.Reason, nil, 0)
		return models.YearDecision{}
	}
}

// CheckSuspiciousAlbum reports whether a very short album name paired
// with many distinct years in the track list smells like a mis-tagged
// "various tracks" bucket rather than a real album, so it's parked for
// manual review instead of guessed at.
func (d *Determinator) CheckSuspiciousAlbum(group *models.AlbumGroup) bool {
	if len(group.Key.Album) > d.cfg.SuspiciousAlbumNameMaxLength {
		return false
	}
	if UniqueNonEmptyYearCount(group.Tracks) < d.cfg.SuspiciousAlbumNameMinUniqueYears {
		return false
	}
	d.Pending.MarkForVerification(group.Key.Artist, group.Key.Album, models.ReasonSuspiciousAlbumName, nil, 0)
	return true
}

// CheckPrereleaseStatus reports whether any track carries prerelease
// status defers the whole album.
func (d *Determinator) CheckPrereleaseStatus(group *models.AlbumGroup) bool {
	for _, t := range group.Tracks {
		if t.TrackStatus == models.StatusPrerelease {
			d.Pending.MarkForVerification(group.Key.Artist, group.Key.Album, models.ReasonPrerelease, nil, d.cfg.PrereleaseRecheckDays)
			return true
		}
	}
	return false
}

// HandleFutureYears returns true (proceed) unless the
// album's years run far enough into the future to smell like prerelease
// placeholders rather than real dates.
func (d *Determinator) HandleFutureYears(group *models.AlbumGroup) bool {
	currentYear := d.cfg.Consistency.CurrentYear
	maxFuture := 0
	for _, t := range group.Tracks {
		y, ok := parseYear(t.Year)
		if !ok {
			continue
		}
		if y > currentYear && y > maxFuture {
			maxFuture = y
		}
	}
	if maxFuture == 0 {
		return true
	}
	if maxFuture-currentYear <= d.cfg.FutureYearThreshold {
		return true
	}
	d.Pending.MarkForVerification(group.Key.Artist, group.Key.Album, models.ReasonPrerelease, nil, 0)
	return false
}

// ShouldSkipAlbum reports whether, when not forced, an album whose
// cached year already matches its dominant local year needs no further
// work.
func (d *Determinator) ShouldSkipAlbum(group *models.AlbumGroup, force bool) bool {
	if force {
		return false
	}
	entry, ok := d.AlbumYears.Get(group.Key.Artist, group.Key.Album)
	if !ok {
		return false
	}
	dominant, ok := GetDominantYear(group.Tracks, d.cfg.Consistency)
	if !ok {
		return false
	}
	return entry.Year == dominant
}

func parseYear(y string) (int, bool) {
	if len(y) != 4 {
		return 0, false
	}
	n := 0
	for _, r := range y {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
