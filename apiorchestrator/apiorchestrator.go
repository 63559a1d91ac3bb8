// Package apiorchestrator implements the API Orchestrator: it owns the shared HTTP executor, the per-provider rate
// limiters, and the four provider clients, and exposes the single
// GetAlbumYear contract the Year Decision Engine (C8) consults.
package apiorchestrator

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sundial-audio/yearkeeper/cache"
	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/pending"
	"github.com/sundial-audio/yearkeeper/providers"
	"github.com/sundial-audio/yearkeeper/providers/discogs"
	"github.com/sundial-audio/yearkeeper/providers/itunes"
	"github.com/sundial-audio/yearkeeper/providers/lastfm"
	"github.com/sundial-audio/yearkeeper/providers/musicbrainz"
	"github.com/sundial-audio/yearkeeper/ratelimit"
	"github.com/sundial-audio/yearkeeper/scoring"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

// ScriptPriority is one entry of the configured
// year_retrieval.script_api_priorities map.
type ScriptPriority struct {
	Primary  []string
	Fallback []string
}

// Config carries every threshold and credential GetAlbumYear needs,
// read once from viper by the caller (cmd/yearkeeper) and passed in.
type Config struct {
	PreferredAPI        string
	UseLastFM           bool
	ScriptPriorities    map[textnorm.Script]ScriptPriority
	SkipPrerelease      bool
	FutureYearThreshold int
	Resolver            scoring.ResolverConfig
	CacheTTLDays        int
}

// Orchestrator wires the HTTP executor, rate limiters, and provider
// clients, and is the sole owner of the cyclic-dependency-breaking
// Requester closures handed to each provider client.
type Orchestrator struct {
	executor *httpexec.Executor
	limiters map[string]*ratelimit.Limiter

	mb      *musicbrainz.Client
	clients []providers.Client

	scorer  *scoring.Scorer
	cache   *cache.Orchestrator
	pending *pending.Store
	cfg     Config

	logger *log.Logger
}

// New wires an Orchestrator: one Requester per provider (so each
// provider's calls are rate-limited and cached independently), one
// provider client per configured source.
func New(
	executor *httpexec.Executor,
	limiters map[string]*ratelimit.Limiter,
	scorer *scoring.Scorer,
	cacheOrch *cache.Orchestrator,
	pendingStore *pending.Store,
	cfg Config,
	discogsToken, lastfmAPIKey, itunesCountry string,
	reissueKeywords []string,
) *Orchestrator {
	o := &Orchestrator{
		executor: executor,
		limiters: limiters,
		scorer:   scorer,
		cache:    cacheOrch,
		pending:  pendingStore,
		cfg:      cfg,
		logger:   log.New(os.Stdout, "apiorchestrator: ", log.LstdFlags|log.Lmsgprefix),
	}

	ttl := time.Duration(cfg.CacheTTLDays) * 24 * time.Hour

	o.mb = musicbrainz.New(o.requesterFor("musicbrainz"), scorer, ttl)
	discogsClient := discogs.New(o.requesterFor("discogs"), scorer, discogsToken, reissueKeywords)
	itunesClient := itunes.New(o.requesterFor("itunes"), scorer, itunesCountry)

	o.clients = []providers.Client{o.mb, discogsClient, itunesClient}
	if cfg.UseLastFM {
		o.clients = append(o.clients, lastfm.New(o.requesterFor("lastfm"), scorer, lastfmAPIKey, reissueKeywords))
	}

	return o
}

// requesterFor closes over one provider's rate limiter so the provider
// client only ever sees a plain function value, never the executor or
// limiter directly.
func (o *Orchestrator) requesterFor(providerName string) httpexec.Requester {
	limiter := o.limiters[providerName]
	ttl := time.Duration(o.cfg.CacheTTLDays) * 24 * time.Hour
	return func(ctx context.Context, req httpexec.Request) (map[string]any, error) {
		return o.executor.Do(ctx, req, limiter, ttl)
	}
}

func (o *Orchestrator) clientByName(name string) providers.Client {
	for _, c := range o.clients {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// GetAlbumYear normalizes the artist and album, fetches artist
// context, picks a script-aware provider order, fans out, aggregates,
// and falls through to the current library year (non-definitive) when
// no provider yields a usable result.
func (o *Orchestrator) GetAlbumYear(ctx context.Context, artist, album string, currentLibraryYear string) models.YearDecision {
	artistNorm := textnorm.Normalize(artist)
	albumNorm := textnorm.Normalize(album)

	activityBegin, activityEnd, err := o.mb.GetArtistActivityPeriod(ctx, artist)
	if err != nil {
		o.logger.Printf("artist activity lookup failed for %s: %v", artist, err)
	}
	region, err := o.mb.GetArtistRegion(ctx, artist)
	if err != nil {
		o.logger.Printf("artist region lookup failed for %s: %v", artist, err)
	}
	if activityBegin > 0 {
		o.logger.Printf("%s activity period: %d-%d", artist, activityBegin, activityEnd)
	}

	script := textnorm.DetectScript(artist + " " + album)

	order := o.providerOrder(script)

	artistCtx := providers.ArtistContext{
		Region:        region,
		Script:        string(script),
		HasActivity:   activityBegin > 0,
		ActivityBegin: activityBegin,
		ActivityEnd:   activityEnd,
		IsSoundtrack:  isSoundtrackAlbum(album),
	}

	releases := o.fanOut(ctx, order, artistNorm, albumNorm, artistCtx, artist, album)

	if len(releases) == 0 {
		return o.noResultFallback(artist, album, currentLibraryYear)
	}

	decision := scoring.Resolve(releases, o.cfg.Resolver)
	if decision.Year == "" {
		return o.noResultFallback(artist, album, currentLibraryYear)
	}

	if decision.IsDefinitive {
		o.pending.RemoveFromPending(artist, album)
	} else {
		o.pending.MarkForVerification(artist, album, models.ReasonNoYearFound, nil, 0)
	}

	return decision
}

func (o *Orchestrator) noResultFallback(artist, album, currentLibraryYear string) models.YearDecision {
	o.pending.MarkForVerification(artist, album, models.ReasonNoYearFound, nil, 0)

	currentYear := time.Now().Year()
	if currentLibraryYear == strconv.Itoa(currentYear) {
		// A library year exactly equal to "now" is treated as a placeholder.
		return models.YearDecision{Year: "", IsDefinitive: false}
	}
	return models.YearDecision{Year: currentLibraryYear, IsDefinitive: false}
}

// providerOrder picks the provider sequence for a fan-out: for a
// non-Latin script, the configured script_api_priorities entry (primary
// list, then fallback), else every configured client in canonical
// order. Either way the preferred_api is moved to the front.
func (o *Orchestrator) providerOrder(script textnorm.Script) []string {
	var order []string
	if script != textnorm.ScriptLatin && script != textnorm.ScriptUnknown {
		if priority, ok := o.cfg.ScriptPriorities[script]; ok {
			order = append(order, priority.Primary...)
			order = append(order, priority.Fallback...)
		}
	}
	if len(order) == 0 {
		for _, c := range o.clients {
			order = append(order, c.Name())
		}
	}

	if o.cfg.PreferredAPI != "" {
		order = moveToFront(order, o.cfg.PreferredAPI)
	}
	return order
}

// fanOut queries providers in order. For a non-Latin script it tries
// each primary provider sequentially and stops at the first with
// results, falling back to the fallback list; otherwise it queries all
// configured providers concurrently.
func (o *Orchestrator) fanOut(ctx context.Context, order []string, artistNorm, albumNorm string, artistCtx providers.ArtistContext, artistOrig, albumOrig string) []models.ScoredRelease {
	script := textnorm.DetectScript(artistOrig + " " + albumOrig)

	if script != textnorm.ScriptLatin && script != textnorm.ScriptUnknown {
		for _, name := range order {
			client := o.clientByName(name)
			if client == nil {
				continue
			}
			releases, err := client.GetScoredReleases(ctx, artistNorm, albumNorm, artistCtx, artistOrig, albumOrig)
			if err != nil {
				o.logger.Printf("%s: %v", name, err)
				continue
			}
			if len(releases) > 0 {
				return releases
			}
		}
		return nil
	}

	type result struct {
		releases []models.ScoredRelease
		err      error
	}
	resultCh := make(chan result, len(order))
	for _, name := range order {
		client := o.clientByName(name)
		if client == nil {
			resultCh <- result{}
			continue
		}
		go func(c providers.Client) {
			releases, err := c.GetScoredReleases(ctx, artistNorm, albumNorm, artistCtx, artistOrig, albumOrig)
			resultCh <- result{releases: releases, err: err}
		}(client)
	}

	var all []models.ScoredRelease
	for range order {
		r := <-resultCh
		if r.err != nil {
			o.logger.Printf("provider fan-out error: %v", r.err)
			continue
		}
		all = append(all, r.releases...)
	}
	return all
}

// ShouldUpdateAlbumYear gates updates on
// prerelease status and excessive future-year concentration.
func (o *Orchestrator) ShouldUpdateAlbumYear(tracks []models.Track, artist, album string, currentLibraryYear string) bool {
	if !o.cfg.SkipPrerelease {
		return true
	}

	currentYear := time.Now().Year()
	futureCount := 0
	maxFuture := 0
	anyPrerelease := false

	for _, t := range tracks {
		if t.TrackStatus == models.StatusPrerelease {
			anyPrerelease = true
		}
		if y, ok := parseYear(t.Year); ok && y > currentYear {
			futureCount++
			if y > maxFuture {
				maxFuture = y
			}
		}
	}

	isPrerelease := anyPrerelease
	if !isPrerelease && len(tracks) > 0 && futureCount*2 >= len(tracks) && maxFuture > currentYear+o.cfg.FutureYearThreshold {
		isPrerelease = true
	}

	if isPrerelease {
		o.pending.MarkForVerification(artist, album, models.ReasonPrerelease, nil, 0)
		return false
	}
	return true
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

// isSoundtrackAlbum checks the album title against the configured
// album_type_detection.soundtrack_patterns so providers can relax their
// various-artists / compilation penalties for film and game soundtracks.
func isSoundtrackAlbum(album string) bool {
	lower := strings.ToLower(album)
	for _, pattern := range viper.GetStringSlice("album_type_detection.soundtrack_patterns") {
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func moveToFront(list []string, value string) []string {
	out := make([]string, 0, len(list))
	out = append(out, value)
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

