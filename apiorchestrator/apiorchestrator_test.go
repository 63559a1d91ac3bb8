package apiorchestrator

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sundial-audio/yearkeeper/cache"
	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/pending"
	"github.com/sundial-audio/yearkeeper/providers"
	"github.com/sundial-audio/yearkeeper/providers/itunes"
	"github.com/sundial-audio/yearkeeper/providers/musicbrainz"
	"github.com/sundial-audio/yearkeeper/scoring"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

// fakeClient is a providers.Client double used to control exactly which
// provider answers first in a fan-out without standing up an HTTP
// server for every one of them.
type fakeClient struct {
	name     string
	releases []models.ScoredRelease
	err      error
	calls    int32
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) GetScoredReleases(ctx context.Context, artistNorm, albumNorm string, artistCtx providers.ArtistContext, artistOrig, albumOrig string) ([]models.ScoredRelease, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.releases, f.err
}

// stubbedMusicBrainz builds a real musicbrainz.Client whose requests are
// redirected to srv, so GetAlbumYear's always-on artist activity/region
// lookups resolve against a controlled server instead of the network.
func stubbedMusicBrainz(t *testing.T, srv *httptest.Server) *musicbrainz.Client {
	t.Helper()
	exec := httpexec.New(httpexec.Config{MaxRetries: 0, BaseDelay: time.Millisecond, Timeout: 5 * time.Second})
	requester := func(ctx context.Context, req httpexec.Request) (map[string]any, error) {
		reqURL, err := url.Parse(req.URL)
		if err != nil {
			return nil, err
		}
		target, err := url.Parse(srv.URL)
		if err != nil {
			return nil, err
		}
		target.Path = reqURL.Path
		retargeted := req
		retargeted.URL = target.String()
		return exec.Do(ctx, retargeted, nil, time.Minute)
	}
	return musicbrainz.New(requester, scoring.New(scoring.Weights{}), time.Hour)
}

func newTestOrchestrator(t *testing.T, mbSrv *httptest.Server, clients []providers.Client) *Orchestrator {
	t.Helper()
	generic, err := cache.NewGenericCache(100, 0, "")
	if err != nil {
		t.Fatalf("NewGenericCache: %v", err)
	}
	cacheOrch := &cache.Orchestrator{
		Generic:      generic,
		AlbumYear:    cache.NewAlbumYearCache(""),
		APIResponses: cache.NewAPIResponseCache(""),
	}
	return &Orchestrator{
		mb:      stubbedMusicBrainz(t, mbSrv),
		clients: clients,
		scorer:  scoring.New(scoring.Weights{}),
		cache:   cacheOrch,
		pending: pending.New(t.TempDir()+"/pending.csv", 30, 7, 30),
		cfg: Config{
			Resolver: scoring.ResolverConfig{
				MinValidYear:             1900,
				CurrentYear:              time.Now().Year(),
				DefinitiveScoreThreshold: 70,
				DefinitiveScoreDiff:      10,
			},
		},
		logger: log.New(os.Stdout, "apiorchestrator-test: ", log.LstdFlags),
	}
}

func emptyArtistServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artists":[]}`))
	}))
}

func TestGetAlbumYearFansOutAcrossAllConfiguredProviders(t *testing.T) {
	mbSrv := emptyArtistServer()
	defer mbSrv.Close()

	mb := &fakeClient{name: "musicbrainz"}
	discogs := &fakeClient{name: "discogs", releases: []models.ScoredRelease{{Year: "1997", Score: 80}}}
	itunesClient := &fakeClient{name: "itunes", releases: []models.ScoredRelease{{Year: "1997", Score: 75}}}

	o := newTestOrchestrator(t, mbSrv, []providers.Client{mb, discogs, itunesClient})

	decision := o.GetAlbumYear(context.Background(), "Radiohead", "OK Computer", "")
	if decision.Year != "1997" {
		t.Fatalf("got year %q, want 1997", decision.Year)
	}
	for _, c := range []*fakeClient{mb, discogs, itunesClient} {
		if atomic.LoadInt32(&c.calls) != 1 {
			t.Errorf("provider %s: got %d calls, want exactly 1", c.name, c.calls)
		}
	}
}

func TestGetAlbumYearScriptCascadeStopsAtFirstProviderWithResults(t *testing.T) {
	mbSrv := emptyArtistServer()
	defer mbSrv.Close()

	primary := &fakeClient{name: "musicbrainz", releases: []models.ScoredRelease{{Year: "2001", Score: 90}}}
	fallback := &fakeClient{name: "discogs", releases: []models.ScoredRelease{{Year: "1999", Score: 90}}}

	o := newTestOrchestrator(t, mbSrv, []providers.Client{primary, fallback})
	o.cfg.ScriptPriorities = map[textnorm.Script]ScriptPriority{
		textnorm.ScriptCJK: {Primary: []string{"musicbrainz"}, Fallback: []string{"discogs"}},
	}

	decision := o.GetAlbumYear(context.Background(), "ピンク・レディ", "あるバンド", "")
	if decision.Year != "2001" {
		t.Fatalf("got year %q, want 2001 from the primary provider", decision.Year)
	}
	if atomic.LoadInt32(&primary.calls) != 1 {
		t.Errorf("got %d calls to the primary provider, want 1", primary.calls)
	}
	if atomic.LoadInt32(&fallback.calls) != 0 {
		t.Errorf("got %d calls to the fallback provider, want 0 since the primary already had results", fallback.calls)
	}
}

func TestGetAlbumYearScriptCascadeFallsThroughWhenPrimaryIsEmpty(t *testing.T) {
	mbSrv := emptyArtistServer()
	defer mbSrv.Close()

	primary := &fakeClient{name: "musicbrainz"}
	fallback := &fakeClient{name: "discogs", releases: []models.ScoredRelease{{Year: "1999", Score: 90}}}

	o := newTestOrchestrator(t, mbSrv, []providers.Client{primary, fallback})
	o.cfg.ScriptPriorities = map[textnorm.Script]ScriptPriority{
		textnorm.ScriptCJK: {Primary: []string{"musicbrainz"}, Fallback: []string{"discogs"}},
	}

	decision := o.GetAlbumYear(context.Background(), "ピンク・レディ", "あるバンド", "")
	if decision.Year != "1999" {
		t.Fatalf("got year %q, want 1999 from the fallback provider", decision.Year)
	}
	if atomic.LoadInt32(&primary.calls) != 1 || atomic.LoadInt32(&fallback.calls) != 1 {
		t.Errorf("got primary=%d fallback=%d calls, want both tried once", primary.calls, fallback.calls)
	}
}

// The real iTunes Search endpoint answers with Content-Type
// text/javascript; GetAlbumYear must still resolve a year sourced from
// it end to end, not just the isolated client.
func TestGetAlbumYearResolvesFromITunesJavascriptContentType(t *testing.T) {
	mbSrv := emptyArtistServer()
	defer mbSrv.Close()

	itunesSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Write([]byte(`{"resultCount":1,"results":[{"artistName":"Radiohead","collectionName":"OK Computer","releaseDate":"1997-05-21T00:00:00Z","collectionType":"Album"}]}`))
	}))
	defer itunesSrv.Close()

	exec := httpexec.New(httpexec.Config{MaxRetries: 0, BaseDelay: time.Millisecond, Timeout: 5 * time.Second})
	itunesRequester := func(ctx context.Context, req httpexec.Request) (map[string]any, error) {
		reqURL, err := url.Parse(req.URL)
		if err != nil {
			return nil, err
		}
		target, err := url.Parse(itunesSrv.URL)
		if err != nil {
			return nil, err
		}
		target.Path = reqURL.Path
		retargeted := req
		retargeted.URL = target.String()
		return exec.Do(ctx, retargeted, nil, time.Minute)
	}
	itunesClient := itunes.New(itunesRequester, scoring.New(scoring.Weights{}), "")

	o := newTestOrchestrator(t, mbSrv, []providers.Client{itunesClient})

	decision := o.GetAlbumYear(context.Background(), "radiohead", "ok computer", "")
	if decision.Year != "1997" {
		t.Fatalf("got year %q, want 1997 resolved through the javascript-content-type quirk", decision.Year)
	}
}

func TestGetAlbumYearFallsBackToCurrentLibraryYearWhenNoProviderResolves(t *testing.T) {
	mbSrv := emptyArtistServer()
	defer mbSrv.Close()

	o := newTestOrchestrator(t, mbSrv, []providers.Client{&fakeClient{name: "discogs"}})

	decision := o.GetAlbumYear(context.Background(), "nobody", "nothing", "1985")
	if decision.Year != "1985" || decision.IsDefinitive {
		t.Errorf("got %+v, want a non-definitive fallback to the current library year", decision)
	}
}

func TestProviderOrderMovesPreferredAPIToFront(t *testing.T) {
	o := &Orchestrator{
		clients: []providers.Client{
			&fakeClient{name: "musicbrainz"},
			&fakeClient{name: "discogs"},
			&fakeClient{name: "itunes"},
		},
		cfg: Config{PreferredAPI: "itunes"},
	}
	order := o.providerOrder(textnorm.ScriptLatin)
	if len(order) != 3 || order[0] != "itunes" {
		t.Errorf("got order %v, want itunes first", order)
	}
}
