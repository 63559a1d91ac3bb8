package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/providers"
	"github.com/sundial-audio/yearkeeper/scoring"
)

// stubRequester forwards every call to srv, preserving the request's
// path and query parameters so the handler can route by endpoint the
// same way the real MusicBrainz host would.
func stubRequester(t *testing.T, srv *httptest.Server) httpexec.Requester {
	t.Helper()
	exec := httpexec.New(httpexec.Config{MaxRetries: 0, BaseDelay: time.Millisecond, Timeout: 5 * time.Second})
	return func(ctx context.Context, req httpexec.Request) (map[string]any, error) {
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
}

func TestGetScoredReleasesSucceedsOnPreciseQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/release-group", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"release-groups":[{"id":"rg1","title":"OK Computer","primary-type":"Album","score":100}]}`))
	})
	mux.HandleFunc("/ws/2/release", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"releases":[{"id":"r1","title":"OK Computer","status":"Official","date":"1997-05-21","country":"GB","artist-credit":[{"name":"Radiohead","artist":{"name":"Radiohead"}}]}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), time.Hour)
	got, err := c.GetScoredReleases(context.Background(), "radiohead", "ok computer", providers.ArtistContext{}, "Radiohead", "OK Computer")
	if err != nil {
		t.Fatalf("GetScoredReleases: %v", err)
	}
	if len(got) != 1 || got[0].Year != "1997" {
		t.Fatalf("got %+v, want one release from 1997", got)
	}
	if c.Name() != "musicbrainz" {
		t.Errorf("got Name() %q, want musicbrainz", c.Name())
	}
}

func TestGetScoredReleasesDeduplicatesAcrossGroups(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/release-group", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"release-groups":[{"id":"rg1","title":"X","primary-type":"Album","score":100},{"id":"rg2","title":"X","primary-type":"Album","score":90}]}`))
	})
	mux.HandleFunc("/ws/2/release", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"releases":[{"id":"shared-release","title":"X","status":"Official","date":"2001-01-01","country":"US"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), time.Hour)
	got, err := c.GetScoredReleases(context.Background(), "artist", "x", providers.ArtistContext{}, "Artist", "X")
	if err != nil {
		t.Fatalf("GetScoredReleases: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d releases, want 1 (same release id fetched from two groups should dedupe)", len(got))
	}
	if calls != 2 {
		t.Errorf("got %d release fetches, want 2 (one per group)", calls)
	}
}

func TestGetScoredReleasesReturnsNilOnEmptySearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/release-group", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"release-groups":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), time.Hour)
	got, err := c.GetScoredReleases(context.Background(), "nobody", "nothing", providers.ArtistContext{}, "Nobody", "Nothing")
	if err != nil {
		t.Fatalf("GetScoredReleases: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestGetArtistActivityPeriodParsesLifeSpan(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/artist", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artists":[{"life-span":{"begin":"1985","end":"2023"},"area":{"name":"United Kingdom"}}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), time.Hour)
	begin, end, err := c.GetArtistActivityPeriod(context.Background(), "Radiohead")
	if err != nil {
		t.Fatalf("GetArtistActivityPeriod: %v", err)
	}
	if begin != 1985 || end != 2023 {
		t.Errorf("got begin=%d end=%d, want 1985/2023", begin, end)
	}
}

func TestGetArtistRegionReturnsArea(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/artist", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"artists":[{"area":{"name":"Japan"}}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), time.Hour)
	region, err := c.GetArtistRegion(context.Background(), "Perfume")
	if err != nil {
		t.Fatalf("GetArtistRegion: %v", err)
	}
	if region != "Japan" {
		t.Errorf("got region %q, want Japan", region)
	}
}

func TestCleanQueryTermStripsFeaturingCredit(t *testing.T) {
	got := cleanQueryTerm("Artist feat. Someone Else")
	if got != "Artist" {
		t.Errorf("got %q, want %q", got, "Artist")
	}
}
