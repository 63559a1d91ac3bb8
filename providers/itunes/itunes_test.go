package itunes

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

// The real iTunes Search endpoint answers with Content-Type
// text/javascript rather than application/json; the client must still
// get a usable result through the shared executor.
func TestGetScoredReleasesHandlesJavascriptContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Write([]byte(`{"resultCount":1,"results":[{"artistName":"Radiohead","collectionName":"OK Computer","releaseDate":"1997-05-21T00:00:00Z","collectionType":"Album"}]}`))
	}))
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), "")
	got, err := c.GetScoredReleases(context.Background(), "radiohead", "ok computer", providers.ArtistContext{}, "Radiohead", "OK Computer")
	if err != nil {
		t.Fatalf("GetScoredReleases: %v", err)
	}
	if len(got) != 1 || got[0].Year != "1997" {
		t.Fatalf("got %+v, want one release from 1997", got)
	}
	if c.Name() != "itunes" {
		t.Errorf("got Name() %q, want itunes", c.Name())
	}
}

func TestGetScoredReleasesSkipsResultsWithoutAYear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resultCount":1,"results":[{"artistName":"Radiohead","collectionName":"OK Computer","releaseDate":""}]}`))
	}))
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), "")
	got, err := c.GetScoredReleases(context.Background(), "radiohead", "ok computer", providers.ArtistContext{}, "Radiohead", "OK Computer")
	if err != nil {
		t.Fatalf("GetScoredReleases: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want no results without a parseable year", got)
	}
}

func TestNewDefaultsCountryToUS(t *testing.T) {
	var gotCountry string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCountry = r.URL.Query().Get("country")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resultCount":0,"results":[]}`))
	}))
	defer srv.Close()

	c := New(stubRequester(t, srv), scoring.New(scoring.Weights{}), "")
	if _, err := c.GetScoredReleases(context.Background(), "a", "b", providers.ArtistContext{}, "A", "B"); err != nil {
		t.Fatalf("GetScoredReleases: %v", err)
	}
	if gotCountry != "US" {
		t.Errorf("got country %q, want US default", gotCountry)
	}
}
