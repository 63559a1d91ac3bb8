// Package itunes implements the iTunes Search provider client: a
// single public-endpoint call, no
// authentication, year taken from the first four characters of
// releaseDate.
package itunes

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/providers"
	"github.com/sundial-audio/yearkeeper/scoring"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

const searchURL = "https://itunes.apple.com/search"

type Client struct {
	request httpexec.Requester
	scorer  *scoring.Scorer
	country string
	logger  *log.Logger
}

func New(request httpexec.Requester, scorer *scoring.Scorer, country string) *Client {
	if country == "" {
		country = "US"
	}
	return &Client{
		request: request,
		scorer:  scorer,
		country: country,
		logger:  log.New(os.Stdout, "itunes: ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (c *Client) Name() string { return "itunes" }

type searchResult struct {
	ArtistName     string `json:"artistName"`
	CollectionName string `json:"collectionName"`
	ReleaseDate    string `json:"releaseDate"`
	CollectionType string `json:"collectionType"`
}

type searchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []searchResult `json:"results"`
}

func (c *Client) GetScoredReleases(ctx context.Context, artistNorm, albumNorm string, artistCtx providers.ArtistContext, artistOrig, albumOrig string) ([]models.ScoredRelease, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "itunes",
		URL:     searchURL,
		Params: map[string]string{
			"term":    fmt.Sprintf("%s %s", artistOrig, albumOrig),
			"country": c.country,
			"entity":  "album",
			"limit":   "25",
		},
	})
	if err != nil || resp == nil {
		return nil, err
	}

	var parsed searchResponse
	if err := httpexec.Remarshal(resp, &parsed); err != nil {
		return nil, err
	}

	var out []models.ScoredRelease
	for _, r := range parsed.Results {
		year := textnorm.CoerceYear(r.ReleaseDate)
		if year == "" {
			continue
		}
		sr := models.ScoredRelease{
			Title:  r.CollectionName,
			Year:   year,
			Artist: r.ArtistName,
			Status: "official",
			Format: "Digital",
			Source: "itunes",
		}
		sr.Score = c.scorer.Score(sr, scoring.Context{
			ArtistNorm:    artistNorm,
			AlbumNorm:     albumNorm,
			ArtistRegion:  artistCtx.Region,
			ArtistScript:  artistCtx.Script,
			HasActivity:   artistCtx.HasActivity,
			ActivityBegin: artistCtx.ActivityBegin,
			ActivityEnd:   artistCtx.ActivityEnd,
			IsSoundtrack:  artistCtx.IsSoundtrack,
			CurrentYear:   time.Now().Year(),
		})
		out = append(out, sr)
	}
	return out, nil
}
