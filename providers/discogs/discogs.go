// Package discogs implements the Discogs provider client: a single
// search call, with up to 10
// per-release detail fetches to recover a year the search result
// omitted, and reissue-keyword detection on the release title.
package discogs

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/providers"
	"github.com/sundial-audio/yearkeeper/scoring"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

const (
	searchURL      = "https://api.discogs.com/database/search"
	releaseURLBase = "https://api.discogs.com/releases/"
	maxDetailFetches = 10
)

type Client struct {
	request         httpexec.Requester
	scorer          *scoring.Scorer
	token           string
	reissueKeywords []string
	logger          *log.Logger
}

func New(request httpexec.Requester, scorer *scoring.Scorer, token string, reissueKeywords []string) *Client {
	return &Client{
		request:         request,
		scorer:          scorer,
		token:           token,
		reissueKeywords: reissueKeywords,
		logger:          log.New(os.Stdout, "discogs: ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (c *Client) Name() string { return "discogs" }

type searchResult struct {
	Title string `json:"title"` // "Artist - Album"
	Year  string `json:"year"`
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Format []string `json:"format"`
	Label []string `json:"label"`
	Catno string `json:"catno"`
	Country string `json:"country"`
	Status  string `json:"status"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type releaseDetail struct {
	Released string `json:"released"`
	Year     int    `json:"year"`
}

func (c *Client) GetScoredReleases(ctx context.Context, artistNorm, albumNorm string, artistCtx providers.ArtistContext, artistOrig, albumOrig string) ([]models.ScoredRelease, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "discogs",
		URL:     searchURL,
		Headers: c.authHeaders(),
		Params: map[string]string{
			"q":        fmt.Sprintf("%s %s", artistOrig, albumOrig),
			"type":     "release",
			"per_page": "25",
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
	detailFetches := 0

	for _, r := range parsed.Results {
		artist, title := splitDiscogsTitle(r.Title)
		if !matchesArtist(artist, artistNorm) {
			continue
		}

		year := r.Year
		if year == "" && detailFetches < maxDetailFetches {
			detailFetches++
			if fetched, err := c.fetchReleaseYear(ctx, r.ID); err == nil && fetched != "" {
				year = fetched
			}
		}
		if year == "" {
			continue
		}

		sr := models.ScoredRelease{
			Title:         title,
			Year:          year,
			Artist:        artist,
			AlbumType:     strings.ToLower(r.Type),
			Country:       r.Country,
			Status:        strings.ToLower(r.Status),
			CatalogNumber: r.Catno,
			Source:        "discogs",
			IsReissue:     containsReissueKeyword(r.Title, c.reissueKeywords),
		}
		if len(r.Label) > 0 {
			sr.Label = r.Label[0]
		}
		if len(r.Format) > 0 {
			sr.Format = strings.Join(r.Format, ", ")
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

func (c *Client) fetchReleaseYear(ctx context.Context, id int) (string, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "discogs",
		URL:     fmt.Sprintf("%s%d", releaseURLBase, id),
		Headers: c.authHeaders(),
	})
	if err != nil || resp == nil {
		return "", err
	}
	var detail releaseDetail
	if err := httpexec.Remarshal(resp, &detail); err != nil {
		return "", err
	}
	if y := textnorm.CoerceYear(detail.Released); y != "" {
		return y, nil
	}
	if detail.Year > 0 {
		return fmt.Sprintf("%04d", detail.Year), nil
	}
	return "", nil
}

func (c *Client) authHeaders() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Discogs token=" + c.token}
}

// splitDiscogsTitle splits Discogs' "Artist - Album" search result
// title into its two halves.
func splitDiscogsTitle(title string) (artist, album string) {
	idx := strings.Index(title, " - ")
	if idx == -1 {
		return "", title
	}
	return title[:idx], title[idx+3:]
}

func matchesArtist(candidateArtist, artistNorm string) bool {
	norm := textnorm.Normalize(candidateArtist)
	if norm == artistNorm {
		return true
	}
	return strings.Contains(norm, artistNorm) || strings.Contains(artistNorm, norm)
}

func containsReissueKeyword(title string, keywords []string) bool {
	lower := strings.ToLower(title)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
