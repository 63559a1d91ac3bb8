// Package lastfm implements the Last.fm provider client: a
// three-strategy cascade of album.getInfo with exact names,
// album.getInfo with a cleaned album name, then album.search with
// tolerant artist filtering.
package lastfm

import (
	"context"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/providers"
	"github.com/sundial-audio/yearkeeper/scoring"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

const apiURL = "https://ws.audioscrobbler.com/2.0/"

type Client struct {
	request        httpexec.Requester
	scorer         *scoring.Scorer
	apiKey         string
	reissueSuffixes []string
	logger         *log.Logger
}

func New(request httpexec.Requester, scorer *scoring.Scorer, apiKey string, reissueSuffixes []string) *Client {
	return &Client{
		request:         request,
		scorer:          scorer,
		apiKey:          apiKey,
		reissueSuffixes: reissueSuffixes,
		logger:          log.New(os.Stdout, "lastfm: ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (c *Client) Name() string { return "lastfm" }

type albumInfo struct {
	Album struct {
		Artist      string `json:"artist"`
		Name        string `json:"name"`
		ReleaseDate string `json:"releasedate"`
		Wiki        struct {
			Content string `json:"content"`
		} `json:"wiki"`
		Tags struct {
			Tag []struct {
				Name string `json:"name"`
			} `json:"tag"`
		} `json:"tags"`
	} `json:"album"`
}

type albumSearchResponse struct {
	Results struct {
		AlbumMatches struct {
			Album []struct {
				Artist string `json:"artist"`
				Name   string `json:"name"`
			} `json:"album"`
		} `json:"albummatches"`
	} `json:"results"`
}

func (c *Client) GetScoredReleases(ctx context.Context, artistNorm, albumNorm string, artistCtx providers.ArtistContext, artistOrig, albumOrig string) ([]models.ScoredRelease, error) {
	if info, err := c.getAlbumInfo(ctx, artistOrig, albumOrig); err == nil && info != nil {
		if sr := c.toScoredRelease(*info, artistNorm, albumNorm, artistCtx); sr != nil {
			return []models.ScoredRelease{*sr}, nil
		}
	}

	cleaned := cleanAlbumName(albumOrig, c.reissueSuffixes)
	if cleaned != albumOrig {
		if info, err := c.getAlbumInfo(ctx, artistOrig, cleaned); err == nil && info != nil {
			if sr := c.toScoredRelease(*info, artistNorm, albumNorm, artistCtx); sr != nil {
				return []models.ScoredRelease{*sr}, nil
			}
		}
	}

	matches, err := c.searchAlbums(ctx, albumOrig)
	if err != nil {
		return nil, err
	}

	var out []models.ScoredRelease
	for _, m := range matches {
		if !tolerantArtistMatch(m.Artist, artistNorm) {
			continue
		}
		info, err := c.getAlbumInfo(ctx, m.Artist, m.Name)
		if err != nil || info == nil {
			continue
		}
		if sr := c.toScoredRelease(*info, artistNorm, albumNorm, artistCtx); sr != nil {
			out = append(out, *sr)
		}
	}
	return out, nil
}

func (c *Client) toScoredRelease(info albumInfo, artistNorm, albumNorm string, artistCtx providers.ArtistContext) *models.ScoredRelease {
	year := extractYear(info)
	if year == "" {
		return nil
	}
	sr := models.ScoredRelease{
		Title:  info.Album.Name,
		Year:   year,
		Artist: info.Album.Artist,
		Source: "lastfm",
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
	return &sr
}

func (c *Client) getAlbumInfo(ctx context.Context, artist, album string) (*albumInfo, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "lastfm",
		URL:     apiURL,
		Params: map[string]string{
			"method":  "album.getinfo",
			"artist":  artist,
			"album":   album,
			"api_key": c.apiKey,
			"format":  "json",
		},
	})
	if err != nil || resp == nil {
		return nil, err
	}
	var parsed albumInfo
	if err := httpexec.Remarshal(resp, &parsed); err != nil {
		return nil, err
	}
	if parsed.Album.Name == "" {
		return nil, nil
	}
	return &parsed, nil
}

func (c *Client) searchAlbums(ctx context.Context, album string) ([]struct {
	Artist string `json:"artist"`
	Name   string `json:"name"`
}, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "lastfm",
		URL:     apiURL,
		Params: map[string]string{
			"method":  "album.search",
			"album":   album,
			"api_key": c.apiKey,
			"format":  "json",
		},
	})
	if err != nil || resp == nil {
		return nil, err
	}
	var parsed albumSearchResponse
	if err := httpexec.Remarshal(resp, &parsed); err != nil {
		return nil, err
	}
	return parsed.Results.AlbumMatches.Album, nil
}

// cleanAlbumName splits off any trailing ": subtitle" and strips
// configured reissue/remaster suffixes iteratively.
func cleanAlbumName(album string, suffixes []string) string {
	if idx := strings.Index(album, ":"); idx != -1 {
		album = album[:idx]
	}
	album = strings.TrimSpace(album)

	changed := true
	for changed {
		changed = false
		lower := strings.ToLower(album)
		for _, suffix := range suffixes {
			s := strings.ToLower(suffix)
			if strings.HasSuffix(lower, s) {
				album = strings.TrimSpace(album[:len(album)-len(suffix)])
				changed = true
				break
			}
		}
	}
	return album
}

var disambiguationSuffix = regexp.MustCompile(`\s*\(\d+\)$`)

// tolerantArtistMatch implements the "X, The" <-> "The X" and
// disambiguation-suffix-stripped, substring-fallback comparison.
func tolerantArtistMatch(candidate, artistNorm string) bool {
	c := textnorm.Normalize(disambiguationSuffix.ReplaceAllString(candidate, ""))
	if c == artistNorm {
		return true
	}
	if swapped := swapLeadingThe(c); swapped == artistNorm {
		return true
	}
	if swapped := swapLeadingThe(artistNorm); swapped == c {
		return true
	}
	return strings.Contains(c, artistNorm) || strings.Contains(artistNorm, c)
}

// swapLeadingThe turns "beatles, the" (or its normalized form "beatles
// the") into "the beatles", and "the beatles" into "beatles, the" (input
// is lowercased).
func swapLeadingThe(s string) string {
	if strings.HasSuffix(s, ", the") {
		return "the " + strings.TrimSuffix(s, ", the")
	}
	if strings.HasSuffix(s, " the") {
		return "the " + strings.TrimSuffix(s, " the")
	}
	if strings.HasPrefix(s, "the ") {
		return strings.TrimPrefix(s, "the ") + ", the"
	}
	return s
}

var yearInContent = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func extractYear(info albumInfo) string {
	if y := textnorm.CoerceYear(info.Album.ReleaseDate); y != "" {
		return y
	}
	if m := yearInContent.FindString(info.Album.ReleaseDate); m != "" {
		return m
	}
	if m := yearInContent.FindString(info.Album.Wiki.Content); m != "" {
		return m
	}
	for _, tag := range info.Album.Tags.Tag {
		if _, err := strconv.Atoi(tag.Name); err == nil && len(tag.Name) == 4 {
			return tag.Name
		}
	}
	return ""
}
