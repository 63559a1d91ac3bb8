// Package musicbrainz implements the MusicBrainz provider client: a
// three-tier release-group search,
// concurrent release/media lookups for the top candidates, and the
// artist-activity-period / region lookups the API Orchestrator uses for
// scoring context and script-aware ordering.
package musicbrainz

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/sundial-audio/yearkeeper/httpexec"
	"github.com/sundial-audio/yearkeeper/models"
	"github.com/sundial-audio/yearkeeper/providers"
	"github.com/sundial-audio/yearkeeper/scoring"
	"github.com/sundial-audio/yearkeeper/textnorm"
)

const baseURL = "https://musicbrainz.org/ws/2"

// featCleaner strips "feat./ft./featuring ..." parenthetical credits
// from a query string before it's sent to MusicBrainz, using regexp2
// for the lookahead stdlib RE2 can't express.
var featCleaner = regexp2.MustCompile(`(?i)\s*[\(\[]?\b(feat\.?|ft\.?|featuring)\b.*?(?=[\)\]]|$)`, regexp2.None)

func cleanQueryTerm(s string) string {
	cleaned, err := featCleaner.Replace(s, "", -1, -1)
	if err != nil {
		return s
	}
	return strings.TrimSpace(cleaned)
}

// Client is the MusicBrainz provider client.
type Client struct {
	request httpexec.Requester
	scorer  *scoring.Scorer
	cacheTTL time.Duration
	logger  *log.Logger
}

func New(request httpexec.Requester, scorer *scoring.Scorer, cacheTTL time.Duration) *Client {
	return &Client{
		request:  request,
		scorer:   scorer,
		cacheTTL: cacheTTL,
		logger:   log.New(os.Stdout, "musicbrainz: ", log.LstdFlags|log.Lmsgprefix),
	}
}

func (c *Client) Name() string { return "musicbrainz" }

type releaseGroup struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	PrimaryType    string `json:"primary-type"`
	FirstReleaseDate string `json:"first-release-date"`
	Score          int    `json:"score"`
}

type releaseGroupSearchResponse struct {
	ReleaseGroups []releaseGroup `json:"release-groups"`
}

type release struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	Date           string `json:"date"`
	Country        string `json:"country"`
	Disambiguation string `json:"disambiguation"`
	ArtistCredit   []struct {
		Name   string `json:"name"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"artist-credit"`
}

type releaseSearchResponse struct {
	Releases []release `json:"releases"`
}

// GetScoredReleases runs the three-tier search cascade, fetches releases
// for the top 3 release groups concurrently, and scores every
// deduplicated release.
func (c *Client) GetScoredReleases(ctx context.Context, artistNorm, albumNorm string, artistCtx providers.ArtistContext, artistOrig, albumOrig string) ([]models.ScoredRelease, error) {
	groups, err := c.searchReleaseGroups(ctx, artistNorm, albumNorm, artistOrig, albumOrig)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	if len(groups) > 3 {
		groups = groups[:3]
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		seen    = make(map[string]bool)
		results []models.ScoredRelease
	)

	for _, g := range groups {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			releases, err := c.fetchReleasesForGroup(ctx, g.ID)
			if err != nil {
				c.logger.Printf("fetching releases for group %s: %v", g.ID, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range releases {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
				sr := c.toScoredRelease(r, g)
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
				results = append(results, sr)
			}
		}()
	}
	wg.Wait()

	return results, nil
}

func (c *Client) toScoredRelease(r release, g releaseGroup) models.ScoredRelease {
	artist := ""
	if len(r.ArtistCredit) > 0 {
		artist = r.ArtistCredit[0].Artist.Name
	}
	return models.ScoredRelease{
		Title:          r.Title,
		Year:           textnorm.CoerceYear(r.Date),
		Artist:         artist,
		AlbumType:      strings.ToLower(g.PrimaryType),
		Country:        r.Country,
		Status:         strings.ToLower(r.Status),
		Disambiguation: r.Disambiguation,
		Source:         "musicbrainz",
	}
}

// searchReleaseGroups runs the three-tier cascade: a fielded precise
// query, a broader query, and an album-only query. The broader and
// album-only tiers pass through filterByArtist, which keeps every group,
// so their results are not narrowed by artist.
func (c *Client) searchReleaseGroups(ctx context.Context, artistNorm, albumNorm, artistOrig, albumOrig string) ([]releaseGroup, error) {
	artist := cleanQueryTerm(artistOrig)
	album := cleanQueryTerm(albumOrig)

	precise := fmt.Sprintf(`artist:"%s" AND releasegroup:"%s"`, escapeLucene(artist), escapeLucene(album))
	if groups, err := c.runReleaseGroupQuery(ctx, precise); err == nil && len(groups) > 0 {
		return groups, nil
	}

	broad := fmt.Sprintf("%s %s", artist, album)
	if groups, err := c.runReleaseGroupQuery(ctx, broad); err == nil {
		filtered := filterByArtist(groups, artistNorm)
		if len(filtered) > 0 {
			return filtered, nil
		}
	}

	albumOnly := fmt.Sprintf(`releasegroup:"%s"`, escapeLucene(album))
	groups, err := c.runReleaseGroupQuery(ctx, albumOnly)
	if err != nil {
		return nil, err
	}
	return filterByArtist(groups, artistNorm), nil
}

// filterByArtist returns groups unchanged: releaseGroup carries no
// artist-credit data, so no group is dropped for a differing artist.
// The releases fetched for these groups are scored against the artist
// afterwards, but not filtered by it.
func filterByArtist(groups []releaseGroup, _ string) []releaseGroup {
	return groups
}

func (c *Client) runReleaseGroupQuery(ctx context.Context, query string) ([]releaseGroup, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "musicbrainz",
		URL:     baseURL + "/release-group",
		Params: map[string]string{
			"query": query,
			"fmt":   "json",
			"limit": "10",
		},
	})
	if err != nil || resp == nil {
		return nil, err
	}

	var parsed releaseGroupSearchResponse
	if err := httpexec.Remarshal(resp, &parsed); err != nil {
		return nil, err
	}
	sort.SliceStable(parsed.ReleaseGroups, func(i, j int) bool {
		return parsed.ReleaseGroups[i].Score > parsed.ReleaseGroups[j].Score
	})
	return parsed.ReleaseGroups, nil
}

func (c *Client) fetchReleasesForGroup(ctx context.Context, groupID string) ([]release, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "musicbrainz",
		URL:     baseURL + "/release",
		Params: map[string]string{
			"release-group": groupID,
			"fmt":           "json",
			"inc":           "media+artist-credits",
			"limit":         "25",
		},
	})
	if err != nil || resp == nil {
		return nil, err
	}
	var parsed releaseSearchResponse
	if err := httpexec.Remarshal(resp, &parsed); err != nil {
		return nil, err
	}
	return parsed.Releases, nil
}

// GetArtistActivityPeriod returns the artist's (begin, end) release
// years from MusicBrainz's artist lookup. end is 0 when the artist is
// still active or the end date is unknown.
func (c *Client) GetArtistActivityPeriod(ctx context.Context, artist string) (begin, end int, err error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "musicbrainz",
		URL:     baseURL + "/artist",
		Params: map[string]string{
			"query": fmt.Sprintf(`artist:"%s"`, escapeLucene(artist)),
			"fmt":   "json",
			"limit": "1",
		},
	})
	if err != nil || resp == nil {
		return 0, 0, err
	}

	var parsed struct {
		Artists []struct {
			LifeSpan struct {
				Begin string `json:"begin"`
				End   string `json:"end"`
			} `json:"life-span"`
			Area struct {
				Name string `json:"name"`
			} `json:"area"`
		} `json:"artists"`
	}
	if err := httpexec.Remarshal(resp, &parsed); err != nil || len(parsed.Artists) == 0 {
		return 0, 0, err
	}

	beginStr := textnorm.CoerceYear(parsed.Artists[0].LifeSpan.Begin)
	endStr := textnorm.CoerceYear(parsed.Artists[0].LifeSpan.End)
	beginYear, _ := atoiSafe(beginStr)
	endYear, _ := atoiSafe(endStr)
	return beginYear, endYear, nil
}

// GetArtistRegion returns the artist's area name, if MusicBrainz has one
// on file.
func (c *Client) GetArtistRegion(ctx context.Context, artist string) (string, error) {
	resp, err := c.request(ctx, httpexec.Request{
		APIName: "musicbrainz",
		URL:     baseURL + "/artist",
		Params: map[string]string{
			"query": fmt.Sprintf(`artist:"%s"`, escapeLucene(artist)),
			"fmt":   "json",
			"limit": "1",
		},
	})
	if err != nil || resp == nil {
		return "", err
	}
	var parsed struct {
		Artists []struct {
			Area struct {
				Name string `json:"name"`
			} `json:"area"`
		} `json:"artists"`
	}
	if err := httpexec.Remarshal(resp, &parsed); err != nil || len(parsed.Artists) == 0 {
		return "", err
	}
	return parsed.Artists[0].Area.Name, nil
}

func escapeLucene(s string) string {
	replacer := strings.NewReplacer(
		`"`, `\"`, `\`, `\\`, `(`, `\(`, `)`, `\)`,
		`[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`, `:`, `\:`,
	)
	return replacer.Replace(s)
}

func atoiSafe(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
