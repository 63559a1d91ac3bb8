// Package scoring implements the Release Scorer: a configurable additive/subtractive term set that ranks one
// candidate ScoredRelease, plus the YearScoreResolver that aggregates
// many scored releases into a single (year, is_definitive) verdict.
package scoring

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/sundial-audio/yearkeeper/models"
)

const veryHighScoreThreshold = 75

// Context carries the per-album facts the scorer needs beyond the
// candidate release itself: the normalized query, the artist's known
// activity window and region (from MusicBrainz), and the current year
// (for future-year penalties).
type Context struct {
	ArtistNorm      string
	AlbumNorm       string
	ArtistRegion    string
	ArtistScript    string // DetectScript(artist), used for cross-script penalty
	HasActivity     bool
	ActivityBegin   int
	ActivityEnd     int // 0 means "still active / unknown"
	CurrentYear     int
	IsSoundtrack    bool
}

// Weights holds every configurable scoring term from
// "year_retrieval.scoring", loaded once from viper at construction.
type Weights struct {
	BaseMusicBrainz float64
	BaseDiscogs     float64
	BaseLastFM      float64
	BaseITunes      float64

	ArtistExactMatchBonus float64
	AlbumExactMatchBonus  float64
	PerfectMatchBonus     float64

	AlbumVariationBonus   float64
	AlbumSubstringPenalty float64
	AlbumUnrelatedPenalty float64

	MBReleaseGroupMatchBonus float64

	TypeAlbumBonus            float64
	TypeEPSinglePenalty       float64
	TypeCompilationLivePenalty float64

	StatusOfficialBonus       float64
	StatusBootlegPromoPenalty float64

	ReissuePenalty float64

	YearDiffScalePenaltyCap  float64
	YearBeforeActivityPenalty float64
	YearAfterActivityPenalty float64
	YearNearBeginBonus       float64

	ArtistRegionMatchBonus float64
	MajorMarketBonus       float64

	SourceBonusMusicBrainz float64
	SourceBonusDiscogs     float64
	SourceBonusITunes      float64

	FutureYearPenalty         float64
	CrossScriptArtistPenalty  float64
	SoundtrackCompensation    float64

	PreferredCountries []string
	MajorMarketCodes   []string
}

// LoadWeights reads every scoring term from viper.
func LoadWeights() Weights {
	p := "year_retrieval.scoring."
	return Weights{
		BaseMusicBrainz: viper.GetFloat64(p + "base_score_musicbrainz"),
		BaseDiscogs:     viper.GetFloat64(p + "base_score_discogs"),
		BaseLastFM:      viper.GetFloat64(p + "base_score_lastfm"),
		BaseITunes:      viper.GetFloat64(p + "base_score_itunes"),

		ArtistExactMatchBonus: viper.GetFloat64(p + "artist_exact_match_bonus"),
		AlbumExactMatchBonus:  viper.GetFloat64(p + "album_exact_match_bonus"),
		PerfectMatchBonus:     viper.GetFloat64(p + "perfect_match_bonus"),

		AlbumVariationBonus:   viper.GetFloat64(p + "album_variation_bonus"),
		AlbumSubstringPenalty: viper.GetFloat64(p + "album_substring_penalty"),
		AlbumUnrelatedPenalty: viper.GetFloat64(p + "album_unrelated_penalty"),

		MBReleaseGroupMatchBonus: viper.GetFloat64(p + "mb_release_group_match_bonus"),

		TypeAlbumBonus:             viper.GetFloat64(p + "type_album_bonus"),
		TypeEPSinglePenalty:        viper.GetFloat64(p + "type_ep_single_penalty"),
		TypeCompilationLivePenalty: viper.GetFloat64(p + "type_compilation_live_penalty"),

		StatusOfficialBonus:       viper.GetFloat64(p + "status_official_bonus"),
		StatusBootlegPromoPenalty: viper.GetFloat64(p + "status_bootleg_promo_penalty"),

		ReissuePenalty: viper.GetFloat64(p + "reissue_penalty"),

		YearDiffScalePenaltyCap:   viper.GetFloat64(p + "year_diff_scale_penalty_cap"),
		YearBeforeActivityPenalty: viper.GetFloat64(p + "year_before_activity_penalty"),
		YearAfterActivityPenalty:  viper.GetFloat64(p + "year_after_activity_penalty"),
		YearNearBeginBonus:        viper.GetFloat64(p + "year_near_begin_bonus"),

		ArtistRegionMatchBonus: viper.GetFloat64(p + "artist_region_match_bonus"),
		MajorMarketBonus:       viper.GetFloat64(p + "major_market_bonus"),

		SourceBonusMusicBrainz: viper.GetFloat64(p + "source_bonus_musicbrainz"),
		SourceBonusDiscogs:     viper.GetFloat64(p + "source_bonus_discogs"),
		SourceBonusITunes:      viper.GetFloat64(p + "source_bonus_itunes"),

		FutureYearPenalty:        viper.GetFloat64(p + "future_year_penalty"),
		CrossScriptArtistPenalty: viper.GetFloat64(p + "cross_script_artist_penalty"),
		SoundtrackCompensation:   viper.GetFloat64(p + "soundtrack_compensation"),

		PreferredCountries: viper.GetStringSlice("year_retrieval.logic.preferred_countries"),
		MajorMarketCodes:   viper.GetStringSlice("year_retrieval.logic.major_market_codes"),
	}
}

// Scorer applies Weights to one candidate ScoredRelease at a time.
type Scorer struct {
	w Weights
}

func New(w Weights) *Scorer {
	return &Scorer{w: w}
}

// Score computes the additive/subtractive total for one candidate
// release6. release.Year is assumed already
// coerced to a plain 4-digit string by the caller.
func (s *Scorer) Score(release models.ScoredRelease, ctx Context) float64 {
	w := s.w
	score := s.baseScore(release.Source)

	titleNorm := normalize(release.Title)
	artistNorm := normalize(release.Artist)

	artistExact := artistNorm != "" && artistNorm == ctx.ArtistNorm
	albumExact := titleNorm != "" && titleNorm == ctx.AlbumNorm

	if artistExact {
		score += w.ArtistExactMatchBonus
	}
	if albumExact {
		score += w.AlbumExactMatchBonus
	}
	if artistExact && albumExact {
		score += w.PerfectMatchBonus
	}

	switch {
	case albumExact:
		// already counted above
	case ctx.AlbumNorm != "" && titleNorm != "" && strings.Contains(titleNorm, ctx.AlbumNorm):
		score += w.AlbumVariationBonus
	case ctx.AlbumNorm != "" && titleNorm != "" && (strings.Contains(ctx.AlbumNorm, titleNorm) || strings.Contains(titleNorm, ctx.AlbumNorm)):
		score += w.AlbumSubstringPenalty
	case titleNorm != "":
		score += w.AlbumUnrelatedPenalty
	}

	if release.Source == "musicbrainz" && release.Disambiguation != "" {
		score += w.MBReleaseGroupMatchBonus
	}

	switch strings.ToLower(release.AlbumType) {
	case "album":
		score += w.TypeAlbumBonus
	case "ep", "single":
		score += w.TypeEPSinglePenalty
	case "compilation", "live":
		score += w.TypeCompilationLivePenalty
	}

	switch strings.ToLower(release.Status) {
	case "official":
		score += w.StatusOfficialBonus
	case "bootleg", "promotion", "promo":
		score += w.StatusBootlegPromoPenalty
	}

	if release.IsReissue {
		score += w.ReissuePenalty
	}

	if year, ok := yearAsInt(release.Year); ok {
		if ctx.HasActivity {
			score += s.activityPenalty(year, ctx, w)
		}
		if year > ctx.CurrentYear {
			score += w.FutureYearPenalty
		}
	}

	if release.Country != "" {
		if containsFold(w.PreferredCountries, release.Country) {
			score += w.ArtistRegionMatchBonus
		}
		if containsFold(w.MajorMarketCodes, release.Country) {
			score += w.MajorMarketBonus
		}
	}

	switch release.Source {
	case "musicbrainz":
		score += w.SourceBonusMusicBrainz
	case "discogs":
		score += w.SourceBonusDiscogs
	case "itunes":
		score += w.SourceBonusITunes
	}

	if ctx.ArtistScript != "" && ctx.ArtistScript != "latin" && looksLatin(release.Artist) {
		score += w.CrossScriptArtistPenalty
	}

	if ctx.IsSoundtrack {
		score += w.SoundtrackCompensation
	}

	return score
}

func (s *Scorer) baseScore(source string) float64 {
	switch source {
	case "musicbrainz":
		return s.w.BaseMusicBrainz
	case "discogs":
		return s.w.BaseDiscogs
	case "lastfm":
		return s.w.BaseLastFM
	case "itunes":
		return s.w.BaseITunes
	default:
		return 0
	}
}

// activityPenalty scales a year-vs-artist-activity penalty: capped
// linear penalty for distance before the artist's first release, a
// flat penalty for years after the artist's known end, and a small
// bonus for years right at the start of the artist's career.
func (s *Scorer) activityPenalty(year int, ctx Context, w Weights) float64 {
	if year < ctx.ActivityBegin {
		diff := ctx.ActivityBegin - year
		penalty := -float64(diff) * 2
		if penalty < w.YearDiffScalePenaltyCap {
			penalty = w.YearDiffScalePenaltyCap
		}
		penalty += w.YearBeforeActivityPenalty
		return penalty
	}
	if ctx.ActivityEnd > 0 && year > ctx.ActivityEnd {
		return w.YearAfterActivityPenalty
	}
	if year-ctx.ActivityBegin <= 2 {
		return w.YearNearBeginBonus
	}
	return 0
}

func yearAsInt(y string) (int, bool) {
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

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func looksLatin(s string) bool {
	for _, r := range s {
		if r > 0x2AF && (r < 0xA720 || r > 0xA7FF) {
			return false
		}
	}
	return s != ""
}
