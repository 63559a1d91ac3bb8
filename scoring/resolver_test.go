package scoring

import (
	"testing"

	"github.com/sundial-audio/yearkeeper/models"
)

func baseResolverConfig() ResolverConfig {
	return ResolverConfig{
		MinValidYear:               1900,
		CurrentYear:                2024,
		DefinitiveScoreThreshold:   70,
		DefinitiveScoreDiff:        10,
		MinYearGapForReissueDetect: 4,
		MinReissueYearDifference:   4,
	}
}

func releases(yearScores map[string]float64, source string) []models.ScoredRelease {
	out := make([]models.ScoredRelease, 0, len(yearScores))
	for y, s := range yearScores {
		out = append(out, models.ScoredRelease{Year: y, Score: s, Source: source})
	}
	return out
}

// MusicBrainz 95/1973, Discogs 82/1974, iTunes 60/2011.
func TestResolveDarkSideOfTheMoonScenario(t *testing.T) {
	rel := []models.ScoredRelease{
		{Year: "1973", Score: 95, Source: "musicbrainz"},
		{Year: "1974", Score: 82, Source: "discogs"},
		{Year: "2011", Score: 60, Source: "itunes"},
	}
	got := Resolve(rel, baseResolverConfig())
	if got.Year != "1973" || !got.IsDefinitive {
		t.Errorf("got %+v, want {1973 true}", got)
	}
}

// Scenario 5: reissue detection prefers the earlier original release.
func TestResolveReissueDetectionPrefersOriginal(t *testing.T) {
	rel := releases(map[string]float64{"2020": 85, "2005": 82}, "discogs")
	cfg := baseResolverConfig()
	got := Resolve(rel, cfg)
	if got.Year != "2005" {
		t.Errorf("got year %q, want 2005", got.Year)
	}
}

// With three candidates, the earliest qualifying year wins even when a
// later, higher-scoring candidate is encountered first in score order.
func TestResolveReissueDetectionPicksEarliestNotFirstQualifier(t *testing.T) {
	rel := releases(map[string]float64{"2021": 90, "2015": 86, "2008": 85}, "discogs")
	cfg := baseResolverConfig()
	cfg.DefinitiveScoreDiff = 5
	got := Resolve(rel, cfg)
	if got.Year != "2008" {
		t.Errorf("got year %q, want 2008 (earliest candidate within threshold)", got.Year)
	}
}

func TestResolveFutureTopYearDefersToSecond(t *testing.T) {
	rel := releases(map[string]float64{"2025": 90, "2024": 85}, "musicbrainz")
	cfg := baseResolverConfig()
	got := Resolve(rel, cfg)
	if got.Year != "2024" {
		t.Errorf("got year %q, want 2024 (future candidate should defer)", got.Year)
	}
}

func TestResolveSingleCandidateOldLowScoreIsNonDefinitive(t *testing.T) {
	rel := releases(map[string]float64{"2000": 60}, "itunes")
	cfg := baseResolverConfig()
	got := Resolve(rel, cfg)
	if got.Year != "2000" || got.IsDefinitive {
		t.Errorf("got %+v, want {2000 false}", got)
	}
}

func TestResolveNoValidYearsReturnsEmpty(t *testing.T) {
	rel := []models.ScoredRelease{{Year: "", Score: 50}}
	got := Resolve(rel, baseResolverConfig())
	if got.Year != "" || got.IsDefinitive {
		t.Errorf("got %+v, want empty non-definitive", got)
	}
}
