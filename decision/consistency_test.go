package decision

import (
	"testing"

	"github.com/sundial-audio/yearkeeper/models"
)

func track(year, releaseYear string) models.Track {
	return models.Track{Year: year, ReleaseYear: releaseYear}
}

func baseConsistencyConfig() ConsistencyConfig {
	return ConsistencyConfig{DominanceMinShare: 0.5, ParityThreshold: 1, CurrentYear: 2026}
}

func TestGetDominantYearMajorityWins(t *testing.T) {
	tracks := []models.Track{
		track("1973", ""), track("1973", ""), track("1973", ""), track("1980", ""),
	}
	year, ok := GetDominantYear(tracks, baseConsistencyConfig())
	if !ok || year != "1973" {
		t.Fatalf("got (%q, %v), want (1973, true)", year, ok)
	}
}

func TestGetDominantYearBelowShareForcesAPILookup(t *testing.T) {
	tracks := []models.Track{
		track("1973", ""), track("", ""), track("", ""), track("", ""),
	}
	_, ok := GetDominantYear(tracks, baseConsistencyConfig())
	if ok {
		t.Fatalf("expected no dominant year when leader covers < 50%% of tracks")
	}
}

func TestGetDominantYearParityForcesAPILookup(t *testing.T) {
	tracks := []models.Track{
		track("1973", ""), track("1973", ""), track("1980", ""), track("1980", ""),
	}
	_, ok := GetDominantYear(tracks, baseConsistencyConfig())
	if ok {
		t.Fatalf("expected parity (top two within threshold) to force API lookup")
	}
}

func TestGetDominantYearSharedYearDespiteReleaseYearDisagreement(t *testing.T) {
	tracks := []models.Track{
		track("1973", "1973-03-01"), track("1973", "1973-03-24"), track("1973", ""),
	}
	year, ok := GetDominantYear(tracks, baseConsistencyConfig())
	if !ok || year != "1973" {
		t.Fatalf("got (%q, %v), want (1973, true) despite release_year disagreement", year, ok)
	}
}

func TestGetConsensusReleaseYearAllAgree(t *testing.T) {
	tracks := []models.Track{
		track("", "1973"), track("", "1973"), track("", ""),
	}
	year, ok := GetConsensusReleaseYear(tracks, baseConsistencyConfig())
	if !ok || year != "1973" {
		t.Fatalf("got (%q, %v), want (1973, true)", year, ok)
	}
}

func TestGetConsensusReleaseYearDisagreementFails(t *testing.T) {
	tracks := []models.Track{
		track("", "1973"), track("", "1980"),
	}
	_, ok := GetConsensusReleaseYear(tracks, baseConsistencyConfig())
	if ok {
		t.Fatalf("expected no consensus when release_year fields disagree")
	}
}

func TestGetConsensusReleaseYearImplausibleFails(t *testing.T) {
	tracks := []models.Track{
		track("", "1850"), track("", "1850"),
	}
	_, ok := GetConsensusReleaseYear(tracks, baseConsistencyConfig())
	if ok {
		t.Fatalf("expected no consensus for an implausible year")
	}
}

func TestIdentifyAnomalousTracks(t *testing.T) {
	tracks := []models.Track{
		track("1973", ""), track("1973", ""), track("1980", ""), track("", ""),
	}
	anomalies := IdentifyAnomalousTracks(tracks, "1973", baseConsistencyConfig())
	if len(anomalies) != 1 || anomalies[0].Year != "1980" {
		t.Fatalf("got %+v, want exactly the 1980 track", anomalies)
	}
}

func TestMostCommonYearTieBreaksLexicographically(t *testing.T) {
	tracks := []models.Track{track("1980", ""), track("1973", "")}
	year, ok := MostCommonYear(tracks)
	if !ok || year != "1973" {
		t.Fatalf("got (%q, %v), want (1973, true)", year, ok)
	}
}
