// Package decision implements the Year Decision Engine: the Consistency Checker, Determinator, and Fallback Handler
// that together turn one album's tracks (plus cache and API lookups)
// into a single YearDecision.
package decision

import (
	"sort"

	"github.com/sundial-audio/yearkeeper/models"
)

// ConsistencyConfig carries the thresholds this package reads from
// year_retrieval.logic.
type ConsistencyConfig struct {
	DominanceMinShare float64
	ParityThreshold   int
	CurrentYear       int
}

// GetDominantYear reports a year as dominant iff it covers at
// least DominanceMinShare of the full track list. Ties within
// ParityThreshold of each other are treated as parity (force API lookup,
// ok=false) even if the leader alone would pass the share threshold.
func GetDominantYear(tracks []models.Track, cfg ConsistencyConfig) (year string, ok bool) {
	if len(tracks) == 0 {
		return "", false
	}

	counts := make(map[string]int)
	for _, t := range tracks {
		if models.IsEmptyYear(t.Year) {
			continue
		}
		counts[t.Year]++
	}
	if len(counts) == 0 {
		return "", false
	}

	// Special case: every track shares the same year even though their
	// release_year fields disagree.
	if allSameYear(tracks) {
		return tracks[0].Year, true
	}

	type entry struct {
		year  string
		count int
	}
	var ranked []entry
	for y, c := range counts {
		ranked = append(ranked, entry{y, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].year < ranked[j].year
	})

	top := ranked[0]
	share := float64(top.count) / float64(len(tracks))
	if share < cfg.DominanceMinShare {
		return "", false
	}

	if len(ranked) > 1 {
		second := ranked[1]
		if top.count-second.count <= cfg.ParityThreshold {
			return "", false
		}
	}

	return top.year, true
}

// allSameYear reports whether every track in the list has the identical
// non-empty Year value.
func allSameYear(tracks []models.Track) bool {
	first := ""
	for i, t := range tracks {
		if models.IsEmptyYear(t.Year) {
			return false
		}
		if i == 0 {
			first = t.Year
			continue
		}
		if t.Year != first {
			return false
		}
	}
	return first != ""
}

// GetConsensusReleaseYear returns the shared
// release_year across every track that has one, provided it's plausible.
// Tracks with an empty release_year are ignored; any disagreement among
// the rest forfeits consensus.
func GetConsensusReleaseYear(tracks []models.Track, cfg ConsistencyConfig) (year string, ok bool) {
	consensus := ""
	seen := false
	for _, t := range tracks {
		if models.IsEmptyYear(t.ReleaseYear) {
			continue
		}
		if !seen {
			consensus = t.ReleaseYear
			seen = true
			continue
		}
		if t.ReleaseYear != consensus {
			return "", false
		}
	}
	if !seen || !models.IsValidYear(consensus, cfg.CurrentYear) {
		return "", false
	}
	return consensus, true
}

// IdentifyAnomalousTracks returns every track whose Year is valid but
// differs from dominantYear, for bulk correction.
func IdentifyAnomalousTracks(tracks []models.Track, dominantYear string, cfg ConsistencyConfig) []models.Track {
	var anomalies []models.Track
	for _, t := range tracks {
		if models.IsEmptyYear(t.Year) {
			continue
		}
		if !models.IsValidYear(t.Year, cfg.CurrentYear) {
			continue
		}
		if t.Year != dominantYear {
			anomalies = append(anomalies, t)
		}
	}
	return anomalies
}

// MostCommonYear returns the most frequent non-empty Year across tracks,
// used by the Fallback Handler to extract "the existing year"
// for an album. Ties break on the lexicographically smaller year for
// determinism.
func MostCommonYear(tracks []models.Track) (year string, ok bool) {
	counts := make(map[string]int)
	for _, t := range tracks {
		if models.IsEmptyYear(t.Year) {
			continue
		}
		counts[t.Year]++
	}
	if len(counts) == 0 {
		return "", false
	}
	best := ""
	bestCount := -1
	for y, c := range counts {
		if c > bestCount || (c == bestCount && y < best) {
			best = y
			bestCount = c
		}
	}
	return best, true
}

// UniqueNonEmptyYearCount counts distinct non-empty Year values across
// tracks, used when checking for a suspicious album.
func UniqueNonEmptyYearCount(tracks []models.Track) int {
	seen := make(map[string]bool)
	for _, t := range tracks {
		if models.IsEmptyYear(t.Year) {
			continue
		}
		seen[t.Year] = true
	}
	return len(seen)
}
