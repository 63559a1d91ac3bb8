package scoring

import (
	"sort"

	"github.com/sundial-audio/yearkeeper/models"
)

// ResolverConfig carries the thresholds the aggregation algorithm reads
// from "year_retrieval.logic".
type ResolverConfig struct {
	MinValidYear               int
	CurrentYear                int
	DefinitiveScoreThreshold   float64
	DefinitiveScoreDiff        float64
	MinYearGapForReissueDetect int
	MinReissueYearDifference   int
}

// yearScore is one aggregated (year, best score) candidate.
type yearScore struct {
	year  int
	score float64
}

// Resolve aggregates candidate scores by year, picks the top
// candidate (preferring an earlier original release over a close-scoring
// reissue), and decides definitiveness.
func Resolve(releases []models.ScoredRelease, cfg ResolverConfig) models.YearDecision {
	byYear := make(map[int]float64)
	for _, r := range releases {
		year, ok := yearAsInt(r.Year)
		if !ok {
			continue
		}
		if year < cfg.MinValidYear || year > cfg.CurrentYear+1 {
			continue
		}
		if existing, ok := byYear[year]; !ok || r.Score > existing {
			byYear[year] = r.Score
		}
	}

	if len(byYear) == 0 {
		return models.YearDecision{Year: "", IsDefinitive: false}
	}

	candidates := make([]yearScore, 0, len(byYear))
	for y, s := range byYear {
		candidates = append(candidates, yearScore{year: y, score: s})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].year < candidates[j].year
	})

	top := candidates[0]

	// Step 4: a future top candidate close to the second (non-future)
	// candidate defers to that second candidate.
	if top.year > cfg.CurrentYear && len(candidates) > 1 {
		second := candidates[1]
		if second.year <= cfg.CurrentYear && top.score-second.score < cfg.DefinitiveScoreDiff {
			top = second
		}
	}

	// Step 5: original-release preference. Among all candidates at least
	// MinReissueYearDifference years earlier than top and within
	// effectiveThreshold of its score, the earliest year wins, not the
	// first one encountered in score order. effectiveThreshold doubles
	// when the full candidate set spans a wide year range and top isn't
	// already the earliest year in it, since a wide spread is itself a
	// sign top is a reissue of something older.
	if top.year <= cfg.CurrentYear {
		minYear, maxYear := candidates[0].year, candidates[0].year
		for _, c := range candidates {
			if c.year < minYear {
				minYear = c.year
			}
			if c.year > maxYear {
				maxYear = c.year
			}
		}
		effectiveThreshold := cfg.DefinitiveScoreDiff
		if maxYear-minYear > cfg.MinYearGapForReissueDetect && top.year > minYear {
			effectiveThreshold = cfg.DefinitiveScoreDiff * 2
		}

		var valid []yearScore
		for _, c := range candidates {
			if c.year >= top.year {
				continue
			}
			scoreDiff := top.score - c.score
			yearDiff := top.year - c.year
			if scoreDiff <= effectiveThreshold && yearDiff >= cfg.MinReissueYearDifference {
				valid = append(valid, c)
			}
			if scoreDiff > effectiveThreshold {
				break
			}
		}

		for _, c := range valid {
			if c.year < top.year {
				top = c
			}
		}
	}

	isFuture := top.year > cfg.CurrentYear

	var second yearScore
	hasSecond := false
	for _, c := range candidates {
		if c.year == top.year {
			continue
		}
		if (c.year > cfg.CurrentYear) != isFuture {
			continue
		}
		second = c
		hasSecond = true
		break
	}

	scoreConflict := hasSecond && (top.score-second.score) < cfg.DefinitiveScoreDiff
	highScoreMet := top.score >= cfg.DefinitiveScoreThreshold
	veryHighScore := top.score >= veryHighScoreThreshold

	definitive := highScoreMet && !isFuture && (veryHighScore || !scoreConflict)

	if len(candidates) == 1 {
		age := cfg.CurrentYear - top.year
		if age > 3 && top.score < 85 {
			definitive = false
		}
	}

	return models.YearDecision{Year: formatYear(top.year), IsDefinitive: definitive}
}

func formatYear(y int) string {
	digits := [4]byte{}
	for i := 3; i >= 0; i-- {
		digits[i] = byte('0' + y%10)
		y /= 10
	}
	return string(digits[:])
}
