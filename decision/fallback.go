package decision

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/dlclark/regexp2"

	"github.com/sundial-audio/yearkeeper/models"
)

// FallbackAction is the verdict the Fallback Handler reaches for a
// proposed year.
type FallbackAction string

const (
	ActionApply    FallbackAction = "apply"
	ActionSkip     FallbackAction = "skip"
	ActionPreserve FallbackAction = "preserve"
)

// FallbackResult is what the Determinator does with a proposed year:
// Apply it, Skip the album (optionally marking pending with Reason), or
// Preserve the existing year.
type FallbackResult struct {
	Action FallbackAction
	Year   string
	Reason models.PendingReason
	// MarkNonDefinitive records that Year was applied but should still be
	// flagged for later verification (step 1: fallback disabled).
	MarkNonDefinitive bool
}

// FallbackConfig carries the Fallback Handler's thresholds plus the compiled
// special-pattern matchers (Special/Compilation/Reissue, from
// album_type_detection.*).
type FallbackConfig struct {
	Enabled                 bool
	AbsurdYearThreshold     int
	YearDifferenceThreshold int

	SpecialPatterns      []string
	CompilationPatterns  []string
	ReissuePatterns      []string
}

// FallbackHandler implements the seven-step fallback decision.
type FallbackHandler struct {
	cfg      FallbackConfig
	special  *patternSet
	compilation *patternSet
	reissue  *patternSet
}

// patternSet compiles a list of keyword patterns into regexp2 matchers,
// one per pattern: each keyword is QuoteMeta-escaped and wrapped as a
// case-insensitive `\b...\b` literal match, so no lookahead is used.
// A keyword whose expression fails to compile is skipped.
type patternSet struct {
	patterns []*regexp2.Regexp
	raw      []string
}

func compilePatternSet(patterns []string) *patternSet {
	ps := &patternSet{raw: patterns}
	for _, p := range patterns {
		expr := fmt.Sprintf(`(?i)\b%s\b`, regexp.QuoteMeta(p))
		re, err := regexp2.Compile(expr, regexp2.None)
		if err != nil {
			continue
		}
		ps.patterns = append(ps.patterns, re)
	}
	return ps
}

func (ps *patternSet) matches(s string) bool {
	for _, re := range ps.patterns {
		ok, err := re.MatchString(s)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// NewFallbackHandler compiles the special-pattern matchers once at
// construction.
func NewFallbackHandler(cfg FallbackConfig) *FallbackHandler {
	return &FallbackHandler{
		cfg:         cfg,
		special:     compilePatternSet(cfg.SpecialPatterns),
		compilation: compilePatternSet(cfg.CompilationPatterns),
		reissue:     compilePatternSet(cfg.ReissuePatterns),
	}
}

// Decide runs the seven-step decision. albumName is matched against the
// configured special-pattern lists; existingYear is the album's current
// most-common non-empty year ("" if none).
func (h *FallbackHandler) Decide(albumName string, proposed models.YearDecision, existingYear string) FallbackResult {
	// 1. Fallback feature disabled: apply but mark non-definitive.
	if !h.cfg.Enabled {
		return FallbackResult{Action: ActionApply, Year: proposed.Year, MarkNonDefinitive: true}
	}

	// 2. Definitive: apply immediately.
	if proposed.IsDefinitive {
		return FallbackResult{Action: ActionApply, Year: proposed.Year}
	}

	proposedYear, _ := strconv.Atoi(proposed.Year)

	// 3. Absurdly early year with nothing to preserve: mark and skip.
	if proposedYear > 0 && proposedYear < h.cfg.AbsurdYearThreshold && existingYear == "" {
		return FallbackResult{Action: ActionSkip, Reason: models.ReasonAbsurdYearNoExisting}
	}

	// 4. No existing year: nothing to preserve, apply.
	if existingYear == "" {
		return FallbackResult{Action: ActionApply, Year: proposed.Year}
	}

	// 5. Special album-name pattern match.
	switch {
	case h.special.matches(albumName):
		return FallbackResult{Action: ActionSkip, Reason: models.ReasonSpecialSpecial}
	case h.compilation.matches(albumName):
		return FallbackResult{Action: ActionSkip, Reason: models.ReasonSpecialCompilation}
	case h.reissue.matches(albumName):
		return FallbackResult{Action: ActionApply, Year: proposed.Year, Reason: models.ReasonSpecialReissue}
	}

	// 6. Suspicious year change: preserve.
	existingYearInt, _ := strconv.Atoi(existingYear)
	diff := proposedYear - existingYearInt
	if diff < 0 {
		diff = -diff
	}
	if diff > h.cfg.YearDifferenceThreshold {
		return FallbackResult{Action: ActionPreserve, Year: existingYear, Reason: models.ReasonSuspiciousYearChange}
	}

	// 7. Otherwise, apply.
	return FallbackResult{Action: ActionApply, Year: proposed.Year}
}
