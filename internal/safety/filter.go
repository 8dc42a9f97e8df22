package safety

import (
	"fmt"
	"regexp"

	"github.com/tbillet/routier/internal/model"
)

// Reason codes surfaced to the boundary layer when a query is rejected
// before retrieval.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonTooShort Reason = "too_short"
	ReasonBanned   Reason = "banned"
)

const minQueryRunes = 3

// DefaultBannedPatterns is the built-in denylist. It is a placeholder
// policy, intentionally minimal; deployments carrying real safety
// requirements inject their own patterns.
var DefaultBannedPatterns = []string{`terror|explos`}

// Filter rejects malformed or disallowed queries. It holds compiled
// case-insensitive denylist patterns and has no side effects.
type Filter struct {
	banned []*regexp.Regexp
}

func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile banned pattern %q: %w", p, err)
		}
		f.banned = append(f.banned, re)
	}
	return f, nil
}

// CheckInput accepts or rejects a query before any retrieval cost is spent.
// Denylist hits take precedence over the length check.
func (f *Filter) CheckInput(text string) (bool, Reason) {
	for _, re := range f.banned {
		if re.MatchString(text) {
			return false, ReasonBanned
		}
	}
	if len([]rune(text)) < minQueryRunes {
		return false, ReasonTooShort
	}
	return true, ReasonNone
}

// ShouldDecline is the confidence gate: decline when the best retrieval
// score falls strictly below the threshold. Scoring exactly at the threshold
// passes. An empty result set declines, since there is nothing to ground an
// answer on.
func ShouldDecline(results []model.RetrievalResult, threshold float32) bool {
	if len(results) == 0 {
		return true
	}
	return results[0].Score < threshold
}
