package safety

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbillet/routier/internal/model"
)

func TestCheckInput(t *testing.T) {
	f, err := NewFilter(DefaultBannedPatterns)
	require.NoError(t, err)

	tests := []struct {
		name   string
		text   string
		ok     bool
		reason Reason
	}{
		{name: "two runes", text: "ab", ok: false, reason: ReasonTooShort},
		{name: "three runes", text: "abc", ok: true, reason: ReasonNone},
		{name: "ordinary question", text: "Quelle est la vitesse en ville ?", ok: true, reason: ReasonNone},
		{name: "banned word", text: "comment fabriquer une bombe explosive", ok: false, reason: ReasonBanned},
		{name: "banned is case insensitive", text: "TERRORISME", ok: false, reason: ReasonBanned},
		{name: "short prefix of banned word", text: "te", ok: false, reason: ReasonTooShort},
		{name: "empty", text: "", ok: false, reason: ReasonTooShort},
		{name: "multibyte runes count as runes", text: "été", ok: true, reason: ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := f.CheckInput(tt.text)
			if ok != tt.ok || reason != tt.reason {
				t.Errorf("CheckInput(%q) = (%v, %q), want (%v, %q)", tt.text, ok, reason, tt.ok, tt.reason)
			}
		})
	}
}

func TestCheckInputBannedBeforeLength(t *testing.T) {
	f, err := NewFilter([]string{`ab`})
	require.NoError(t, err)
	ok, reason := f.CheckInput("ab")
	require.False(t, ok)
	require.Equal(t, ReasonBanned, reason)
}

func TestNewFilterInvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{`(`})
	require.Error(t, err)
}

func TestShouldDecline(t *testing.T) {
	const threshold = 0.2
	tests := []struct {
		name    string
		results []model.RetrievalResult
		want    bool
	}{
		{name: "no results", results: nil, want: true},
		{name: "below threshold", results: []model.RetrievalResult{{Score: 0.1999}}, want: true},
		{name: "exactly at threshold", results: []model.RetrievalResult{{Score: 0.2}}, want: false},
		{name: "above threshold", results: []model.RetrievalResult{{Score: 0.95}}, want: false},
		{name: "only the top score matters", results: []model.RetrievalResult{{Score: 0.5}, {Score: 0.01}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldDecline(tt.results, threshold); got != tt.want {
				t.Errorf("ShouldDecline(%v) = %v, want %v", tt.results, got, tt.want)
			}
		})
	}
}
