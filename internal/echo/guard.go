// Package echo keeps the assistant from answering its own voice.
package echo

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/lexiqai/misa/internal/state"
)

// DefaultThreshold is the similarity at or above which a phrase heard
// while speaking counts as echo.
const DefaultThreshold = 0.8

// DefaultWakeMarkers address the assistant (or tell it to stop) mid-speech
var DefaultWakeMarkers = []string{"misa", "meesa", "shut up"}

// Decision is the guard's verdict on a recognized phrase
type Decision int

const (
	Accept Decision = iota
	RejectEcho
	RejectNoise
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case RejectEcho:
		return "reject_echo"
	case RejectNoise:
		return "reject_noise"
	default:
		return "unknown"
	}
}

// Guard decides whether recognized text is a real user turn
type Guard struct {
	threshold float64
	markers   []string
}

// NewGuard creates a guard. Markers are matched case-insensitively as
// substrings; a zero threshold selects DefaultThreshold.
func NewGuard(threshold float64, markers []string) *Guard {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(markers) == 0 {
		markers = DefaultWakeMarkers
	}
	normalized := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			normalized = append(normalized, m)
		}
	}
	return &Guard{threshold: threshold, markers: normalized}
}

// ShouldAccept applies the echo rule against a speech state snapshot:
// while idle everything is accepted; while speaking, text too similar to
// what is being said is echo, and otherwise only addressed text passes.
func (g *Guard) ShouldAccept(candidate string, snap state.Snapshot) Decision {
	if !snap.Speaking {
		return Accept
	}
	if Similarity(candidate, snap.LastSpokenText) >= g.threshold {
		return RejectEcho
	}
	if g.HasWakeMarker(candidate) {
		return Accept
	}
	return RejectNoise
}

// HasWakeMarker reports whether text contains any wake or stop marker
func (g *Guard) HasWakeMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range g.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Similarity returns a case-insensitive ratio in [0,1]; 1 means identical.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
