// Package sentiment maps reply text to a coarse mood.
package sentiment

import (
	"strings"

	"github.com/jonreiter/govader"
)

// Mood selects the avatar expression and emotes for a reply
type Mood string

const (
	Happy    Mood = "happy"
	Sad      Mood = "sad"
	Confused Mood = "confused"
	Neutral  Mood = "neutral"
)

const (
	happyAbove = 0.4
	sadBelow   = -0.4
)

// Classifier scores text polarity in [-1, 1]
type Classifier interface {
	Polarity(text string) float64
}

// Vader scores polarity with the VADER lexicon
type Vader struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVader loads the VADER lexicon
func NewVader() *Vader {
	return &Vader{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Polarity returns VADER's compound score
func (v *Vader) Polarity(text string) float64 {
	return v.analyzer.PolarityScores(text).Compound
}

// Classify applies the mood rule: strong positive is happy, strong
// negative is sad, an open question is confused, anything else neutral.
func Classify(polarity float64, text string) Mood {
	switch {
	case polarity > happyAbove:
		return Happy
	case polarity < sadBelow:
		return Sad
	case strings.Contains(text, "?"):
		return Confused
	default:
		return Neutral
	}
}
