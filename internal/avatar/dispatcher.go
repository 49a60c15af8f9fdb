// Package avatar drives the on-screen avatar's expressions.
package avatar

import (
	"context"
	"time"

	"github.com/lexiqai/misa/internal/sentiment"
)

// ClearExpression is the hotkey that resets the avatar to neutral
const ClearExpression = "Remove Expressions"

// Dispatcher triggers a named expression hotkey
type Dispatcher interface {
	TriggerExpression(ctx context.Context, name string) error
}

// Nop is a Dispatcher for running without an avatar
type Nop struct{}

func (Nop) TriggerExpression(context.Context, string) error { return nil }

// emotes are short hotkey sequences layered on top of the mood expression
var emotes = map[sentiment.Mood][]string{
	sentiment.Happy:    {"blush", "wink", "smile"},
	sentiment.Sad:      {"look_down"},
	sentiment.Confused: {"look_up"},
	sentiment.Neutral:  {"blink"},
}

// Emotes returns the hotkey sequence for mood
func Emotes(mood sentiment.Mood) []string {
	if seq, ok := emotes[mood]; ok {
		return seq
	}
	return emotes[sentiment.Neutral]
}

// PerformEmotes triggers the mood's emote sequence with interval between
// steps. It stops at the first failure.
func PerformEmotes(ctx context.Context, d Dispatcher, mood sentiment.Mood, interval time.Duration) error {
	for i, name := range Emotes(mood) {
		if i > 0 && interval > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := d.TriggerExpression(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
