package tts

import "context"

// Synthesizer converts text to encoded speech audio (MP3)
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
