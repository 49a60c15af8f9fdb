// Package playback speaks text through the synthesizer and the speaker.
package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog"

	"github.com/lexiqai/misa/internal/audio"
	"github.com/lexiqai/misa/internal/faults"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/tts"
)

// Speaker starts speaking text and returns immediately
type Speaker interface {
	Speak(ctx context.Context, text string) *Handle
}

// PCM is decoded, interleaved 16-bit audio
type PCM struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Decoder turns synthesized audio into PCM
type Decoder func(data []byte) (PCM, error)

// DecodeMP3 decodes MP3 into 16-bit stereo PCM
func DecodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("failed to open mp3 stream: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("failed to decode mp3: %w", err)
	}
	samples, err := audio.BytesToSamples(raw)
	if err != nil {
		return PCM{}, err
	}
	// go-mp3 always produces two channels
	return PCM{Samples: samples, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// Player implements Speaker over a Synthesizer and an audio Sink
type Player struct {
	synth  tts.Synthesizer
	sink   audio.Sink
	decode Decoder
	logger zerolog.Logger
}

// Option configures a Player
type Option func(*Player)

// WithDecoder replaces the MP3 decoder
func WithDecoder(d Decoder) Option {
	return func(p *Player) { p.decode = d }
}

// NewPlayer creates a player
func NewPlayer(synth tts.Synthesizer, sink audio.Sink, opts ...Option) *Player {
	p := &Player{
		synth:  synth,
		sink:   sink,
		decode: DecodeMP3,
		logger: observability.WithComponent("playback"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Speak synthesizes and plays text on its own goroutine. Empty text yields
// an already finished handle.
func (p *Player) Speak(ctx context.Context, text string) *Handle {
	if strings.TrimSpace(text) == "" {
		return doneHandle()
	}

	h := newHandle(ctx)
	go p.play(h, text)
	return h
}

func (p *Player) play(h *Handle, text string) {
	start := time.Now()
	err := p.render(h.ctx, text)

	status := "finished"
	switch {
	case h.ctx.Err() != nil:
		status = "cancelled"
		err = nil
	case err != nil:
		status = "error"
		err = faults.Wrap(faults.Playback, "playback", err)
		observability.RecordError("playback", "playback")
		p.logger.Error().Err(err).Str("text", text).Msg("Playback failed")
	}
	observability.ObservePlayback(start, status)

	h.finish(err)
}

func (p *Player) render(ctx context.Context, text string) error {
	encoded, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	pcm, err := p.decode(encoded)
	if err != nil {
		return err
	}

	observability.RecordAudioBytes("out", int64(len(pcm.Samples)*2))
	return p.sink.Play(ctx, pcm.Samples, pcm.SampleRate, pcm.Channels)
}

// SpeakAndWait speaks text and blocks until playback ends
func SpeakAndWait(ctx context.Context, s Speaker, text string) error {
	h := s.Speak(ctx, text)
	if err := h.Wait(ctx); err != nil {
		h.Cancel()
		return err
	}
	return nil
}
