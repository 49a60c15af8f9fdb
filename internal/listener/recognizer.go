package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/misa/internal/audio"
	"github.com/lexiqai/misa/internal/faults"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/state"
	"github.com/lexiqai/misa/internal/stt"
)

// Phrase is what one capture cycle heard
type Phrase struct {
	// Text is empty when nothing was said
	Text string
	// Speech is the assistant's speech state while the phrase was heard:
	// the latest snapshot taken with Speaking set during the cycle's speech
	// activity, else the snapshot at the first activity.
	Speech state.Snapshot
}

// Recognizer turns one bounded window of speech into text
type Recognizer interface {
	CaptureCycle(ctx context.Context) (Phrase, error)
	Pause()
	Resume()
}

// Timing bounds a capture cycle
type Timing struct {
	// Silence after speech that ends the cycle
	Silence time.Duration
	// Window in which speech must start, or the cycle ends empty
	Startup time.Duration
	// Hard cap on one cycle regardless of activity
	MaxCycle time.Duration
}

// DefaultTiming returns the conversational defaults
func DefaultTiming() Timing {
	return Timing{
		Silence:  2500 * time.Millisecond,
		Startup:  time.Second,
		MaxCycle: 30 * time.Second,
	}
}

// VoiceRecognizer streams microphone frames to a transcriber and collects
// final transcripts until the speaker goes quiet.
type VoiceRecognizer struct {
	source      audio.Source
	transcriber stt.Transcriber
	vad         *audio.VADDetector
	speech      state.View
	timing      Timing
	logger      zerolog.Logger
}

// NewVoiceRecognizer wires a source to a transcriber. speech may be nil, in
// which case phrases carry a zero snapshot.
func NewVoiceRecognizer(source audio.Source, transcriber stt.Transcriber, vad *audio.VADDetector, speech state.View, timing Timing) *VoiceRecognizer {
	if vad == nil {
		vad = audio.NewVADDetector(nil)
	}
	if timing.MaxCycle <= 0 {
		timing.MaxCycle = DefaultTiming().MaxCycle
	}
	return &VoiceRecognizer{
		source:      source,
		transcriber: transcriber,
		vad:         vad,
		speech:      speech,
		timing:      timing,
		logger:      observability.WithComponent("recognizer"),
	}
}

// CaptureCycle reads frames until one of:
//   - speech was heard and has been silent for longer than Silence
//   - no speech started within Startup
//   - the cycle ran for MaxCycle
//   - the source returns an empty frame
//
// Final transcripts are joined in arrival order. Interim transcripts,
// speech-start events and frames the VAD marks as speech all count as
// speech activity. The VAD keeps speech open for SilenceFrames quiet frames.
func (r *VoiceRecognizer) CaptureCycle(ctx context.Context) (Phrase, error) {
	start := time.Now()
	r.vad.Reset()

	var (
		phrase     Phrase
		parts      []string
		lastSpeech time.Time
		voiced     float64
	)

	heard := func() {
		first := lastSpeech.IsZero()
		lastSpeech = time.Now()
		if r.speech == nil {
			return
		}
		if snap := r.speech.Snapshot(); first || snap.Speaking {
			phrase.Speech = snap
		}
	}

	collect := func() {
		for {
			select {
			case res, ok := <-r.transcriber.Results():
				if !ok || res == nil {
					return
				}
				if res.SpeechStarted || !res.IsFinal {
					heard()
					continue
				}
				if text := strings.TrimSpace(res.Text); text != "" {
					parts = append(parts, text)
					heard()
				}
			default:
				return
			}
		}
	}

	done := func(reason string) Phrase {
		phrase.Text = strings.Join(parts, " ")
		r.logger.Debug().
			Str("reason", reason).
			Dur("elapsed", time.Since(start)).
			Float64("voiced_seconds", voiced).
			Bool("vad_speaking", r.vad.IsSpeaking()).
			Bool("assistant_speaking", phrase.Speech.Speaking).
			Msg("Capture cycle ended")
		return phrase
	}

	for {
		frame, err := r.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Phrase{}, ctx.Err()
			}
			return Phrase{}, faults.Wrap(faults.Capture, "recognizer", err)
		}
		if len(frame) == 0 {
			collect()
			return done("end of stream"), nil
		}

		if samples, err := audio.BytesToSamples(frame); err == nil {
			speaking, started, ended := r.vad.ProcessFrame(samples)
			if speaking {
				heard()
				voiced += audio.FrameDuration(len(samples), r.source.SampleRate(), 1)
			}
			if started || ended {
				r.logger.Debug().Bool("started", started).Bool("ended", ended).Msg("Voice activity changed")
			}
		}
		if err := r.transcriber.SendAudio(frame); err != nil {
			return Phrase{}, faults.Wrap(faults.Capture, "recognizer", fmt.Errorf("transcriber rejected audio: %w", err))
		}

		collect()

		now := time.Now()
		switch {
		case lastSpeech.IsZero() && now.Sub(start) > r.timing.Startup:
			return done("no speech"), nil
		case !lastSpeech.IsZero() && now.Sub(lastSpeech) > r.timing.Silence:
			return done("silence"), nil
		case now.Sub(start) > r.timing.MaxCycle:
			return done("hard cap"), nil
		}
	}
}

// Pause stops the microphone; calling it twice is a no-op
func (r *VoiceRecognizer) Pause() {
	if err := r.source.Pause(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to pause capture")
	}
}

// Resume restarts the microphone; calling it twice is a no-op
func (r *VoiceRecognizer) Resume() {
	if err := r.source.Resume(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to resume capture")
	}
}
