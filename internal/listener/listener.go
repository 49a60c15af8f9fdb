// Package listener runs the capture loop that feeds the turn queue.
package listener

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/misa/internal/echo"
	"github.com/lexiqai/misa/internal/faults"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/state"
	"github.com/lexiqai/misa/internal/turn"
)

// Listener repeatedly captures speech, filters it through the echo guard
// and queues accepted utterances.
type Listener struct {
	recognizer Recognizer
	guard      *echo.Guard
	speech     state.View
	queue      *turn.Queue
	pollDelay  time.Duration
	logger     zerolog.Logger
}

// New creates a listener
func New(recognizer Recognizer, guard *echo.Guard, speech state.View, queue *turn.Queue, pollDelay time.Duration) *Listener {
	return &Listener{
		recognizer: recognizer,
		guard:      guard,
		speech:     speech,
		queue:      queue,
		pollDelay:  pollDelay,
		logger:     observability.WithComponent("listener"),
	}
}

// Run captures until ctx is done. Capture failures are logged and the
// loop continues with the next cycle.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("Listener started")
	defer l.logger.Info().Msg("Listener stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		l.cycle(ctx)

		if l.pollDelay > 0 {
			timer := time.NewTimer(l.pollDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

func (l *Listener) cycle(ctx context.Context) {
	phrase, err := l.recognizer.CaptureCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn().Err(err).Msg("Capture cycle failed")
		observability.RecordCaptureCycle("error")
		observability.RecordError(faults.KindOf(err).String(), "listener")
		return
	}
	text := phrase.Text
	if text == "" {
		observability.RecordCaptureCycle("empty")
		return
	}
	observability.RecordCaptureCycle("utterance")

	// Judge the phrase against what was playing while it was heard; the
	// assistant may have finished by the time the cycle's silence ran out.
	speech := phrase.Speech
	if !speech.Speaking {
		speech = l.speech.Snapshot()
	}

	decision := l.guard.ShouldAccept(text, speech)
	observability.RecordEchoDecision(decision.String())
	if decision != echo.Accept {
		l.logger.Debug().
			Str("text", text).
			Str("decision", decision.String()).
			Msg("Discarded phrase")
		return
	}

	l.logger.Info().Str("you", text).Msg("Heard")
	l.queue.Push(turn.Utterance{Text: text, CapturedAt: time.Now()})
}

// Pause stops capture; safe to call concurrently with Run and more than once
func (l *Listener) Pause() {
	l.recognizer.Pause()
}

// Resume restarts capture; safe to call concurrently with Run and more than once
func (l *Listener) Resume() {
	l.recognizer.Resume()
}
