// Package dialogue sequences the assistant's turns: it takes queued
// utterances, generates and speaks replies, and handles barge-in while
// speaking.
package dialogue

import (
	"context"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/misa/internal/avatar"
	"github.com/lexiqai/misa/internal/config"
	"github.com/lexiqai/misa/internal/echo"
	"github.com/lexiqai/misa/internal/faults"
	"github.com/lexiqai/misa/internal/llm"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/playback"
	"github.com/lexiqai/misa/internal/resilience"
	"github.com/lexiqai/misa/internal/sentiment"
	"github.com/lexiqai/misa/internal/state"
	"github.com/lexiqai/misa/internal/turn"
)

// State is the loop's position in a turn
type State int32

const (
	Idle State = iota
	Dispatching
	Speaking
	Interrupted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	case Speaking:
		return "speaking"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Turn outcomes, used as metric labels
const (
	outcomeCompleted   = "completed"
	outcomeInterrupted = "interrupted"
	outcomeElaborate   = "elaborate"
	outcomeReprompt    = "reprompt"
	outcomeApology     = "apology"
	outcomeCancelled   = "cancelled"
)

const (
	warmupAttempts = 3
	warmupBackoff  = 500 * time.Millisecond
)

// Capture is paused while speaking when PauseCaptureWhileSpeaking is set
type Capture interface {
	Pause()
	Resume()
}

// Config holds the loop's timing and persona
type Config struct {
	Persona                   config.Persona
	MinWords                  int
	ListenWindow              time.Duration
	SpeakPoll                 time.Duration
	RepromptDelay             time.Duration
	EmoteInterval             time.Duration
	PauseCaptureWhileSpeaking bool
}

// ConfigFrom builds a loop Config from the application config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Persona:                   cfg.Persona,
		MinWords:                  cfg.MinWords,
		ListenWindow:              cfg.ListenWindow,
		SpeakPoll:                 cfg.SpeakPoll,
		RepromptDelay:             cfg.ListenPoll,
		EmoteInterval:             cfg.EmoteInterval,
		PauseCaptureWhileSpeaking: cfg.PauseCaptureWhileSpeaking,
	}
}

// Deps are the loop's collaborators
type Deps struct {
	Queue     *turn.Queue
	Speech    *state.SpeechState
	Guard     *echo.Guard
	Generator llm.Generator
	Sentiment sentiment.Classifier
	Speaker   playback.Speaker
	Avatar    avatar.Dispatcher
	Capture   Capture
}

// Loop is the single writer of the speech state
type Loop struct {
	cfg    Config
	deps   Deps
	state  atomic.Int32
	logger zerolog.Logger
}

// New creates a dialogue loop. A nil Avatar dispatches nothing.
func New(cfg Config, deps Deps) *Loop {
	if deps.Avatar == nil {
		deps.Avatar = avatar.Nop{}
	}
	if cfg.MinWords < 1 {
		cfg.MinWords = 1
	}
	if cfg.SpeakPoll <= 0 {
		cfg.SpeakPoll = 100 * time.Millisecond
	}
	return &Loop{
		cfg:    cfg,
		deps:   deps,
		logger: observability.WithComponent("dialogue"),
	}
}

// State reports the current turn state
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Greet speaks a random greeting and shows the greeting expression
func (l *Loop) Greet(ctx context.Context) {
	greetings := l.cfg.Persona.Greetings
	if len(greetings) == 0 {
		return
	}
	text := greetings[rand.Intn(len(greetings))]

	l.logger.Info().Str("misa", text).Msg("Greeting")
	l.say(ctx, l.logger, text)
	l.dispatch(ctx, l.logger, l.cfg.Persona.Greeted)
}

// Warmup sends a throwaway request so the first real turn does not pay for
// model loading. A generator that is still starting gets a few retries.
// Failures are only logged.
func (l *Loop) Warmup(ctx context.Context) {
	start := time.Now()
	err := resilience.RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		_, err := l.deps.Generator.Generate(ctx, l.cfg.Persona.SystemPrompt, "Hello")
		return err
	}, warmupAttempts, warmupBackoff)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Generator warmup failed")
		return
	}
	l.logger.Info().Dur("took", time.Since(start)).Msg("Generator warmed up")
}

// Run handles turns until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Msg("Dialogue loop started")
	defer l.logger.Info().Msg("Dialogue loop stopped")

	for ctx.Err() == nil {
		l.Turn(ctx)
	}
	return nil
}

// Turn runs one turn and returns its outcome. Every collaborator failure is
// handled inside the turn.
func (l *Loop) Turn(ctx context.Context) string {
	l.setState(Idle)

	u, ok := l.deps.Queue.TryPop()
	if !ok {
		u, ok = l.deps.Queue.Pop(ctx, l.cfg.ListenWindow)
	}
	if ctx.Err() != nil {
		return outcomeCancelled
	}

	logger := observability.WithTurnID(l.logger, "")
	if !ok || strings.TrimSpace(u.Text) == "" {
		l.say(ctx, logger, l.cfg.Persona.Phrases.Reprompt)
		observability.RecordTurn(outcomeReprompt)
		sleep(ctx, l.cfg.RepromptDelay)
		return outcomeReprompt
	}

	logger.Info().Str("you", u.Text).Msg("Turn started")
	outcome := l.respond(ctx, logger, u.Text)
	l.enterIdle(ctx, logger)

	observability.RecordTurn(outcome)
	logger.Debug().Str("outcome", outcome).Msg("Turn finished")
	return outcome
}

func (l *Loop) respond(ctx context.Context, logger zerolog.Logger, text string) string {
	if len(strings.Fields(text)) < l.cfg.MinWords {
		if l.speak(ctx, logger, l.cfg.Persona.Phrases.Elaborate) == outcomeInterrupted {
			return outcomeInterrupted
		}
		return outcomeElaborate
	}

	l.setState(Dispatching)
	reply, err := l.deps.Generator.Generate(ctx, l.cfg.Persona.SystemPrompt, text)
	if err == nil {
		reply = llm.Sanitize(reply)
		if reply == "" {
			err = llm.ErrEmptyResponse
		}
	}
	if err != nil {
		err = faults.Wrap(faults.Generation, "dialogue", err)
		observability.RecordError("generation", "dialogue")
		logger.Error().Err(err).Msg("Reply generation failed")
		if l.speak(ctx, logger, l.cfg.Persona.Phrases.Apology) == outcomeInterrupted {
			return outcomeInterrupted
		}
		return outcomeApology
	}

	polarity := l.deps.Sentiment.Polarity(reply)
	mood := sentiment.Classify(polarity, reply)
	logger.Info().
		Str("misa", reply).
		Float64("polarity", polarity).
		Str("mood", string(mood)).
		Msg("Replying")

	l.dispatch(ctx, logger, l.cfg.Persona.Expressions[string(mood)])
	if err := avatar.PerformEmotes(ctx, l.deps.Avatar, mood, l.cfg.EmoteInterval); err != nil && ctx.Err() == nil {
		l.dispatchFailed(logger, "emotes", err)
	}

	return l.speak(ctx, logger, reply)
}

// speak plays text while watching the queue for a wake or stop marker
func (l *Loop) speak(ctx context.Context, logger zerolog.Logger, text string) string {
	l.deps.Speech.Begin(text)
	observability.SetSpeaking(true)
	l.setState(Speaking)

	if l.cfg.PauseCaptureWhileSpeaking && l.deps.Capture != nil {
		l.deps.Capture.Pause()
		defer l.deps.Capture.Resume()
	}

	h := l.deps.Speaker.Speak(ctx, text)
	ticker := time.NewTicker(l.cfg.SpeakPoll)
	defer ticker.Stop()

	for {
		select {
		case <-h.Done():
			if err := h.Err(); err != nil {
				observability.RecordError(faults.KindOf(err).String(), "dialogue")
				logger.Warn().Err(err).Msg("Playback ended with error")
			}
			return outcomeCompleted

		case <-ctx.Done():
			h.Cancel()
			<-h.Done()
			return outcomeCancelled

		case <-ticker.C:
			if l.pollInterrupt(logger) {
				l.interrupt(ctx, logger, h)
				return outcomeInterrupted
			}
		}
	}
}

// pollInterrupt drains the queue and reports whether any utterance asked
// the assistant to stop. Utterances without a marker are dropped.
func (l *Loop) pollInterrupt(logger zerolog.Logger) bool {
	for {
		u, ok := l.deps.Queue.TryPop()
		if !ok {
			return false
		}
		if l.deps.Guard.HasWakeMarker(u.Text) {
			logger.Info().Str("you", u.Text).Msg("Interrupted")
			return true
		}
		logger.Debug().Str("text", u.Text).Msg("Dropped utterance while speaking")
	}
}

func (l *Loop) interrupt(ctx context.Context, logger zerolog.Logger, h *playback.Handle) {
	h.Cancel()
	select {
	case <-h.Done():
	case <-ctx.Done():
		return
	}
	l.setState(Interrupted)
	observability.RecordInterrupt()

	l.dispatch(ctx, logger, l.cfg.Persona.Acknowledge)
	ack := l.cfg.Persona.Phrases.Acknowledge
	l.deps.Speech.Begin(ack)
	if err := playback.SpeakAndWait(ctx, l.deps.Speaker, ack); err != nil && ctx.Err() == nil {
		logger.Warn().Err(err).Msg("Acknowledgement playback failed")
	}
}

// say speaks text to completion without watching for interrupts
func (l *Loop) say(ctx context.Context, logger zerolog.Logger, text string) {
	l.deps.Speech.Begin(text)
	observability.SetSpeaking(true)
	defer func() {
		l.deps.Speech.End()
		observability.SetSpeaking(false)
	}()

	if err := playback.SpeakAndWait(ctx, l.deps.Speaker, text); err != nil && ctx.Err() == nil {
		observability.RecordError(faults.KindOf(err).String(), "dialogue")
		logger.Warn().Err(err).Str("text", text).Msg("Playback failed")
	}
}

func (l *Loop) enterIdle(ctx context.Context, logger zerolog.Logger) {
	l.dispatch(ctx, logger, l.cfg.Persona.Clear)
	l.deps.Speech.End()
	observability.SetSpeaking(false)
	l.setState(Idle)
}

// dispatch triggers an expression; failures never affect the turn
func (l *Loop) dispatch(ctx context.Context, logger zerolog.Logger, name string) {
	if err := l.deps.Avatar.TriggerExpression(ctx, name); err != nil && ctx.Err() == nil {
		l.dispatchFailed(logger, name, err)
	}
}

func (l *Loop) dispatchFailed(logger zerolog.Logger, name string, err error) {
	err = faults.Wrap(faults.Dispatch, "avatar", err)
	observability.RecordError("dispatch", "avatar")
	logger.Warn().Err(err).Str("expression", name).Msg("Expression dispatch failed")
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
