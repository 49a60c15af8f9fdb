package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/misa/internal/config"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/resilience"
)

const serviceName = "deepgram"

var errNotActive = errors.New("deepgram client is not active")

// messageCallbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides only the methods we need to customize
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage     func(*msginterfaces.MessageResponse)
	onSpeechStart func()
	onError       func(*msginterfaces.ErrorResponse)
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.onMessage(message)
	return nil
}

func (m *messageCallbackHandler) SpeechStarted(*msginterfaces.SpeechStartedResponse) error {
	m.onSpeechStart()
	return nil
}

// UtteranceEnd is consumed silently; the capture cycle applies its own silence rule
func (m *messageCallbackHandler) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.onError(errorResponse)
	return nil
}

// DeepgramClient implements Transcriber using Deepgram's streaming API
type DeepgramClient struct {
	config         *config.Config
	client         *listenClient.WSCallback
	results        chan *TranscriptionResult
	mu             sync.RWMutex
	isActive       bool
	reconnecting   bool
	ctx            context.Context
	cancel         context.CancelFunc
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewDeepgramClient creates a new Deepgram streaming client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &DeepgramClient{
		config:  cfg,
		results: make(chan *TranscriptionResult, 100),
		ctx:     ctx,
		cancel:  cancel,
		circuitBreaker: resilience.NewCircuitBreaker(
			serviceName,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: observability.WithComponent("stt"),
	}
}

// Start opens a Deepgram streaming transcription session
func (d *DeepgramClient) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram client is already active")
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     d.config.AudioSampleRate,
	}

	// Keepalive holds the socket open while capture is paused during playback
	cOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              d.handleDeepgramMessage,
		onSpeechStart:          d.handleSpeechStarted,
		onError:                d.handleError,
	}

	client, err := listenClient.NewWSUsingCallback(
		d.ctx,
		d.config.DeepgramAPIKey,
		cOptions,
		tOptions,
		callback,
	)
	if err != nil {
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	if !client.Connect() {
		d.circuitBreaker.RecordResult(false)
		observability.ObserveCircuitBreaker(d.circuitBreaker)
		return fmt.Errorf("failed to connect to Deepgram")
	}

	d.client = client
	d.isActive = true

	d.circuitBreaker.RecordResult(true)
	observability.ObserveCircuitBreaker(d.circuitBreaker)

	d.logger.Info().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Int("sample_rate", d.config.AudioSampleRate).
		Msg("Deepgram streaming client started")
	return nil
}

func (d *DeepgramClient) handleError(errorResponse *msginterfaces.ErrorResponse) {
	d.logger.Error().
		Str("type", errorResponse.Type).
		Str("code", errorResponse.ErrCode).
		Str("message", errorResponse.ErrMsg).
		Msg("Deepgram error")

	d.circuitBreaker.RecordResult(false)
	observability.ObserveCircuitBreaker(d.circuitBreaker)
	observability.IncrementCircuitBreakerFailures(serviceName)
	observability.RecordError("stream", "stt")

	if d.ctx.Err() != nil {
		return
	}

	d.mu.Lock()
	d.isActive = false
	d.mu.Unlock()

	go d.attemptReconnect()
}

func (d *DeepgramClient) handleSpeechStarted() {
	d.publish(&TranscriptionResult{SpeechStarted: true})
}

// handleDeepgramMessage processes transcript messages from Deepgram
func (d *DeepgramClient) handleDeepgramMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	startTime := msg.Start
	duration := msg.Duration
	if len(alt.Words) > 0 && duration == 0 {
		startTime = alt.Words[0].Start
		duration = alt.Words[len(alt.Words)-1].End - startTime
	}

	result := &TranscriptionResult{
		Text:       alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
		StartTime:  startTime,
		Duration:   duration,
	}

	if d.publish(result) {
		d.logger.Debug().
			Bool("final", result.IsFinal).
			Float64("confidence", result.Confidence).
			Str("text", result.Text).
			Msg("Transcription received")
	}
}

// publish sends without blocking; the SDK's callback goroutine must never stall
func (d *DeepgramClient) publish(result *TranscriptionResult) bool {
	select {
	case d.results <- result:
		return true
	default:
		d.logger.Warn().Msg("Transcript channel full, dropping result")
		return false
	}
}

// SendAudio sends a linear16 audio chunk to Deepgram
func (d *DeepgramClient) SendAudio(audioData []byte) error {
	err := d.circuitBreaker.Call(func() error {
		d.mu.RLock()
		active := d.isActive
		client := d.client
		d.mu.RUnlock()

		if !active || client == nil {
			return errNotActive
		}

		if _, err := client.Write(audioData); err != nil {
			d.mu.Lock()
			d.isActive = false
			d.mu.Unlock()
			go d.attemptReconnect()
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})

	observability.ObserveCircuitBreaker(d.circuitBreaker)
	if err != nil {
		observability.IncrementCircuitBreakerFailures(serviceName)
		return err
	}
	observability.RecordAudioBytes("in", int64(len(audioData)))
	return nil
}

// attemptReconnect re-opens the session with backoff; concurrent calls collapse into one
func (d *DeepgramClient) attemptReconnect() {
	if d.ctx.Err() != nil {
		return
	}

	d.mu.Lock()
	if d.isActive || d.reconnecting {
		d.mu.Unlock()
		return
	}
	d.reconnecting = true
	old := d.client
	d.client = nil
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.reconnecting = false
		d.mu.Unlock()
	}()

	if old != nil {
		old.Stop()
	}

	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(d.ctx, serviceName, func(ctx context.Context) error {
		return d.Start()
	}, reconnectConfig)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to reconnect Deepgram client")
		return
	}

	// Failures counted against the old session would keep rejecting audio
	// for the new one until the reset timeout
	d.circuitBreaker.Reset()
	observability.ObserveCircuitBreaker(d.circuitBreaker)
}

// Results returns a channel that receives transcription events
func (d *DeepgramClient) Results() <-chan *TranscriptionResult {
	return d.results
}

// Stop finishes the Deepgram streaming session
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive {
		return nil
	}

	if d.client != nil {
		d.client.Finish()
	}
	d.isActive = false
	d.logger.Info().Msg("Deepgram streaming client stopped")
	return nil
}

// Close stops the session and any pending reconnection.
// The results channel is left open; readers stop on their own context.
func (d *DeepgramClient) Close() error {
	d.cancel()
	return d.Stop()
}

// IsActive returns whether the client is currently connected
func (d *DeepgramClient) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isActive
}

// HealthCheck reports whether the streaming session is connected
func (d *DeepgramClient) HealthCheck(ctx context.Context) (bool, error) {
	if !d.IsActive() {
		return false, errNotActive
	}
	return true, nil
}
