package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/lexiqai/misa/internal/config"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/resilience"
)

const serviceName = "google_tts"

// GoogleClient implements Synthesizer using Google Cloud Text-to-Speech
type GoogleClient struct {
	client         *texttospeech.Client
	synthesize     func(ctx context.Context, req *ttspb.SynthesizeSpeechRequest) (*ttspb.SynthesizeSpeechResponse, error)
	voice          *ttspb.VoiceSelectionParams
	audioConfig    *ttspb.AudioConfig
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewGoogleClient dials Cloud TTS with the configured API key and voice
func NewGoogleClient(ctx context.Context, cfg *config.Config) (*GoogleClient, error) {
	client, err := texttospeech.NewClient(ctx,
		option.WithAPIKey(cfg.GoogleTTSAPIKey),
		option.WithGRPCDialOption(grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	g := newGoogleClient(cfg, func(ctx context.Context, req *ttspb.SynthesizeSpeechRequest) (*ttspb.SynthesizeSpeechResponse, error) {
		return client.SynthesizeSpeech(ctx, req)
	})
	g.client = client

	g.logger.Info().
		Str("voice", cfg.GoogleTTSVoice).
		Str("language", cfg.GoogleTTSLanguage).
		Msg("Google TTS client created")
	return g, nil
}

func newGoogleClient(cfg *config.Config, synthesize func(context.Context, *ttspb.SynthesizeSpeechRequest) (*ttspb.SynthesizeSpeechResponse, error)) *GoogleClient {
	return &GoogleClient{
		synthesize: synthesize,
		voice: &ttspb.VoiceSelectionParams{
			LanguageCode: cfg.GoogleTTSLanguage,
			Name:         cfg.GoogleTTSVoice,
			SsmlGender:   parseGender(cfg.GoogleTTSGender),
		},
		audioConfig: &ttspb.AudioConfig{
			AudioEncoding: ttspb.AudioEncoding_MP3,
			Pitch:         cfg.GoogleTTSPitch,
			SpeakingRate:  cfg.GoogleTTSSpeakingRate,
		},
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		circuitBreaker: resilience.NewCircuitBreaker(
			serviceName,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: observability.WithComponent("tts"),
	}
}

func parseGender(g string) ttspb.SsmlVoiceGender {
	if v, ok := ttspb.SsmlVoiceGender_value[strings.ToUpper(strings.TrimSpace(g))]; ok {
		return ttspb.SsmlVoiceGender(v)
	}
	return ttspb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
}

// Synthesize returns MP3 audio for text
func (g *GoogleClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}

	req := &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{
			InputSource: &ttspb.SynthesisInput_Text{Text: text},
		},
		Voice:       g.voice,
		AudioConfig: g.audioConfig,
	}

	start := time.Now()
	var audioContent []byte
	err := g.circuitBreaker.CallContext(ctx, func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			resp, err := g.synthesize(ctx, req)
			if err != nil {
				return err
			}
			audioContent = resp.GetAudioContent()
			return nil
		}, g.retryConfig, isRetryableStatus)
	})

	observability.ObserveCircuitBreaker(g.circuitBreaker)
	if err != nil {
		// Barge-in cancels synthesis; that is not a service failure
		if ctx.Err() == nil {
			observability.IncrementCircuitBreakerFailures(serviceName)
			observability.RecordError("synthesis", "tts")
		}
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	observability.ObserveSynthesis(start)

	g.logger.Debug().
		Int("chars", len(text)).
		Int("bytes", len(audioContent)).
		Dur("latency", time.Since(start)).
		Msg("Speech synthesized")
	return audioContent, nil
}

// isRetryableStatus retries transient gRPC codes and falls back to the
// network error heuristics for everything else.
func isRetryableStatus(err error) bool {
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound:
			return false
		}
	}
	return resilience.IsRetryableNetworkError(err)
}

// Close closes the underlying client
func (g *GoogleClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
