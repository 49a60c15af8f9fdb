package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/misa/internal/faults"
)

// Config holds all configuration for the voice assistant
type Config struct {
	// HTTP server for health and metrics
	HTTPPort string `envconfig:"HTTP_PORT" default:"9464"`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`   // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en-US"` // Language code

	// Google Cloud TTS configuration
	GoogleTTSAPIKey       string  `envconfig:"GOOGLE_TTS_API_KEY"`
	GoogleTTSLanguage     string  `envconfig:"GOOGLE_TTS_LANGUAGE" default:"en-US"`
	GoogleTTSVoice        string  `envconfig:"GOOGLE_TTS_VOICE" default:"en-US-Wavenet-F"`
	GoogleTTSPitch        float64 `envconfig:"GOOGLE_TTS_PITCH" default:"-2.0"`
	GoogleTTSSpeakingRate float64 `envconfig:"GOOGLE_TTS_SPEAKING_RATE" default:"1.0"`
	GoogleTTSGender       string  `envconfig:"GOOGLE_TTS_GENDER" default:"FEMALE"` // MALE, FEMALE, NEUTRAL

	// Response generator (any OpenAI-compatible endpoint; Ollama by default)
	LLMBaseURL string        `envconfig:"LLM_BASE_URL" default:"http://localhost:11434/v1"`
	LLMAPIKey  string        `envconfig:"LLM_API_KEY" default:"ollama"`
	LLMModel   string        `envconfig:"LLM_MODEL" default:"llama2:7b"`
	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`

	// VTube Studio avatar control
	VTSEnabled   bool   `envconfig:"VTS_ENABLED" default:"true"`
	VTSURL       string `envconfig:"VTS_URL" default:"ws://localhost:8001"`
	VTSTokenPath string `envconfig:"VTS_TOKEN_PATH" default:"vts_token.txt"`
	VTSPlugin    string `envconfig:"VTS_PLUGIN_NAME" default:"VTuber Assistant"`
	VTSDeveloper string `envconfig:"VTS_PLUGIN_DEVELOPER" default:"System"`

	// Audio device configuration
	AudioSampleRate      int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioFramesPerBuffer int     `envconfig:"AUDIO_FRAMES_PER_BUFFER" default:"2048"`
	AudioInputDevice     string  `envconfig:"AUDIO_INPUT_DEVICE" default:""` // Device name; empty = system default
	VADEnergyThreshold   float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"`
	VADSilenceFrames     int     `envconfig:"VAD_SILENCE_FRAMES" default:"4"` // Quiet buffers before the VAD ends speech

	// Turn-taking timing
	SilenceTimeout time.Duration `envconfig:"SILENCE_TIMEOUT" default:"2500ms"` // Pause after speech that ends a capture cycle
	StartupTimeout time.Duration `envconfig:"STARTUP_TIMEOUT" default:"1s"`     // No speech at all within this window ends the cycle empty
	ListenPoll     time.Duration `envconfig:"LISTEN_POLL_DELAY" default:"100ms"`
	SpeakPoll      time.Duration `envconfig:"SPEAK_POLL_INTERVAL" default:"100ms"`
	ListenWindow   time.Duration `envconfig:"LISTEN_WINDOW" default:"3500ms"`
	EmoteInterval  time.Duration `envconfig:"EMOTE_INTERVAL" default:"300ms"`

	// Barge-in and echo suppression
	EchoSimilarity            float64  `envconfig:"ECHO_SIMILARITY_THRESHOLD" default:"0.8"`
	WakeMarkers               []string `envconfig:"WAKE_MARKERS" default:"misa,meesa,shut up"`
	MinWords                  int      `envconfig:"MIN_WORDS" default:"2"`
	PauseCaptureWhileSpeaking bool     `envconfig:"PAUSE_CAPTURE_WHILE_SPEAKING" default:"false"`

	// Persona overrides (YAML)
	PersonaFile string `envconfig:"PERSONA_FILE" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics

	// Persona is filled from defaults and PersonaFile after the environment is processed.
	Persona Persona `ignored:"true"`
}

// MissingResourceError reports a collaborator or resource that must be
// provisioned before the assistant can start.
type MissingResourceError struct {
	Resource string
	Hint     string
}

func (e *MissingResourceError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("missing resource: %s", e.Resource)
	}
	return fmt.Sprintf("missing resource: %s (%s)", e.Resource, e.Hint)
}

// IsMissingResource reports whether err is (or wraps) a MissingResourceError
// or a missing-resource fault raised by a collaborator.
func IsMissingResource(err error) bool {
	var mr *MissingResourceError
	return errors.As(err, &mr) || faults.Is(err, faults.MissingResource)
}

// Credential is an API key a command cannot run without
type Credential int

const (
	// RecognizerKey is DEEPGRAM_API_KEY
	RecognizerKey Credential = iota
	// SynthesizerKey is GOOGLE_TTS_API_KEY
	SynthesizerKey
)

var allCredentials = []Credential{RecognizerKey, SynthesizerKey}

// LoadFor reads configuration from environment variables, requiring only the
// listed credentials. It first attempts to load from .env file if it exists.
func LoadFor(needs ...Credential) (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return loadFromEnv(needs)
}

// LoadFromEnv loads configuration directly from environment variables,
// requiring every credential, without attempting to load .env file (useful
// for containerized deployments)
func LoadFromEnv() (*Config, error) {
	return loadFromEnv(allCredentials)
}

func loadFromEnv(needs []Credential) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(needs); err != nil {
		return nil, err
	}

	persona := DefaultPersona()
	if cfg.PersonaFile != "" {
		p, err := LoadPersona(cfg.PersonaFile, persona)
		if err != nil {
			return nil, err
		}
		persona = p
	}
	if len(persona.WakeMarkers) == 0 {
		persona.WakeMarkers = cfg.WakeMarkers
	}
	cfg.Persona = persona

	return &cfg, nil
}

func (c *Config) validate(needs []Credential) error {
	for _, need := range needs {
		switch {
		case need == RecognizerKey && c.DeepgramAPIKey == "":
			return &MissingResourceError{Resource: "DEEPGRAM_API_KEY", Hint: "speech recognition credentials"}
		case need == SynthesizerKey && c.GoogleTTSAPIKey == "":
			return &MissingResourceError{Resource: "GOOGLE_TTS_API_KEY", Hint: "speech synthesis credentials"}
		}
	}
	if c.EchoSimilarity <= 0 || c.EchoSimilarity > 1 {
		return fmt.Errorf("ECHO_SIMILARITY_THRESHOLD must be in (0,1], got %v", c.EchoSimilarity)
	}
	if c.MinWords < 1 {
		return fmt.Errorf("MIN_WORDS must be at least 1, got %d", c.MinWords)
	}
	if c.SilenceTimeout <= 0 || c.StartupTimeout <= 0 {
		return fmt.Errorf("SILENCE_TIMEOUT and STARTUP_TIMEOUT must be positive")
	}
	if c.VADSilenceFrames < 1 {
		return fmt.Errorf("VAD_SILENCE_FRAMES must be at least 1, got %d", c.VADSilenceFrames)
	}
	markers := c.WakeMarkers[:0]
	for _, m := range c.WakeMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	c.WakeMarkers = markers
	return nil
}
