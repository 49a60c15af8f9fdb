package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/misa/internal/audio"
	"github.com/lexiqai/misa/internal/avatar"
	"github.com/lexiqai/misa/internal/config"
	"github.com/lexiqai/misa/internal/dialogue"
	"github.com/lexiqai/misa/internal/echo"
	"github.com/lexiqai/misa/internal/listener"
	"github.com/lexiqai/misa/internal/llm"
	"github.com/lexiqai/misa/internal/observability"
	"github.com/lexiqai/misa/internal/playback"
	"github.com/lexiqai/misa/internal/resilience"
	"github.com/lexiqai/misa/internal/sentiment"
	"github.com/lexiqai/misa/internal/state"
	"github.com/lexiqai/misa/internal/stt"
	"github.com/lexiqai/misa/internal/tts"
	"github.com/lexiqai/misa/internal/turn"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the assistant",
	Long: `Start the assistant: greet, then listen and reply until SIGINT or SIGTERM.

Say "Misa" or "shut up" while it is speaking to interrupt it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.RecognizerKey, config.SynthesizerKey)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runAssistant(ctx, cfg)
	},
}

func runAssistant(ctx context.Context, cfg *config.Config) error {
	logger := observability.GetLogger()
	logger.Info().
		Str("persona", cfg.Persona.Name).
		Str("llm_model", cfg.LLMModel).
		Str("stt_model", cfg.DeepgramModel).
		Bool("vts_enabled", cfg.VTSEnabled).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Assistant starting")

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	mic, err := audio.OpenMicrophone(audio.MicrophoneConfig{
		DeviceName:      cfg.AudioInputDevice,
		SampleRate:      cfg.AudioSampleRate,
		FramesPerBuffer: cfg.AudioFramesPerBuffer,
	})
	if err != nil {
		return err
	}
	defer mic.Close()

	transcriber := stt.NewDeepgramClient(cfg)
	if err := transcriber.Start(); err != nil {
		return fmt.Errorf("failed to start speech recognition: %w", err)
	}
	defer transcriber.Close()

	synth, err := tts.NewGoogleClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer synth.Close()

	checks := map[string]observability.HealthCheckFunc{
		"deepgram": transcriber.HealthCheck,
	}

	var dispatcher avatar.Dispatcher = avatar.Nop{}
	if cfg.VTSEnabled {
		vts := avatar.NewVTubeStudio(vtsConfig(cfg))
		if err := vts.Connect(ctx); err != nil {
			// The avatar is decoration; run without it
			logger.Warn().Err(err).Msg("VTube Studio unavailable, continuing without avatar")
		} else {
			defer vts.Close()
			dispatcher = vts
			checks["vtube_studio"] = vts.HealthCheck
		}
	}

	speech := state.New()
	queue := turn.NewQueue()
	guard := echo.NewGuard(cfg.EchoSimilarity, cfg.Persona.WakeMarkers)

	recognizer := listener.NewVoiceRecognizer(mic, transcriber,
		audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
			FrameSize:       cfg.AudioFramesPerBuffer,
		}),
		speech,
		listener.Timing{
			Silence:  cfg.SilenceTimeout,
			Startup:  cfg.StartupTimeout,
			MaxCycle: listener.DefaultTiming().MaxCycle,
		})
	capture := listener.New(recognizer, guard, speech, queue, cfg.ListenPoll)

	loop := dialogue.New(dialogue.ConfigFrom(cfg), dialogue.Deps{
		Queue:     queue,
		Speech:    speech,
		Guard:     guard,
		Generator: llm.NewClient(cfg),
		Sentiment: sentiment.NewVader(),
		Speaker:   playback.NewPlayer(synth, audio.NewSpeaker(cfg.AudioFramesPerBuffer)),
		Avatar:    dispatcher,
		Capture:   capture,
	})

	server := startHTTPServer(cfg, logger, checks)
	defer shutdownHTTPServer(server, logger)

	loop.Greet(ctx)
	loop.Warmup(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		capture.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down assistant...")
	wg.Wait()
	logger.Info().Msg("Assistant exited gracefully")
	return nil
}

func vtsConfig(cfg *config.Config) avatar.VTSConfig {
	return avatar.VTSConfig{
		URL:             cfg.VTSURL,
		PluginName:      cfg.VTSPlugin,
		PluginDeveloper: cfg.VTSDeveloper,
		TokenPath:       cfg.VTSTokenPath,
		Reconnect: &resilience.ReconnectConfig{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  30 * time.Second,
		},
	}
}

func startHTTPServer(cfg *config.Config, logger zerolog.Logger, checks map[string]observability.HealthCheckFunc) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("Status server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Status server failed")
		}
	}()
	return server
}

func shutdownHTTPServer(server *http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Status server forced to shutdown")
	}
}
