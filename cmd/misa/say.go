package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexiqai/misa/internal/audio"
	"github.com/lexiqai/misa/internal/config"
	"github.com/lexiqai/misa/internal/playback"
	"github.com/lexiqai/misa/internal/tts"
)

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Speak one phrase",
	Long: `Synthesize one phrase with the configured voice and play it.

Useful to check TTS credentials and the output device.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.SynthesizerKey)
		if err != nil {
			return err
		}
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()

		synth, err := tts.NewGoogleClient(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer synth.Close()

		player := playback.NewPlayer(synth, audio.NewSpeaker(cfg.AudioFramesPerBuffer))
		return playback.SpeakAndWait(cmd.Context(), player, strings.Join(args, " "))
	},
}
