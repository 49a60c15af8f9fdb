// Command misa is a local voice assistant with barge-in and an optional
// VTube Studio avatar.
//
// Usage:
//
//	misa run              - listen, reply and speak until interrupted
//	misa devices          - list audio devices
//	misa say <text>       - speak one phrase through the configured voice
//	misa hotkeys          - list the avatar's VTube Studio hotkeys
//
// Configuration is read from the environment and an optional .env file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiqai/misa/internal/config"
	"github.com/lexiqai/misa/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:           "misa",
	Short:         "Local voice assistant",
	Version:       observability.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(hotkeysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if config.IsMissingResource(err) {
			fmt.Fprintln(os.Stderr, "Provision the missing resource and start again.")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig loads configuration, requiring only the credentials the command
// uses, and initializes the global logger
func loadConfig(needs ...config.Credential) (*config.Config, error) {
	cfg, err := config.LoadFor(needs...)
	if err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}
