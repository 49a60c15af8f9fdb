package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lexiqai/misa/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	Long: `List the audio devices PortAudio can see.

Set AUDIO_INPUT_DEVICE to part of a device name to capture from it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()

		devices, err := audio.ListDevices()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHOST API\tIN\tOUT\tRATE")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f\n", d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		}
		return w.Flush()
	},
}
