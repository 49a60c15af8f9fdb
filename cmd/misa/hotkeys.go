package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lexiqai/misa/internal/avatar"
)

var hotkeysCmd = &cobra.Command{
	Use:   "hotkeys",
	Short: "List the avatar's hotkeys",
	Long: `Connect to VTube Studio and list the hotkeys of the loaded model.

Persona expressions name these hotkeys. The first run asks VTube Studio
to approve the plugin and stores the token at VTS_TOKEN_PATH.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		vts := avatar.NewVTubeStudio(vtsConfig(cfg))
		if err := vts.Connect(cmd.Context()); err != nil {
			return err
		}
		defer vts.Close()

		names := vts.Hotkeys()
		sort.Strings(names)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "HOTKEY\tUSED BY")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%s\n", name, cfg.Persona.ExpressionsUsing(name))
		}
		return w.Flush()
	},
}
