package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "comfycanvas",
		Short:         "Generate images for canvas selections with a ComfyUI server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(os.Stderr, verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCommand(), newStatsCommand(), newInspectCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("comfycanvas failed", "error", err)
		os.Exit(1)
	}
}
