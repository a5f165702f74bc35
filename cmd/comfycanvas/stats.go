package main

import (
	"fmt"
	"io"

	"github.com/richinsley/comfycanvas/client"
	"github.com/spf13/cobra"
)

func newStatsCommand() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the system stats of a ComfyUI server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewComfyClient(serverURL)
			if err != nil {
				return err
			}
			stats, err := c.GetSystemStats(cmd.Context())
			if err != nil {
				return err
			}
			displaySystemStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server-url", "127.0.0.1:8188", "ComfyUI server address")
	return cmd
}

func displaySystemStats(w io.Writer, stats *client.SystemStats) {
	fmt.Fprintln(w, "System Stats:")
	fmt.Fprintf(w, "\tOS: %s\n", stats.System.OS)
	fmt.Fprintf(w, "\tPython Version: %s\n", stats.System.PythonVersion)
	fmt.Fprintln(w, "\tDevices:")
	for _, dev := range stats.Devices {
		fmt.Fprintf(w, "\t\tIndex: %d\n", dev.Index)
		fmt.Fprintf(w, "\t\tName: %s\n", dev.Name)
		fmt.Fprintf(w, "\t\tType: %s\n", dev.Type)
		fmt.Fprintf(w, "\t\tVRAM Total %d\n", dev.VRAM_Total)
		fmt.Fprintf(w, "\t\tVRAM Free %d\n", dev.VRAM_Free)
		fmt.Fprintf(w, "\t\tTorch VRAM Total %d\n", dev.Torch_VRAM_Total)
		fmt.Fprintf(w, "\t\tTorch VRAM Free %d\n", dev.Torch_VRAM_Free)
	}
}
