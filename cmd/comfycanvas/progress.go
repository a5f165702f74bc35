package main

import (
	"log/slog"

	"github.com/richinsley/comfycanvas/client"
	"github.com/schollz/progressbar/v3"
)

// nodeProgressHandlers shows a progress bar for every node that reports
// step progress. Handlers run on the monitor's reader goroutine only.
func nodeProgressHandlers() *client.ProgressHandlers {
	var bar *progressbar.ProgressBar
	var currentNode string

	return client.DefaultProgressHandlers().
		WithExecutingHandler(func(promptID string, nodeID string) {
			bar = nil
			currentNode = "node " + nodeID
			slog.Debug("executing node", "prompt_id", promptID, "node_id", nodeID)
		}).
		WithProgressHandler(func(msg *client.WSMessageDataProgress) {
			if bar == nil {
				bar = progressbar.Default(int64(msg.Max), currentNode)
			}
			bar.Set(msg.Value)
		}).
		WithQueueChangedHandler(func(remaining int) {
			slog.Debug("server queue changed", "remaining", remaining)
		})
}
