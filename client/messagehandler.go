package client

import (
	"log/slog"
)

// ProgressHandlers defines optional callback functions for the progress
// messages a ProgressMonitor receives. All handlers are optional.
type ProgressHandlers struct {
	// OnQueueChanged is called with the number of prompts left in the server queue
	OnQueueChanged func(remaining int)

	// OnStarted is called when execution of a prompt begins
	OnStarted func(promptID string)

	// OnExecuting is called when a node starts executing
	OnExecuting func(promptID string, nodeID string)

	// OnProgress is called with progress updates during node execution
	OnProgress func(msg *WSMessageDataProgress)

	// OnFinished is called once the last node of a prompt has run
	OnFinished func(promptID string)

	// OnError is called if there was an exception during execution
	OnError func(msg *WSMessageExecutionError)
}

// DefaultProgressHandlers logs started, executing, finished and error messages.
func DefaultProgressHandlers() *ProgressHandlers {
	return &ProgressHandlers{
		OnStarted: func(promptID string) {
			slog.Info("execution started", "prompt_id", promptID)
		},
		OnExecuting: func(promptID string, nodeID string) {
			slog.Debug("executing node", "prompt_id", promptID, "node_id", nodeID)
		},
		OnFinished: func(promptID string) {
			slog.Info("execution finished", "prompt_id", promptID)
		},
		OnError: func(msg *WSMessageExecutionError) {
			slog.Error("execution error",
				"prompt_id", msg.PromptID,
				"node_id", msg.Node,
				"node_type", msg.NodeType,
				"error", msg.ExceptionMessage,
			)
		},
	}
}

// WithProgressHandler adds a progress handler (builder pattern)
func (h *ProgressHandlers) WithProgressHandler(fn func(*WSMessageDataProgress)) *ProgressHandlers {
	h.OnProgress = fn
	return h
}

// WithExecutingHandler adds an executing handler (builder pattern)
func (h *ProgressHandlers) WithExecutingHandler(fn func(promptID string, nodeID string)) *ProgressHandlers {
	h.OnExecuting = fn
	return h
}

// WithFinishedHandler adds a finished handler (builder pattern)
func (h *ProgressHandlers) WithFinishedHandler(fn func(promptID string)) *ProgressHandlers {
	h.OnFinished = fn
	return h
}

// WithQueueChangedHandler adds a queue size handler (builder pattern)
func (h *ProgressHandlers) WithQueueChangedHandler(fn func(remaining int)) *ProgressHandlers {
	h.OnQueueChanged = fn
	return h
}

// dispatch translates a raw websocket message into handler calls.
func (h *ProgressHandlers) dispatch(msg string) {
	message := &WSStatusMessage{}
	if err := message.UnmarshalJSON([]byte(msg)); err != nil {
		slog.Error("deserializing status message", "error", err)
		return
	}

	switch data := message.Data.(type) {
	case *WSMessageDataStatus:
		if h.OnQueueChanged != nil {
			h.OnQueueChanged(data.Status.ExecInfo.QueueRemaining)
		}
	case *WSMessageDataExecutionStart:
		if h.OnStarted != nil {
			h.OnStarted(data.PromptID)
		}
	case *WSMessageDataExecuting:
		if data.Node == nil {
			// final node was processed
			if h.OnFinished != nil {
				h.OnFinished(data.PromptID)
			}
		} else if h.OnExecuting != nil {
			h.OnExecuting(data.PromptID, *data.Node)
		}
	case *WSMessageDataProgress:
		if h.OnProgress != nil {
			h.OnProgress(data)
		}
	case *WSMessageExecutionInterrupted:
		slog.Warn("execution interrupted", "prompt_id", data.PromptID, "node_id", data.Node)
	case *WSMessageExecutionError:
		if h.OnError != nil {
			h.OnError(data)
		}
	}
}
