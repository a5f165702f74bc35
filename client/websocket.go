package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// Callback interface for handling incoming WebSocket messages
type WebSocketCallback interface {
	OnMessage(message string)
}

type WebSocketConnection struct {
	WebSocketURL string
	Conn         *websocket.Conn
	MaxRetry     int
	Callback     WebSocketCallback
	Dialer       websocket.Dialer

	// Exponential backoff configuration
	BaseDelay time.Duration // The initial delay, e.g., 1 second
	MaxDelay  time.Duration // The maximum delay, e.g., 1 minute

	mu   sync.Mutex
	done chan struct{}
}

// Connect dials the websocket, retrying with exponential backoff, then
// starts reading messages in the background.
func (w *WebSocketConnection) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.BaseDelay
	b.MaxInterval = w.MaxDelay
	b.MaxElapsedTime = 0

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		c, _, err := w.Dialer.DialContext(ctx, w.WebSocketURL, nil)
		if err != nil {
			slog.Error("connection attempt failed", "url", w.WebSocketURL, "error", err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(w.MaxRetry, 0))), ctx))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", w.WebSocketURL, err)
	}

	w.mu.Lock()
	w.Conn = conn
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.handleMessages()
	return nil
}

// Handle incoming WebSocket messages
func (w *WebSocketConnection) handleMessages() {
	defer close(w.done)
	for {
		_, message, err := w.Conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				slog.Debug("websocket read ended", "error", err)
			}
			return
		}
		if w.Callback != nil {
			w.Callback.OnMessage(string(message))
		}
	}
}

// Close shuts the connection down and waits for the reader to exit.
func (w *WebSocketConnection) Close() error {
	w.mu.Lock()
	conn, done := w.Conn, w.done
	w.mu.Unlock()
	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	<-done
	return err
}

// ProgressMonitor streams execution progress for prompts queued by the
// client. It is purely informational; completion is still detected by
// polling the history.
type ProgressMonitor struct {
	conn     *WebSocketConnection
	handlers *ProgressHandlers
}

func (m *ProgressMonitor) OnMessage(message string) {
	m.handlers.dispatch(message)
}

// Close stops the monitor.
func (m *ProgressMonitor) Close() error {
	return m.conn.Close()
}

// WatchProgress connects to the server's websocket under this client's ID
// and feeds received messages to handlers.
func (c *ComfyClient) WatchProgress(ctx context.Context, handlers *ProgressHandlers) (*ProgressMonitor, error) {
	if handlers == nil {
		handlers = DefaultProgressHandlers()
	}
	m := &ProgressMonitor{handlers: handlers}
	m.conn = &WebSocketConnection{
		WebSocketURL: c.websocketURL(),
		MaxRetry:     3,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Callback:     m,
		Dialer:       *websocket.DefaultDialer,
	}
	if err := m.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
