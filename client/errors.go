package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrMissingField is wrapped by a ProtocolError when a response lacks a
// required field such as "prompt_id" or "name".
var ErrMissingField = errors.New("missing field in server response")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	// Message is the server's error message, when it sent one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// ProtocolError reports a response that could not be understood: malformed
// JSON or a missing field. It usually means a server version mismatch and is
// never retried.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("%s: invalid response: %v", e.Op, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError is returned once a retry policy is exhausted.
type TimeoutError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request timed out after %d attempts: %v", e.Op, e.Attempts, e.Err)
}
func (e *TimeoutError) Unwrap() error { return e.Err }

func missingField(op, field string) error {
	return &ProtocolError{Op: op, Err: fmt.Errorf("%w: %q", ErrMissingField, field)}
}

// isTransient reports whether err is worth retrying: network failures and
// 5xx responses.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
