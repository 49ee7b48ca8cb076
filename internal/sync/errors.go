package sync

import (
	"errors"
	"fmt"
)

// TransportError marks a network or timeout failure talking to the remote.
// The affected operations are retried with backoff; nothing is lost.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError marks an explicit rejection by the remote backend. It is
// terminal for the operation that caused it and surfaced to the application.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by remote: %s", e.Reason)
}

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
