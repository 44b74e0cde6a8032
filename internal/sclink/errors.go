package sclink

import (
	"errors"
	"fmt"
)

// Domain errors for the sclink package.
var (
	// ErrNotConnected is returned when a write is submitted while no
	// authenticated session exists.
	ErrNotConnected = errors.New("sclink: not connected to controller")

	// ErrConnectionFailed is returned when dialling the controller fails.
	ErrConnectionFailed = errors.New("sclink: connection to controller failed")

	// ErrConnectionLost is returned when the session drops mid-request.
	ErrConnectionLost = errors.New("sclink: connection lost")

	// ErrTimeout is returned when the controller does not answer a request
	// within the request timeout.
	ErrTimeout = errors.New("sclink: request timed out")

	// ErrAuthFailed is returned when the controller rejects the credentials.
	// The manager does not retry until credentials are updated.
	ErrAuthFailed = errors.New("sclink: authentication failed")

	// ErrRejected is returned when the controller refuses a write.
	ErrRejected = errors.New("sclink: write rejected by controller")

	// ErrStopped is returned for work submitted after Stop.
	ErrStopped = errors.New("sclink: manager stopped")

	// ErrQueueFull is returned when the write queue cannot take more work.
	ErrQueueFull = errors.New("sclink: write queue full")
)

// IsConnectionError reports whether err is a transient link failure that is
// retried with backoff rather than surfaced as a validation problem.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrConnectionFailed)
}

// DecodeError reports a frame or unit record that failed validation.
// A rejected record never replaces a unit's last good status.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "sclink: decode: " + e.Reason
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// EncodeError reports a command field that cannot be represented on the wire.
type EncodeError struct {
	Field  string
	Reason string
}

func (e *EncodeError) Error() string {
	if e.Field == "" {
		return "sclink: encode: " + e.Reason
	}
	return fmt.Sprintf("sclink: encode %s: %s", e.Field, e.Reason)
}
