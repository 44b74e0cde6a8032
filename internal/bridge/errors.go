package bridge

import "errors"

// Bridge errors.
var (
	// ErrUnknownCommand is returned for a command topic with an unsupported name.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrInvalidPayload is returned when a command payload is not valid JSON
	// or lacks a required field.
	ErrInvalidPayload = errors.New("bridge: invalid command payload")

	// ErrInvalidRequestID is returned when a request id cannot be used as a
	// topic level.
	ErrInvalidRequestID = errors.New("bridge: invalid request id")
)
