package core

import "errors"

// Error codes for protocol errors sent to clients.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeUnknownEvent       = "invalid_message"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeRateLimited        = "rate_limited"
)

var (
	// ErrHubStopped is returned by hub entry points once Run has returned.
	ErrHubStopped = errors.New("hub stopped")
	// ErrNotReceiver is returned when a read receipt comes from someone other than the receiver.
	ErrNotReceiver = errors.New("reader is not the message receiver")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
