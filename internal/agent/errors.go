package agent

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed agent turn.
type ErrorCode string

const (
	// ErrCodeConfig indicates the relay is not configured to reach an agent.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeAgent indicates the agent answered with an explicit error.
	ErrCodeAgent ErrorCode = "AGENT_ERROR"

	// ErrCodeTransport indicates the call failed before an answer was decoded:
	// network failure, timeout, non-2xx status or a malformed body.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
)

// Error is a structured agent failure.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cause returns the most specific description of what went wrong: the
// wrapped error when there is one, otherwise the message.
func (e *Error) Cause() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ErrConfig creates a configuration error.
func ErrConfig(message string) *Error {
	return NewError(ErrCodeConfig, message, nil)
}

// ErrAgent creates an error carrying the agent's own error text.
func ErrAgent(message string) *Error {
	return NewError(ErrCodeAgent, message, nil)
}

// ErrTransport wraps a failure to reach or decode the agent.
func ErrTransport(message string, err error) *Error {
	return NewError(ErrCodeTransport, message, err)
}

// GetErrorCode extracts the ErrorCode from err, or "" if err is not an
// agent Error.
func GetErrorCode(err error) ErrorCode {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	return ""
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return GetErrorCode(err) == ErrCodeConfig }

// IsAgent reports whether err carries an agent-reported error.
func IsAgent(err error) bool { return GetErrorCode(err) == ErrCodeAgent }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool { return GetErrorCode(err) == ErrCodeTransport }
