package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the class of failure a search call can hit
type ErrorType string

const (
	ErrorTypeNetwork ErrorType = "network"
	ErrorTypeStatus  ErrorType = "status"
	ErrorTypeAPI     ErrorType = "api"
	ErrorTypeParsing ErrorType = "parsing"
	ErrorTypeSink    ErrorType = "sink"
	ErrorTypeAuth    ErrorType = "auth"
	ErrorTypeConfig  ErrorType = "config"
	ErrorTypeUnknown ErrorType = "unknown"
)

// ErrUnrecognizedTimestamp is returned when a date input matches none of the
// accepted shapes.
var ErrUnrecognizedTimestamp = errors.New("unrecognized timestamp")

// Error represents a classified failure with an optional HTTP status code
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error wrapping cause.
func New(t ErrorType, cause error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Err: cause}
}

// TypeOf returns the classification of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether an error type may succeed on a second attempt.
// Only transport failures are retried; a status or API error is the server's
// answer and repeating the call will not change it.
func IsRetryable(errorType ErrorType) bool {
	return errorType == ErrorTypeNetwork
}

// IsSuccessStatus reports whether an HTTP status code is 2xx
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
