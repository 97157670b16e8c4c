package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a failure by how the harvester recovers from it
type ErrorType string

const (
	// ErrorTypeQuota means the provider exhausted a credential for a method
	ErrorTypeQuota ErrorType = "quota"
	// ErrorTypeTransient covers execution errors and malformed payloads retried on the next pass
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeVanished means the account stopped being addressable mid-fetch
	ErrorTypeVanished ErrorType = "vanished"
	// ErrorTypeConsistency means stored rows disagree with each other
	ErrorTypeConsistency ErrorType = "consistency"
	// ErrorTypeConfig is fatal and never retried
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeStorage     ErrorType = "storage"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error carries a type, a provider or HTTP code when one exists, and the cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
		}
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type and message to an underlying error
func Wrap(t ErrorType, msg string, err error) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// WithCode returns a copy of e carrying the given code
func (e *Error) WithCode(code int) *Error {
	c := *e
	c.Code = code
	return &c
}

// TypeOf reports the type of the first *Error in err's chain
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type anywhere in its chain
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsFatal reports whether the error must stop the run
func IsFatal(err error) bool {
	return Is(err, ErrorTypeConfig)
}

// IsRetryable checks if an error type should be retried in place
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeStorage:
		return true
	default:
		return false
	}
}
