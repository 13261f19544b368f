package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when an operation needs a call object and none exists.
	ErrNotInitialized = errors.New("transport not initialized")
	// ErrMalformedAuthPayload is returned when the connect payload cannot be decoded.
	ErrMalformedAuthPayload = errors.New("malformed auth payload")
)

// ExceptionThrownError wraps an unexpected failure during device or session setup.
type ExceptionThrownError struct {
	Cause error
}

func (e *ExceptionThrownError) Error() string {
	return fmt.Sprintf("exception thrown: %v", e.Cause)
}

func (e *ExceptionThrownError) Unwrap() error { return e.Cause }

// OperationFailedError reports a failure signalled by the provider SDK.
type OperationFailedError struct {
	Op    string
	Cause error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func (e *OperationFailedError) Unwrap() error { return e.Cause }

func NewExceptionThrown(cause error) error {
	return &ExceptionThrownError{Cause: cause}
}

func NewOperationFailed(op string, cause error) error {
	return &OperationFailedError{Op: op, Cause: cause}
}

func MalformedAuth(cause error) error {
	return fmt.Errorf("%w: %w", ErrMalformedAuthPayload, cause)
}
