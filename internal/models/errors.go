package models

import (
	"errors"
	"fmt"
)

// ErrUnknownSortMode is returned when a sort mode other than none/name/age is requested.
var ErrUnknownSortMode = errors.New("unknown sort mode")

// TransportError reports a network failure or a non-success HTTP status.
// It is retryable through an explicit user action.
type TransportError struct {
	// StatusCode is zero when the request never got a response.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API Error: %d", e.StatusCode)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response body that does not match the expected shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that the remote collection has no record with the given id.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return "User not found"
}

// PersistenceDecodeError reports corrupt persisted data. The favorites store
// never surfaces it; it is only logged.
type PersistenceDecodeError struct {
	Key string
	Err error
}

func (e *PersistenceDecodeError) Error() string {
	return fmt.Sprintf("corrupt data under key %q: %v", e.Key, e.Err)
}

func (e *PersistenceDecodeError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth offering a retry for.
func IsRetryable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
