package model

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed caller input. It is never retried and maps
// to a 4xx response at the query surface.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DecodeError marks a single stream payload that could not be decoded. It is
// contained within the batch consumer: logged, the payload skipped, never
// fatal to the batch.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode payload: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// StorageError wraps a backend failure. Retryable distinguishes transient
// conditions (timeouts, lost connections) from permanent ones (dialect or
// constraint errors); callers retry at the batch or request level.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRetryable reports whether err is a StorageError classified as transient.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}
