package types

import (
	"errors"
	"fmt"
)

// ErrorKind distinguishes failures so callers can retry, fall back or reject.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindProvider   ErrorKind = "provider"
	KindInternal   ErrorKind = "internal"
)

// ValidationError represents an input that was rejected before scoring
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ProviderError represents a failure of an external scoring or transcription provider
type ProviderError struct {
	Provider  string
	Message   string
	Retryable bool
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s failed: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %s failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// InternalError represents an unexpected failure inside the scoring path
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// KindOf classifies err. Untyped errors count as internal.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return KindProvider
	}
	return KindInternal
}

// IsRetryable reports whether err is a provider failure worth retrying later.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}
