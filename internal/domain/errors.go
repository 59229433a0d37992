package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a bad request parameter (q, k, model).
	ErrValidation = errors.New("validation failed")
	// ErrEmptyInput signals an empty text passed to an embedder.
	ErrEmptyInput = errors.New("empty embedding input")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrVectorStoreUnavailable signals a vector backend failure (unreachable or misconfigured).
	ErrVectorStoreUnavailable = errors.New("vector store unavailable")
	// ErrUnknownKind signals an entity kind outside the supported set.
	ErrUnknownKind = errors.New("unknown entity kind")
)

// ValidationError carries the offending parameter name.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a request parameter.
func NewValidationError(param, reason string) error {
	return &ValidationError{Param: param, Reason: reason}
}
