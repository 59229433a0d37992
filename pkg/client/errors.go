package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kailas-cloud/versefind/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation             = domain.ErrValidation
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrVectorStoreUnavailable = domain.ErrVectorStoreUnavailable
	ErrUnauthorized           = errors.New("unauthorized")
	ErrServer                 = errors.New("server error")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("versefind: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the response to a sentinel error.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return ErrValidation
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusBadGateway && e.Message == "vector_store_error":
		return ErrVectorStoreUnavailable
	case e.StatusCode == http.StatusBadGateway:
		return ErrEmbeddingProviderError
	case e.StatusCode >= http.StatusInternalServerError:
		return ErrServer
	default:
		return nil
	}
}
