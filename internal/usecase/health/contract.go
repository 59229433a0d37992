package health

import (
	"context"

	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// ContentPinger checks content store availability.
type ContentPinger interface {
	Ping(ctx context.Context) error
}

// VectorStoreChecker checks the configured vector backend.
type VectorStoreChecker interface {
	Backend() vectorstore.Backend
	HealthCheck(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
