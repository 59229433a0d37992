package vectorstore

import "context"

// None disables vector search. Upserts are accepted and dropped so the
// indexing pipeline can still fill the content store.
type None struct{}

// Backend returns BackendNone.
func (None) Backend() Backend { return BackendNone }

// Upsert is a no-op.
func (None) Upsert(context.Context, []Item) error { return nil }

// Query always fails with ErrNoBackend.
func (None) Query(context.Context, []float32, string, int) ([]Match, error) {
	return nil, ErrNoBackend
}

// HealthCheck always succeeds.
func (None) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (None) Close() error { return nil }
