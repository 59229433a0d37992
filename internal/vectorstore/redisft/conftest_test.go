package redisft

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/db"
)

// mockBackend implements the backend interface for tests.
type mockBackend struct {
	pingFn        func(ctx context.Context) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	dropIndexFn   func(ctx context.Context, name string) error
	searchCountFn func(ctx context.Context, index string, filters []db.TagFilter) (int, error)

	closed bool
}

func (m *mockBackend) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *mockBackend) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockBackend) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockBackend) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockBackend) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return true, nil
}

func (m *mockBackend) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockBackend) SearchCount(ctx context.Context, index string, filters []db.TagFilter) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, index, filters)
	}
	return 0, nil
}

func (m *mockBackend) Close() { m.closed = true }

func newTestStore(t *testing.T, dim int) (*Store, *mockBackend) {
	t.Helper()
	mb := &mockBackend{}
	s, err := New(mb, Config{KeyPrefix: "vf:", Dimensions: dim, BatchSize: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mb
}
