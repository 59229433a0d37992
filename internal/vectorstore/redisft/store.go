// Package redisft is the cluster vector backend: items are Redis hashes
// searched through an FT HNSW index.
package redisft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/db"
	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// Default limits.
const (
	DefaultBatchSize = 1000
	DefaultIndexName = "items:idx"
)

var (
	_ vectorstore.Store        = (*Store)(nil)
	_ vectorstore.Counter      = (*Store)(nil)
	_ vectorstore.IndexDropper = (*Store)(nil)
)

// backend is the subset of db.Store used by the adapter (ISP).
type backend interface {
	db.Pinger
	db.HashStore
	db.IndexManager
	db.Searcher
	Close()
}

// Config configures the adapter.
type Config struct {
	// KeyPrefix namespaces every key, e.g. "versefind:".
	KeyPrefix  string
	IndexName  string
	Dimensions int
	BatchSize  int
	// Algorithm is "hnsw" (default) or "flat".
	Algorithm string
	HNSW      HNSWConfig
}

// Store implements vectorstore.Store on a Redis/Valkey FT index.
type Store struct {
	db        backend
	keyPrefix string
	index     string
	dim       int
	batchSize int
	algorithm string
	hnsw      HNSWConfig
	logger    *zap.Logger
}

// New creates the adapter. Call EnsureIndex before the first query.
func New(b backend, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > DefaultBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmHNSW
	}
	if cfg.Algorithm != AlgorithmHNSW && cfg.Algorithm != AlgorithmFlat {
		return nil, fmt.Errorf("unknown vector algorithm %q", cfg.Algorithm)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:        b,
		keyPrefix: cfg.KeyPrefix,
		index:     cfg.KeyPrefix + cfg.IndexName,
		dim:       cfg.Dimensions,
		batchSize: cfg.BatchSize,
		algorithm: cfg.Algorithm,
		hnsw:      cfg.HNSW,
		logger:    logger,
	}, nil
}

// Backend returns BackendRedis.
func (s *Store) Backend() vectorstore.Backend { return vectorstore.BackendRedis }

// EnsureIndex creates the FT index when missing.
func (s *Store) EnsureIndex(ctx context.Context) error {
	exists, err := s.db.IndexExists(ctx, s.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w: %w", s.index, domain.ErrVectorStoreUnavailable, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(s.index, s.itemPrefix(), s.dim, s.algorithm, s.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := s.db.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w: %w", s.index, domain.ErrVectorStoreUnavailable, err)
	}
	s.logger.Info("vector index created",
		zap.String("index", s.index),
		zap.String("algorithm", s.algorithm),
		zap.Int("dimensions", s.dim),
	)
	return nil
}

// DropIndex removes the FT index and keeps the item hashes. The next
// EnsureIndex rebuilds the index over them, e.g. after changing the algorithm.
func (s *Store) DropIndex(ctx context.Context) error {
	if err := s.db.DropIndex(ctx, s.index); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w: %w", s.index, domain.ErrVectorStoreUnavailable, err)
	}
	s.logger.Info("vector index dropped", zap.String("index", s.index))
	return nil
}

// Count returns the number of stored vectors produced by model.
func (s *Store) Count(ctx context.Context, model string) (int, error) {
	n, err := s.db.SearchCount(ctx, s.index, []db.TagFilter{{Field: fieldModel, Values: []string{model}}})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w: %w", s.index, domain.ErrVectorStoreUnavailable, err)
	}
	return n, nil
}

// Upsert writes items as hashes, one pipelined round-trip per batch.
// Rewriting a key replaces the previous vector, so repeated upserts are idempotent.
func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	for i, chunk := range vectorstore.Chunks(items, s.batchSize) {
		hs := make([]db.HashSetItem, 0, len(chunk))
		for j := range chunk {
			it := &chunk[j]
			if len(it.Vector) != s.dim {
				return fmt.Errorf("item %s: got %d, want %d: %w",
					it.ID, len(it.Vector), s.dim, domain.ErrVectorDimMismatch)
			}
			hs = append(hs, db.HashSetItem{Key: s.key(it.ID), Fields: s.fields(it)})
		}
		if err := s.db.HSetMulti(ctx, hs); err != nil {
			return fmt.Errorf("upsert batch %d: %w: %w", i, domain.ErrVectorStoreUnavailable, err)
		}
	}
	return nil
}

// Query runs a KNN search restricted to vectors produced by model.
func (s *Store) Query(ctx context.Context, vector []float32, model string, topK int) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	sr, err := s.db.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.index,
		VectorField:  fieldVector,
		Filters:      []db.TagFilter{{Field: fieldModel, Values: []string{model}}},
		Vector:       vector,
		K:            topK,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn %s: %w: %w", s.index, domain.ErrVectorStoreUnavailable, err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	prefix := s.itemPrefix()
	matches := make([]vectorstore.Match, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		id := strings.TrimPrefix(e.Key, prefix)
		matches = append(matches, vectorstore.MatchFromMetadata(id, e.Score, metadata(e.Fields)))
	}
	return matches, nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVectorStoreUnavailable, err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) itemPrefix() string { return s.keyPrefix + "item:" }

func (s *Store) key(id string) string { return s.itemPrefix() + id }

func (s *Store) fields(it *vectorstore.Item) map[string]string {
	f := map[string]string{
		fieldKind:     string(it.Kind),
		fieldEntityID: it.EntityID,
		fieldModel:    it.Model,
		fieldVector:   string(domain.EncodeVector(it.Vector)),
	}
	for _, name := range []string{fieldTitle, fieldDescription, fieldSlug, fieldURL} {
		if v := it.Metadata[name]; v != "" {
			f[name] = v
		}
	}
	return f
}

func metadata(fields map[string]string) map[string]string {
	meta := make(map[string]string, len(fields))
	for k, v := range fields {
		switch k {
		case fieldKind:
			meta[vectorstore.MetaKind] = v
		case fieldEntityID:
			meta[vectorstore.MetaEntityID] = v
		case fieldTitle, fieldDescription, fieldSlug, fieldURL:
			meta[k] = v
		}
	}
	return meta
}
