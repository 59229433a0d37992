// Package vectorstore defines the adapter contract for vector backends and
// selects one at startup.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
)

// ErrNoBackend is returned by the none backend on Query.
// The search service treats it as the signal to use keyword scoring.
var ErrNoBackend = errors.New("vectorstore: no backend configured")

// Backend names a vector store implementation.
type Backend string

const (
	// BackendQdrant is the managed index service.
	BackendQdrant Backend = "qdrant"
	// BackendRedis is the self-hosted Redis/Valkey FT cluster.
	BackendRedis Backend = "redis"
	// BackendNone disables vector search.
	BackendNone Backend = "none"
)

// ParseBackend validates a backend name. Empty means none.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendQdrant, BackendRedis, BackendNone:
		return b, nil
	case "":
		return BackendNone, nil
	default:
		return "", fmt.Errorf("unknown vector store backend %q", s)
	}
}

// Metadata keys stored with every item. Values are display only.
const (
	MetaKind        = "kind"
	MetaEntityID    = "entity_id"
	MetaTitle       = "title"
	MetaDescription = "description"
	MetaSlug        = "slug"
	MetaURL         = "url"
)

// Item is one indexed vector. ID is "{kind}:{entityId}".
type Item struct {
	ID       string
	Kind     entity.Kind
	EntityID string
	Model    string
	Vector   []float32
	Metadata map[string]string
}

// NewItem builds an item for an entity with its display metadata.
func NewItem(e *entity.Entity, model string, vector []float32) Item {
	return Item{
		ID:       e.ItemID(),
		Kind:     e.Kind,
		EntityID: e.ID,
		Model:    model,
		Vector:   vector,
		Metadata: map[string]string{
			MetaKind:        string(e.Kind),
			MetaEntityID:    e.ID,
			MetaTitle:       e.Title,
			MetaDescription: e.Description,
			MetaSlug:        e.Slug,
			MetaURL:         e.URL,
		},
	}
}

// Match is a query hit. Score is cosine similarity, higher is better.
type Match struct {
	ID       string
	Kind     entity.Kind
	EntityID string
	Score    float64
	Metadata map[string]string
}

// Store is a vector backend. Upsert is idempotent by item id and chunks
// requests internally. Query returns at most topK matches for model.
type Store interface {
	Backend() Backend
	Upsert(ctx context.Context, items []Item) error
	Query(ctx context.Context, vector []float32, model string, topK int) ([]Match, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// Counter is implemented by backends that can count their stored vectors.
type Counter interface {
	Count(ctx context.Context, model string) (int, error)
}

// IndexDropper is implemented by backends whose search index can be dropped
// and rebuilt from the stored items.
type IndexDropper interface {
	DropIndex(ctx context.Context) error
}

// Opener constructs a concrete backend.
type Opener func() (Store, error)

// Openers holds the constructors for the real backends.
type Openers struct {
	Qdrant Opener
	Redis  Opener
}

// New resolves the backend once. Backends without an opener are an error.
func New(b Backend, o Openers) (Store, error) {
	var open Opener
	switch b {
	case BackendNone, "":
		return None{}, nil
	case BackendQdrant:
		open = o.Qdrant
	case BackendRedis:
		open = o.Redis
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", b)
	}
	if open == nil {
		return nil, fmt.Errorf("vector store backend %q is not available", b)
	}
	s, err := open()
	if err != nil {
		return nil, fmt.Errorf("open %s vector store: %w", b, err)
	}
	return s, nil
}

// MatchFromMetadata fills kind and entity id of a match from its id and metadata.
func MatchFromMetadata(id string, score float64, meta map[string]string) Match {
	m := Match{ID: id, Score: score, Metadata: meta}
	if k, eid, err := entity.ParseItemID(id); err == nil {
		m.Kind, m.EntityID = k, eid
		return m
	}
	m.Kind = entity.Kind(meta[MetaKind])
	m.EntityID = meta[MetaEntityID]
	return m
}

// Chunks splits items into consecutive slices of at most size elements.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
