package indexing

import (
	"context"

	"github.com/kailas-cloud/versefind/internal/db/content"
	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/repository/checkpoint"
)

// EntitySource pages published entities in slug, entity_id order.
type EntitySource interface {
	ListPublished(ctx context.Context, kind entity.Kind, cur content.Cursor, limit int) ([]entity.Entity, error)
}

// EmbeddingSink stores vectors next to the content they were computed from.
type EmbeddingSink interface {
	UpsertEmbeddings(ctx context.Context, embs []content.Embedding) error
}

// Checkpoints persists per-kind cursors between runs.
type Checkpoints interface {
	Load(kind entity.Kind) (checkpoint.Cursor, bool, error)
	Save(c checkpoint.Cursor) error
	Clear(kind entity.Kind) error
	ClearAll() error
	List() ([]checkpoint.Cursor, error)
}

// Embedder vectorizes entity text one by one or in batches.
type Embedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

var (
	_ EntitySource  = (*content.Store)(nil)
	_ EmbeddingSink = (*content.Store)(nil)
	_ Checkpoints   = (*checkpoint.Store)(nil)
)
