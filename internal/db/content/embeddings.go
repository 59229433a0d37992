package content

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
)

// Embedding is one stored vector for an entity under a model.
type Embedding struct {
	ItemID   string
	Kind     entity.Kind
	EntityID string
	Model    string
	Vector   []float32
}

// Candidate is a stored vector joined to the display fields of its entity.
type Candidate struct {
	ItemID      string
	Kind        entity.Kind
	EntityID    string
	Vector      []float32
	Title       string
	Description string
	Body        string
	Slug        string
	URL         string
}

// UpsertEmbeddings writes vectors keyed by (item_id, model) in one transaction.
// Rewriting an item replaces its vector.
func (s *Store) UpsertEmbeddings(ctx context.Context, embs []Embedding) error {
	if len(embs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `INSERT INTO entity_embeddings (item_id, kind, entity_id, model, dim, vector, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (item_id, model) DO UPDATE SET
          kind = excluded.kind,
          entity_id = excluded.entity_id,
          dim = excluded.dim,
          vector = excluded.vector,
          updated_at = excluded.updated_at`
	now := time.Now().UnixMilli()
	for i := range embs {
		e := &embs[i]
		if err := s.exec(ctx, tx, stmt,
			e.ItemID, string(e.Kind), e.EntityID, e.Model, len(e.Vector), domain.EncodeVector(e.Vector), now,
		); err != nil {
			return fmt.Errorf("upsert embedding %s: %w", e.ItemID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FindCandidateVectors returns up to limit vectors stored for model whose
// entity is published, most recently updated entity first, ties by item id.
// Rows whose blob does not decode are skipped.
func (s *Store) FindCandidateVectors(ctx context.Context, model string, limit int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT e.item_id, e.kind, e.entity_id, e.vector,
            s.title, s.description, s.body, s.slug, s.url
        FROM entity_embeddings e
        JOIN search_entities s ON s.kind = e.kind AND s.entity_id = e.entity_id
        WHERE e.model = ? AND s.published = ?
        ORDER BY s.updated_at DESC, e.item_id ASC
        LIMIT ?`),
		model, true, limit)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c    Candidate
			kind string
			blob []byte
		)
		if err := rows.Scan(&c.ItemID, &kind, &c.EntityID, &blob,
			&c.Title, &c.Description, &c.Body, &c.Slug, &c.URL); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		vec, err := domain.DecodeVector(blob)
		if err != nil {
			continue
		}
		c.Kind = entity.Kind(kind)
		c.Vector = vec
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// CountEmbeddings returns the number of vectors stored for model.
func (s *Store) CountEmbeddings(ctx context.Context, model string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(1) FROM entity_embeddings WHERE model = ?`), model).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// EmbeddingOf returns the stored vector for an item, or nil when absent.
func (s *Store) EmbeddingOf(ctx context.Context, itemID, model string) ([]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT vector FROM entity_embeddings WHERE item_id = ? AND model = ?`), itemID, model)
	if err != nil {
		return nil, fmt.Errorf("get embedding %s: %w", itemID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var blob []byte
	if err := rows.Scan(&blob); err != nil {
		return nil, fmt.Errorf("scan embedding: %w", err)
	}
	return domain.DecodeVector(blob)
}
