package content

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
)

const entityColumns = `kind, entity_id, slug, title, description, body, url, published, updated_at`

// Cursor is a keyset position in slug, entity_id order.
type Cursor struct {
	Slug     string
	EntityID string
}

// ListPublished returns up to limit published entities of kind after cur,
// ordered by slug then entity_id.
func (s *Store) ListPublished(ctx context.Context, kind entity.Kind, cur Cursor, limit int) ([]entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+entityColumns+`
        FROM search_entities
        WHERE kind = ? AND published = ? AND (slug > ? OR (slug = ? AND entity_id > ?))
        ORDER BY slug ASC, entity_id ASC
        LIMIT ?`),
		string(kind), true, cur.Slug, cur.Slug, cur.EntityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list published %s: %w", kind, err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// CountPublished returns the number of published entities of kind.
func (s *Store) CountPublished(ctx context.Context, kind entity.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(1) FROM search_entities WHERE kind = ? AND published = ?`),
		string(kind), true).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count published %s: %w", kind, err)
	}
	return n, nil
}

// KeywordCandidates returns published entities of kind whose title,
// description or body contains query case-insensitively. Rows are ordered by
// their best match tier over the three fields (exact, prefix, whole word,
// substring) and then newest first, so limit never drops a stronger tier in
// favour of a weaker one.
func (s *Store) KeywordCandidates(ctx context.Context, kind entity.Kind, query string, limit int) ([]entity.Entity, error) {
	q := entity.Fold(query)
	if q == "" {
		return nil, nil
	}
	esc := escapeLike(q)
	contains := "%" + esc + "%"
	prefix := esc + "%"
	// Whole-word matches are located on the word-normalized column; a query
	// without word runes has no word tier of its own.
	word := "%"
	if w := entity.Words(q); w != "" {
		word = "%" + escapeLike(w) + "%"
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+entityColumns+`
        FROM search_entities
        WHERE kind = ? AND published = ?
          AND (title_fold LIKE ? ESCAPE '\' OR description_fold LIKE ? ESCAPE '\' OR body_fold LIKE ? ESCAPE '\')
        ORDER BY CASE
            WHEN title_fold = ? OR description_fold = ? OR body_fold = ? THEN 0
            WHEN title_fold LIKE ? ESCAPE '\' OR description_fold LIKE ? ESCAPE '\' OR body_fold LIKE ? ESCAPE '\' THEN 1
            WHEN words_fold LIKE ? ESCAPE '\' THEN 2
            ELSE 3
          END, updated_at DESC, entity_id ASC
        LIMIT ?`),
		string(kind), true, contains, contains, contains,
		q, q, q,
		prefix, prefix, prefix,
		word,
		limit)
	if err != nil {
		return nil, fmt.Errorf("keyword candidates %s: %w", kind, err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// UpsertEntities inserts or replaces entities in one transaction.
func (s *Store) UpsertEntities(ctx context.Context, entities []entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `INSERT INTO search_entities (` + entityColumns + `,
          title_fold, description_fold, body_fold, words_fold)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (kind, entity_id) DO UPDATE SET
          slug = excluded.slug,
          title = excluded.title,
          description = excluded.description,
          body = excluded.body,
          url = excluded.url,
          published = excluded.published,
          updated_at = excluded.updated_at,
          title_fold = excluded.title_fold,
          description_fold = excluded.description_fold,
          body_fold = excluded.body_fold,
          words_fold = excluded.words_fold`
	for i := range entities {
		e := &entities[i]
		if !e.Kind.IsValid() {
			return fmt.Errorf("entity %q: kind %q: %w", e.ID, e.Kind, domain.ErrUnknownKind)
		}
		updated := e.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		f := foldFields(e.Title, e.Description, e.Body)
		if err := s.exec(ctx, tx, stmt,
			string(e.Kind), e.ID, e.Slug, e.Title, e.Description, e.Body, e.URL,
			e.Published, updated.UnixMilli(),
			f.title, f.description, f.body, f.words,
		); err != nil {
			return fmt.Errorf("upsert entity %s: %w", e.ItemID(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanEntities(rows *sql.Rows) ([]entity.Entity, error) {
	var out []entity.Entity
	for rows.Next() {
		var (
			e       entity.Entity
			kind    string
			updated int64
		)
		if err := rows.Scan(&kind, &e.ID, &e.Slug, &e.Title, &e.Description, &e.Body, &e.URL,
			&e.Published, &updated); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Kind = entity.Kind(kind)
		e.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

type folded struct {
	title, description, body, words string
}

// foldFields computes the keyword match columns. words_fold keeps one word
// form per field separated by a newline so no whole-word match spans fields.
func foldFields(title, description, body string) folded {
	var words []string
	for _, f := range []string{title, description, body} {
		if w := entity.Words(f); w != "" {
			words = append(words, w)
		}
	}
	return folded{
		title:       entity.Fold(title),
		description: entity.Fold(description),
		body:        entity.Fold(body),
		words:       strings.Join(words, "\n"),
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
