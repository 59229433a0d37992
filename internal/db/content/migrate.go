package content

import (
	"context"
	"fmt"
	"strings"
)

// latestVersion is the newest schema version.
const latestVersion = 2

// Migrate brings the schema to latestVersion. It is safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.exec(ctx, s.db, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var cnt int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&cnt); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cnt == 0 {
		if err := s.exec(ctx, s.db, `INSERT INTO schema_migrations(version) VALUES(0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
	}

	var cur int
	if err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_migrations`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := cur + 1; v <= latestVersion; v++ {
		if err := s.up(ctx, v); err != nil {
			return fmt.Errorf("migrate up to v%d: %w", v, err)
		}
		if err := s.exec(ctx, s.db, `UPDATE schema_migrations SET version=?`, v); err != nil {
			return fmt.Errorf("set schema version %d: %w", v, err)
		}
	}
	return nil
}

func (s *Store) up(ctx context.Context, v int) error {
	switch v {
	case 1:
		for _, stmt := range s.schemaV1() {
			if err := s.exec(ctx, s.db, stmt); err != nil {
				return err
			}
		}
		return nil
	case 2:
		for _, stmt := range schemaV2 {
			if err := s.exec(ctx, s.db, stmt); err != nil {
				return err
			}
		}
		return s.backfillFolded(ctx)
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

// schemaV1 holds the two tables the search subsystem reads. updated_at is
// unix milliseconds so ordering is identical across dialects.
func (s *Store) schemaV1() []string {
	blob, boolean := "BLOB", "INTEGER"
	if s.driver == DriverPostgres {
		blob, boolean = "BYTEA", "BOOLEAN"
	}
	r := strings.NewReplacer("{blob}", blob, "{bool}", boolean)
	return []string{
		r.Replace(`CREATE TABLE IF NOT EXISTS search_entities (
            kind TEXT NOT NULL,
            entity_id TEXT NOT NULL,
            slug TEXT NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            description TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL DEFAULT '',
            url TEXT NOT NULL DEFAULT '',
            published {bool} NOT NULL,
            updated_at BIGINT NOT NULL,
            PRIMARY KEY (kind, entity_id)
        )`),
		`CREATE INDEX IF NOT EXISTS idx_search_entities_page ON search_entities(kind, slug, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_search_entities_recent ON search_entities(updated_at)`,
		r.Replace(`CREATE TABLE IF NOT EXISTS entity_embeddings (
            item_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            entity_id TEXT NOT NULL,
            model TEXT NOT NULL,
            dim INTEGER NOT NULL,
            vector {blob} NOT NULL,
            updated_at BIGINT NOT NULL,
            PRIMARY KEY (item_id, model)
        )`),
		`CREATE INDEX IF NOT EXISTS idx_entity_embeddings_model ON entity_embeddings(model)`,
	}
}

// schemaV2 adds keyword match columns folded in Go. SQLite lower() and LIKE
// fold ASCII only, so matching never runs on the raw columns.
var schemaV2 = []string{
	`ALTER TABLE search_entities ADD COLUMN title_fold TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE search_entities ADD COLUMN description_fold TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE search_entities ADD COLUMN body_fold TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE search_entities ADD COLUMN words_fold TEXT NOT NULL DEFAULT ''`,
}

// backfillFolded fills the folded columns of rows written before v2.
func (s *Store) backfillFolded(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, entity_id, title, description, body FROM search_entities`)
	if err != nil {
		return fmt.Errorf("read entities: %w", err)
	}
	type row struct {
		kind, id, title, description, body string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.kind, &r.id, &r.title, &r.description, &r.body); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan entity: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range all {
		f := foldFields(r.title, r.description, r.body)
		if err := s.exec(ctx, s.db, `UPDATE search_entities
            SET title_fold = ?, description_fold = ?, body_fold = ?, words_fold = ?
            WHERE kind = ? AND entity_id = ?`,
			f.title, f.description, f.body, f.words, r.kind, r.id); err != nil {
			return fmt.Errorf("backfill %s:%s: %w", r.kind, r.id, err)
		}
	}
	return nil
}
