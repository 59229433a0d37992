// Package checkpoint persists per-kind indexing cursors in a bbolt file so an
// interrupted run resumes after the last committed batch.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
)

var bucketCursors = []byte("cursors")

// Cursor is the position of the last committed batch of a kind.
type Cursor struct {
	Kind      entity.Kind `json:"kind"`
	Model     string      `json:"model"`
	LastSlug  string      `json:"last_slug"`
	LastID    string      `json:"last_id"`
	Processed int         `json:"processed"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Batches   int         `json:"batches"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Store is a bbolt-backed cursor store. Safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the checkpoint file.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("checkpoint path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCursors)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketCursors, err)
	}
	return &Store{db: db}, nil
}

// Close closes the file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the cursor for kind, or ok=false when none is stored.
func (s *Store) Load(kind entity.Kind) (Cursor, bool, error) {
	var (
		c  Cursor
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCursors).Get([]byte(kind))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return Cursor{}, false, fmt.Errorf("load cursor %s: %w", kind, err)
	}
	return c, ok, nil
}

// Save stores c under its kind.
func (s *Store) Save(c Cursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Put([]byte(c.Kind), data)
	})
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", c.Kind, err)
	}
	return nil
}

// Clear removes the cursor of kind. Clearing a missing cursor is not an error.
func (s *Store) Clear(kind entity.Kind) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Delete([]byte(kind))
	})
	if err != nil {
		return fmt.Errorf("clear cursor %s: %w", kind, err)
	}
	return nil
}

// ClearAll removes every stored cursor.
func (s *Store) ClearAll() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketCursors); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketCursors)
		return err
	})
	if err != nil {
		return fmt.Errorf("clear cursors: %w", err)
	}
	return nil
}

// List returns all stored cursors ordered by kind.
func (s *Store) List() ([]Cursor, error) {
	var out []Cursor
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).ForEach(func(_, v []byte) error {
			var c Cursor
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}
