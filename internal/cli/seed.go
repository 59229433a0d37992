package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/versefind/internal/db/content"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// seedBatch bounds entities written per transaction.
const seedBatch = 500

// seedFile is the corpus document read by the seed command.
//
//	entities:
//	  - kind: verse
//	    id: "23001"
//	    slug: psalm-23-1
//	    title: Psalm 23:1
//	    body: The Lord is my shepherd; I shall not want.
type seedFile struct {
	Entities []seedEntity `yaml:"entities"`
}

type seedEntity struct {
	Kind        string    `yaml:"kind"`
	ID          string    `yaml:"id"`
	Slug        string    `yaml:"slug"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Body        string    `yaml:"body"`
	URL         string    `yaml:"url"`
	Published   *bool     `yaml:"published"` // default true
	UpdatedAt   time.Time `yaml:"updated_at"`
}

func newSeedCommand(e *env) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load entities from a YAML file into the content store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ents, err := readSeedFile(file)
			if err != nil {
				return err
			}
			driver, err := content.ParseDriver(e.cfg.Content.Driver)
			if err != nil {
				return err
			}
			store, err := content.Open(cmd.Context(), content.Config{Driver: driver, DSN: e.cfg.Content.DSN})
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for _, chunk := range vectorstore.Chunks(ents, seedBatch) {
				if err := store.UpsertEntities(cmd.Context(), chunk); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d entities from %s\n", len(ents), file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML corpus file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSeedFile(path string) ([]entity.Entity, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(doc.Entities) == 0 {
		return nil, errors.New("seed file has no entities")
	}

	out := make([]entity.Entity, 0, len(doc.Entities))
	seen := make(map[string]bool, len(doc.Entities))
	for i, se := range doc.Entities {
		kind, err := entity.ParseKind(se.Kind)
		if err != nil {
			return nil, fmt.Errorf("entity #%d: %w", i+1, err)
		}
		if se.ID == "" {
			return nil, fmt.Errorf("entity #%d: id is required", i+1)
		}
		e := entity.Entity{
			Kind:        kind,
			ID:          se.ID,
			Slug:        se.Slug,
			Title:       se.Title,
			Description: se.Description,
			Body:        se.Body,
			URL:         se.URL,
			Published:   se.Published == nil || *se.Published,
			UpdatedAt:   se.UpdatedAt,
		}
		if e.Slug == "" {
			e.Slug = e.ID
		}
		if seen[e.ItemID()] {
			return nil, fmt.Errorf("entity #%d: duplicate %s", i+1, e.ItemID())
		}
		seen[e.ItemID()] = true
		out = append(out, e)
	}
	return out, nil
}
