package redisft

import (
	"fmt"

	"github.com/kailas-cloud/versefind/internal/db"
)

// Hash field names of an indexed item.
const (
	fieldKind        = "kind"
	fieldEntityID    = "entity_id"
	fieldModel       = "model"
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldSlug        = "slug"
	fieldURL         = "url"
	fieldVector      = "vector"
)

var returnFields = []string{fieldKind, fieldEntityID, fieldTitle, fieldDescription, fieldSlug, fieldURL}

// Vector index algorithms.
const (
	AlgorithmHNSW = "hnsw"
	AlgorithmFlat = "flat"
)

// HNSWConfig holds HNSW graph build parameters. Zero keeps the server defaults.
type HNSWConfig struct {
	M              int
	EFConstruction int
}

// buildIndex creates the item index: kind, entity_id and model as exact tags
// plus a cosine vector field, HNSW unless algorithm is flat.
func buildIndex(name, keyPrefix string, dim int, algorithm string, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).
		Prefix(keyPrefix).
		Tag(fieldKind).
		Tag(fieldEntityID).
		Tag(fieldModel)
	switch algorithm {
	case AlgorithmFlat:
		b = b.VectorFlat(fieldVector, dim, db.DistanceCosine)
	case AlgorithmHNSW, "":
		b = b.VectorHNSW(fieldVector, dim, db.DistanceCosine, hnsw.M, hnsw.EFConstruction)
	default:
		return nil, fmt.Errorf("unknown vector algorithm %q", algorithm)
	}
	idx, err := b.Build()
	if err != nil {
		return nil, err
	}
	return idx, nil
}
