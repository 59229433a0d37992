// Package mock is a deterministic, network-free embedding provider.
//
// The vector of a text is derived from its SHA-256 digest: every digest byte b
// becomes one slot with value b/127.5 - 1, the digest is re-hashed when exhausted,
// and the filled vector is L2-normalized. Same text, same bits, on every call.
package mock

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/versefind/internal/domain"
)

// DefaultDimensions matches text-embedding-3-small.
const DefaultDimensions = 1536

// Embedder is a pure content-addressed embedder.
type Embedder struct {
	dimensions int
}

// NewEmbedder creates a mock embedder producing vectors of the given size.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Dimensions returns the output vector length.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed implements domain.Embedder.
func (e *Embedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.EmbeddingResult{}, domain.ErrEmptyInput
	}
	tokens := len(strings.Fields(text))
	return domain.EmbeddingResult{
		Embedding:    Vector(text, e.dimensions),
		PromptTokens: tokens,
		TotalTokens:  tokens,
	}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		res, err := e.Embed(ctx, t)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("mock embed [%d]: %w", i, err)
		}
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// HealthCheck always succeeds.
func (e *Embedder) HealthCheck(context.Context) error { return nil }

// Vector computes the deterministic unit vector for text.
func Vector(text string, dimensions int) []float32 {
	raw := make([]float64, dimensions)
	digest := sha256.Sum256([]byte(text))
	pos := 0
	for i := range raw {
		if pos == len(digest) {
			digest = sha256.Sum256(digest[:])
			pos = 0
		}
		raw[i] = float64(digest[pos])/127.5 - 1
		pos++
	}

	var sum float64
	for _, x := range raw {
		sum += x * x
	}
	norm := math.Sqrt(sum)

	out := make([]float32, dimensions)
	if norm == 0 {
		return out
	}
	for i, x := range raw {
		out[i] = float32(x / norm)
	}
	return out
}
