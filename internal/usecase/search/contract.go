package search

import (
	"context"

	"github.com/kailas-cloud/versefind/internal/db/content"
	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/search/result"
)

// CandidateStore supplies stored vectors with their display fields.
type CandidateStore interface {
	FindCandidateVectors(ctx context.Context, model string, limit int) ([]content.Candidate, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// KeywordSearcher runs the keyword path when vector search is disabled.
type KeywordSearcher interface {
	Search(ctx context.Context, text string, k int) ([]result.Result, error)
}
