package keyword

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/domain/search/rank"
	"github.com/kailas-cloud/versefind/internal/domain/search/result"
)

// DefaultPerKindLimit caps candidates fetched per kind.
const DefaultPerKindLimit = 200

// candidateSource is the consumer interface for the content store (ISP).
type candidateSource interface {
	KeywordCandidates(ctx context.Context, kind entity.Kind, query string, limit int) ([]entity.Entity, error)
}

// Service runs keyword search across kinds.
type Service struct {
	src          candidateSource
	scorer       *Scorer
	perKindLimit int
	kinds        []entity.Kind
	logger       *zap.Logger
}

// NewService creates a keyword search service. Empty kinds means all kinds.
func NewService(src candidateSource, scorer *Scorer, perKindLimit int, kinds []entity.Kind, logger *zap.Logger) *Service {
	if perKindLimit <= 0 {
		perKindLimit = DefaultPerKindLimit
	}
	if len(kinds) == 0 {
		kinds = entity.Kinds()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{src: src, scorer: scorer, perKindLimit: perKindLimit, kinds: kinds, logger: logger}
}

// Search scores each kind's candidates, merges them and returns the top k
// in rank order.
func (s *Service) Search(ctx context.Context, text string, k int) ([]result.Result, error) {
	q := Prepare(text)
	if q.Text() == "" || k <= 0 {
		return nil, nil
	}

	var merged []result.Result
	for _, kind := range s.kinds {
		cands, err := s.src.KeywordCandidates(ctx, kind, q.Text(), s.perKindLimit)
		if err != nil {
			return nil, fmt.Errorf("keyword candidates %s: %w", kind, err)
		}
		for i := range cands {
			e := &cands[i]
			score, _, ok := s.scorer.Score(q, e)
			if !ok {
				continue
			}
			merged = append(merged, result.New(e.ID, e.Kind, e.Title,
				result.Snippet(e.Description, e.Body), e.Slug, e.URL, score))
		}
	}

	rank.Sort(merged, resultKey)
	if len(merged) > k {
		merged = merged[:k]
	}
	s.logger.Debug("keyword search",
		zap.String("query", q.Text()),
		zap.Int("results", len(merged)),
	)
	return merged, nil
}

func resultKey(r result.Result) rank.Key {
	return rank.Key{Score: r.Score(), EntityID: r.EntityID(), Kind: string(r.Kind())}
}
