// Package search is the query orchestrator: validate, fetch candidates,
// embed once, rank and join display fields.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/db/content"
	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/search/mode"
	"github.com/kailas-cloud/versefind/internal/domain/search/rank"
	"github.com/kailas-cloud/versefind/internal/domain/search/request"
	"github.com/kailas-cloud/versefind/internal/domain/search/result"
	"github.com/kailas-cloud/versefind/internal/metrics"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// Source selects where vector candidates come from.
type Source string

const (
	// SourceContent ranks vectors read from the content store.
	SourceContent Source = "content"
	// SourceBackend asks the vector backend for its nearest neighbours.
	SourceBackend Source = "backend"
)

// ParseSource validates a candidate source name. Empty means content.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceContent, "":
		return SourceContent, nil
	case SourceBackend:
		return SourceBackend, nil
	default:
		return "", fmt.Errorf("unknown candidate source %q", s)
	}
}

// DefaultCandidateLimit bounds candidates ranked per query.
const DefaultCandidateLimit = 5000

// Options tunes the service.
type Options struct {
	CandidateLimit int
	Source         Source
	// Timeout bounds provider and store calls of one search. Zero disables it.
	Timeout time.Duration
}

// Response is a ranked result list. Mode names the score scale.
type Response struct {
	Query   string
	Model   string
	K       int
	Mode    mode.Mode
	Results []result.Result
}

// Service answers search queries.
type Service struct {
	candidates CandidateStore
	vectors    vectorstore.Store
	embed      Embedder
	keyword    KeywordSearcher
	opts       Options
	logger     *zap.Logger
}

// New creates a search service. keyword may be nil when a vector backend is configured.
func New(
	candidates CandidateStore, vectors vectorstore.Store, embed Embedder,
	keyword KeywordSearcher, opts Options, logger *zap.Logger,
) *Service {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultCandidateLimit
	}
	if opts.Source == "" {
		opts.Source = SourceContent
	}
	if vectors == nil {
		vectors = vectorstore.None{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		candidates: candidates,
		vectors:    vectors,
		embed:      embed,
		keyword:    keyword,
		opts:       opts,
		logger:     logger,
	}
}

// Mode returns the score scale this service answers with.
func (s *Service) Mode() mode.Mode {
	if s.vectors.Backend() == vectorstore.BackendNone {
		return mode.Keyword
	}
	return mode.Vector
}

// Search runs one query in a single pass with no retries.
func (s *Service) Search(ctx context.Context, req *request.Request) (Response, error) {
	start := time.Now()
	m := s.Mode()
	resp := Response{Query: req.Text(), Model: req.Model(), K: req.K(), Mode: m}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var err error
	switch {
	case m == mode.Keyword:
		resp.Results, err = s.searchKeyword(ctx, req)
	case s.opts.Source == SourceBackend:
		resp.Results, err = s.searchBackend(ctx, req)
	default:
		resp.Results, err = s.searchContent(ctx, req)
	}

	metrics.SearchDuration.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())
	metrics.SearchRequestsTotal.WithLabelValues(string(m), outcome(len(resp.Results), err)).Inc()
	if err != nil {
		return Response{}, err
	}
	if resp.Results == nil {
		resp.Results = []result.Result{}
	}
	return resp, nil
}

func (s *Service) searchKeyword(ctx context.Context, req *request.Request) ([]result.Result, error) {
	if s.keyword == nil {
		return nil, vectorstore.ErrNoBackend
	}
	res, err := s.keyword.Search(ctx, req.Text(), req.K())
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return res, nil
}

func (s *Service) searchContent(ctx context.Context, req *request.Request) ([]result.Result, error) {
	cands, err := s.candidates.FindCandidateVectors(ctx, req.Model(), s.opts.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	metrics.SearchCandidates.Observe(float64(len(cands)))
	if len(cands) == 0 {
		return nil, nil
	}

	vec, err := s.embedQuery(ctx, req.Text())
	if err != nil {
		return nil, err
	}

	ranked := make([]rank.Candidate, 0, len(cands))
	idx := make([]int, 0, len(cands))
	skipped := 0
	for i := range cands {
		if len(cands[i].Vector) != len(vec) {
			skipped++
			continue
		}
		ranked = append(ranked, rank.Candidate{
			EntityID: cands[i].EntityID,
			Kind:     string(cands[i].Kind),
			Vector:   cands[i].Vector,
		})
		idx = append(idx, i)
	}
	if skipped > 0 {
		s.logger.Warn("candidates with mismatched dimensions skipped",
			zap.String("model", req.Model()),
			zap.Int("skipped", skipped),
			zap.Int("dimensions", len(vec)),
		)
	}

	top := rank.TopK(vec, ranked, req.K())
	out := make([]result.Result, 0, len(top))
	for _, sc := range top {
		c := &cands[idx[sc.Index]]
		out = append(out, result.New(c.EntityID, c.Kind, c.Title,
			result.Snippet(c.Description, c.Body), c.Slug, c.URL, sc.Score))
	}
	rank.Sort(out, resultKey)
	return out, nil
}

func (s *Service) searchBackend(ctx context.Context, req *request.Request) ([]result.Result, error) {
	vec, err := s.embedQuery(ctx, req.Text())
	if err != nil {
		return nil, err
	}
	matches, err := s.vectors.Query(ctx, vec, req.Model(), req.K())
	if err != nil {
		if errors.Is(err, domain.ErrVectorStoreUnavailable) || errors.Is(err, vectorstore.ErrNoBackend) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrVectorStoreUnavailable, err)
	}
	metrics.SearchCandidates.Observe(float64(len(matches)))

	out := make([]result.Result, 0, len(matches))
	for _, mt := range matches {
		md := mt.Metadata
		out = append(out, result.New(mt.EntityID, mt.Kind, md[vectorstore.MetaTitle],
			result.Snippet(md[vectorstore.MetaDescription], ""), md[vectorstore.MetaSlug],
			md[vectorstore.MetaURL], mt.Score))
	}
	rank.Sort(out, resultKey)
	if len(out) > req.K() {
		out = out[:req.K()]
	}
	return out, nil
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingProviderError) {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("embed query: empty vector: %w", domain.ErrEmbeddingProviderError)
	}
	return res.Embedding, nil
}

func resultKey(r result.Result) rank.Key {
	return rank.Key{Score: r.Score(), EntityID: r.EntityID(), Kind: string(r.Kind())}
}

func outcome(n int, err error) string {
	switch {
	case err == nil && n == 0:
		return "empty"
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return "embedding_error"
	case errors.Is(err, domain.ErrVectorStoreUnavailable):
		return "vector_store_error"
	default:
		return "error"
	}
}

// content.Store is the production CandidateStore.
var _ CandidateStore = (*content.Store)(nil)
