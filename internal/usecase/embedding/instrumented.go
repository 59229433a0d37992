package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/metrics"
)

// Input policy defaults.
const (
	// DefaultMaxAPIBatchSize caps the texts sent in a single provider call.
	DefaultMaxAPIBatchSize = 256
	// DefaultMaxInputChars is the rune length inputs are truncated to.
	DefaultMaxInputChars = 8000
)

// Options configures the input policy and labels of an InstrumentedEmbedder.
type Options struct {
	Provider string
	Model    string
	// Dimensions, when positive, is enforced on every returned vector.
	Dimensions    int
	MaxInputChars int
	MaxBatchSize  int
}

// InstrumentedEmbedder wraps an Embedder with the input policy and logging.
// Empty inputs are rejected, long inputs are truncated at a rune boundary,
// batches are chunked and every vector is checked against the configured size.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner  domain.Embedder
	opts   Options
	logger *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with the input policy and observability.
func NewInstrumentedEmbedder(inner domain.Embedder, opts Options, logger *zap.Logger) *InstrumentedEmbedder {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxAPIBatchSize
	}
	return &InstrumentedEmbedder{inner: inner, opts: opts, logger: logger}
}

// Embed applies the input policy, delegates to the inner embedder and checks the result.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	prepared, err := p.prepare(text)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, prepared)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.opts.Provider),
			zap.String("model", p.opts.Model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	if err := p.checkVector(result.Embedding); err != nil {
		return domain.EmbeddingResult{}, err
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.opts.Provider),
		zap.String("model", p.opts.Model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed applies the input policy to every text and delegates in chunks.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	prepared := make([]string, len(texts))
	for i, t := range texts {
		s, err := p.prepare(t)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("input [%d]: %w", i, err)
		}
		prepared[i] = s
	}

	start := time.Now()
	result, err := p.embedChunked(ctx, prepared)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.opts.Provider),
		zap.String("model", p.opts.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// embedChunked splits texts into chunks of MaxBatchSize.
func (p *InstrumentedEmbedder) embedChunked(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	allEmbeddings := make([][]float32, 0, len(texts))
	var totalPrompt, totalTokens int

	for offset := 0; offset < len(texts); offset += p.opts.MaxBatchSize {
		end := min(offset+p.opts.MaxBatchSize, len(texts))
		chunk := texts[offset:end]

		chunkResult, err := p.embedInner(ctx, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.opts.Provider),
				zap.String("model", p.opts.Model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		if len(chunkResult.Embeddings) != len(chunk) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("chunk at %d: got %d vectors for %d inputs: %w",
				offset, len(chunkResult.Embeddings), len(chunk), domain.ErrEmbeddingProviderError)
		}
		for i, v := range chunkResult.Embeddings {
			if err := p.checkVector(v); err != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("input [%d]: %w", offset+i, err)
			}
		}

		allEmbeddings = append(allEmbeddings, chunkResult.Embeddings...)
		totalPrompt += chunkResult.PromptTokens
		totalTokens += chunkResult.TotalTokens
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   allEmbeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

func (p *InstrumentedEmbedder) embedInner(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := p.inner.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch embed: %w", err)
		}
		return res, nil
	}
	res, err := domain.BatchFallback(ctx, p.inner, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner batch fallback: %w", err)
	}
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through
	}
	return nil
}

func (p *InstrumentedEmbedder) prepare(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyInput
	}
	truncated, cut := Truncate(text, p.opts.MaxInputChars)
	if cut {
		metrics.EmbeddingTruncatedTotal.Inc()
		p.logger.Debug("Embedding input truncated",
			zap.Int("runes", utf8.RuneCountInString(text)),
			zap.Int("max_input_chars", p.opts.MaxInputChars),
		)
	}
	return truncated, nil
}

func (p *InstrumentedEmbedder) checkVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector: %w", domain.ErrEmbeddingProviderError)
	}
	if p.opts.Dimensions > 0 {
		if err := domain.CheckDimensions(v, p.opts.Dimensions); err != nil {
			return fmt.Errorf("%w: %w", err, domain.ErrEmbeddingProviderError)
		}
	}
	return nil
}

// Truncate cuts s to at most maxRunes runes. It reports whether s was cut.
func Truncate(s string, maxRunes int) (string, bool) {
	if maxRunes <= 0 || len(s) <= maxRunes {
		// Byte length bounds rune count from above.
		return s, false
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i], true
		}
		n++
	}
	return s, false
}
