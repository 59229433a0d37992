// Package app wires configuration into the stores, the embedder chain and
// the services shared by the API server and the indexer.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/config"
	"github.com/kailas-cloud/versefind/internal/db/content"
	dbRedis "github.com/kailas-cloud/versefind/internal/db/redis"
	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/metrics"
	"github.com/kailas-cloud/versefind/internal/repository/embcache"
	"github.com/kailas-cloud/versefind/internal/transport/mock"
	openaiEmb "github.com/kailas-cloud/versefind/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/versefind/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/versefind/internal/usecase/health"
	"github.com/kailas-cloud/versefind/internal/usecase/indexing"
	"github.com/kailas-cloud/versefind/internal/usecase/keyword"
	searchuc "github.com/kailas-cloud/versefind/internal/usecase/search"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
	"github.com/kailas-cloud/versefind/internal/vectorstore/qdrant"
	"github.com/kailas-cloud/versefind/internal/vectorstore/redisft"
)

// ensureTimeout bounds collection and index creation at startup.
const ensureTimeout = 30 * time.Second

// App holds the opened stores and the embedder chains.
type App struct {
	Content *content.Store
	Vectors vectorstore.Store
	// Embedder vectorizes entity text for indexing.
	Embedder indexing.Embedder
	// QueryEmbedder vectorizes search queries.
	QueryEmbedder domain.Embedder

	cfg    config.Config
	base   *embeddinguc.InstrumentedEmbedder
	redis  *dbRedis.Store
	logger *zap.Logger
}

// New opens the content store, the vector backend and builds the embedder.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	driver, err := content.ParseDriver(cfg.Content.Driver)
	if err != nil {
		return nil, err
	}
	a.Content, err = content.Open(ctx, content.Config{Driver: driver, DSN: cfg.Content.DSN})
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	logger.Info("Content store ready", zap.String("driver", string(driver)))

	a.Vectors, err = vectorstore.New(cfg.VectorStore.Backend, vectorstore.Openers{
		Qdrant: func() (vectorstore.Store, error) { return a.openQdrant(ctx) },
		Redis:  func() (vectorstore.Store, error) { return a.openRedisFT(ctx) },
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Vector store ready", zap.String("backend", string(a.Vectors.Backend())))

	a.base, err = a.buildEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	a.Embedder = withInstruction(a.base, cfg.Embedding.DocumentInstruction)
	a.QueryEmbedder = withInstruction(a.base, cfg.Embedding.QueryInstruction)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", cfg.Embedding.Cache.Enabled),
	)
	return a, nil
}

// SearchService builds the query orchestrator. The keyword path is wired
// only when no vector backend is configured.
func (a *App) SearchService() (*searchuc.Service, error) {
	source, err := searchuc.ParseSource(a.cfg.Search.CandidateSource)
	if err != nil {
		return nil, err
	}
	var kw searchuc.KeywordSearcher
	if a.Vectors.Backend() == vectorstore.BackendNone {
		svc, err := a.KeywordService()
		if err != nil {
			return nil, err
		}
		kw = svc
	}
	return searchuc.New(a.Content, a.Vectors, a.QueryEmbedder, kw, searchuc.Options{
		CandidateLimit: a.cfg.Search.CandidateLimit,
		Source:         source,
		Timeout:        time.Duration(a.cfg.Search.TimeoutSec) * time.Second,
	}, a.logger), nil
}

// KeywordService builds the keyword fallback over the content store.
func (a *App) KeywordService() (*keyword.Service, error) {
	w, err := a.cfg.Search.Keyword.Weights()
	if err != nil {
		return nil, err
	}
	scorer, err := keyword.NewScorer(w)
	if err != nil {
		return nil, err
	}
	return keyword.NewService(a.Content, scorer, a.cfg.Search.Keyword.PerKindLimit, nil, a.logger), nil
}

// HealthService builds the aggregated health check.
func (a *App) HealthService() *healthuc.Service {
	return healthuc.New(a.Content, a.Vectors, a.base, a.logger)
}

// Close releases every opened resource.
func (a *App) Close() error {
	var errs []error
	if a.Vectors != nil {
		errs = append(errs, a.Vectors.Close())
	}
	// The redis FT store owns the shared client.
	if a.redis != nil && (a.Vectors == nil || a.Vectors.Backend() != vectorstore.BackendRedis) {
		a.redis.Close()
	}
	if a.Content != nil {
		errs = append(errs, a.Content.Close())
	}
	return errors.Join(errs...)
}

func (a *App) openQdrant(ctx context.Context) (vectorstore.Store, error) {
	qc := a.cfg.VectorStore.Qdrant
	s, err := qdrant.Open(qdrant.Config{
		Host:       qc.Host,
		Port:       qc.Port,
		APIKey:     qc.APIKey,
		UseTLS:     qc.UseTLS,
		Collection: qc.Collection,
		Dimensions: a.cfg.Embedding.Dimensions,
		BatchSize:  qc.BatchSize,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, ensureTimeout)
	defer cancel()
	if err := s.EnsureCollection(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (a *App) openRedisFT(ctx context.Context) (vectorstore.Store, error) {
	r, err := a.redisStore(ctx)
	if err != nil {
		return nil, err
	}
	rc := a.cfg.VectorStore.Redis
	s, err := redisft.New(r, redisft.Config{
		KeyPrefix:  rc.KeyPrefix,
		IndexName:  rc.Index,
		Dimensions: a.cfg.Embedding.Dimensions,
		BatchSize:  rc.BatchSize,
		Algorithm:  rc.Algorithm,
		HNSW:       redisft.HNSWConfig{M: rc.HNSWM, EFConstruction: rc.HNSWEFConstruct},
	}, a.logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, ensureTimeout)
	defer cancel()
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// redisStore opens the shared Redis client once and waits for it.
func (a *App) redisStore(ctx context.Context) (*dbRedis.Store, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	rc := a.cfg.VectorStore.Redis
	r, err := dbRedis.NewStore(dbRedis.Config{Addrs: rc.Addrs, Password: rc.Password})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := r.WaitForReady(ctx, time.Duration(rc.ReadinessTimeout)*time.Second); err != nil {
		r.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	a.redis = r
	a.logger.Info("Connected to redis", zap.Strings("addrs", rc.Addrs))
	return r, nil
}

// withInstruction prefixes texts when instruction is set. The prefix sits
// outside the cache so the cache key includes it.
func withInstruction(e *embeddinguc.InstrumentedEmbedder, instruction string) indexing.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}

// buildEmbedder assembles the decorator chain: provider -> cache -> instrumented.
func (a *App) buildEmbedder(ctx context.Context) (*embeddinguc.InstrumentedEmbedder, error) {
	ec := a.cfg.Embedding

	var base domain.Embedder
	switch ec.Provider {
	case config.ProviderOpenAI:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			Timeout:    ec.Timeout(),
			Logger:     a.logger,
		})
	case config.ProviderMock:
		base = mock.NewEmbedder(ec.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	if ec.Cache.Enabled {
		r, err := a.redisStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		base = embcache.New(base, r, ec.Cache.KeyPrefix, ec.Model, metrics.EmbeddingCacheTotal, a.logger).
			WithTTL(ec.Cache.TTL())
	}

	return embeddinguc.NewInstrumentedEmbedder(base, embeddinguc.Options{
		Provider:      ec.Provider,
		Model:         ec.Model,
		Dimensions:    ec.Dimensions,
		MaxInputChars: ec.MaxInputChars,
	}, a.logger), nil
}
