// Package indexing embeds published entities and writes the vectors to the
// content store and the configured vector backend. Runs resume from per-kind
// checkpoints.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/versefind/internal/db/content"
	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/metrics"
	"github.com/kailas-cloud/versefind/internal/repository/checkpoint"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// Defaults and bounds for Options.
const (
	DefaultBatchSize = 64
	MaxWorkers       = 4
)

// ErrProviderDown aborts a kind when no entity of a batch could be embedded.
var ErrProviderDown = fmt.Errorf("embedding provider down: %w", domain.ErrEmbeddingProviderError)

// Options tunes a Pipeline.
type Options struct {
	// Model is recorded with every vector and checkpoint.
	Model     string
	BatchSize int
	// Workers is the number of kinds indexed concurrently, at most MaxWorkers.
	Workers int
	// RatePerSec limits embedding calls across workers. Zero means unlimited.
	RatePerSec float64
	Burst      int
	// OnBatch, when set, is called after every committed batch with the
	// number of entities it covered. Called from worker goroutines.
	OnBatch func(kind entity.Kind, n int)
}

// Report summarises one kind of a run. Counters include work done by
// earlier runs when Resumed is set.
type Report struct {
	Kind      entity.Kind
	Processed int
	Skipped   int
	Failed    int
	Batches   int
	Resumed   bool
	Duration  time.Duration
	Err       error
}

// Pipeline indexes entities kind by kind.
type Pipeline struct {
	source      EntitySource
	sink        EmbeddingSink
	vectors     vectorstore.Store
	embed       Embedder
	checkpoints Checkpoints
	limiter     *rate.Limiter
	opts        Options
	logger      *zap.Logger
}

// New creates a pipeline. A nil vectors store writes to the content store only.
func New(
	source EntitySource, sink EmbeddingSink, vectors vectorstore.Store,
	embed Embedder, checkpoints Checkpoints, opts Options, logger *zap.Logger,
) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Workers > MaxWorkers {
		opts.Workers = MaxWorkers
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if vectors == nil {
		vectors = vectorstore.None{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:      source,
		sink:        sink,
		vectors:     vectors,
		embed:       embed,
		checkpoints: checkpoints,
		limiter:     rate.NewLimiter(limit, opts.Burst),
		opts:        opts,
		logger:      logger,
	}
}

// Run indexes kinds and returns one report per kind in input order.
// The error joins the errors of failed kinds.
func (p *Pipeline) Run(ctx context.Context, kinds []entity.Kind) ([]Report, error) {
	reports := make([]Report, len(kinds))
	sem := make(chan struct{}, p.opts.Workers)
	var wg sync.WaitGroup

	for i, kind := range kinds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				reports[i] = Report{Kind: kind, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			reports[i] = p.runKind(ctx, kind)
		}()
	}
	wg.Wait()

	var errs []error
	for i := range reports {
		if reports[i].Err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", reports[i].Kind, reports[i].Err))
		}
	}
	return reports, errors.Join(errs...)
}

// Reset clears every checkpoint so the next run starts from the beginning.
func (p *Pipeline) Reset() error {
	return p.checkpoints.ClearAll()
}

// Status returns the checkpoints of interrupted kinds.
func (p *Pipeline) Status() ([]checkpoint.Cursor, error) {
	return p.checkpoints.List()
}

func (p *Pipeline) runKind(ctx context.Context, kind entity.Kind) (rep Report) {
	start := time.Now()
	rep.Kind = kind
	log := p.logger.With(zap.String("kind", string(kind)), zap.String("model", p.opts.Model))
	defer func() {
		rep.Duration = time.Since(start)
		fields := []zap.Field{
			zap.Int("processed", rep.Processed),
			zap.Int("skipped", rep.Skipped),
			zap.Int("failed", rep.Failed),
			zap.Int("batches", rep.Batches),
			zap.Bool("resumed", rep.Resumed),
			zap.Duration("duration", rep.Duration),
		}
		if rep.Err != nil {
			log.Error("kind aborted", append(fields, zap.Error(rep.Err))...)
			return
		}
		log.Info("kind indexed", fields...)
	}()

	cur, ok, err := p.checkpoints.Load(kind)
	if err != nil {
		rep.Err = err
		return rep
	}
	if ok && cur.Model == p.opts.Model {
		rep.Resumed = true
		rep.Processed, rep.Skipped, rep.Failed, rep.Batches = cur.Processed, cur.Skipped, cur.Failed, cur.Batches
	} else {
		cur = checkpoint.Cursor{Kind: kind, Model: p.opts.Model}
	}

	for {
		if err := ctx.Err(); err != nil {
			rep.Err = err
			return rep
		}
		page, err := p.source.ListPublished(ctx, kind,
			content.Cursor{Slug: cur.LastSlug, EntityID: cur.LastID}, p.opts.BatchSize)
		if err != nil {
			rep.Err = err
			return rep
		}
		if len(page) == 0 {
			break
		}

		out, err := p.indexBatch(ctx, kind, page)
		if err != nil {
			metrics.IndexBatchesTotal.WithLabelValues(string(kind), "failed").Inc()
			rep.Err = fmt.Errorf("batch after %q: %w", cur.LastSlug, err)
			return rep
		}
		status := "ok"
		if out.degraded {
			status = "degraded"
		}
		metrics.IndexBatchesTotal.WithLabelValues(string(kind), status).Inc()
		metrics.IndexItemsTotal.WithLabelValues(string(kind), "indexed").Add(float64(out.indexed))
		metrics.IndexItemsTotal.WithLabelValues(string(kind), "skipped").Add(float64(out.skipped))
		metrics.IndexItemsTotal.WithLabelValues(string(kind), "failed").Add(float64(out.failed))

		rep.Processed += out.indexed
		rep.Skipped += out.skipped
		rep.Failed += out.failed
		rep.Batches++

		last := page[len(page)-1]
		cur.LastSlug, cur.LastID = last.Slug, last.ID
		cur.Processed, cur.Skipped, cur.Failed, cur.Batches = rep.Processed, rep.Skipped, rep.Failed, rep.Batches
		cur.UpdatedAt = time.Time{}
		if err := p.checkpoints.Save(cur); err != nil {
			rep.Err = err
			return rep
		}
		log.Debug("batch indexed",
			zap.String("last_slug", cur.LastSlug),
			zap.Int("size", len(page)),
			zap.Int("indexed", out.indexed),
			zap.Bool("degraded", out.degraded),
		)
		if p.opts.OnBatch != nil {
			p.opts.OnBatch(kind, len(page))
		}

		if len(page) < p.opts.BatchSize {
			break
		}
	}

	if err := p.checkpoints.Clear(kind); err != nil {
		rep.Err = err
	}
	return rep
}

type batchOutcome struct {
	indexed  int
	skipped  int
	failed   int
	degraded bool
}

func (p *Pipeline) indexBatch(ctx context.Context, kind entity.Kind, page []entity.Entity) (batchOutcome, error) {
	var out batchOutcome
	ents := make([]*entity.Entity, 0, len(page))
	texts := make([]string, 0, len(page))
	for i := range page {
		text := page[i].SearchText()
		if text == "" {
			out.skipped++
			continue
		}
		ents = append(ents, &page[i])
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return out, nil
	}

	vecs, degraded, err := p.embedTexts(ctx, kind, ents, texts)
	if err != nil {
		return out, err
	}
	out.degraded = degraded

	embs := make([]content.Embedding, 0, len(ents))
	items := make([]vectorstore.Item, 0, len(ents))
	for i, e := range ents {
		if vecs[i] == nil {
			out.failed++
			continue
		}
		embs = append(embs, content.Embedding{
			ItemID:   e.ItemID(),
			Kind:     e.Kind,
			EntityID: e.ID,
			Model:    p.opts.Model,
			Vector:   vecs[i],
		})
		items = append(items, vectorstore.NewItem(e, p.opts.Model, vecs[i]))
	}
	if len(embs) == 0 {
		return out, ErrProviderDown
	}

	if err := p.sink.UpsertEmbeddings(ctx, embs); err != nil {
		return out, fmt.Errorf("upsert embeddings: %w", err)
	}
	if err := p.vectors.Upsert(ctx, items); err != nil {
		return out, fmt.Errorf("upsert %s vectors: %w", p.vectors.Backend(), err)
	}
	out.indexed = len(embs)
	return out, nil
}

// embedTexts embeds the batch in one call, degrading to one call per text
// when the batch call fails. A nil vector marks a text that failed.
func (p *Pipeline) embedTexts(
	ctx context.Context, kind entity.Kind, ents []*entity.Entity, texts []string,
) ([][]float32, bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	res, err := p.embed.BatchEmbed(ctx, texts)
	if err == nil && len(res.Embeddings) == len(texts) {
		return res.Embeddings, false, nil
	}
	if err == nil {
		err = fmt.Errorf("got %d vectors for %d texts", len(res.Embeddings), len(texts))
	}
	p.logger.Warn("batch embed failed, embedding one by one",
		zap.String("kind", string(kind)),
		zap.Int("size", len(texts)),
		zap.Error(err),
	)

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, true, err
		}
		r, err := p.embed.Embed(ctx, text)
		if err != nil || len(r.Embedding) == 0 {
			p.logger.Warn("entity embed failed",
				zap.String("item_id", ents[i].ItemID()),
				zap.Error(err),
			)
			continue
		}
		vecs[i] = r.Embedding
	}
	return vecs, true, nil
}
