package indexing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/repository/checkpoint"
	"github.com/kailas-cloud/versefind/internal/transport/mock"
)

func TestNew_Defaults(t *testing.T) {
	p := New(nil, nil, nil, nil, nil, Options{Workers: 16}, nil)
	if p.opts.BatchSize != DefaultBatchSize {
		t.Errorf("batch size = %d", p.opts.BatchSize)
	}
	if p.opts.Workers != MaxWorkers {
		t.Errorf("workers = %d, want %d", p.opts.Workers, MaxWorkers)
	}
	if p.vectors == nil {
		t.Error("nil vectors must default to none")
	}
}

func TestRun_IndexesAllKinds(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(mock.NewEmbedder(testDims), Options{Workers: 4, RatePerSec: 1000, Burst: 10})

	reports, err := p.Run(context.Background(), entity.Kinds())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != len(entity.Kinds()) {
		t.Fatalf("reports = %d", len(reports))
	}

	verses := reports[0]
	if verses.Kind != entity.Verse {
		t.Fatalf("reports out of order: %v", verses.Kind)
	}
	if verses.Processed != 5 || verses.Skipped != 1 || verses.Failed != 0 || verses.Batches != 3 {
		t.Errorf("verse report = %+v", verses)
	}
	if verses.Resumed || verses.Err != nil {
		t.Errorf("verse report = %+v", verses)
	}
	for _, r := range reports {
		if r.Kind == entity.Place && (r.Processed != 2 || r.Batches != 1) {
			t.Errorf("place report = %+v", r)
		}
	}

	if got := f.embeddings(t); got != 7 {
		t.Errorf("stored embeddings = %d, want 7", got)
	}
	if got := f.vectors.count(); got != 7 {
		t.Errorf("backend items = %d, want 7", got)
	}

	vec, err := f.content.EmbeddingOf(context.Background(), "place:zion", testModel)
	if err != nil {
		t.Fatal(err)
	}
	want := mock.Vector("Zion City of David", testDims)
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("stored vector differs from search text embedding at %d", i)
		}
	}

	it := f.vectors.items["verse:2"]
	if it.Model != testModel || it.Metadata["slug"] != "v-02" || it.Metadata["title"] != "Verse 2" {
		t.Errorf("backend item = %+v", it)
	}

	cursors, err := p.Status()
	if err != nil {
		t.Fatal(err)
	}
	if len(cursors) != 0 {
		t.Errorf("finished kinds must clear their cursors, got %+v", cursors)
	}
}

func TestRun_OnBatchReportsProgress(t *testing.T) {
	f := newFixture(t)
	var (
		mu     sync.Mutex
		calls  int
		byKind = map[entity.Kind]int{}
	)
	p := f.pipeline(mock.NewEmbedder(testDims), Options{
		Workers: 2,
		OnBatch: func(kind entity.Kind, n int) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			byKind[kind] += n
		},
	})

	if _, err := p.Run(context.Background(), []entity.Kind{entity.Verse, entity.Place}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	// Blank entities count towards progress, unpublished ones do not.
	if byKind[entity.Verse] != 6 || byKind[entity.Place] != 2 {
		t.Errorf("progress = %v", byKind)
	}
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(mock.NewEmbedder(testDims), Options{})
	kinds := []entity.Kind{entity.Verse, entity.Place}

	if _, err := p.Run(context.Background(), kinds); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := f.content.EmbeddingOf(context.Background(), "verse:3", testModel)

	reports, err := p.Run(context.Background(), kinds)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if reports[0].Resumed {
		t.Error("second run must be a full pass")
	}
	if got := f.embeddings(t); got != 7 {
		t.Errorf("stored embeddings = %d, want 7", got)
	}
	if got := f.vectors.count(); got != 7 {
		t.Errorf("backend items = %d, want 7", got)
	}
	second, _ := f.content.EmbeddingOf(context.Background(), "verse:3", testModel)
	if len(first) != testDims || len(second) != testDims {
		t.Fatalf("missing vectors: %d %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("re-indexing changed a vector")
		}
	}
}

func TestRun_AbortsWhenProviderDownAndResumes(t *testing.T) {
	f := newFixture(t)
	flaky := newFlakyEmbedder()
	flaky.okBatches = 1

	reports, err := f.pipeline(flaky, Options{}).Run(context.Background(), []entity.Kind{entity.Verse})
	if err == nil {
		t.Fatal("expected error")
	}
	rep := reports[0]
	if !errors.Is(rep.Err, ErrProviderDown) || !errors.Is(rep.Err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider down, got %v", rep.Err)
	}
	if rep.Processed != 2 || rep.Batches != 1 {
		t.Errorf("report = %+v", rep)
	}
	if flaky.singles != 2 {
		t.Errorf("failed batch must degrade to %d single calls, got %d", 2, flaky.singles)
	}

	cur, ok, err := f.checkpoints.Load(entity.Verse)
	if err != nil || !ok {
		t.Fatalf("cursor missing: %v", err)
	}
	if cur.LastSlug != "v-02" || cur.LastID != "2" || cur.Processed != 2 {
		t.Errorf("cursor = %+v", cur)
	}
	if got := f.embeddings(t); got != 2 {
		t.Errorf("stored embeddings = %d, want 2", got)
	}

	healthy := newFlakyEmbedder()
	reports, err = f.pipeline(healthy, Options{}).Run(context.Background(), []entity.Kind{entity.Verse})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	rep = reports[0]
	if !rep.Resumed || rep.Processed != 5 || rep.Skipped != 1 || rep.Batches != 3 {
		t.Errorf("resumed report = %+v", rep)
	}
	if healthy.batches != 2 {
		t.Errorf("resume must start after the cursor: %d batch calls", healthy.batches)
	}
	if _, ok, _ := f.checkpoints.Load(entity.Verse); ok {
		t.Error("cursor must be cleared after a finished kind")
	}
	if got := f.embeddings(t); got != 5 {
		t.Errorf("stored embeddings = %d, want 5", got)
	}
}

func TestRun_DegradesToSingleEmbeds(t *testing.T) {
	f := newFixture(t)
	flaky := newFlakyEmbedder()
	flaky.batchErr = true
	flaky.failText = "Verse 3"

	reports, err := f.pipeline(flaky, Options{}).Run(context.Background(), []entity.Kind{entity.Verse})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rep := reports[0]
	if rep.Processed != 4 || rep.Failed != 1 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
	if got := f.embeddings(t); got != 4 {
		t.Errorf("stored embeddings = %d, want 4", got)
	}
	if v, _ := f.content.EmbeddingOf(context.Background(), "verse:3", testModel); v != nil {
		t.Error("failed entity must not be stored")
	}
}

func TestRun_SinkFailureAbortsWithoutAdvancing(t *testing.T) {
	f := newFixture(t)
	f.vectors.err = errors.New("redis: connection refused")

	reports, err := f.pipeline(mock.NewEmbedder(testDims), Options{}).Run(context.Background(), []entity.Kind{entity.Verse})
	if err == nil || reports[0].Err == nil {
		t.Fatal("expected error")
	}
	if reports[0].Batches != 0 {
		t.Errorf("batches = %d", reports[0].Batches)
	}
	if _, ok, _ := f.checkpoints.Load(entity.Verse); ok {
		t.Error("cursor must not advance past a failed upsert")
	}
}

func TestRun_ModelChangeRestarts(t *testing.T) {
	f := newFixture(t)
	if err := f.checkpoints.Save(checkpoint.Cursor{
		Kind: entity.Verse, Model: "other-model", LastSlug: "v-04", LastID: "4", Processed: 4, Batches: 2,
	}); err != nil {
		t.Fatal(err)
	}

	reports, err := f.pipeline(mock.NewEmbedder(testDims), Options{}).Run(context.Background(), []entity.Kind{entity.Verse})
	if err != nil {
		t.Fatal(err)
	}
	if reports[0].Resumed || reports[0].Processed != 5 {
		t.Errorf("report = %+v", reports[0])
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := f.pipeline(mock.NewEmbedder(testDims), Options{}).Run(ctx, []entity.Kind{entity.Verse, entity.Place})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, r := range reports {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("%s: %v", r.Kind, r.Err)
		}
	}
	if got := f.embeddings(t); got != 0 {
		t.Errorf("stored embeddings = %d", got)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	_ = f.checkpoints.Save(checkpoint.Cursor{Kind: entity.Verse, Model: testModel, LastSlug: "v-02"})
	_ = f.checkpoints.Save(checkpoint.Cursor{Kind: entity.Place, Model: testModel, LastSlug: "sinai"})
	p := f.pipeline(mock.NewEmbedder(testDims), Options{})

	st, err := p.Status()
	if err != nil || len(st) != 2 {
		t.Fatalf("status = %v, %v", st, err)
	}
	if err := p.Reset(); err != nil {
		t.Fatal(err)
	}
	st, _ = p.Status()
	if len(st) != 0 {
		t.Errorf("status after reset = %v", st)
	}
}
