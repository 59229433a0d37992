package indexing

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/versefind/internal/db/content"
	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/repository/checkpoint"
	"github.com/kailas-cloud/versefind/internal/transport/mock"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

const (
	testDims  = 32
	testModel = "mock-embedding"
)

// --- fakeVectors ---

type fakeVectors struct {
	vectorstore.None
	mu      sync.Mutex
	items   map[string]vectorstore.Item
	upserts int
	err     error
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{items: make(map[string]vectorstore.Item)}
}

func (f *fakeVectors) Backend() vectorstore.Backend { return vectorstore.BackendRedis }

func (f *fakeVectors) Upsert(_ context.Context, items []vectorstore.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts++
	for _, it := range items {
		f.items[it.ID] = it
	}
	return nil
}

func (f *fakeVectors) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// --- flakyEmbedder ---

var errProvider = errors.New("provider unavailable")

// flakyEmbedder wraps the mock provider. Batch calls fail when batchErr is
// set or once okBatches successful batches were served (okBatches < 0 means
// never). Single calls fail for texts containing failText, or for every text
// once the provider is down.
type flakyEmbedder struct {
	inner     *mock.Embedder
	mu        sync.Mutex
	okBatches int
	batchErr  bool
	failText  string
	down      bool
	batches   int
	singles   int
}

func newFlakyEmbedder() *flakyEmbedder {
	return &flakyEmbedder{inner: mock.NewEmbedder(testDims), okBatches: -1}
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	f.mu.Lock()
	f.singles++
	fail := f.down || (f.failText != "" && strings.Contains(text, f.failText))
	f.mu.Unlock()
	if fail {
		return domain.EmbeddingResult{}, errProvider
	}
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.mu.Lock()
	if f.okBatches >= 0 && f.batches >= f.okBatches {
		f.down = true
	}
	fail := f.down || f.batchErr
	if !fail {
		f.batches++
	}
	f.mu.Unlock()
	if fail {
		return domain.BatchEmbeddingResult{}, errProvider
	}
	return f.inner.BatchEmbed(ctx, texts)
}

// --- fixtures ---

type fixture struct {
	content     *content.Store
	checkpoints *checkpoint.Store
	vectors     *fakeVectors
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	cs, err := content.Open(ctx, content.Config{
		Driver: content.DriverSQLite,
		DSN:    filepath.Join(dir, "content.db"),
	})
	if err != nil {
		t.Fatalf("content.Open: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })

	cp, err := checkpoint.Open(filepath.Join(dir, "checkpoints.db"))
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	t.Cleanup(func() { _ = cp.Close() })

	seed := []entity.Entity{
		verse("1", "v-01", "Verse 1", "In the beginning God created the heaven and the earth"),
		verse("2", "v-02", "Verse 2", "The Lord is my shepherd"),
		verse("3", "v-03", "Verse 3", "Be still, and know that I am God"),
		verse("4", "v-04", "Verse 4", "Love is patient, love is kind"),
		verse("5", "v-05", "Verse 5", "Ask, and it shall be given you"),
		verse("6", "v-06", "  ", ""),
		{Kind: entity.Verse, ID: "7", Slug: "v-07", Title: "Draft", Published: false},
		{Kind: entity.Place, ID: "sinai", Slug: "sinai", Title: "Mount Sinai", Published: true},
		{Kind: entity.Place, ID: "zion", Slug: "zion", Title: "Zion", Description: "City of David", Published: true},
	}
	for i := range seed {
		seed[i].UpdatedAt = time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
	}
	if err := cs.UpsertEntities(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return &fixture{content: cs, checkpoints: cp, vectors: newFakeVectors()}
}

func verse(id, slug, title, body string) entity.Entity {
	return entity.Entity{
		Kind: entity.Verse, ID: id, Slug: slug, Title: title, Body: body,
		URL: "/verses/" + slug, Published: true,
	}
}

func (f *fixture) pipeline(embed Embedder, opts Options) *Pipeline {
	if opts.Model == "" {
		opts.Model = testModel
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 2
	}
	return New(f.content, f.content, f.vectors, embed, f.checkpoints, opts, nil)
}

func (f *fixture) embeddings(t *testing.T) int {
	t.Helper()
	n, err := f.content.CountEmbeddings(context.Background(), testModel)
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	return n
}
