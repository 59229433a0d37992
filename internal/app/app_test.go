package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/versefind/internal/config"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/domain/search/mode"
	"github.com/kailas-cloud/versefind/internal/domain/search/request"
	"github.com/kailas-cloud/versefind/internal/transport/mock"
	healthuc "github.com/kailas-cloud/versefind/internal/usecase/health"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

func localConfig(t *testing.T, extra string) config.Config {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "content.db")
	yaml := fmt.Sprintf(`
content:
  driver: sqlite
  dsn: %s
embedding:
  provider: mock
  model: mock-embedding
  dimensions: 16
%s`, dsn, extra)
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestNew_LocalStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(t, ""), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	if a.Vectors.Backend() != vectorstore.BackendNone {
		t.Fatalf("backend = %q, want none", a.Vectors.Backend())
	}
	if err := a.Content.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	res, err := a.Embedder.Embed(ctx, "the Lord is my shepherd")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Embedding) != 16 {
		t.Errorf("dims = %d, want 16", len(res.Embedding))
	}
}

func TestNew_InstructionPrefixes(t *testing.T) {
	ctx := context.Background()
	cfg := localConfig(t, `  query_instruction: "query: "
  document_instruction: "passage: "
`)
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	q, err := a.QueryEmbedder.Embed(ctx, "still waters")
	if err != nil {
		t.Fatal(err)
	}
	if !equalVectors(q.Embedding, mock.Vector("query: still waters", 16)) {
		t.Error("query embedder must prefix the query instruction")
	}
	d, err := a.Embedder.BatchEmbed(ctx, []string{"still waters"})
	if err != nil {
		t.Fatal(err)
	}
	if !equalVectors(d.Embeddings[0], mock.Vector("passage: still waters", 16)) {
		t.Error("document embedder must prefix the document instruction")
	}
}

func equalVectors(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearchService_KeywordWhenNoBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(t, ""), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	err = a.Content.UpsertEntities(ctx, []entity.Entity{
		{Kind: entity.Place, ID: "sinai", Slug: "sinai", Title: "Mount Sinai", Published: true},
		{Kind: entity.Place, ID: "zion", Slug: "zion", Title: "Zion", Description: "City of David", Published: true},
	})
	if err != nil {
		t.Fatalf("UpsertEntities: %v", err)
	}

	svc, err := a.SearchService()
	if err != nil {
		t.Fatalf("SearchService: %v", err)
	}
	if svc.Mode() != mode.Keyword {
		t.Fatalf("mode = %q, want keyword", svc.Mode())
	}

	req, err := request.New("sinai", nil, "", a.cfg.Search.Limits(a.cfg.Embedding.Model))
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	resp, err := svc.Search(ctx, &req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].EntityID() != "sinai" {
		t.Fatalf("results = %+v, want sinai first", resp.Results)
	}
}

func TestHealthService_LocalStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(t, ""), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	rep := a.HealthService().Check(ctx)
	if rep.Status != healthuc.Healthy {
		t.Errorf("status = %q, want ok (checks %v)", rep.Status, rep.Checks)
	}
	if rep.Checks[healthuc.ComponentVectorStore] != healthuc.CheckDisabled {
		t.Errorf("vector_store = %q, want disabled", rep.Checks[healthuc.ComponentVectorStore])
	}
}

func TestNew_BadCandidateSourceRejectedByConfig(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "content.db")
	_, err := config.Parse([]byte(fmt.Sprintf(`
content:
  dsn: %s
embedding:
  provider: mock
search:
  candidate_source: nowhere
`, dsn)))
	if err == nil || !strings.Contains(err.Error(), "candidate_source") {
		t.Fatalf("expected candidate_source error, got %v", err)
	}
}

func TestNew_ContentFailureClosesEverything(t *testing.T) {
	cfg := localConfig(t, "")
	cfg.Content.Driver = "oracle"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
