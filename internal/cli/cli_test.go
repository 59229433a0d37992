package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
	"github.com/kailas-cloud/versefind/internal/version"
)

const corpusYAML = `
entities:
  - kind: verse
    id: "23001"
    slug: psalm-23-1
    title: Psalm 23:1
    body: The Lord is my shepherd; I shall not want.
  - kind: verse
    id: "43016"
    slug: john-3-16
    title: John 3:16
    body: For God so loved the world.
  - kind: place
    id: sinai
    title: Mount Sinai
    description: The mountain where the law was given.
`

// workspace writes a local config and corpus into a temp dir and returns
// the config path and the corpus path.
func workspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
content:
  driver: sqlite
  dsn: %s
embedding:
  provider: mock
  model: mock-embedding
  dimensions: 16
vector_store:
  backend: none
indexing:
  batch_size: 2
  checkpoint_path: %s
`, filepath.Join(dir, "content.db"), filepath.Join(dir, "checkpoints.db"))
	cfgPath := filepath.Join(dir, "config.yaml")
	corpusPath := filepath.Join(dir, "corpus.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(corpusPath, []byte(corpusYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, corpusPath
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--config", cfgPath, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := run(t, cfgPath, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestSeedIndexQueryStatus(t *testing.T) {
	cfgPath, corpus := workspace(t)

	out := mustRun(t, cfgPath, "seed", "--file", corpus)
	if !strings.Contains(out, "Seeded 3 entities") {
		t.Errorf("seed output = %q", out)
	}

	out = mustRun(t, cfgPath, "index", "--no-progress")
	if !strings.Contains(out, "verse") || !strings.Contains(out, "processed=2") {
		t.Errorf("index output = %q", out)
	}

	out = mustRun(t, cfgPath, "query", "shepherd")
	if !strings.Contains(out, "verse:psalm-23-1") {
		t.Errorf("query output = %q", out)
	}
	if !strings.Contains(out, "mode keyword") {
		t.Errorf("query mode missing: %q", out)
	}

	out = mustRun(t, cfgPath, "status")
	for _, want := range []string{"Embeddings (mock-embedding): 3", "Vector backend: none", "No pending checkpoints"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, cfgPath, "reset")
	if !strings.Contains(out, "Checkpoints cleared") {
		t.Errorf("reset output = %q", out)
	}
}

func TestReset_DropIndexWithoutIndex(t *testing.T) {
	cfgPath, _ := workspace(t)
	out := mustRun(t, cfgPath, "reset", "--drop-index")
	if !strings.Contains(out, "Vector backend none has no index to drop") || !strings.Contains(out, "Checkpoints cleared") {
		t.Errorf("reset output = %q", out)
	}
}

// indexedStore is a vector store that can count and drop its index.
type indexedStore struct {
	vectorstore.None
	count   int
	err     error
	dropped bool
}

func (s *indexedStore) Backend() vectorstore.Backend { return vectorstore.BackendRedis }

func (s *indexedStore) Count(context.Context, string) (int, error) { return s.count, s.err }

func (s *indexedStore) DropIndex(context.Context) error {
	s.dropped = true
	return s.err
}

func TestPrintVectorCount(t *testing.T) {
	var out bytes.Buffer
	if err := printVectorCount(context.Background(), &out, vectorstore.None{}, "m"); err != nil || out.Len() != 0 {
		t.Errorf("none backend: %q, %v", out.String(), err)
	}

	vs := &indexedStore{count: 12}
	if err := printVectorCount(context.Background(), &out, vs, "m"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "Vectors in redis (m): 12\n" {
		t.Errorf("output = %q", got)
	}

	vs.err = errors.New("down")
	if err := printVectorCount(context.Background(), &out, vs, "m"); err == nil {
		t.Error("expected count error")
	}
}

func TestDropVectorIndex(t *testing.T) {
	var out bytes.Buffer
	vs := &indexedStore{}
	if err := dropVectorIndex(context.Background(), &out, vs); err != nil {
		t.Fatal(err)
	}
	if !vs.dropped || !strings.Contains(out.String(), "Vector index dropped (redis)") {
		t.Errorf("dropped=%v output=%q", vs.dropped, out.String())
	}

	vs.err = errors.New("down")
	if err := dropVectorIndex(context.Background(), &out, vs); err == nil {
		t.Error("expected drop error")
	}
}

func TestIndex_KindsFlag(t *testing.T) {
	cfgPath, corpus := workspace(t)
	mustRun(t, cfgPath, "seed", "--file", corpus)

	out := mustRun(t, cfgPath, "index", "--no-progress", "--kinds", "place")
	if !strings.Contains(out, "place") || strings.Contains(out, "verse") {
		t.Errorf("index output = %q", out)
	}

	if _, err := run(t, cfgPath, "index", "--kinds", "psalm"); err == nil {
		t.Fatal("expected unknown kind error")
	}
}

func TestSeed_RequiresFile(t *testing.T) {
	cfgPath, _ := workspace(t)
	if _, err := run(t, cfgPath, "seed"); err == nil {
		t.Fatal("expected missing --file error")
	}
}

func TestReadSeedFile(t *testing.T) {
	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "seed.yaml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("defaults", func(t *testing.T) {
		ents, err := readSeedFile(write(t, `
entities:
  - kind: name
    id: emmanuel
    title: Emmanuel
  - kind: prayer-point
    id: "7"
    slug: for-healing
    published: false
    updated_at: 2024-05-01T10:00:00Z
`))
		if err != nil {
			t.Fatalf("readSeedFile: %v", err)
		}
		if len(ents) != 2 {
			t.Fatalf("entities = %d", len(ents))
		}
		if ents[0].Slug != "emmanuel" || !ents[0].Published || ents[0].Kind != entity.Name {
			t.Errorf("first = %+v", ents[0])
		}
		want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		if ents[1].Published || ents[1].Kind != entity.PrayerPoint || !ents[1].UpdatedAt.Equal(want) {
			t.Errorf("second = %+v", ents[1])
		}
	})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "entities: []\n", "no entities"},
		{"bad kind", "entities:\n  - kind: psalm\n    id: \"1\"\n", "entity #1"},
		{"missing id", "entities:\n  - kind: verse\n", "id is required"},
		{"duplicate", "entities:\n  - kind: verse\n    id: \"1\"\n  - kind: verse\n    id: \"1\"\n", "duplicate verse:1"},
		{"bad yaml", "entities: [", "parse seed file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readSeedFile(write(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestVersionFlag(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), version.String()) {
		t.Errorf("version output = %q", out.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "<1s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 7*time.Minute, "2h7m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
