package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/entity"
	"github.com/kailas-cloud/versefind/internal/domain/search/mode"
	"github.com/kailas-cloud/versefind/internal/domain/search/result"
	"github.com/kailas-cloud/versefind/internal/transport/mock"
	healthuc "github.com/kailas-cloud/versefind/internal/usecase/health"
	searchuc "github.com/kailas-cloud/versefind/internal/usecase/search"
)

func decode[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return v
}

func TestSearch_OK(t *testing.T) {
	s := &mockSearcher{resp: searchuc.Response{
		Mode: mode.Vector,
		Results: []result.Result{
			result.New("23", entity.Verse, "Psalm 23:1", "The Lord is my shepherd", "psalm-23-1", "/verses/psalm-23-1", 0.91),
		},
	}}
	rr := do(t, newTestRouter(s, nil), "/api/search?q=shepherd&k=3")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	resp := decode[SearchResponse](t, rr.Body.String())
	if resp.Query != "shepherd" || resp.K != 3 || resp.Model != "text-embedding-3-small" || resp.Mode != "vector" {
		t.Errorf("envelope = %+v", resp)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	want := ResultItem{
		EntityID: "23", Kind: "verse", Slug: "psalm-23-1", URL: "/verses/psalm-23-1",
		Title: "Psalm 23:1", Text: "The Lord is my shepherd", Score: 0.91,
	}
	if resp.Results[0] != want {
		t.Errorf("result = %+v, want %+v", resp.Results[0], want)
	}
}

func TestSearch_DefaultsAndClamp(t *testing.T) {
	s := &mockSearcher{}
	h := newTestRouter(s, nil)

	do(t, h, "/api/search?q=%20%20grace%20%20")
	if s.lastReq == nil || s.lastReq.K() != 10 || s.lastReq.Text() != "grace" {
		t.Fatalf("default request = %+v", s.lastReq)
	}

	rr := do(t, h, "/api/search?q=grace&k=500")
	if rr.Code != http.StatusOK || s.lastReq.K() != 20 {
		t.Errorf("clamp: status %d, k %d", rr.Code, s.lastReq.K())
	}
}

func TestSearch_ClampLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := &mockSearcher{}
	h := NewServer(s, &mockHealth{}, testLimits, zap.New(core)).Router(RouterOptions{})

	do(t, h, "/api/search?q=grace&k=5")
	if n := logs.FilterMessage("k clamped").Len(); n != 0 {
		t.Fatalf("unexpected clamp log for k=5")
	}

	do(t, h, "/api/search?q=grace&k=500")
	entries := logs.FilterMessage("k clamped").All()
	if len(entries) != 1 {
		t.Fatalf("clamp log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["requested"] != int64(500) || fields["applied"] != int64(20) {
		t.Errorf("clamp fields = %v", fields)
	}
}

func TestSearch_ClientCanceled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := &mockSearcher{err: fmt.Errorf("embed query: %w", context.Canceled)}
	h := NewServer(s, &mockHealth{}, testLimits, zap.New(core)).Router(RouterOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=grace", http.NoBody).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != statusClientClosedRequest {
		t.Errorf("status = %d, want %d", rr.Code, statusClientClosedRequest)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rr.Body)
	}
	if logs.FilterMessage("internal error").Len() != 0 {
		t.Error("canceled request must not be logged as an internal error")
	}
	if logs.FilterMessage("client closed request").Len() != 1 {
		t.Error("expected a debug line for the canceled request")
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"missing q", "/api/search", "q: must be at least 3 characters"},
		{"short q", "/api/search?q=ab", "q: must be at least 3 characters"},
		{"long q", "/api/search?q=" + strings.Repeat("a", 301), "q: must be at most 300 characters"},
		{"zero k", "/api/search?q=grace&k=0", "k: must be a positive integer"},
		{"negative k", "/api/search?q=grace&k=-2", "k: must be a positive integer"},
		{"non-numeric k", "/api/search?q=grace&k=ten", "k: must be a positive integer"},
		{"unknown model", "/api/search?q=grace&model=other", `model: unsupported model "other"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockSearcher{}
			rr := do(t, newTestRouter(s, nil), tt.target)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
			}
			if got := decode[ErrorResponse](t, rr.Body.String()).Error; got != tt.want {
				t.Errorf("error = %q, want %q", got, tt.want)
			}
			if s.lastReq != nil {
				t.Error("invalid request must not reach the search service")
			}
		})
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"provider", fmt.Errorf("embed query: %w", domain.ErrEmbeddingProviderError), http.StatusBadGateway, "embedding_provider_error"},
		{"vector store", fmt.Errorf("qdrant: %w", domain.ErrVectorStoreUnavailable), http.StatusBadGateway, "vector_store_error"},
		{"internal", errors.New("sql: database is closed at /var/lib/versefind.db"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, newTestRouter(&mockSearcher{err: tt.err}, nil), "/api/search?q=grace")
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if got := decode[ErrorResponse](t, rr.Body.String()).Error; got != tt.code {
				t.Errorf("error = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestSearch_EmptyCorpusReturns200(t *testing.T) {
	svc := searchuc.New(emptyCandidates{}, qdrantStub{}, mock.NewEmbedder(8), nil, searchuc.Options{}, nil)
	rr := do(t, newTestRouter(svc, nil), "/api/search?q=anything")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if !strings.Contains(rr.Body.String(), `"results":[]`) {
		t.Errorf("expected empty results array, got %s", rr.Body)
	}
}

func TestSearch_PanicReturnsJSON(t *testing.T) {
	rr := do(t, newTestRouter(&mockSearcher{panics: true}, nil), "/api/search?q=grace")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decode[ErrorResponse](t, rr.Body.String()).Error; got != "internal_error" {
		t.Errorf("error = %q", got)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		code   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h := &mockHealth{report: healthuc.Report{
			Status: tt.status,
			Checks: map[string]healthuc.CheckResult{"content": healthuc.CheckOK, "vector_store": healthuc.CheckDisabled},
		}}
		rr := do(t, newTestRouter(&mockSearcher{}, h), "/health")
		if rr.Code != tt.code {
			t.Errorf("%s: status = %d, want %d", tt.status, rr.Code, tt.code)
		}
		resp := decode[HealthResponse](t, rr.Body.String())
		if resp.Status != string(tt.status) || resp.Checks["vector_store"] != "disabled" {
			t.Errorf("%s: body = %+v", tt.status, resp)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(&mockSearcher{}, nil)
	do(t, h, "/api/search?q=grace")

	rr := do(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "versefind_http_requests_total") {
		t.Error("expected http request metrics")
	}
}

func TestRouter_NotFound(t *testing.T) {
	rr := do(t, newTestRouter(&mockSearcher{}, nil), "/api/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := decode[ErrorResponse](t, rr.Body.String()).Error; got != "not found" {
		t.Errorf("error = %q", got)
	}
}

func TestRouter_AuthProtectsSearchOnly(t *testing.T) {
	h := newTestRouter(&mockSearcher{}, nil, "secret")

	if rr := do(t, h, "/api/search?q=grace"); rr.Code != http.StatusUnauthorized {
		t.Errorf("search without token: %d", rr.Code)
	}
	if rr := do(t, h, "/api/search?q=grace", "Authorization", "Bearer secret"); rr.Code != http.StatusOK {
		t.Errorf("search with token: %d", rr.Code)
	}
	if rr := do(t, h, "/health"); rr.Code != http.StatusOK {
		t.Errorf("health: %d", rr.Code)
	}
	if rr := do(t, h, "/metrics"); rr.Code != http.StatusOK {
		t.Errorf("metrics: %d", rr.Code)
	}
}
