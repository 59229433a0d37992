// Package chi is the HTTP transport: the search and health handlers, the
// error mapping and the router middleware stack.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/domain"
	"github.com/kailas-cloud/versefind/internal/domain/search/request"
	"github.com/kailas-cloud/versefind/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/versefind/internal/logger"
	"github.com/kailas-cloud/versefind/internal/metrics"
	healthuc "github.com/kailas-cloud/versefind/internal/usecase/health"
	searchuc "github.com/kailas-cloud/versefind/internal/usecase/search"
)

// Error codes returned in the "error" field for non-validation failures.
const (
	codeEmbeddingProvider = "embedding_provider_error"
	codeVectorStore       = "vector_store_error"
	codeInternal          = "internal_error"
	codeUnauthorized      = "unauthorized"
)

// Searcher runs search queries.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (searchuc.Response, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the search API.
type Server struct {
	search        Searcher
	health        HealthChecker
	limits        request.Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthChecker, limits request.Limits, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search: search,
		health: health,
		limits: limits,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrVectorStoreUnavailable, http.StatusBadGateway, codeVectorStore),
	}
	return s
}

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	// APIKeys enables bearer auth when non-empty.
	APIKeys []string
}

// Router mounts the API and the operational endpoints behind the middleware stack.
func (s *Server) Router(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/api/search", s.Search)
	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// SearchResponse is the body of a successful GET /api/search.
type SearchResponse struct {
	Query   string       `json:"query"`
	Model   string       `json:"model"`
	K       int          `json:"k"`
	Mode    string       `json:"mode"`
	Results []ResultItem `json:"results"`
}

// ResultItem is a single search hit.
type ResultItem struct {
	EntityID string  `json:"entity_id"`
	Kind     string  `json:"kind"`
	Slug     string  `json:"slug"`
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Search handles GET /api/search?q=&k=&model=.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var (
		q     *string
		k     *int
		model *string
	)
	if err := runtime.BindQueryParameter("form", true, false, "q", query, &q); err != nil {
		writeError(w, http.StatusBadRequest, "q: invalid value")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "k", query, &k); err != nil {
		writeError(w, http.StatusBadRequest, "k: must be a positive integer")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "model", query, &model); err != nil {
		writeError(w, http.StatusBadRequest, "model: invalid value")
		return
	}

	req, err := request.New(deref(q), k, deref(model), s.limits)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	if req.Clamped() {
		logpkg.FromContext(r.Context()).Debug("k clamped",
			zap.Int("requested", *k),
			zap.Int("applied", req.K()),
		)
	}

	resp, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	items := make([]ResultItem, len(resp.Results))
	for i := range resp.Results {
		items[i] = resultToItem(&resp.Results[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   resp.Query,
		Model:   resp.Model,
		K:       resp.K,
		Mode:    string(resp.Mode),
		Results: items,
	})
}

// Health handles GET /health. Only an unusable content store turns it red.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for name, res := range report.Checks {
		checks[name] = string(res)
	}

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func resultToItem(r *result.Result) ResultItem {
	return ResultItem{
		EntityID: r.EntityID(),
		Kind:     string(r.Kind()),
		Slug:     r.Slug(),
		URL:      r.URL(),
		Title:    r.Title(),
		Text:     r.Text(),
		Score:    r.Score(),
	}
}

func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrValidation) {
		return false
	}
	writeError(w, http.StatusBadRequest, safeMessage(err))
	return true
}

func sentinelHandler(target error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, target) {
			return false
		}
		writeError(w, status, code)
		return true
	}
}

// safeMessage returns the client-facing text of a validation error
// without the wrapping chain.
func safeMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return domain.ErrValidation.Error()
}

// statusClientClosedRequest marks requests abandoned by the client. Nobody
// reads the response, so only the status is recorded.
const statusClientClosedRequest = 499

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx)
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Debug("client closed request", zap.Error(err))
		w.WriteHeader(statusClientClosedRequest)
		return
	}
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("request failed", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
