package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a failing dependency that search can partly work without.
	Degraded Status = "degraded"
	// Unhealthy indicates the content store is down and no search can run.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckDisabled marks a component that is not configured.
	CheckDisabled CheckResult = "disabled"
)

// Component names reported in Report.Checks.
const (
	ComponentContent     = "content"
	ComponentVectorStore = "vector_store"
	ComponentEmbedding   = "embedding"
)

// DefaultCheckTimeout bounds a single component check.
const DefaultCheckTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	content   ContentPinger
	vectors   VectorStoreChecker
	embedding EmbeddingChecker
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a Service. vectors and embedding can be nil.
func New(content ContentPinger, vectors VectorStoreChecker, embedding EmbeddingChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		content:   content,
		vectors:   vectors,
		embedding: embedding,
		timeout:   DefaultCheckTimeout,
		logger:    logger,
	}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		ComponentContent: s.run(ctx, ComponentContent, s.content.Ping),
	}

	switch {
	case s.vectors == nil || s.vectors.Backend() == vectorstore.BackendNone:
		checks[ComponentVectorStore] = CheckDisabled
	default:
		checks[ComponentVectorStore] = s.run(ctx, ComponentVectorStore, s.vectors.HealthCheck)
	}

	if s.embedding != nil {
		checks[ComponentEmbedding] = s.run(ctx, ComponentEmbedding, s.embedding.HealthCheck)
	} else {
		checks[ComponentEmbedding] = CheckDisabled
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentContent] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, name string, check func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := check(ctx); err != nil {
		s.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
