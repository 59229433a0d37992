package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/versefind/internal/db/content"
	"github.com/kailas-cloud/versefind/internal/domain/search/request"
	healthuc "github.com/kailas-cloud/versefind/internal/usecase/health"
	searchuc "github.com/kailas-cloud/versefind/internal/usecase/search"
	"github.com/kailas-cloud/versefind/internal/vectorstore"
)

// --- mockSearcher ---

type mockSearcher struct {
	resp    searchuc.Response
	err     error
	lastReq *request.Request
	panics  bool
}

func (m *mockSearcher) Search(_ context.Context, req *request.Request) (searchuc.Response, error) {
	if m.panics {
		panic("boom")
	}
	m.lastReq = req
	if m.err != nil {
		return searchuc.Response{}, m.err
	}
	resp := m.resp
	resp.Query, resp.Model, resp.K = req.Text(), req.Model(), req.K()
	return resp, nil
}

// --- mockHealth ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

// --- empty corpus collaborators ---

type emptyCandidates struct{}

func (emptyCandidates) FindCandidateVectors(context.Context, string, int) ([]content.Candidate, error) {
	return nil, nil
}

type qdrantStub struct {
	vectorstore.None
}

func (qdrantStub) Backend() vectorstore.Backend { return vectorstore.BackendQdrant }

// --- helpers ---

var testLimits = request.Limits{DefaultModel: "text-embedding-3-small"}

func newTestRouter(s Searcher, h HealthChecker, keys ...string) http.Handler {
	if h == nil {
		h = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}}
	}
	return NewServer(s, h, testLimits, nil).Router(RouterOptions{APIKeys: keys})
}

func do(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
