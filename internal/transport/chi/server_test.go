package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/answer"
	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/retrieval"
)

// --- Mocks ---

type mockAnswers struct {
	result answer.Result
	err    error
}

func (m *mockAnswers) Answer(_ context.Context, _ string) (answer.Result, error) {
	return m.result, m.err
}

type mockIngest struct {
	textCount  int
	textErr    error
	pathCount  int
	reindexed  string
	lastSource string
}

func (m *mockIngest) IngestText(_ context.Context, _, source string) (int, error) {
	m.lastSource = source
	return m.textCount, m.textErr
}

func (m *mockIngest) IngestPath(_ context.Context, _ string) (int, error) {
	return m.pathCount, nil
}

func (m *mockIngest) Reindex(_ context.Context, dir string) (int, error) {
	m.reindexed = dir
	return 7, nil
}

type mockStats struct {
	stats retrieval.Stats
	err   error
}

func (m *mockStats) Stats(_ context.Context) (retrieval.Stats, error) {
	return m.stats, m.err
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockHealthChecker struct{ err error }

func (m *mockHealthChecker) HealthCheck(_ context.Context) error { return m.err }

func newTestRouter(s *Server) http.Handler {
	r := chirouter.NewRouter()
	s.Routes(r)
	return r
}

func defaultServer(answers AnswerService, ingest IngestService) *Server {
	if answers == nil {
		answers = &mockAnswers{}
	}
	if ingest == nil {
		ingest = &mockIngest{}
	}
	return NewServer(answers, ingest, &mockStats{}, &mockPinger{}, &mockHealthChecker{}, "/docs", zap.NewNop())
}

// --- Ask ---

func TestAsk_GroundedAnswer(t *testing.T) {
	answers := &mockAnswers{result: answer.Result{
		Text:    "the answer",
		Found:   true,
		Sources: []string{"doc.pdf"},
		Documents: []domain.SearchResult{
			{Content: "passage", Similarity: 0.92, Metadata: map[string]any{"source": "doc.pdf"}},
		},
	}}
	router := newTestRouter(defaultServer(answers, nil))

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{"question":"what?"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var resp askResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "the answer" || !resp.Found {
		t.Errorf("response: %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0] != "doc.pdf" {
		t.Errorf("sources: %v", resp.Sources)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].Similarity != 0.92 {
		t.Errorf("documents: %v", resp.Documents)
	}
}

func TestAsk_EmptyQuestion_400(t *testing.T) {
	answers := &mockAnswers{err: domain.ErrEmptyQuery}
	router := newTestRouter(defaultServer(answers, nil))

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{"question":""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestAsk_MalformedBody_400(t *testing.T) {
	router := newTestRouter(defaultServer(nil, nil))

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{not json`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestAsk_GenerationFailure_502(t *testing.T) {
	answers := &mockAnswers{err: domain.ErrGenerationProviderError}
	router := newTestRouter(defaultServer(answers, nil))

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{"question":"q"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want 502", rr.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != CodeGenerationProvider {
		t.Errorf("code: got %s", errResp.Code)
	}
}

func TestAsk_UnknownError_500(t *testing.T) {
	answers := &mockAnswers{err: context.DeadlineExceeded}
	router := newTestRouter(defaultServer(answers, nil))

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{"question":"q"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
	// Internal details must not leak.
	if strings.Contains(rr.Body.String(), "deadline") {
		t.Errorf("leaked internal error: %s", rr.Body.String())
	}
}

// --- IngestDocument ---

func TestIngestDocument_Text_201(t *testing.T) {
	ing := &mockIngest{textCount: 4}
	router := newTestRouter(defaultServer(nil, ing))

	body := `{"content":"raw text","source":"notes.txt"}`
	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rr.Code)
	}
	var resp ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ChunksIndexed != 4 {
		t.Errorf("chunks: got %d, want 4", resp.ChunksIndexed)
	}
	if ing.lastSource != "notes.txt" {
		t.Errorf("source: got %q", ing.lastSource)
	}
}

func TestIngestDocument_MissingBothFields_400(t *testing.T) {
	router := newTestRouter(defaultServer(nil, nil))

	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestIngestDocument_BothFields_400(t *testing.T) {
	router := newTestRouter(defaultServer(nil, nil))

	body := `{"content":"x","path":"/tmp/y"}`
	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestIngestDocument_UnsupportedFormat_415(t *testing.T) {
	ing := &mockIngest{textErr: domain.ErrUnsupportedFormat}
	router := newTestRouter(defaultServer(nil, ing))

	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader(`{"content":"x"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status: got %d, want 415", rr.Code)
	}
}

// --- Reindex ---

func TestReindex_UsesConfiguredFolderByDefault(t *testing.T) {
	ing := &mockIngest{}
	router := newTestRouter(defaultServer(nil, ing))

	req := httptest.NewRequest("POST", "/api/v1/reindex", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ing.reindexed != "/docs" {
		t.Errorf("folder: got %q, want /docs", ing.reindexed)
	}
}

func TestReindex_ExplicitFolder(t *testing.T) {
	ing := &mockIngest{}
	router := newTestRouter(defaultServer(nil, ing))

	req := httptest.NewRequest("POST", "/api/v1/reindex", strings.NewReader(`{"folder":"/other"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ing.reindexed != "/other" {
		t.Errorf("folder: got %q, want /other", ing.reindexed)
	}
}

func TestReindex_NoFolderAnywhere_400(t *testing.T) {
	s := NewServer(&mockAnswers{}, &mockIngest{}, &mockStats{}, &mockPinger{}, nil, "", zap.NewNop())
	router := newTestRouter(s)

	req := httptest.NewRequest("POST", "/api/v1/reindex", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

// --- Stats / Health ---

func TestStats_OK(t *testing.T) {
	st := &mockStats{stats: retrieval.Stats{TopK: 3, SimilarityThreshold: 0.7}}
	s := NewServer(&mockAnswers{}, &mockIngest{}, st, &mockPinger{}, nil, "", zap.NewNop())
	router := newTestRouter(s)

	req := httptest.NewRequest("GET", "/api/v1/stats", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var got map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["top_k"] != float64(3) {
		t.Errorf("top_k: got %v", got["top_k"])
	}
	if got["similarity_threshold"] != 0.7 {
		t.Errorf("similarity_threshold: got %v", got["similarity_threshold"])
	}
}

func TestHealth_Healthy(t *testing.T) {
	router := newTestRouter(defaultServer(nil, nil))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rr.Code)
	}
}

func TestHealth_StoreDown_503(t *testing.T) {
	s := NewServer(&mockAnswers{}, &mockIngest{}, &mockStats{},
		&mockPinger{err: context.DeadlineExceeded}, &mockHealthChecker{}, "", zap.NewNop())
	router := newTestRouter(s)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" || resp.Checks["store"] != "unavailable" {
		t.Errorf("response: %+v", resp)
	}
	if resp.Checks["embedding_provider"] != "ok" {
		t.Errorf("embedding check: got %q, want ok", resp.Checks["embedding_provider"])
	}
}

func TestHealth_EmbeddingProviderDown_503(t *testing.T) {
	s := NewServer(&mockAnswers{}, &mockIngest{}, &mockStats{}, &mockPinger{},
		&mockHealthChecker{err: context.DeadlineExceeded}, "", zap.NewNop())
	router := newTestRouter(s)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" || resp.Checks["embedding_provider"] != "unavailable" {
		t.Errorf("response: %+v", resp)
	}
	if resp.Checks["store"] != "ok" {
		t.Errorf("store check: got %q, want ok", resp.Checks["store"])
	}
}

func TestHealth_NilEmbedderSkipsProviderCheck(t *testing.T) {
	s := NewServer(&mockAnswers{}, &mockIngest{}, &mockStats{}, &mockPinger{}, nil, "", zap.NewNop())
	router := newTestRouter(s)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp.Checks["embedding_provider"]; ok {
		t.Errorf("unexpected embedding check: %v", resp.Checks)
	}
}
