// Package chi exposes the question answering and ingestion services
// over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/answer"
	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/retrieval"
)

// Error codes returned in the JSON error body.
const (
	CodeBadRequest         = "bad_request"
	CodeValidationFailed   = "validation_failed"
	CodeNotFound           = "not_found"
	CodeUnsupportedFormat  = "unsupported_format"
	CodeEmbeddingProvider  = "embedding_provider_error"
	CodeGenerationProvider = "generation_provider_error"
	CodeIndexFailure       = "index_failure"
	CodeInternalError      = "internal_error"
	CodeUnauthorized       = "unauthorized"
	CodeServiceUnavailable = "service_unavailable"
)

// AnswerService answers questions grounded in the index.
type AnswerService interface {
	Answer(ctx context.Context, question string) (answer.Result, error)
}

// IngestService indexes documents.
type IngestService interface {
	IngestText(ctx context.Context, content, source string) (int, error)
	IngestPath(ctx context.Context, path string) (int, error)
	Reindex(ctx context.Context, dir string) (int, error)
}

// StatsProvider reports retrieval statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (retrieval.Stats, error)
}

// Pinger checks the vector store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	answers       AnswerService
	ingest        IngestService
	stats         StatsProvider
	store         Pinger
	embedder      domain.HealthChecker
	ingestFolder  string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. ingestFolder is the default
// directory for reindex requests that do not name one. embedder may be
// nil; the embedding provider check is then omitted from /health.
func NewServer(
	answers AnswerService,
	ingest IngestService,
	stats StatsProvider,
	store Pinger,
	embedder domain.HealthChecker,
	ingestFolder string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		answers:      answers,
		ingest:       ingest,
		stats:        stats,
		store:        store,
		embedder:     embedder,
		ingestFolder: ingestFolder,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidChunk, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidChunking, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, CodeUnsupportedFormat),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, CodeGenerationProvider),
		sentinelHandler(domain.ErrIndexFailure, http.StatusInternalServerError, CodeIndexFailure),
	}
	return s
}

// Routes mounts the API handlers on a router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/api/v1/ask", s.Ask)
	r.Post("/api/v1/documents", s.IngestDocument)
	r.Post("/api/v1/reindex", s.Reindex)
	r.Get("/api/v1/stats", s.Stats)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type askRequest struct {
	Question string `json:"question"`
}

type documentRef struct {
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type askResponse struct {
	Answer    string        `json:"answer"`
	Found     bool          `json:"found"`
	Sources   []string      `json:"sources"`
	Documents []documentRef `json:"documents"`
}

// Ask handles POST /api/v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.answers.Answer(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	docs := make([]documentRef, len(res.Documents))
	for i, d := range res.Documents {
		docs[i] = documentRef{
			Content:    d.Content,
			Similarity: d.Similarity,
			Metadata:   d.Metadata,
		}
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:    res.Text,
		Found:     res.Found,
		Sources:   res.Sources,
		Documents: docs,
	})
}

type ingestRequest struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Path    string `json:"path"`
}

type ingestResponse struct {
	ChunksIndexed int `json:"chunks_indexed"`
}

// IngestDocument handles POST /api/v1/documents. The body carries
// either raw text content or a server-local file path.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Content == "" && req.Path == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "either content or path is required")
		return
	}
	if req.Content != "" && req.Path != "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "content and path are mutually exclusive")
		return
	}

	var (
		count int
		err   error
	)
	if req.Content != "" {
		count, err = s.ingest.IngestText(r.Context(), req.Content, req.Source)
	} else {
		count, err = s.ingest.IngestPath(r.Context(), req.Path)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ingestResponse{ChunksIndexed: count})
}

type reindexRequest struct {
	Folder string `json:"folder"`
}

// Reindex handles POST /api/v1/reindex. Clears the index and rebuilds
// it from the named folder (or the configured default).
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	folder := req.Folder
	if folder == "" {
		folder = s.ingestFolder
	}
	if folder == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "folder is required")
		return
	}

	count, err := s.ingest.Reindex(r.Context(), folder)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{ChunksIndexed: count})
}

// Stats handles GET /api/v1/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok"}
	status := "healthy"
	httpStatus := http.StatusOK

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("store health check failed", zap.Error(err))
		checks["store"] = "unavailable"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.embedder != nil {
		checks["embedding_provider"] = "ok"
		if err := s.embedder.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("embedding provider health check failed", zap.Error(err))
			checks["embedding_provider"] = "unavailable"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, healthResponse{Status: status, Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrInvalidChunk,
		domain.ErrInvalidChunking,
		domain.ErrUnsupportedFormat,
		domain.ErrNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrIndexFailure,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
