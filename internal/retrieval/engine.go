// Package retrieval turns similarity-search hits into a single grounded
// context and renders the prompt that constrains generation to it.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/index"
	"github.com/groundlabs/sopqa/internal/metrics"
)

// NoAnswerSentinel is the exact phrase the model is instructed to emit
// when the answer is absent from the context. Callers match on this
// string, so it is a contract, not free text.
const NoAnswerSentinel = "The answer is not available in the provided documents."

const promptTemplate = `You are a helpful assistant that answers questions based ONLY on the provided reference documents.

IMPORTANT INSTRUCTIONS:
1. Answer ONLY using information from the context below
2. Be clear, professional, and conversational
3. If the answer is not in the context, reply exactly: "%s"
4. Do NOT use any external knowledge or make assumptions

CONTEXT:
%s

USER QUESTION: %s

Answer:`

// Searcher is the index surface the engine consumes.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, threshold float64) []domain.SearchResult
	Stats(ctx context.Context) (index.Stats, error)
}

// Engine retrieves grounding context using a configured top-k and
// similarity threshold.
type Engine struct {
	index     Searcher
	topK      int
	threshold float64
	logger    *zap.Logger
}

// Stats extends index stats with the engine's retrieval policy.
type Stats struct {
	index.Stats
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// New creates a retrieval engine.
func New(idx Searcher, topK int, threshold float64, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{index: idx, topK: topK, threshold: threshold, logger: logger}
}

// RetrieveContext searches the index and aggregates the surviving
// results into a single grounding context. An empty result set yields
// Found=false with empty context and sources — a normal outcome, not an
// error.
func (e *Engine) RetrieveContext(ctx context.Context, query string) domain.RetrievalOutcome {
	results := e.index.Search(ctx, query, e.topK, e.threshold)

	metrics.RetrievalDocuments.Observe(float64(len(results)))
	if len(results) == 0 {
		metrics.RetrievalSearchesTotal.WithLabelValues("no_context").Inc()
		e.logger.Info("no relevant documents found", zap.String("query", truncate(query, 50)))
		return domain.RetrievalOutcome{Documents: []domain.SearchResult{}, Sources: []string{}}
	}
	metrics.RetrievalSearchesTotal.WithLabelValues("found").Inc()

	parts := make([]string, 0, len(results))
	seen := make(map[string]struct{})
	var sources []string

	for _, doc := range results {
		parts = append(parts, doc.Content)

		source := "Unknown"
		if s, ok := doc.Metadata["source"].(string); ok && s != "" {
			source = s
		}
		if _, dup := seen[source]; !dup {
			seen[source] = struct{}{}
			sources = append(sources, source)
		}

		if page, ok := doc.Metadata["page_number"]; ok {
			e.logger.Debug("retrieved document",
				zap.String("source", source),
				zap.Any("page", page),
			)
		}
	}
	sort.Strings(sources)

	e.logger.Info("retrieved context",
		zap.Int("documents", len(results)),
		zap.Int("sources", len(sources)),
	)

	return domain.RetrievalOutcome{
		Found:     true,
		Documents: results,
		Context:   strings.Join(parts, "\n\n"),
		Sources:   sources,
	}
}

// PromptWithContext renders the grounded prompt: answer strictly from
// the context, emit the sentinel when the answer is absent.
func (e *Engine) PromptWithContext(query, contextText string) string {
	return fmt.Sprintf(promptTemplate, NoAnswerSentinel, contextText, query)
}

// NoContextResponse returns the sentinel verbatim. Used when retrieval
// finds nothing and generation is skipped.
func (e *Engine) NoContextResponse() string {
	return NoAnswerSentinel
}

// Stats reports index stats plus the retrieval policy.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	idxStats, err := e.index.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("index stats: %w", err)
	}
	return Stats{
		Stats:               idxStats,
		TopK:                e.topK,
		SimilarityThreshold: e.threshold,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
