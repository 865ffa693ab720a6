// Package answer orchestrates question answering: retrieve grounding
// context, short-circuit to the sentinel when nothing relevant exists,
// otherwise generate an answer constrained to the retrieved passages.
package answer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
)

// Retriever is the retrieval engine surface the service consumes.
type Retriever interface {
	RetrieveContext(ctx context.Context, query string) domain.RetrievalOutcome
	PromptWithContext(query, contextText string) string
	NoContextResponse() string
}

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Result is the explicit outcome of answering a question. Found reports
// whether the answer was grounded in retrieved documents; when false,
// Text is the no-answer sentinel and generation was skipped.
type Result struct {
	Text      string
	Found     bool
	Sources   []string
	Documents []domain.SearchResult
}

// Service answers questions grounded in the document index.
type Service struct {
	retriever Retriever
	generator Generator
	logger    *zap.Logger
}

// New creates an answer service.
func New(retriever Retriever, generator Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{retriever: retriever, generator: generator, logger: logger}
}

// Answer retrieves context for the question and generates a grounded
// reply. With no relevant context the sentinel is returned without
// calling the generator.
func (s *Service) Answer(ctx context.Context, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, fmt.Errorf("%w: question is blank", domain.ErrEmptyQuery)
	}

	outcome := s.retriever.RetrieveContext(ctx, question)
	if !outcome.Found {
		return Result{
			Text:      s.retriever.NoContextResponse(),
			Sources:   []string{},
			Documents: []domain.SearchResult{},
		}, nil
	}

	prompt := s.retriever.PromptWithContext(question, outcome.Context)
	text, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generate answer: %w", err)
	}

	s.logger.Info("answered question",
		zap.Int("documents", len(outcome.Documents)),
		zap.Strings("sources", outcome.Sources),
	)

	return Result{
		Text:      text,
		Found:     true,
		Sources:   outcome.Sources,
		Documents: outcome.Documents,
	}, nil
}
