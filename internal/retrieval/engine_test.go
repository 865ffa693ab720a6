package retrieval

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/index"
)

// --- Mocks ---

type mockSearcher struct {
	results       []domain.SearchResult
	stats         index.Stats
	statsErr      error
	lastQuery     string
	lastTopK      int
	lastThreshold float64
}

func (m *mockSearcher) Search(_ context.Context, query string, topK int, threshold float64) []domain.SearchResult {
	m.lastQuery = query
	m.lastTopK = topK
	m.lastThreshold = threshold
	return m.results
}

func (m *mockSearcher) Stats(_ context.Context) (index.Stats, error) {
	return m.stats, m.statsErr
}

func resultWithSource(content, source string) domain.SearchResult {
	return domain.SearchResult{
		Content:    content,
		Metadata:   map[string]any{"source": source},
		Similarity: 0.9,
	}
}

// --- RetrieveContext ---

func TestRetrieveContext_PassesPolicyToIndex(t *testing.T) {
	idx := &mockSearcher{}
	e := New(idx, 5, 0.65, nil)

	e.RetrieveContext(context.Background(), "how do I reset the filter")

	if idx.lastQuery != "how do I reset the filter" {
		t.Errorf("query: got %q", idx.lastQuery)
	}
	if idx.lastTopK != 5 {
		t.Errorf("topK: got %d, want 5", idx.lastTopK)
	}
	if idx.lastThreshold != 0.65 {
		t.Errorf("threshold: got %g, want 0.65", idx.lastThreshold)
	}
}

func TestRetrieveContext_EmptyResults(t *testing.T) {
	e := New(&mockSearcher{}, 3, 0.7, nil)

	out := e.RetrieveContext(context.Background(), "anything")
	if out.Found {
		t.Error("Found should be false")
	}
	if out.Context != "" {
		t.Errorf("context: got %q, want empty", out.Context)
	}
	if out.Documents == nil || len(out.Documents) != 0 {
		t.Errorf("documents: got %v, want empty slice", out.Documents)
	}
	if out.Sources == nil || len(out.Sources) != 0 {
		t.Errorf("sources: got %v, want empty slice", out.Sources)
	}
}

func TestRetrieveContext_JoinsDocumentsWithBlankLine(t *testing.T) {
	idx := &mockSearcher{results: []domain.SearchResult{
		resultWithSource("first passage", "a.pdf"),
		resultWithSource("second passage", "b.pdf"),
	}}
	e := New(idx, 3, 0.7, nil)

	out := e.RetrieveContext(context.Background(), "q")
	if !out.Found {
		t.Fatal("Found should be true")
	}
	if out.Context != "first passage\n\nsecond passage" {
		t.Errorf("context: got %q", out.Context)
	}
}

func TestRetrieveContext_SourcesDedupedAndSorted(t *testing.T) {
	idx := &mockSearcher{results: []domain.SearchResult{
		resultWithSource("one", "zeta.pdf"),
		resultWithSource("two", "alpha.pdf"),
		resultWithSource("three", "zeta.pdf"),
	}}
	e := New(idx, 5, 0, nil)

	out := e.RetrieveContext(context.Background(), "q")
	want := []string{"alpha.pdf", "zeta.pdf"}
	if !reflect.DeepEqual(out.Sources, want) {
		t.Errorf("sources: got %v, want %v", out.Sources, want)
	}
}

func TestRetrieveContext_MissingSourceBecomesUnknown(t *testing.T) {
	idx := &mockSearcher{results: []domain.SearchResult{
		{Content: "orphan", Metadata: map[string]any{}},
	}}
	e := New(idx, 3, 0, nil)

	out := e.RetrieveContext(context.Background(), "q")
	if len(out.Sources) != 1 || out.Sources[0] != "Unknown" {
		t.Errorf("sources: got %v, want [Unknown]", out.Sources)
	}
}

// --- Prompt ---

func TestPromptWithContext_EmbedsAllParts(t *testing.T) {
	e := New(&mockSearcher{}, 3, 0.7, nil)

	prompt := e.PromptWithContext("what is the schedule?", "the context body")
	if !strings.Contains(prompt, "the context body") {
		t.Error("prompt missing context")
	}
	if !strings.Contains(prompt, "what is the schedule?") {
		t.Error("prompt missing question")
	}
	if !strings.Contains(prompt, NoAnswerSentinel) {
		t.Error("prompt missing sentinel instruction")
	}
}

func TestNoContextResponse_IsSentinel(t *testing.T) {
	e := New(&mockSearcher{}, 3, 0.7, nil)

	if got := e.NoContextResponse(); got != NoAnswerSentinel {
		t.Errorf("got %q, want sentinel", got)
	}
}

// --- Stats ---

func TestStats_EmbedsPolicy(t *testing.T) {
	idx := &mockSearcher{stats: index.Stats{Collection: "docs", DocumentCount: 9}}
	e := New(idx, 4, 0.8, nil)

	stats, err := e.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Collection != "docs" || stats.DocumentCount != 9 {
		t.Errorf("index stats: %+v", stats)
	}
	if stats.TopK != 4 || stats.SimilarityThreshold != 0.8 {
		t.Errorf("policy: %+v", stats)
	}
}

func TestStats_IndexFailurePropagates(t *testing.T) {
	idx := &mockSearcher{statsErr: errors.New("count failed")}
	e := New(idx, 4, 0.8, nil)

	if _, err := e.Stats(context.Background()); err == nil {
		t.Error("expected error")
	}
}
