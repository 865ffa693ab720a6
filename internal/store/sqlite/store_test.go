package sqlite

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/groundlabs/sopqa/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "test_collection")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(id string, vector []float32) store.Record {
	return store.Record{
		ID:       id,
		Content:  "content of " + id,
		Metadata: map[string]any{"source": id + ".txt"},
		Vector:   vector,
	}
}

func TestNew_RequiresDirAndCollection(t *testing.T) {
	if _, err := New("", "c"); err == nil {
		t.Error("empty dir accepted")
	}
	if _, err := New(t.TempDir(), ""); err == nil {
		t.Error("empty collection accepted")
	}
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir, "c")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	ctx := context.Background()
	if err := s1.Upsert(ctx, []store.Record{rec("a", []float32{1, 0})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(dir, "c")
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	count, err := s2.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count after reopen: got %d, want 1", count)
	}
}

func TestUpsert_OverwritesExistingID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, []store.Record{rec("a", []float32{1, 0})}); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	updated := store.Record{ID: "a", Content: "updated", Vector: []float32{0, 1}}
	if err := s.Upsert(ctx, []store.Record{updated}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count: got %d, want 1", count)
	}

	hits, err := s.Query(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits[0].Content != "updated" {
		t.Errorf("content: got %q, want updated", hits[0].Content)
	}
}

func TestQuery_NearestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []store.Record{
		rec("far", []float32{10, 0}),
		rec("near", []float32{1, 0}),
		rec("mid", []float32{3, 0}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := s.Query(ctx, []float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	for i, want := range []string{"near", "mid", "far"} {
		if hits[i].ID != want {
			t.Errorf("hit %d: got %s, want %s", i, hits[i].ID, want)
		}
	}
	if hits[0].Distance != 1.0 {
		t.Errorf("nearest distance: got %g, want 1.0", hits[0].Distance)
	}
}

func TestQuery_TruncatesToTopK(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []store.Record{
		rec("a", []float32{1}),
		rec("b", []float32{2}),
		rec("c", []float32{3}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := s.Query(ctx, []float32{0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want 2", len(hits))
	}
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Upsert(ctx, []store.Record{
		rec("first", []float32{1, 0}),
		rec("second", []float32{0, 1}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := s.Query(ctx, []float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits[0].ID != "first" || hits[1].ID != "second" {
		t.Errorf("tie order: got %s, %s", hits[0].ID, hits[1].ID)
	}
}

func TestQuery_MetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := store.Record{
		ID:      "a",
		Content: "c",
		Metadata: map[string]any{
			"source":      "doc.pdf",
			"chunk_index": 2,
			"has_summary": true,
		},
		Vector: []float32{1},
	}
	if err := s.Upsert(ctx, []store.Record{r}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := s.Query(ctx, []float32{1}, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	meta := hits[0].Metadata
	if meta["source"] != "doc.pdf" {
		t.Errorf("source: got %v", meta["source"])
	}
	// JSON numbers come back as float64.
	if meta["chunk_index"] != float64(2) {
		t.Errorf("chunk_index: got %v (%T)", meta["chunk_index"], meta["chunk_index"])
	}
	if meta["has_summary"] != true {
		t.Errorf("has_summary: got %v", meta["has_summary"])
	}
}

func TestQuery_InvalidArgs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Query(ctx, []float32{1}, 0); err == nil {
		t.Error("topK 0 accepted")
	}
	if _, err := s.Query(ctx, nil, 3); err == nil {
		t.Error("empty vector accepted")
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	s := newTestStore(t)

	hits, err := s.Query(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits, want 0", len(hits))
	}
}

func TestDrop_EmptiesCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, []store.Record{rec("a", []float32{1})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Drop(ctx); err != nil {
		t.Fatalf("Drop: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("count after drop: got %d, want 0", count)
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := New(dir, "alpha")
	if err != nil {
		t.Fatalf("open alpha: %v", err)
	}
	defer s1.Close()
	s2, err := New(dir, "beta")
	if err != nil {
		t.Fatalf("open beta: %v", err)
	}
	defer s2.Close()

	if err := s1.Upsert(ctx, []store.Record{rec("a", []float32{1})}); err != nil {
		t.Fatalf("Upsert alpha: %v", err)
	}

	count, err := s2.Count(ctx)
	if err != nil {
		t.Fatalf("Count beta: %v", err)
	}
	if count != 0 {
		t.Errorf("beta sees alpha's records: count %d", count)
	}
}

func TestKV_SetGetOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("value: got %q, want v2", got)
	}
}

func TestKV_MissingKey(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound", err)
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, math.Pi}
	out := bytesToVector(vectorToBytes(in))

	if len(out) != len(in) {
		t.Fatalf("length: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: got %g, want %g", i, out[i], in[i])
		}
	}
}

func TestSquaredL2_MismatchedLengths(t *testing.T) {
	// The shorter vector is treated as zero-padded.
	got := squaredL2([]float32{1, 2}, []float32{1})
	if got != 4.0 {
		t.Errorf("got %g, want 4.0", got)
	}
}
