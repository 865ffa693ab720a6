// Package index is the vector index layer over a backing store and an
// embedding provider. It owns the record id scheme, the
// distance-to-similarity transform, and threshold filtering.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/metrics"
	"github.com/groundlabs/sopqa/internal/store"
)

// Index wraps a persistent embedding-backed collection.
type Index struct {
	store      store.Store
	embedder   domain.Embedder
	collection string
	logger     *zap.Logger
}

// Stats describes the indexed collection.
type Stats struct {
	Collection       string `json:"collection_name"`
	DocumentCount    int    `json:"document_count"`
	PersistDirectory string `json:"persist_directory"`
}

// New creates a vector index over the given store and embedder.
func New(s store.Store, embedder domain.Embedder, collection string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{store: s, embedder: embedder, collection: collection, logger: logger}
}

// Add embeds and persists chunks. Record ids are derived from the chunk
// source and its position within this batch, so re-adding the same batch
// overwrites rather than duplicates. Fails with domain.ErrIndexFailure
// on a persistence error; partial state is possible since adds are not
// transactional across calls.
func (ix *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		ix.logger.Warn("no chunks to add")
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		texts[i] = c.Content
	}

	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf(
			"%w: embedder returned %d vectors for %d chunks",
			domain.ErrEmbeddingProviderError, len(vectors), len(chunks),
		)
	}

	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			ID:       fmt.Sprintf("%s_%d", c.Source, i),
			Content:  c.Content,
			Metadata: flattenMetadata(c),
			Vector:   vectors[i],
		}
	}

	if err := ix.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexFailure, err)
	}

	metrics.IndexedChunksTotal.Add(float64(len(records)))
	ix.logger.Info("added chunks to index",
		zap.String("collection", ix.collection),
		zap.Int("chunks", len(records)),
	)
	return nil
}

// Search embeds the query, retrieves the topK nearest records, converts
// each distance to similarity, and drops results below the threshold
// (a threshold of 0 or less disables filtering). Results come back in
// nearest-first order. Internal errors are logged and swallowed at this
// boundary: callers always receive a sequence, possibly empty.
func (ix *Index) Search(ctx context.Context, query string, topK int, threshold float64) []domain.SearchResult {
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		ix.logger.Error("query embedding failed", zap.Error(err))
		return nil
	}

	hits, err := ix.store.Query(ctx, vectors[0], topK)
	if err != nil {
		ix.logger.Error("vector query failed",
			zap.String("collection", ix.collection),
			zap.Error(err),
		)
		return nil
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		similarity := domain.SimilarityFromDistance(hit.Distance)
		if threshold > 0 && similarity < threshold {
			continue
		}
		results = append(results, domain.SearchResult{
			Content:    hit.Content,
			Metadata:   hit.Metadata,
			Similarity: similarity,
			Distance:   hit.Distance,
		})
	}
	if len(results) > topK {
		results = results[:topK]
	}

	ix.logger.Info("search complete",
		zap.String("collection", ix.collection),
		zap.Int("hits", len(hits)),
		zap.Int("results", len(results)),
	)
	return results
}

// Stats reports the collection name, record count, and persist location.
func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	count, err := ix.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	return Stats{
		Collection:       ix.collection,
		DocumentCount:    count,
		PersistDirectory: ix.store.Location(),
	}, nil
}

// ClearAndRecreate removes every record in the collection.
func (ix *Index) ClearAndRecreate(ctx context.Context) error {
	if err := ix.store.Drop(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrIndexFailure, err)
	}
	ix.logger.Info("cleared collection", zap.String("collection", ix.collection))
	return nil
}

// Rebuild clears the collection and indexes the given chunks from
// scratch. Used for forced full reindexing.
func (ix *Index) Rebuild(ctx context.Context, chunks []domain.Chunk) error {
	ix.logger.Info("rebuilding index", zap.String("collection", ix.collection))
	if err := ix.ClearAndRecreate(ctx); err != nil {
		return err
	}
	return ix.Add(ctx, chunks)
}

// flattenMetadata builds a flat record restricted to index-safe scalar
// types; nested structures and unsupported types are dropped.
func flattenMetadata(c domain.Chunk) map[string]any {
	meta := map[string]any{
		"source":       c.Source,
		"chunk_index":  c.SequenceIndex,
		"total_chunks": c.SequenceTotal,
	}
	if c.PageNumber > 0 {
		meta["page_number"] = c.PageNumber
	}
	for k, v := range c.Metadata {
		switch v.(type) {
		case string, int, int32, int64, float32, float64, bool:
			meta[k] = v
		}
	}
	return meta
}
