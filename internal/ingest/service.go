// Package ingest feeds documents into the vector index: load from disk
// or accept raw text, optionally structure through model-assisted
// analysis, chunk, and add.
package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/chunker"
	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/respparse"
)

// Indexer is the vector index surface the service consumes.
type Indexer interface {
	Add(ctx context.Context, chunks []domain.Chunk) error
	Rebuild(ctx context.Context, chunks []domain.Chunk) error
}

// Loader reads documents from disk.
type Loader interface {
	LoadFile(path string) ([]domain.SourceDocument, error)
	LoadDir(dir string) ([]domain.SourceDocument, error)
}

// Analyzer structures document text through the generation model.
type Analyzer interface {
	Analyze(ctx context.Context, text, source string, pageNumber int) (domain.ProcessedContent, error)
}

// Service ingests documents into the index.
type Service struct {
	loader    Loader
	splitter  *chunker.Splitter
	analyzer  Analyzer // nil disables model-assisted analysis
	index     Indexer
	chunkSize int
	logger    *zap.Logger
}

// New creates an ingest service. Pass a nil analyzer to chunk documents
// directly without model-assisted analysis.
func New(
	l Loader, splitter *chunker.Splitter, a Analyzer, idx Indexer,
	chunkSize int, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		loader:    l,
		splitter:  splitter,
		analyzer:  a,
		index:     idx,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// IngestPath loads a file or directory and indexes its chunks. Returns
// the number of chunks added.
func (s *Service) IngestPath(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	var docs []domain.SourceDocument
	if info.IsDir() {
		docs, err = s.loader.LoadDir(path)
	} else {
		docs, err = s.loader.LoadFile(path)
	}
	if err != nil {
		return 0, err
	}

	chunks := s.chunkAll(ctx, docs)
	if len(chunks) == 0 {
		s.logger.Warn("nothing to index", zap.String("path", path))
		return 0, nil
	}

	if err := s.index.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// IngestText indexes raw text submitted directly, generating a source
// identifier when none is given. Returns the number of chunks added.
func (s *Service) IngestText(ctx context.Context, content, source string) (int, error) {
	if source == "" {
		source = "doc-" + uuid.NewString()
	}

	chunks := s.chunkAll(ctx, []domain.SourceDocument{{Content: content, Source: source}})
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: no indexable content in %s", domain.ErrInvalidChunk, source)
	}

	if err := s.index.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Reindex rebuilds the collection from scratch out of the documents
// under dir. Returns the number of chunks indexed.
func (s *Service) Reindex(ctx context.Context, dir string) (int, error) {
	docs, err := s.loader.LoadDir(dir)
	if err != nil {
		return 0, err
	}

	chunks := s.chunkAll(ctx, docs)
	if err := s.index.Rebuild(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// chunkAll converts documents into chunks. With an analyzer configured,
// each document goes through model-assisted analysis first and the
// structured record is packed by the builder; an analysis failure falls
// back to direct boundary-aware chunking for that document.
func (s *Service) chunkAll(ctx context.Context, docs []domain.SourceDocument) []domain.Chunk {
	if s.analyzer == nil {
		return s.splitter.ChunkDocuments(docs)
	}

	var chunks []domain.Chunk
	for _, doc := range docs {
		pc, err := s.analyzer.Analyze(ctx, doc.Content, doc.Source, doc.PageNumber)
		if err != nil || pc.Empty() {
			s.logger.Warn("analysis failed, falling back to direct chunking",
				zap.String("source", doc.Source),
				zap.Error(err),
			)
			chunks = append(chunks, s.splitter.ChunkDocuments([]domain.SourceDocument{doc})...)
			continue
		}
		chunks = append(chunks, respparse.BuildVectorChunks(pc, s.chunkSize, true)...)
	}
	return chunks
}
