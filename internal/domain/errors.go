package domain

import "errors"

var (
	// ErrInvalidChunking signals an invalid size/overlap combination.
	// Fatal at construction, never recovered.
	ErrInvalidChunking = errors.New("invalid chunking configuration")
	// ErrInvalidChunk signals a chunk that violates its invariants.
	ErrInvalidChunk = errors.New("invalid chunk")
	// ErrIndexFailure signals a persistence failure while adding to the
	// index. Partial state is possible: adds are not transactional.
	ErrIndexFailure = errors.New("index persistence failure")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrUnsupportedFormat signals a document format no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmptyQuery signals a blank question or search query.
	ErrEmptyQuery = errors.New("empty query")
)
