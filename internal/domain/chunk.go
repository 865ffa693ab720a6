package domain

import (
	"fmt"
	"strings"
)

// Chunk is the minimal retrievable unit of a document: a bounded segment of
// text plus the metadata needed to trace it back to its source.
// Immutable once created; ownership passes to the index it is added to.
type Chunk struct {
	Content       string
	Source        string
	SequenceIndex int
	SequenceTotal int
	PageNumber    int // 0 means unknown
	Metadata      map[string]any
}

// Validate checks the chunk invariants: non-blank content and a sequence
// position inside the sequence.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: blank content", ErrInvalidChunk)
	}
	if c.SequenceIndex < 0 {
		return fmt.Errorf("%w: negative sequence index %d", ErrInvalidChunk, c.SequenceIndex)
	}
	if c.SequenceIndex >= c.SequenceTotal {
		return fmt.Errorf(
			"%w: sequence index %d out of range (total %d)",
			ErrInvalidChunk, c.SequenceIndex, c.SequenceTotal,
		)
	}
	return nil
}

// SourceDocument is a raw document as delivered by a loader, before
// chunking. PageNumber is set when the loader splits by page (PDF).
type SourceDocument struct {
	Content    string
	Source     string
	PageNumber int
	Metadata   map[string]any
}
