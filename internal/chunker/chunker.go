// Package chunker splits raw document text into overlapping,
// boundary-aware segments sized for indexing.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
)

// boundaryMarkers are searched in priority order when trimming a chunk
// back to a natural break point.
var boundaryMarkers = []string{". ", "! ", "? ", "\n\n", "\n"}

// boundaryWindow is how far back from the naive cut the splitter looks
// for a boundary marker.
const boundaryWindow = 100

// Splitter splits text into chunks of at most size bytes with overlap
// bytes carried between consecutive chunks.
type Splitter struct {
	size    int
	overlap int
	logger  *zap.Logger
}

// New creates a Splitter. Fails with domain.ErrInvalidChunking when size
// is not positive, overlap is negative, or overlap >= size.
func New(size, overlap int, logger *zap.Logger) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", domain.ErrInvalidChunking, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrInvalidChunking, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf(
			"%w: overlap %d must be less than size %d", domain.ErrInvalidChunking, overlap, size,
		)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Splitter{size: size, overlap: overlap, logger: logger}, nil
}

// Split cuts text into overlapping chunks, preferring sentence or line
// boundaries near each cut. Chunks are trimmed of surrounding whitespace
// and blank chunks are dropped. Empty or whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	start := 0
	n := len(text)

	for start < n {
		end := start + s.size
		if end < n {
			end = s.boundaryCut(text, start, end)
			// The rune backup can swallow the whole window when size is
			// smaller than the rune at the cut; take the rune instead.
			if end <= start {
				end = start + 1
				for end < n && !utf8.RuneStart(text[end]) {
					end++
				}
			}
		} else {
			end = n
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= n {
			break
		}

		prev := start
		start = end - s.overlap
		// The overlap step can land mid-rune; move forward to the next
		// rune start so every chunk is valid UTF-8.
		for start > 0 && start < n && !utf8.RuneStart(text[start]) {
			start++
		}
		// A boundary cut close to the chunk start can pull the overlap
		// step back to where this chunk began. Resume from the cut
		// without overlap so the cursor always advances and no text is
		// dropped.
		if start <= prev {
			start = end
		}
	}

	s.logger.Debug("split text",
		zap.Int("text_length", n),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

// boundaryCut searches backward within the boundary window for the first
// matching marker, in priority order, and returns the cut just past it.
// With no marker found, the naive cut stands (backed up to a rune
// boundary so the slice stays valid UTF-8).
func (s *Splitter) boundaryCut(text string, start, end int) int {
	searchStart := end - boundaryWindow
	if searchStart < start {
		searchStart = start
	}

	for _, marker := range boundaryMarkers {
		if pos := strings.LastIndex(text[searchStart:end], marker); pos != -1 {
			return searchStart + pos + len(marker)
		}
	}

	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

// ChunkDocuments splits each document and stamps every chunk with its
// sequence position, source, page number, and the parent document's
// metadata.
func (s *Splitter) ChunkDocuments(docs []domain.SourceDocument) []domain.Chunk {
	var all []domain.Chunk

	for _, doc := range docs {
		pieces := s.Split(doc.Content)
		for i, piece := range pieces {
			all = append(all, domain.Chunk{
				Content:       piece,
				Source:        doc.Source,
				SequenceIndex: i,
				SequenceTotal: len(pieces),
				PageNumber:    doc.PageNumber,
				Metadata:      doc.Metadata,
			})
		}
	}

	s.logger.Info("chunked documents",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(all)),
	)
	return all
}
