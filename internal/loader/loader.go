// Package loader extracts plain text from on-disk documents: PDF (page
// by page), DOCX, TXT, and Markdown.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
)

// SupportedExtensions lists the formats the loader handles.
var SupportedExtensions = map[string]struct{}{
	".pdf":  {},
	".docx": {},
	".txt":  {},
	".md":   {},
}

// Loader reads documents from disk into in-memory source documents.
type Loader struct {
	logger *zap.Logger
}

// New creates a document loader.
func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadFile extracts text from a single file. PDFs produce one document
// per page with the page number stamped; other formats produce one
// document for the whole file. Fails with domain.ErrUnsupportedFormat
// for unknown extensions.
func (l *Loader) LoadFile(path string) ([]domain.SourceDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))
	source := filepath.Base(path)

	switch ext {
	case ".pdf":
		return l.loadPDF(path, source)
	case ".docx":
		return l.loadDOCX(path, source)
	case ".txt", ".md":
		return l.loadPlainText(path, source, ext)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}
}

// LoadDir loads every supported file directly under dir, skipping
// unsupported extensions with a warning and failing only when a
// supported file cannot be read.
func (l *Loader) LoadDir(dir string) ([]domain.SourceDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var docs []domain.SourceDocument
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := SupportedExtensions[ext]; !ok {
			l.logger.Warn("skipping unsupported file", zap.String("file", entry.Name()))
			continue
		}

		loaded, err := l.LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}

	l.logger.Info("loaded documents",
		zap.String("dir", dir),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

func (l *Loader) loadPlainText(path, source, ext string) ([]domain.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		l.logger.Warn("empty document", zap.String("file", source))
		return nil, nil
	}
	return []domain.SourceDocument{{
		Content:  string(data),
		Source:   source,
		Metadata: map[string]any{"file_type": strings.TrimPrefix(ext, ".")},
	}}, nil
}
