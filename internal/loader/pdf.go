package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
)

// loadPDF extracts text page by page so retrieval can cite page numbers.
// Pages that fail text extraction are skipped with a warning rather than
// failing the whole file.
func (l *Loader) loadPDF(path, source string) ([]domain.SourceDocument, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("reading pdf %s: %w", path, err)
	}

	pageCount := reader.NumPage()
	var docs []domain.SourceDocument

	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn("failed to extract page text",
				zap.String("file", source),
				zap.Int("page", i),
				zap.Error(err),
			)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		docs = append(docs, domain.SourceDocument{
			Content:    text,
			Source:     source,
			PageNumber: i,
			Metadata: map[string]any{
				"file_type":   "pdf",
				"total_pages": pageCount,
			},
		})
	}

	l.logger.Info("loaded pdf",
		zap.String("file", source),
		zap.Int("pages", pageCount),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}
