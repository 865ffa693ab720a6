package loader

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/groundlabs/sopqa/internal/domain"
)

// loadDOCX extracts paragraph text from word/document.xml inside the
// DOCX zip container.
func (l *Loader) loadDOCX(path, source string) ([]domain.SourceDocument, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer archive.Close()

	var docXML io.ReadCloser
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("opening document.xml in %s: %w", path, err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("%w: %s has no word/document.xml", domain.ErrUnsupportedFormat, source)
	}
	defer docXML.Close()

	text, err := extractDocxText(docXML)
	if err != nil {
		return nil, fmt.Errorf("parsing document.xml in %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	return []domain.SourceDocument{{
		Content:  text,
		Source:   source,
		Metadata: map[string]any{"file_type": "docx"},
	}}, nil
}

// extractDocxText walks the WordprocessingML stream collecting text runs
// (<w:t>) and inserting a newline at each paragraph end (</w:p>).
func extractDocxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var b strings.Builder
	inText := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
