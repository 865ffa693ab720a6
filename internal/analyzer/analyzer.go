// Package analyzer runs model-assisted document analysis: it sends raw
// document text to the generation model with a structured extraction
// prompt and parses the reply into a typed record.
package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/respparse"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// The extraction prompt embeds the exact section headers the response
// parser recognizes, so model output round-trips through respparse.Parse.
var extractionPrompt = `Analyze this document text.

TEXT:
%s

Extract and structure the information:

` + respparse.HeaderText + `
[Provide cleaned and well-structured text content]

` + respparse.HeaderSummary + `
[Provide a comprehensive summary]

` + respparse.HeaderKeyPoints + `
- [List all important points]
- [One point per line]

` + respparse.HeaderTopics + `
- [List main topics]
- [One topic per line]

Be thorough and maintain all important details.
`

// Analyzer structures raw document text through the generation model.
type Analyzer struct {
	generator Generator
	model     string
	logger    *zap.Logger
}

// New creates an analyzer. The model name is recorded in the metadata of
// every record it produces.
func New(generator Generator, model string, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{generator: generator, model: model, logger: logger}
}

// Analyze sends the document text through the extraction prompt and
// parses the structured reply. PageNumber carries through to the parsed
// record (0 when unknown).
func (a *Analyzer) Analyze(ctx context.Context, text, source string, pageNumber int) (domain.ProcessedContent, error) {
	reply, err := a.generator.Complete(ctx, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		return domain.ProcessedContent{}, fmt.Errorf("analyze %s: %w", source, err)
	}

	pc := respparse.Parse(reply, source, pageNumber)
	pc.Metadata = map[string]any{
		"analyzed_by": a.model,
	}

	a.logger.Debug("analyzed document",
		zap.String("source", source),
		zap.Int("text_chars", len(pc.Text)),
		zap.Int("key_points", len(pc.KeyPoints)),
		zap.Int("topics", len(pc.Topics)),
	)
	return pc, nil
}
