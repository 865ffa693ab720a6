package domain

// ProcessedContent is the typed form of a model's structured document
// analysis. Fields default to empty when the corresponding section is
// absent from the model output; Raw preserves the unparsed input for
// debugging.
type ProcessedContent struct {
	Text       string
	Summary    string
	KeyPoints  []string
	Topics     []string
	Source     string
	PageNumber int // 0 means unknown
	Metadata   map[string]any
	Raw        string
}

// Empty reports whether parsing recovered nothing at all.
func (p ProcessedContent) Empty() bool {
	return p.Text == "" && p.Summary == "" && len(p.KeyPoints) == 0 && len(p.Topics) == 0
}
