package sopqa

// DocumentRef is a retrieved passage backing an answer.
type DocumentRef struct {
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AskResult is the answer to a question. Found is false when no indexed
// passage cleared the similarity threshold; Answer then carries the
// service's fixed no-answer text.
type AskResult struct {
	Answer    string        `json:"answer"`
	Found     bool          `json:"found"`
	Sources   []string      `json:"sources"`
	Documents []DocumentRef `json:"documents"`
}

// Stats describes the index and the retrieval policy in effect.
type Stats struct {
	Collection          string  `json:"collection_name"`
	DocumentCount       int     `json:"document_count"`
	PersistDirectory    string  `json:"persist_directory"`
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// Health is the service health report.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthy reports whether every check passed.
func (h Health) Healthy() bool { return h.Status == "healthy" }
