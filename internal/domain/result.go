package domain

// SearchResult is a single similarity-search hit. Similarity and Distance
// are related by Similarity = 1/(1+Distance). Never mutated after creation.
type SearchResult struct {
	Content    string
	Metadata   map[string]any
	Similarity float64
	Distance   float64
}

// SimilarityFromDistance converts a non-negative store distance into a
// similarity score in (0, 1]. Monotonically decreasing: 1 at distance 0,
// approaching 0 as distance grows.
func SimilarityFromDistance(distance float64) float64 {
	return 1 / (1 + distance)
}

// RetrievalOutcome is the aggregated result of retrieving grounding
// context for a query. Found is false iff Documents is empty after
// threshold filtering. Context is the blank-line-joined content of all
// surviving results in score order. Sources holds the distinct source
// identifiers, sorted.
type RetrievalOutcome struct {
	Found     bool
	Documents []SearchResult
	Context   string
	Sources   []string
}
