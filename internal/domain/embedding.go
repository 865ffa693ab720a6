package domain

import "context"

// Embedder maps texts to fixed-length vectors, one per input, same order.
// Implementations degrade per-text failures to an all-zero vector of the
// configured dimension rather than aborting the batch, so batch
// operations can partially succeed.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HealthChecker is optionally implemented by providers that can probe
// their backing API.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// IsZeroVector reports whether a vector is the all-zero degradation
// placeholder produced by a failed embedding.
func IsZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
