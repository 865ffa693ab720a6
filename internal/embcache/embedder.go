// Package embcache decorates an Embedder with a key-value cache so
// unchanged text is never re-embedded.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/groundlabs/sopqa/internal/domain"
	"github.com/groundlabs/sopqa/internal/metrics"
	"github.com/groundlabs/sopqa/internal/store"
)

const cacheKeyPrefix = "emb_cache:"

// CachedEmbedder caches embeddings keyed by the SHA-256 of the text.
type CachedEmbedder struct {
	inner  domain.Embedder
	kv     store.KV
	logger *zap.Logger
}

// New creates a caching decorator.
func New(inner domain.Embedder, kv store.KV, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{inner: inner, kv: kv, logger: logger}
}

// Embed returns cached vectors where available and embeds only the
// misses in a single inner batch. Zero vectors — the degradation
// placeholder for failed embeddings — are never cached, so a transient
// provider failure does not stick.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var missIdx []int
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.getFromCache(ctx, cacheKey(text)); ok {
			vectors[i] = vec
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf(
			"%w: inner embedder returned %d vectors for %d texts",
			domain.ErrEmbeddingProviderError, len(fresh), len(missTexts),
		)
	}

	for j, i := range missIdx {
		vectors[i] = fresh[j]
		if !domain.IsZeroVector(fresh[j]) {
			c.putToCache(ctx, cacheKey(texts[i]), fresh[j])
		}
	}
	return vectors, nil
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrKeyNotFound) {
			c.logger.Warn("failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	if err := c.kv.Set(ctx, key, buf); err != nil {
		c.logger.Warn("failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}
