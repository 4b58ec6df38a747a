package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultCacheCost   = 1 << 26
	defaultBufferItems = 64
)

// CachedEmbedder memoizes vectors by text hash. Unchanged symbols re-indexed
// after an edit elsewhere in the file skip the generator.
type CachedEmbedder struct {
	inner     Embedder
	cache     *ristretto.Cache
	namespace string
}

// NewCachedEmbedder wraps inner with a cache bounded to maxCost bytes of
// vectors. namespace separates providers and models sharing one process.
func NewCachedEmbedder(inner Embedder, namespace string, maxCost int64) (*CachedEmbedder, error) {
	if maxCost <= 0 {
		maxCost = defaultCacheCost
	}
	// Ten counters per expected entry.
	entries := maxCost / int64(4*max(inner.Dimension(), 1))
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: max(entries*10, 1000),
		MaxCost:     maxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache, namespace: namespace}, nil
}

func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.namespace + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) get(text string) ([]float32, bool) {
	v, ok := c.cache.Get(c.key(text))
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *CachedEmbedder) set(text string, vec []float32) {
	if IsZero(vec) {
		return
	}
	c.cache.Set(c.key(text), vec, int64(4*len(vec)))
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.set(text, vec)
	return vec, nil
}

// EmbedBatch sends only cache misses to the wrapped generator.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.get(text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, ErrEmptyResponse
	}
	for j, vec := range vecs {
		results[missingIdx[j]] = vec
		c.set(missing[j], vec)
	}
	return results, nil
}

// Wait blocks until buffered cache writes are visible.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
