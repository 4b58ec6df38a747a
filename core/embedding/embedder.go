// Package embedding turns symbols into fixed-width vectors for semantic search.
package embedding

import (
	"context"
	"errors"
)

// DefaultDimension is the width of every stored symbol vector.
const DefaultDimension = 300

// DefaultBatchSize caps the texts sent to a generator in one call.
const DefaultBatchSize = 50

var (
	ErrEmptyResponse     = errors.New("embedding provider returned no vectors")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrMissingAPIKey     = errors.New("embedding provider requires an api key")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// Zero returns a zero vector of width dim.
func Zero(dim int) []float32 {
	return make([]float32, dim)
}

// fit pads or truncates v to dim.
func fit(v []float32, dim int) []float32 {
	if len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}
