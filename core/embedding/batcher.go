package embedding

import (
	"context"
	"log/slog"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
)

// Batcher splits large requests into sub-batches and degrades a failed
// sub-batch to zero vectors instead of failing the whole request.
type Batcher struct {
	inner     Embedder
	batchSize int
	logger    *slog.Logger
}

type BatcherOption func(*Batcher)

func WithBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

func WithBatchLogger(logger *slog.Logger) BatcherOption {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBatcher(inner Embedder, opts ...BatcherOption) *Batcher {
	b := &Batcher{inner: inner, batchSize: DefaultBatchSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Batcher) Dimension() int {
	return b.inner.Dimension()
}

// Embed forwards to the wrapped generator. Errors are returned unchanged so
// callers can skip the symbol.
func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := b.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return fit(vec, b.inner.Dimension()), nil
}

// EmbedBatch returns one vector per text. Only context cancellation is
// returned as an error; any other sub-batch failure yields zero vectors.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	dim := b.inner.Dimension()
	results := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+b.batchSize, len(texts))
		chunk := texts[start:end]

		vecs, err := b.inner.EmbedBatch(ctx, chunk)
		if err == nil && len(vecs) != len(chunk) {
			err = ErrEmptyResponse
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			b.logger.Warn("embedding batch failed, using zero vectors",
				slog.Int("texts", len(chunk)),
				slog.String("kind", coreerrors.KindEmbeddingDegraded.String()),
				slog.String("error", err.Error()))
			for range chunk {
				results = append(results, Zero(dim))
			}
			continue
		}

		for _, v := range vecs {
			results = append(results, fit(v, dim))
		}
	}
	return results, nil
}
