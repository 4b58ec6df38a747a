// Package query answers graph questions over indexed projects: callers,
// implementations, relationships, dependency graphs, call hierarchies and
// name, full-text and semantic search.
package query

import (
	"context"
	"errors"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/embedding"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/textindex"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/vector"
)

// =============================================================================
// Constants
// =============================================================================

const (
	DefaultCacheSize = 256
	DefaultTopK      = 10
)

var (
	callableTypes       = []string{"function", "method"}
	implementableTypes  = []string{"interface", "protocol", "class"}
	implementationTypes = []string{"implements", "extends", "inherits"}
	callTypes           = []string{"calls"}
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNilStore          = errors.New("query engine requires a graph store")
	ErrSymbolNotFound    = errors.New("symbol not found")
	ErrEmptyQuery        = errors.New("query text cannot be empty")
	ErrTextIndexDisabled = errors.New("full-text index is disabled")
)

// =============================================================================
// Collaborators
// =============================================================================

// Store is the read side of the graph store. *graph.Store satisfies it.
type Store interface {
	FindSymbols(ctx context.Context, name string, types []string, projectID string) ([]graph.Symbol, error)
	SymbolsByID(ctx context.Context, ids []int64) (map[int64]graph.Symbol, error)
	SearchByName(ctx context.Context, text, language, projectID string, limit int) ([]graph.Symbol, error)
	SampleSymbols(ctx context.Context, projectID string, limit int) ([]graph.Symbol, error)
	EdgesTo(ctx context.Context, targetIDs []int64, types []string, projectID string) ([]graph.Edge, error)
	EdgesOf(ctx context.Context, symbolID int64, relType string, dir graph.Direction, projectID string) ([]graph.Edge, error)
	AllEdges(ctx context.Context, projectID string) ([]graph.Edge, error)
	Generation() uint64
}

// VectorSearcher ranks stored embeddings by similarity. *vector.Backend
// satisfies it.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int, projectID string) ([]vector.Hit, error)
}

// TextSearcher ranks symbols by full-text relevance. *textindex.Index
// satisfies it.
type TextSearcher interface {
	Search(ctx context.Context, text, projectID string, limit int) ([]textindex.Hit, error)
}

// =============================================================================
// Engine
// =============================================================================

type cacheKey struct {
	generation uint64
	op         string
	name       string
	language   string
	projectID  string
	limit      int
}

// Engine runs queries against a store. Vector, text and embedder
// collaborators are optional; semantic search degrades without them.
// Cached results are shared and must not be modified by callers.
type Engine struct {
	store    Store
	vectors  VectorSearcher
	text     TextSearcher
	embedder embedding.Embedder
	logger   *slog.Logger
	cache    *lru.Cache[cacheKey, any]
}

type Option func(*Engine)

func WithVectorSearcher(v VectorSearcher) Option {
	return func(e *Engine) { e.vectors = v }
}

func WithTextSearcher(t TextSearcher) Option {
	return func(e *Engine) { e.text = t }
}

func WithEmbedder(emb embedding.Embedder) Option {
	return func(e *Engine) { e.embedder = emb }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCacheSize sets the result cache capacity. Zero or less disables caching.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			e.cache = nil
			return
		}
		e.cache, _ = lru.New[cacheKey, any](n)
	}
}

func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	cache, err := lru.New[cacheKey, any](DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{store: store, logger: slog.Default(), cache: cache}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HasVectorBackend reports whether semantic search can rank results.
func (e *Engine) HasVectorBackend() bool {
	return e.vectors != nil
}

func (e *Engine) HasTextIndex() bool {
	return e.text != nil
}

func cached[T any](e *Engine, key cacheKey, load func() (T, error)) (T, error) {
	if e.cache == nil {
		return load()
	}
	key.generation = e.store.Generation()
	if v, ok := e.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	e.cache.Add(key, v)
	return v, nil
}
