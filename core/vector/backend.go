package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
)

// Name is reported by Stats and Health.
const Name = "hnsw"

// EmbeddingSource streams stored embeddings. *graph.Store satisfies it.
type EmbeddingSource interface {
	EachEmbedding(ctx context.Context, projectID string, fn func(symbolID int64, projectID string, vector []float32) error) error
}

// Backend holds one HNSW graph per project. A project's graph is built on
// first search from stored embeddings and then kept current through the
// store's change notifications. Zero vectors are never indexed.
type Backend struct {
	source EmbeddingSource
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	indexes   map[string]*Index
	allLoaded bool
}

type BackendOption func(*Backend)

func WithBackendLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewBackend(source EmbeddingSource, config Config, opts ...BackendOption) *Backend {
	b := &Backend{
		source:  source,
		config:  config,
		logger:  slog.Default(),
		indexes: make(map[string]*Index),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string {
	return Name
}

// Search returns the k nearest symbols to query within projectID, or across
// every project when projectID is empty.
func (b *Backend) Search(ctx context.Context, query []float32, k int, projectID string) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := b.ensureLoaded(ctx, projectID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var targets []*Index
	if projectID != "" {
		if idx, ok := b.indexes[projectID]; ok {
			targets = append(targets, idx)
		}
	} else {
		for _, idx := range b.indexes {
			targets = append(targets, idx)
		}
	}
	b.mu.Unlock()

	var hits []Hit
	for _, idx := range targets {
		hits = append(hits, idx.Search(query, k)...)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len counts indexed vectors in loaded graphs.
func (b *Backend) Len(projectID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if projectID != "" {
		if idx, ok := b.indexes[projectID]; ok {
			return idx.Len()
		}
		return 0
	}
	n := 0
	for _, idx := range b.indexes {
		n += idx.Len()
	}
	return n
}

func (b *Backend) ensureLoaded(ctx context.Context, projectID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allLoaded {
		return nil
	}
	if projectID != "" {
		if _, ok := b.indexes[projectID]; ok {
			return nil
		}
	}

	fresh := make(map[string]*Index)
	skipped := 0
	err := b.source.EachEmbedding(ctx, projectID, func(id int64, project string, vec []float32) error {
		if projectID == "" {
			if _, ok := b.indexes[project]; ok {
				return nil
			}
		}
		idx, ok := fresh[project]
		if !ok {
			idx = NewIndex(b.config)
			fresh[project] = idx
		}
		if err := idx.Insert(id, vec); err != nil {
			if errors.Is(err, ErrZeroVector) || errors.Is(err, ErrEmptyVector) {
				skipped++
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}

	for project, idx := range fresh {
		b.indexes[project] = idx
	}
	if projectID == "" {
		b.allLoaded = true
	} else if _, ok := b.indexes[projectID]; !ok {
		b.indexes[projectID] = NewIndex(b.config)
	}

	b.logger.Debug("vector index loaded",
		slog.String("project", projectID),
		slog.Int("projects", len(fresh)),
		slog.Int("skipped_zero", skipped))
	return nil
}

// FileReplaced applies a committed file replacement to a loaded graph.
// Graphs not yet loaded pick the change up when they are built.
func (b *Backend) FileReplaced(change graph.FileChange) {
	b.mu.Lock()
	idx, ok := b.indexes[change.ProjectID]
	if !ok && b.allLoaded {
		idx = NewIndex(b.config)
		b.indexes[change.ProjectID] = idx
		ok = true
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	for _, id := range change.RemovedIDs {
		idx.Delete(id)
	}
	for id, vec := range change.Vectors {
		if err := idx.Insert(id, vec); err != nil && !errors.Is(err, ErrZeroVector) {
			b.logger.Warn("vector index insert failed",
				slog.Int64("symbol_id", id),
				slog.String("error", err.Error()))
		}
	}
}

func (b *Backend) ProjectDeleted(projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.indexes, projectID)
}

// Reset drops every loaded graph.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indexes = make(map[string]*Index)
	b.allLoaded = false
}
