// Package indexer drives index operations: it plans a scan, extracts and
// embeds each planned file, and replaces the file's rows in the graph store.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/config"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/database"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/embedding"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/extract"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/git"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

// =============================================================================
// Constants
// =============================================================================

const (
	DefaultChunkSize          = 100
	DefaultLargeFileChunkSize = 25
	DefaultLargeFileThreshold = 1000
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNilStore    = errors.New("indexer requires a graph store")
	ErrNilPipeline = errors.New("indexer requires an extraction pipeline")
	ErrNilLocks    = errors.New("indexer requires a lock manager")
)

// =============================================================================
// Collaborators
// =============================================================================

// Extractor turns file content into symbols and relationships.
// *extract.Pipeline satisfies it.
type Extractor interface {
	Extract(ctx context.Context, path string, content []byte, lang language.Language) extract.Result
}

// GrammarStatus reports which languages have a loadable grammar.
// *treesitter.Extractor satisfies it.
type GrammarStatus interface {
	Available(lang language.Language) bool
}

// VectorStatus describes the semantic search backend. *vector.Backend
// satisfies it.
type VectorStatus interface {
	Name() string
	Len(projectID string) int
}

// VCSOpener opens version control for a project root.
type VCSOpener func(root string) (git.VCS, error)

func openGit(root string) (git.VCS, error) {
	client, err := git.NewClient(root)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// =============================================================================
// Indexer
// =============================================================================

// Indexer runs index operations against one graph store. Operations on the
// same project are serialized through the lock manager; different projects
// may index concurrently.
type Indexer struct {
	store     *graph.Store
	extractor Extractor
	locks     *database.LockManager
	embedder  embedding.Embedder
	embedName string
	grammars  GrammarStatus
	vectors   VectorStatus
	openVCS   VCSOpener
	config    config.IndexConfig
	logger    *slog.Logger

	// writeMu serializes store writes across the workers of one operation.
	writeMu sync.Mutex
}

type Option func(*Indexer)

// WithEmbedder sets the generator and the provider name reported by Health.
// A nil embedder stores symbols without vectors.
func WithEmbedder(e embedding.Embedder, name string) Option {
	return func(ix *Indexer) {
		ix.embedder = e
		ix.embedName = name
	}
}

func WithGrammarStatus(g GrammarStatus) Option {
	return func(ix *Indexer) { ix.grammars = g }
}

func WithVectorStatus(v VectorStatus) Option {
	return func(ix *Indexer) { ix.vectors = v }
}

func WithVCSOpener(open VCSOpener) Option {
	return func(ix *Indexer) {
		if open != nil {
			ix.openVCS = open
		}
	}
}

func WithConfig(cfg config.IndexConfig) Option {
	return func(ix *Indexer) { ix.config = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

func New(store *graph.Store, extractor Extractor, locks *database.LockManager, opts ...Option) (*Indexer, error) {
	switch {
	case store == nil:
		return nil, ErrNilStore
	case extractor == nil:
		return nil, ErrNilPipeline
	case locks == nil:
		return nil, ErrNilLocks
	}

	ix := &Indexer{
		store:     store,
		extractor: extractor,
		locks:     locks,
		openVCS:   openGit,
		config:    config.DefaultConfig().Index,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

func (ix *Indexer) Store() *graph.Store {
	return ix.store
}

func (ix *Indexer) workers() int {
	if ix.config.Workers <= 0 {
		return 1
	}
	return ix.config.Workers
}

// chunkSize picks the embedding chunk for a file with n symbols.
func (ix *Indexer) chunkSize(n int) int {
	threshold := ix.config.LargeFileThreshold
	if threshold <= 0 {
		threshold = DefaultLargeFileThreshold
	}
	if n > threshold {
		if ix.config.LargeFileChunkSize > 0 {
			return ix.config.LargeFileChunkSize
		}
		return DefaultLargeFileChunkSize
	}
	if ix.config.ChunkSize > 0 {
		return ix.config.ChunkSize
	}
	return DefaultChunkSize
}

// lockName maps a project id onto a file-system safe lock name.
func lockName(projectID string) string {
	sum := sha256.Sum256([]byte(projectID))
	return "project-" + hex.EncodeToString(sum[:8])
}
