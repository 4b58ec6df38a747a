// Package textindex keeps a bleve full-text index over symbol names and
// snippets, synchronized with the graph store.
package textindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
)

const (
	DefaultCacheSize = 256
	deletePageSize   = 1000
)

var (
	ErrIndexClosed = errors.New("text index is closed")
	ErrEmptyQuery  = errors.New("text query cannot be empty")
)

// Hit is one ranked match.
type Hit struct {
	SymbolID int64
	Score    float64
}

// SymbolSource streams stored symbols. *graph.Store satisfies it.
type SymbolSource interface {
	EachSymbol(ctx context.Context, projectID string, fn func(graph.Symbol) error) error
	ProjectCounts(ctx context.Context, projectID string) (graph.Counts, error)
}

type document struct {
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	SymbolType string `json:"symbol_type"`
	Language   string `json:"language"`
	FilePath   string `json:"file_path"`
	Snippet    string `json:"snippet"`
}

type cacheKey struct {
	generation uint64
	projectID  string
	text       string
	limit      int
}

type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
	logger *slog.Logger

	generation atomic.Uint64
	cache      *lru.Cache[cacheKey, []Hit]
}

type Option func(*Index)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

func WithCacheSize(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.cache, _ = lru.New[cacheKey, []Hit](n)
		}
	}
}

// Open opens the index at path, creating it when missing. An empty path
// keeps the index in memory.
func Open(path string, opts ...Option) (*Index, error) {
	cache, err := lru.New[cacheKey, []Hit](DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	i := &Index{path: path, logger: slog.Default(), cache: cache}
	for _, opt := range opts {
		opt(i)
	}

	if path == "" {
		idx, err := bleve.NewMemOnly(buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory text index: %w", err)
		}
		i.index = idx
		return i, nil
	}

	idx, err := bleve.Open(path)
	if err == nil {
		i.index = idx
		return i, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		i.logger.Warn("text index unreadable, recreating", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("remove text index %s: %w", path, rmErr)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create text index dir: %w", err)
	}
	idx, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create text index %s: %w", path, err)
	}
	i.index = idx
	return i, nil
}

func buildMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()

	code := bleve.NewTextFieldMapping()
	code.Analyzer = AnalyzerName

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("project_id", keyword)
	doc.AddFieldMappingsAt("symbol_type", keyword)
	doc.AddFieldMappingsAt("language", keyword)
	doc.AddFieldMappingsAt("file_path", keyword)
	doc.AddFieldMappingsAt("name", code)
	doc.AddFieldMappingsAt("snippet", code)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = AnalyzerName
	return im
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func toDocument(sym graph.Symbol) document {
	return document{
		ProjectID:  sym.ProjectID,
		Name:       sym.Name,
		SymbolType: sym.SymbolType,
		Language:   sym.Language,
		FilePath:   sym.FilePath,
		Snippet:    sym.CodeSnippet,
	}
}

// Search ranks symbols whose name or snippet matches text. Name matches
// weigh three times snippet matches. An empty projectID searches everything.
func (i *Index) Search(ctx context.Context, text, projectID string, limit int) ([]Hit, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}

	key := cacheKey{generation: i.generation.Load(), projectID: projectID, text: text, limit: limit}
	if hits, ok := i.cache.Get(key); ok {
		return hits, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return nil, ErrIndexClosed
	}

	nameQuery := bleve.NewMatchQuery(text)
	nameQuery.SetField("name")
	nameQuery.SetBoost(3)
	snippetQuery := bleve.NewMatchQuery(text)
	snippetQuery.SetField("snippet")

	var q query.Query = bleve.NewDisjunctionQuery(nameQuery, snippetQuery)
	if projectID != "" {
		scope := bleve.NewTermQuery(projectID)
		scope.SetField("project_id")
		q = bleve.NewConjunctionQuery(q, scope)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("text search %q: %w", text, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{SymbolID: id, Score: h.Score})
	}
	i.cache.Add(key, hits)
	return hits, nil
}

// Count returns the documents indexed for projectID, or all when empty.
func (i *Index) Count(ctx context.Context, projectID string) (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return 0, ErrIndexClosed
	}
	if projectID == "" {
		return i.index.DocCount()
	}

	scope := bleve.NewTermQuery(projectID)
	scope.SetField("project_id")
	req := bleve.NewSearchRequestOptions(scope, 0, 0, false)
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// Sync rebuilds a project's documents from source when the indexed count
// differs from the stored symbol count. It reports whether it rebuilt.
func (i *Index) Sync(ctx context.Context, source SymbolSource, projectID string) (bool, error) {
	counts, err := source.ProjectCounts(ctx, projectID)
	if err != nil {
		return false, err
	}
	indexed, err := i.Count(ctx, projectID)
	if err != nil {
		return false, err
	}
	if indexed == uint64(counts.Symbols) {
		return false, nil
	}
	return true, i.Rebuild(ctx, source, projectID)
}

// Rebuild replaces a project's documents with the symbols in source.
func (i *Index) Rebuild(ctx context.Context, source SymbolSource, projectID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrIndexClosed
	}
	defer i.generation.Add(1)

	if err := i.deleteProjectLocked(ctx, projectID); err != nil {
		return err
	}

	batch := i.index.NewBatch()
	n := 0
	err := source.EachSymbol(ctx, projectID, func(sym graph.Symbol) error {
		if err := batch.Index(docID(sym.ID), toDocument(sym)); err != nil {
			return err
		}
		n++
		if batch.Size() >= deletePageSize {
			if err := i.index.Batch(batch); err != nil {
				return err
			}
			batch.Reset()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild text index for %s: %w", projectID, err)
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("rebuild text index for %s: %w", projectID, err)
	}

	i.logger.Debug("text index rebuilt", slog.String("project", projectID), slog.Int("documents", n))
	return nil
}

func (i *Index) deleteProjectLocked(ctx context.Context, projectID string) error {
	scope := bleve.NewTermQuery(projectID)
	scope.SetField("project_id")

	for {
		req := bleve.NewSearchRequestOptions(scope, deletePageSize, 0, false)
		res, err := i.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("find %s documents: %w", projectID, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := i.index.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := i.index.Batch(batch); err != nil {
			return fmt.Errorf("delete %s documents: %w", projectID, err)
		}
	}
}

// FileReplaced mirrors a committed file replacement.
func (i *Index) FileReplaced(change graph.FileChange) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	defer i.generation.Add(1)

	batch := i.index.NewBatch()
	for _, id := range change.RemovedIDs {
		batch.Delete(docID(id))
	}
	for _, sym := range change.Added {
		if err := batch.Index(docID(sym.ID), toDocument(sym)); err != nil {
			i.logger.Warn("text index document rejected", slog.Int64("symbol_id", sym.ID), slog.String("error", err.Error()))
		}
	}
	if err := i.index.Batch(batch); err != nil {
		i.logger.Warn("text index update failed",
			slog.String("project", change.ProjectID),
			slog.String("file", change.FilePath),
			slog.String("error", err.Error()))
	}
}

func (i *Index) ProjectDeleted(projectID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	defer i.generation.Add(1)

	if err := i.deleteProjectLocked(context.Background(), projectID); err != nil {
		i.logger.Warn("text index project delete failed", slog.String("project", projectID), slog.String("error", err.Error()))
	}
}

func (i *Index) Path() string {
	return i.path
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.cache.Purge()
	return i.index.Close()
}
