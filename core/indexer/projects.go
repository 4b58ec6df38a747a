package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

// GitInfo is the live repository state of a project.
type GitInfo struct {
	Head   string `json:"head,omitempty"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
	Error  string `json:"error,omitempty"`
}

type ProjectInfo struct {
	Project graph.Project `json:"project"`
	Counts  graph.Counts  `json:"counts"`
	// Git is nil when the project is not version controlled.
	Git *GitInfo `json:"git,omitempty"`
}

// ProjectFiles lists the files written for a project.
type ProjectFiles struct {
	ProjectID  string              `json:"project_id"`
	TotalFiles int                 `json:"total_files"`
	Files      []graph.IndexedFile `json:"files"`
}

// ProjectSymbols lists the symbols of a project, optionally for one language.
type ProjectSymbols struct {
	ProjectID    string         `json:"project_id"`
	Language     string         `json:"language,omitempty"`
	TotalSymbols int            `json:"total_symbols"`
	Symbols      []graph.Symbol `json:"symbols"`
}

// Stats extends the store statistics with the active vector backend.
type Stats struct {
	*graph.Stats
	VectorBackend  string `json:"vector_backend"`
	IndexedVectors int    `json:"indexed_vectors"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// Health reports each component as "healthy", "disabled" or "error: ...".
type Health struct {
	Healthy       bool              `json:"healthy"`
	Database      string            `json:"database"`
	Embedder      string            `json:"embedder"`
	Parser        string            `json:"parser"`
	VectorBackend string            `json:"vector_backend"`
	Grammars      []string          `json:"grammars,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

func (ix *Indexer) ListProjects(ctx context.Context) ([]graph.ProjectSummary, error) {
	return ix.store.ListProjects(ctx)
}

// ForceFullRescan clears the recorded scan commit so the next index
// operation on the project runs a full scan.
func (ix *Indexer) ForceFullRescan(ctx context.Context, projectID string) error {
	if err := ix.store.ClearScanCommit(ctx, projectID); err != nil {
		return err
	}
	ix.logger.Info("project marked for full rescan", slog.String("project", projectID))
	return nil
}

// DeleteProject removes the project and every row it owns. It waits for any
// index operation on the project to finish first.
func (ix *Indexer) DeleteProject(ctx context.Context, projectID string) (graph.DeleteResult, error) {
	release, err := ix.locks.Lock(ctx, lockName(projectID), ix.config.LockTimeout)
	if err != nil {
		return graph.DeleteResult{}, fmt.Errorf("lock project %s: %w", projectID, err)
	}
	defer release()

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	res, err := ix.store.DeleteProject(ctx, projectID)
	if err != nil {
		return res, err
	}
	ix.logger.Info("project deleted",
		slog.String("project", projectID),
		slog.Int64("symbols", res.Symbols),
		slog.Int64("files", res.Files),
		slog.Int64("relationships", res.Relationships),
		slog.Int64("embeddings", res.Embeddings))
	return res, nil
}

// ProjectInfo returns the project row, its counts and live git state.
func (ix *Indexer) ProjectInfo(ctx context.Context, projectID string) (*ProjectInfo, error) {
	project, err := ix.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	counts, err := ix.store.ProjectCounts(ctx, projectID)
	if err != nil {
		return nil, err
	}

	info := &ProjectInfo{Project: *project, Counts: counts}
	if project.IsVersionControlled {
		info.Git = ix.gitInfo(ctx, project.Path)
	}
	return info, nil
}

// ProjectFiles lists every file written for the project with its symbol
// count, including files that produced no symbols.
func (ix *Indexer) ProjectFiles(ctx context.Context, projectID string) (*ProjectFiles, error) {
	if _, err := ix.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	files, err := ix.store.ProjectFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []graph.IndexedFile{}
	}
	return &ProjectFiles{ProjectID: projectID, TotalFiles: len(files), Files: files}, nil
}

// ProjectSymbols lists the project's symbols, restricted to lang when it is
// non-empty. Language names are matched case-insensitively.
func (ix *Indexer) ProjectSymbols(ctx context.Context, projectID, lang string) (*ProjectSymbols, error) {
	if _, err := ix.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	symbols, err := ix.store.ProjectSymbols(ctx, projectID, lang)
	if err != nil {
		return nil, err
	}
	if symbols == nil {
		symbols = []graph.Symbol{}
	}
	return &ProjectSymbols{ProjectID: projectID, Language: lang, TotalSymbols: len(symbols), Symbols: symbols}, nil
}

type dirtyChecker interface {
	Dirty(ctx context.Context) (bool, error)
}

func (ix *Indexer) gitInfo(ctx context.Context, root string) *GitInfo {
	vcs, err := ix.openVCS(root)
	if err != nil {
		return &GitInfo{Error: err.Error()}
	}
	if c, ok := vcs.(io.Closer); ok {
		defer c.Close()
	}
	if !vcs.IsRepo() {
		return &GitInfo{Error: "not a git repository"}
	}

	info := &GitInfo{}
	if info.Head, err = vcs.Head(); err != nil {
		info.Error = err.Error()
		return info
	}
	info.Branch, _ = vcs.Branch()
	if d, ok := vcs.(dirtyChecker); ok {
		if info.Dirty, err = d.Dirty(ctx); err != nil {
			info.Error = err.Error()
		}
	}
	return info
}

// Stats reports store statistics for projectID, or globally when empty.
func (ix *Indexer) Stats(ctx context.Context, projectID string) (*Stats, error) {
	st, err := ix.store.Stats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := &Stats{Stats: st, VectorBackend: "none", EmbeddingModel: ix.embedName}
	if ix.vectors != nil {
		out.VectorBackend = ix.vectors.Name()
		out.IndexedVectors = ix.vectors.Len(projectID)
	}
	return out, nil
}

// Health checks every component without modifying anything.
func (ix *Indexer) Health(ctx context.Context) *Health {
	h := &Health{Healthy: true, Details: make(map[string]string)}

	if err := ix.store.Ping(ctx); err != nil {
		h.Database = "error: " + err.Error()
		h.Healthy = false
	} else {
		h.Database = "healthy"
	}

	switch {
	case ix.embedder == nil:
		h.Embedder = "disabled"
	default:
		h.Embedder = "healthy"
		h.Details["embedder"] = fmt.Sprintf("%s, %d dimensions", ix.embedName, ix.embedder.Dimension())
	}

	h.Parser = "healthy"
	if ix.grammars != nil {
		for _, lang := range language.All() {
			if ix.grammars.Available(lang) {
				h.Grammars = append(h.Grammars, lang.String())
			}
		}
	}
	h.Details["parser"] = fmt.Sprintf("%d grammars loaded, line patterns for the rest", len(h.Grammars))

	if ix.vectors != nil {
		h.VectorBackend = "healthy"
		h.Details["vector_backend"] = ix.vectors.Name()
	} else {
		h.VectorBackend = "disabled"
	}
	return h
}
