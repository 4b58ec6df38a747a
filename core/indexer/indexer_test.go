package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/config"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/database"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/embedding"
	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/extract"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/git"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/scan"
)

const scenarioA = "def foo(): pass\ndef bar(): foo()\n"

func testConfig() config.IndexConfig {
	cfg := config.DefaultConfig().Index
	cfg.Workers = 2
	cfg.LockTimeout = 5 * time.Second
	return cfg
}

func newTestIndexer(t *testing.T, opts ...Option) *Indexer {
	t.Helper()
	pool, err := database.OpenPool(filepath.Join(t.TempDir(), "graph.db"), database.DefaultPoolConfig())
	require.NoError(t, err)
	store, err := graph.NewStore(context.Background(), pool)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pipeline := extract.NewPipeline(nil, extract.AttributeFirst, nil)
	base := []Option{
		WithConfig(testConfig()),
		WithEmbedder(embedding.NewBatcher(embedding.NewLocalEmbedder(32)), "local"),
	}
	ix, err := New(store, pipeline, database.NewLockManager(t.TempDir()), append(base, opts...)...)
	require.NoError(t, err)
	return ix
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func commit(t *testing.T, repo *gogit.Repository, msg string, files ...string) string {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for _, f := range files {
		_, err := wt.Add(f)
		require.NoError(t, err)
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestNew_RequiresCollaborators(t *testing.T) {
	locks := database.NewLockManager(t.TempDir())
	pipeline := extract.NewPipeline(nil, extract.AttributeFirst, nil)

	_, err := New(nil, pipeline, locks)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestIndexProject_ScenarioA(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})
	ctx := context.Background()

	res, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "demo"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, scan.ModeFull, res.Mode)
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 2, res.SymbolsIndexed)
	assert.Equal(t, 1, res.RelationshipsIndexed)
	assert.Equal(t, 2, res.EmbeddingsStored)

	callers, err := ix.Store().FindSymbols(ctx, "foo", []string{"function"}, "demo")
	require.NoError(t, err)
	require.Len(t, callers, 1)

	edges, err := ix.Store().EdgesTo(ctx, []int64{callers[0].ID}, []string{"calls"}, "demo")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "bar", edges[0].Source.Name)
	assert.Equal(t, graph.LinkBestEffort, edges[0].Data.Link)
}

func TestIndexProject_DefaultsProjectIDToBaseName(t *testing.T) {
	ix := newTestIndexer(t)
	root := filepath.Join(t.TempDir(), "myproj")
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})

	res, err := ix.IndexProject(context.Background(), root, IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, "myproj", res.ProjectID)

	project, err := ix.Store().GetProject(context.Background(), "myproj")
	require.NoError(t, err)
	assert.Equal(t, root, project.Path)
	assert.False(t, project.IsVersionControlled)
}

func TestIndexProject_IdempotentWithoutVersionControl(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"foo.py":          scenarioA,
		"pkg/util.go":     "package pkg\n\nfunc Util() {}\n",
		"pkg/__init__.py": "",
	})
	ctx := context.Background()

	first, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, 3, first.FilesProcessed)
	before, err := ix.Store().ProjectCounts(ctx, "p")
	require.NoError(t, err)

	second, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Zero(t, second.FilesProcessed)
	assert.Equal(t, 3, second.FilesUnchanged)

	after, err := ix.Store().ProjectCounts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIndexProject_ChangedFileIsFullyReplaced(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})
	ctx := context.Background()

	_, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)

	writeFiles(t, root, map[string]string{"foo.py": "def baz(): pass\n"})
	res, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesProcessed)

	counts, err := ix.Store().ProjectCounts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, graph.Counts{Symbols: 1, Files: 1, Relationships: 0, Embeddings: 1}, counts)

	old, err := ix.Store().FindSymbols(ctx, "bar", nil, "p")
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestIndexProject_PrunesDeletedFiles(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA, "gone.py": "def gone(): pass\n"})
	ctx := context.Background()

	_, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "gone.py")))

	res, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesRemoved)

	files, err := ix.Store().IndexedFiles(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "foo.py")}, files)
}

func TestIndexProject_InvalidPath(t *testing.T) {
	ix := newTestIndexer(t)

	res, err := ix.IndexProject(context.Background(), filepath.Join(t.TempDir(), "missing"), IndexOptions{})
	require.Error(t, err)
	assert.Equal(t, coreerrors.KindInvalidPath, coreerrors.KindOf(err))
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 1, res.ErrorCount(coreerrors.KindInvalidPath))

	file := filepath.Join(t.TempDir(), "file.py")
	require.NoError(t, os.WriteFile(file, []byte("x = 1\n"), 0o644))
	res, err = ix.IndexProject(context.Background(), file, IndexOptions{})
	require.Error(t, err)
	assert.True(t, coreerrors.IsFatal(err))
	assert.False(t, res.Success)
}

func TestIndexProject_ScenarioB_IncrementalAfterCommit(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)
	writeFiles(t, root, map[string]string{"a.py": "def a(): pass\n", "b.py": "def b(): pass\n"})
	c1 := commit(t, repo, "initial", "a.py", "b.py")
	ctx := context.Background()

	first, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "repo"})
	require.NoError(t, err)
	assert.Equal(t, scan.ModeFull, first.Mode)
	assert.True(t, first.IsRepo)
	assert.Equal(t, 2, first.FilesProcessed)

	project, err := ix.Store().GetProject(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, c1, project.LastScanCommit)
	assert.True(t, project.IsVersionControlled)

	writeFiles(t, root, map[string]string{"b.py": "def b(): return a()\n"})
	c2 := commit(t, repo, "second", "b.py")

	second, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "repo"})
	require.NoError(t, err)
	assert.Equal(t, scan.ModeIncremental, second.Mode)
	assert.Equal(t, 1, second.FilesProcessed)
	assert.Equal(t, c1, second.PreviousCommit)
	assert.Equal(t, 1, second.RelationshipsIndexed)

	project, err = ix.Store().GetProject(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, c2, project.LastScanCommit)
	assert.False(t, project.LastScanTime.IsZero())
}

func TestIndexProject_ScenarioC_ForceFullRescan(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)
	writeFiles(t, root, map[string]string{"a.py": "def a(): pass\n", "b.py": "def b(): pass\n"})
	c1 := commit(t, repo, "initial", "a.py", "b.py")
	ctx := context.Background()

	_, err = ix.IndexProject(ctx, root, IndexOptions{ProjectID: "repo"})
	require.NoError(t, err)

	require.NoError(t, ix.ForceFullRescan(ctx, "repo"))
	project, err := ix.Store().GetProject(ctx, "repo")
	require.NoError(t, err)
	assert.Empty(t, project.LastScanCommit)

	res, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "repo"})
	require.NoError(t, err)
	assert.Equal(t, scan.ModeFull, res.Mode)
	assert.Equal(t, 2, res.FilesDiscovered)
	assert.Empty(t, res.PreviousCommit)

	project, err = ix.Store().GetProject(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, c1, project.LastScanCommit)
}

func TestForceFullRescan_UnknownProject(t *testing.T) {
	ix := newTestIndexer(t)
	err := ix.ForceFullRescan(context.Background(), "nope")
	assert.ErrorIs(t, err, graph.ErrProjectNotFound)
}

func TestIndexProject_VCSOpenFailureDowngrades(t *testing.T) {
	ix := newTestIndexer(t, WithVCSOpener(func(string) (git.VCS, error) {
		return nil, errors.New("git exploded")
	}))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})

	res, err := ix.IndexProject(context.Background(), root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, scan.ModeFull, res.Mode)
	assert.Equal(t, 1, res.ErrorCount(coreerrors.KindVersionControlUnavailable))
}

// flakyEmbedder fails every batch and every single text containing "bar".
type flakyEmbedder struct{ dim int }

func (f flakyEmbedder) Dimension() int { return f.dim }

func (f flakyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "bar") {
		return nil, errors.New("rate limited")
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

func (f flakyEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("batch too large")
}

func TestIndexProject_EmbeddingFailureSkipsSymbol(t *testing.T) {
	ix := newTestIndexer(t, WithEmbedder(flakyEmbedder{dim: 4}, "flaky"))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})

	res, err := ix.IndexProject(context.Background(), root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.SymbolsIndexed)
	assert.Equal(t, 1, res.SymbolsSkipped)
	assert.Zero(t, res.RelationshipsIndexed)
	assert.Equal(t, 1, res.ErrorCount(coreerrors.KindEmbeddingDegraded))
}

type zeroEmbedder struct{}

func (zeroEmbedder) Dimension() int { return 4 }

func (zeroEmbedder) Embed(context.Context, string) ([]float32, error) {
	return make([]float32, 4), nil
}

func (zeroEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func TestIndexProject_ZeroVectorsCountAsDegraded(t *testing.T) {
	ix := newTestIndexer(t, WithEmbedder(zeroEmbedder{}, "zero"))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})

	res, err := ix.IndexProject(context.Background(), root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.EmbeddingsStored)
	assert.Equal(t, 2, res.ErrorCount(coreerrors.KindEmbeddingDegraded))
}

func TestIndexProject_WithoutEmbedder(t *testing.T) {
	ix := newTestIndexer(t, WithEmbedder(nil, ""))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})

	res, err := ix.IndexProject(context.Background(), root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SymbolsIndexed)
	assert.Zero(t, res.EmbeddingsStored)
}

// countingEmbedder records the size of every batch and the number of single
// embeds. Batches containing failOn are rejected.
type countingEmbedder struct {
	mu      sync.Mutex
	failOn  string
	batches []int
	singles int
}

func (c *countingEmbedder) Dimension() int { return 4 }

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.mu.Lock()
	c.singles++
	c.mu.Unlock()
	return []float32{1, 0, 0, 0}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.batches = append(c.batches, len(texts))
	c.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if c.failOn != "" && strings.Contains(text, c.failOn) {
			return nil, errors.New("batch rejected")
		}
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func functions(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "def f%d(): pass\n", i)
	}
	return b.String()
}

func TestIndexProject_EmbeddingChunks(t *testing.T) {
	large := make([]int, 0, 41)
	for i := 0; i < 40; i++ {
		large = append(large, 25)
	}
	large = append(large, 1)

	tests := []struct {
		name    string
		symbols int
		want    []int
	}{
		{"small file", 3, []int{3}},
		{"chunked at 100", 150, []int{100, 50}},
		{"at the large threshold", 1000, []int{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}},
		{"over the large threshold", 1001, large},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &countingEmbedder{}
			ix := newTestIndexer(t, WithEmbedder(emb, "counting"))
			root := t.TempDir()
			writeFiles(t, root, map[string]string{"many.py": functions(tt.symbols)})

			res, err := ix.IndexProject(context.Background(), root, IndexOptions{ProjectID: "p"})
			require.NoError(t, err)
			assert.Equal(t, tt.symbols, res.SymbolsIndexed)
			assert.Equal(t, tt.symbols, res.EmbeddingsStored)
			assert.Equal(t, tt.want, emb.batches)
			assert.Zero(t, emb.singles)
		})
	}
}

func TestIndexProject_FailedChunkRetriesPerSymbol(t *testing.T) {
	emb := &countingEmbedder{failOn: "f1"}
	ix := newTestIndexer(t, WithEmbedder(emb, "counting"))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"many.py": functions(3)})

	res, err := ix.IndexProject(context.Background(), root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, emb.batches)
	assert.Equal(t, 3, emb.singles)
	assert.Equal(t, 3, res.SymbolsIndexed)
	assert.Equal(t, 3, res.EmbeddingsStored)
	assert.Zero(t, res.SymbolsSkipped)
}

// slowEmbedder delays any batch mentioning marker.
type slowEmbedder struct {
	marker string
	delay  time.Duration
}

func (s slowEmbedder) Dimension() int { return 4 }

func (s slowEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (s slowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, s.marker) {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			break
		}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

func TestIndexProject_ParallelWritesFollowPlanOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 3
	ix := newTestIndexer(t, WithConfig(cfg), WithEmbedder(slowEmbedder{marker: "slow_marker", delay: 200 * time.Millisecond}, "slow"))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py": "def foo(): pass\ndef slow_marker(): pass\n",
		"b.py": "def foo(): pass\n",
		"c.py": "def caller(): foo()\n",
	})
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	res, err := ix.IndexProject(ctx, root, IndexOptions{
		ProjectID: "p",
		Progress: func(p Progress) {
			if p.Stage != StageFiles {
				return
			}
			mu.Lock()
			order = append(order, filepath.Base(p.File))
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesProcessed)
	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, order)

	foos, err := ix.Store().FindSymbols(ctx, "foo", nil, "p")
	require.NoError(t, err)
	require.Len(t, foos, 2)
	assert.Equal(t, filepath.Join(root, "a.py"), foos[0].FilePath)

	callers, err := ix.Store().FindSymbols(ctx, "caller", nil, "p")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	edges, err := ix.Store().EdgesOf(ctx, callers[0].ID, "calls", graph.DirectionOutgoing, "p")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, foos[0].ID, edges[0].Target.ID)
	assert.Equal(t, 2, edges[0].Data.Candidates)
}

func TestIndexProject_ProgressStages(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	ix := newTestIndexer(t, WithConfig(cfg))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.py": "def a(): pass\n", "b.py": "def b(): pass\n"})

	var mu sync.Mutex
	var percents []int
	_, err := ix.IndexProject(context.Background(), root, IndexOptions{
		ProjectID: "p",
		Progress: func(p Progress) {
			mu.Lock()
			percents = append(percents, p.Percent)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 10, 50, 90, 90, 100}, percents)
}

func TestIndexProject_Cancelled(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Zero(t, res.FilesProcessed)
	if err == nil {
		assert.True(t, res.Cancelled)
	}
}

func TestIndexFiles(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA, "other.py": "def other(): pass\n"})
	ctx := context.Background()

	_, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)

	writeFiles(t, root, map[string]string{"foo.py": "def foo(): pass\ndef qux(): foo()\n"})
	require.NoError(t, os.Remove(filepath.Join(root, "other.py")))

	res, err := ix.IndexFiles(ctx, "p", []string{
		filepath.Join(root, "foo.py"),
		filepath.Join(root, "other.py"),
		filepath.Join(root, "README.unknown"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesRemoved)

	qux, err := ix.Store().FindSymbols(ctx, "qux", nil, "p")
	require.NoError(t, err)
	assert.Len(t, qux, 1)

	_, err = ix.IndexFiles(ctx, "unknown", nil)
	assert.ErrorIs(t, err, graph.ErrProjectNotFound)
}

func TestDeleteProject_NoOrphans(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})
	ctx := context.Background()

	_, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)

	deleted, err := ix.DeleteProject(ctx, "p")
	require.NoError(t, err)
	assert.True(t, deleted.ProjectRemoved)
	assert.Equal(t, int64(2), deleted.Symbols)
	assert.Equal(t, int64(1), deleted.Relationships)

	counts, err := ix.Store().ProjectCounts(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, graph.Counts{}, counts)
}

func TestProjectInfo(t *testing.T) {
	ix := newTestIndexer(t)
	ctx := context.Background()

	plain := t.TempDir()
	writeFiles(t, plain, map[string]string{"foo.py": scenarioA})
	_, err := ix.IndexProject(ctx, plain, IndexOptions{ProjectID: "plain"})
	require.NoError(t, err)

	info, err := ix.ProjectInfo(ctx, "plain")
	require.NoError(t, err)
	assert.Nil(t, info.Git)
	assert.Equal(t, int64(2), info.Counts.Symbols)

	root := t.TempDir()
	repo, err := gogit.PlainInit(root, false)
	require.NoError(t, err)
	writeFiles(t, root, map[string]string{"a.py": "def a(): pass\n"})
	head := commit(t, repo, "initial", "a.py")
	_, err = ix.IndexProject(ctx, root, IndexOptions{ProjectID: "repo"})
	require.NoError(t, err)

	info, err = ix.ProjectInfo(ctx, "repo")
	require.NoError(t, err)
	require.NotNil(t, info.Git)
	assert.Equal(t, head, info.Git.Head)
	assert.False(t, info.Git.Dirty)

	_, err = ix.ProjectInfo(ctx, "nope")
	assert.ErrorIs(t, err, graph.ErrProjectNotFound)
}

type fakeVectors struct{}

func (fakeVectors) Name() string { return "hnsw" }
func (fakeVectors) Len(string) int { return 7 }

func TestProjectFilesAndSymbols(t *testing.T) {
	ix := newTestIndexer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"foo.py":          scenarioA,
		"pkg/__init__.py": "",
		"pkg/util.go":     "package pkg\n\nfunc Util() {}\n",
	})
	ctx := context.Background()

	_, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)

	files, err := ix.ProjectFiles(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, files.TotalFiles)
	symbolsByFile := make(map[string]int64)
	for _, f := range files.Files {
		rel, err := filepath.Rel(root, f.FilePath)
		require.NoError(t, err)
		symbolsByFile[filepath.ToSlash(rel)] = f.Symbols
	}
	assert.Equal(t, map[string]int64{"foo.py": 2, "pkg/__init__.py": 0, "pkg/util.go": 2}, symbolsByFile)

	all, err := ix.ProjectSymbols(ctx, "p", "")
	require.NoError(t, err)
	assert.Equal(t, 4, all.TotalSymbols)
	assert.Empty(t, all.Language)

	python, err := ix.ProjectSymbols(ctx, "p", "Python")
	require.NoError(t, err)
	assert.Equal(t, "python", python.Language)
	require.Equal(t, 2, python.TotalSymbols)
	assert.Equal(t, "bar", python.Symbols[0].Name)
	assert.Equal(t, "foo", python.Symbols[1].Name)

	rust, err := ix.ProjectSymbols(ctx, "p", "rust")
	require.NoError(t, err)
	assert.Zero(t, rust.TotalSymbols)
	assert.NotNil(t, rust.Symbols)

	_, err = ix.ProjectFiles(ctx, "nope")
	assert.ErrorIs(t, err, graph.ErrProjectNotFound)
	_, err = ix.ProjectSymbols(ctx, "nope", "")
	assert.ErrorIs(t, err, graph.ErrProjectNotFound)
}

func TestStatsAndHealth(t *testing.T) {
	ix := newTestIndexer(t, WithVectorStatus(fakeVectors{}))
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"foo.py": scenarioA})
	ctx := context.Background()

	_, err := ix.IndexProject(ctx, root, IndexOptions{ProjectID: "p"})
	require.NoError(t, err)

	stats, err := ix.Stats(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalSymbols)
	assert.Equal(t, "hnsw", stats.VectorBackend)
	assert.Equal(t, 7, stats.IndexedVectors)

	health := ix.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, "healthy", health.Database)
	assert.Equal(t, "healthy", health.Embedder)
	assert.Equal(t, "healthy", health.VectorBackend)

	bare := newTestIndexer(t, WithEmbedder(nil, ""))
	health = bare.Health(ctx)
	assert.Equal(t, "disabled", health.Embedder)
	assert.Equal(t, "disabled", health.VectorBackend)
}
