package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/indexer"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(ch <-chan *FileEvent, timeout time.Duration) []*FileEvent {
	var events []*FileEvent
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-deadline:
			return events
		}
	}
}

func TestNewFSWatcher_Validation(t *testing.T) {
	_, err := NewFSWatcher(Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrPathNotExist)

	file := filepath.Join(t.TempDir(), "a.py")
	writeFile(t, file, "x = 1\n")
	_, err = NewFSWatcher(Config{Root: file})
	assert.ErrorIs(t, err, ErrPathNotDirectory)

	_, err = NewFSWatcher(Config{Root: t.TempDir(), Exclude: []string{"[unclosed"}})
	assert.ErrorIs(t, err, ErrInvalidPattern)

	w, err := NewFSWatcher(Config{Root: t.TempDir()})
	require.NoError(t, err)
	defer w.Stop()
	assert.Equal(t, DefaultDebounce, w.config.Debounce)
}

func TestFSWatcher_IsExcluded(t *testing.T) {
	root := t.TempDir()
	w, err := NewFSWatcher(Config{Root: root, Exclude: []string{"node_modules", "*.log", "build/**"}})
	require.NoError(t, err)
	defer w.Stop()

	cases := map[string]bool{
		"src/app.py":                false,
		".git/HEAD":                 true,
		"node_modules/lib/index.js": true,
		"logs/server.log":           true,
		"build/out/main.go":         true,
		"buildtools/main.go":        false,
	}
	for rel, want := range cases {
		assert.Equal(t, want, w.isExcluded(filepath.Join(root, filepath.FromSlash(rel))), rel)
	}
	assert.True(t, w.isExcluded(filepath.Join(filepath.Dir(root), "elsewhere.py")))
}

func TestFSWatcher_DebouncesRepeatedWrites(t *testing.T) {
	root := t.TempDir()
	w, err := NewFSWatcher(Config{Root: root, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := w.Start(ctx)
	require.NoError(t, err)

	path := filepath.Join(root, "a.py")
	for i := 0; i < 3; i++ {
		writeFile(t, path, "def a(): pass\n")
		time.Sleep(5 * time.Millisecond)
	}

	got := collect(events, 500*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, path, got[0].Path)
}

func TestFSWatcher_StartTwice(t *testing.T) {
	w, err := NewFSWatcher(Config{Root: t.TempDir()})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = w.Start(ctx)
	require.NoError(t, err)
	_, err = w.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestFSWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := NewFSWatcher(Config{Root: root, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := w.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(root, "pkg"), 0o755))
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(root, "pkg", "b.go")
	writeFile(t, path, "package pkg\n")

	var paths []string
	for _, e := range collect(events, 500*time.Millisecond) {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, path)
	assert.NotContains(t, paths, filepath.Join(root, "pkg"))
}

func TestFSWatcher_ClosesOnCancel(t *testing.T) {
	w, err := NewFSWatcher(Config{Root: t.TempDir()})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := w.Start(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("event channel not closed")
	}
}

type recordingIndexer struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingIndexer) IndexFiles(_ context.Context, _ string, paths []string) (*indexer.IndexResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
	return &indexer.IndexResult{FilesProcessed: len(paths)}, nil
}

func TestReindexer_BatchesChangedFiles(t *testing.T) {
	root := t.TempDir()
	w, err := NewFSWatcher(Config{Root: root, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	rec := &recordingIndexer{}
	batches := make(chan *indexer.IndexResult, 4)
	r := NewReindexer(w, rec, "p",
		WithBatchWindow(150*time.Millisecond),
		OnBatch(func(res *indexer.IndexResult, err error) {
			assert.NoError(t, err)
			batches <- res
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	a := filepath.Join(root, "a.py")
	b := filepath.Join(root, "b.py")
	writeFile(t, a, "def a(): pass\n")
	writeFile(t, b, "def b(): pass\n")

	select {
	case res := <-batches:
		assert.Equal(t, 2, res.FilesProcessed)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch sent")
	}

	cancel()
	require.NoError(t, <-done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.calls)
	assert.Equal(t, []string{a, b}, rec.calls[0])
}
