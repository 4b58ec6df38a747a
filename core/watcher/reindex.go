package watcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/indexer"
)

// FileIndexer re-indexes specific files of a project.
type FileIndexer interface {
	IndexFiles(ctx context.Context, projectID string, paths []string) (*indexer.IndexResult, error)
}

// Reindexer feeds debounced file events to a FileIndexer in batches.
type Reindexer struct {
	watcher   *FSWatcher
	indexer   FileIndexer
	projectID string
	window    time.Duration
	logger    *slog.Logger
	onBatch   func(*indexer.IndexResult, error)
}

type ReindexOption func(*Reindexer)

func WithLogger(logger *slog.Logger) ReindexOption {
	return func(r *Reindexer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBatchWindow sets how long events accumulate before a batch is sent.
func WithBatchWindow(d time.Duration) ReindexOption {
	return func(r *Reindexer) {
		if d > 0 {
			r.window = d
		}
	}
}

// OnBatch registers a callback invoked after every batch.
func OnBatch(fn func(*indexer.IndexResult, error)) ReindexOption {
	return func(r *Reindexer) {
		r.onBatch = fn
	}
}

func NewReindexer(w *FSWatcher, ix FileIndexer, projectID string, opts ...ReindexOption) *Reindexer {
	r := &Reindexer{
		watcher:   w,
		indexer:   ix,
		projectID: projectID,
		window:    w.config.Debounce,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run watches until ctx is cancelled. Pending paths are flushed before it
// returns.
func (r *Reindexer) Run(ctx context.Context) error {
	events, err := r.watcher.Start(ctx)
	if err != nil {
		return err
	}
	defer r.watcher.Stop()

	r.logger.Info("watching for changes",
		slog.String("project", r.projectID),
		slog.String("root", r.watcher.Root()),
		slog.Duration("debounce", r.watcher.config.Debounce))

	pending := make(map[string]bool)
	var flush <-chan time.Time
	var timer *time.Timer

	for {
		select {
		case event, ok := <-events:
			if !ok {
				r.send(context.WithoutCancel(ctx), pending)
				return nil
			}
			pending[event.Path] = true
			r.logger.Debug("file changed", slog.String("path", event.Path), slog.String("op", event.Operation.String()))
			if timer == nil {
				timer = time.NewTimer(r.window)
				flush = timer.C
			}
		case <-flush:
			timer, flush = nil, nil
			r.send(ctx, pending)
			pending = make(map[string]bool)
		}
	}
}

func (r *Reindexer) send(ctx context.Context, pending map[string]bool) {
	if len(pending) == 0 {
		return
	}
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	res, err := r.indexer.IndexFiles(ctx, r.projectID, paths)
	if err != nil {
		r.logger.Warn("re-index failed", slog.String("project", r.projectID), slog.Any("error", err))
	} else {
		r.logger.Info("re-indexed changed files",
			slog.String("project", r.projectID),
			slog.Int("changed", len(paths)),
			slog.Int("processed", res.FilesProcessed),
			slog.Int("removed", res.FilesRemoved),
			slog.Int("failed", res.FilesFailed))
	}
	if r.onBatch != nil {
		r.onBatch(res, err)
	}
}
