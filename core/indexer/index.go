package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/git"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/scan"
)

// IndexOptions tunes one index operation.
type IndexOptions struct {
	// ProjectID defaults to the base name of the project directory.
	ProjectID string
	// Name defaults to the base name of the project directory.
	Name     string
	Progress ProgressFunc
}

// IndexProject indexes the tree at path. The returned result is never nil.
// A non-nil error means the operation could not run: the path was invalid,
// setup failed, the project lock timed out, or ctx was cancelled before
// any file was processed. Cancellation between files returns the partial
// result with Success false and a nil error.
func (ix *Indexer) IndexProject(ctx context.Context, path string, opts IndexOptions) (*IndexResult, error) {
	runID := uuid.NewString()
	report := opts.Progress
	if report == nil {
		report = func(Progress) {}
	}

	root, err := resolveRoot(path)
	if err != nil {
		res := newResult(runID, opts.ProjectID, path)
		return res.fail(err), err
	}

	projectID := opts.ProjectID
	if projectID == "" {
		projectID = filepath.Base(root)
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(root)
	}
	res := newResult(runID, projectID, root)
	logger := ix.logger.With(slog.String("run_id", runID), slog.String("project", projectID))

	release, err := ix.locks.Lock(ctx, lockName(projectID), ix.config.LockTimeout)
	if err != nil {
		werr := coreerrors.WithPath(coreerrors.KindSetup, "lock project", root, err)
		return res.fail(werr), werr
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("release project lock", slog.Any("error", err))
		}
	}()

	report(Progress{Percent: 0, Stage: StageDiscovery, Message: "discovering files in " + root})
	logger.Info("index started", slog.String("path", root))

	vcs, err := ix.openVersionControl(root)
	if err != nil {
		res.record(root, err)
		logger.Warn("version control unavailable, using full scan", slog.Any("error", err))
	}
	if c, ok := vcs.(io.Closer); ok {
		defer c.Close()
	}

	previous, err := ix.store.GetProject(ctx, projectID)
	if err != nil && !errors.Is(err, graph.ErrProjectNotFound) {
		werr := coreerrors.New(coreerrors.KindSetup, "load project", err)
		return res.fail(werr), werr
	}
	var lastCommit string
	if previous != nil {
		lastCommit = previous.LastScanCommit
		res.PreviousCommit = lastCommit
	}

	if err := ix.store.UpsertProject(ctx, graph.Project{
		ID:                  projectID,
		Path:                root,
		Name:                name,
		IsVersionControlled: vcs != nil && vcs.IsRepo(),
	}); err != nil {
		werr := coreerrors.New(coreerrors.KindSetup, "upsert project", err)
		return res.fail(werr), werr
	}

	planner, err := ix.newPlanner(root, vcs, logger)
	if err != nil {
		werr := coreerrors.WithPath(coreerrors.KindSetup, "configure walker", root, err)
		return res.fail(werr), werr
	}
	plan, err := planner.Plan(ctx, scan.Target{ProjectID: projectID, Root: root, LastScanCommit: lastCommit})
	if err != nil {
		if ctx.Err() != nil {
			res.Cancelled = true
			return res.fail(ctx.Err()), ctx.Err()
		}
		werr := coreerrors.WithPath(coreerrors.KindSetup, "plan scan", root, err)
		return res.fail(werr), werr
	}

	res.Mode = plan.Mode
	res.IsRepo = plan.IsRepo
	res.Commit = plan.Commit
	res.Branch = plan.Branch
	res.FilesDiscovered = plan.Discovered
	res.FilesPlanned = len(plan.Files)
	res.FilesUnchanged = plan.Unchanged
	res.record(root, plan.VCSError)

	report(Progress{
		Percent: 10,
		Stage:   StageDiscovery,
		Message: fmt.Sprintf("%s scan: %d files to process, %d removed", plan.Mode, len(plan.Files), len(plan.Removed)),
	})

	for _, removed := range plan.Removed {
		if ctx.Err() != nil {
			break
		}
		ix.removeFile(ctx, projectID, removed, res, logger)
	}

	ix.processFiles(ctx, projectID, plan.Files, res, report, logger)

	if ctx.Err() != nil {
		res.Success = false
		res.Cancelled = true
		res.Message = "index cancelled: " + ctx.Err().Error()
		res.sortErrors()
		res.Duration = time.Since(res.StartedAt)
		logger.Warn("index cancelled", slog.Int("files_processed", res.FilesProcessed))
		return res, nil
	}

	report(Progress{Percent: 90, Stage: StageFinalize, Message: "finalizing"})
	if plan.IsRepo {
		if err := ix.store.UpdateScanInfo(ctx, projectID, plan.Commit, plan.Branch, time.Now()); err != nil {
			logger.Warn("record scan commit", slog.Any("error", err))
			res.record(root, coreerrors.New(coreerrors.KindVersionControlUnavailable, "record scan", err))
		}
	}

	res.sortErrors()
	res.Duration = time.Since(res.StartedAt)
	report(Progress{
		Percent: 100,
		Stage:   StageFinalize,
		Message: fmt.Sprintf("indexed %d files, %d symbols", res.FilesProcessed, res.SymbolsIndexed),
	})
	logger.Info("index completed",
		slog.String("mode", string(res.Mode)),
		slog.Int("files_processed", res.FilesProcessed),
		slog.Int("files_failed", res.FilesFailed),
		slog.Int("files_removed", res.FilesRemoved),
		slog.Int("symbols", res.SymbolsIndexed),
		slog.Int("relationships", res.RelationshipsIndexed),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func resolveRoot(path string) (string, error) {
	if path == "" {
		return "", coreerrors.New(coreerrors.KindInvalidPath, "index", errors.New("path is empty"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", coreerrors.WithPath(coreerrors.KindInvalidPath, "index", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", coreerrors.WithPath(coreerrors.KindInvalidPath, "index", abs, err)
	}
	if !info.IsDir() {
		return "", coreerrors.WithPath(coreerrors.KindInvalidPath, "index", abs, errors.New("not a directory"))
	}
	return abs, nil
}

// openVersionControl returns a nil VCS and a VersionControlUnavailable
// error when the opener fails; the planner then runs a full scan.
func (ix *Indexer) openVersionControl(root string) (git.VCS, error) {
	vcs, err := ix.openVCS(root)
	if err != nil {
		return nil, coreerrors.WithPath(coreerrors.KindVersionControlUnavailable, "open repository", root, err)
	}
	return vcs, nil
}

func (ix *Indexer) newPlanner(root string, vcs git.VCS, logger *slog.Logger) (*scan.Planner, error) {
	walker, err := scan.NewWalker(scan.WalkConfig{
		Root:           root,
		Include:        ix.config.Include,
		Exclude:        ix.config.Exclude,
		MaxFileSize:    ix.config.MaxFileSize,
		FollowSymlinks: ix.config.FollowSymlinks,
	})
	if err != nil {
		return nil, err
	}
	return scan.NewPlanner(walker, vcs, ix.store,
		scan.WithPruneMissing(ix.config.PruneMissing),
		scan.WithPlannerLogger(logger),
	), nil
}

func (ix *Indexer) removeFile(ctx context.Context, projectID, path string, res *IndexResult, logger *slog.Logger) {
	ix.writeMu.Lock()
	removed, err := ix.store.RemoveFile(ctx, projectID, path)
	ix.writeMu.Unlock()
	if err != nil {
		res.record(path, coreerrors.WithPath(coreerrors.KindSymbolPersist, "remove file", path, err))
		return
	}
	res.mu.Lock()
	res.FilesRemoved++
	res.mu.Unlock()
	logger.Debug("removed rows for deleted file", slog.String("path", path), slog.Int64("symbols", removed.Symbols))
}

// processFiles prepares files on up to workers goroutines and writes them
// from the calling goroutine in plan order, so name resolution sees the same
// rows on every run regardless of which preparation finishes first. Work
// stops being scheduled once ctx is done.
func (ix *Indexer) processFiles(ctx context.Context, projectID string, files []scan.PlannedFile, res *IndexResult, report ProgressFunc, logger *slog.Logger) {
	if len(files) == 0 {
		return
	}

	type slot struct {
		ready chan struct{}
		work  fileWork
	}
	slots := make([]slot, len(files))
	for i := range slots {
		slots[i].ready = make(chan struct{})
		slots[i].work = fileWork{file: files[i], skipped: true}
	}

	var g errgroup.Group
	g.SetLimit(ix.workers())
	scheduled := make(chan struct{})
	go func() {
		defer close(scheduled)
		for i, file := range files {
			if ctx.Err() != nil {
				for j := i; j < len(slots); j++ {
					close(slots[j].ready)
				}
				return
			}
			g.Go(func() error {
				defer close(slots[i].ready)
				slots[i].work = ix.prepareFile(ctx, projectID, file, res, logger)
				return nil
			})
		}
	}()

	total := int64(len(files))
	var done int64
	for i := range slots {
		<-slots[i].ready
		work := slots[i].work
		if work.skipped || ctx.Err() != nil {
			continue
		}
		ix.writeFile(ctx, projectID, work, res, logger)
		slots[i].work = fileWork{}

		done++
		report(Progress{
			Percent: 10 + int(80*done/total),
			Stage:   StageFiles,
			Message: fmt.Sprintf("processed %d/%d", done, total),
			File:    work.file.Path,
		})
	}

	<-scheduled
	_ = g.Wait()
}
