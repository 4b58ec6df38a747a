package indexer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/scan"
)

// IndexFiles re-indexes specific files of an existing project through the
// per-file replace protocol. Paths that no longer exist have their rows
// removed; paths outside the project or without a recognized language are
// ignored. The recorded scan commit is left untouched.
func (ix *Indexer) IndexFiles(ctx context.Context, projectID string, paths []string) (*IndexResult, error) {
	res := newResult(uuid.NewString(), projectID, "")

	project, err := ix.store.GetProject(ctx, projectID)
	if err != nil {
		werr := coreerrors.New(coreerrors.KindSetup, "index files", err)
		return res.fail(werr), werr
	}
	res.Path = project.Path
	logger := ix.logger.With(slog.String("run_id", res.RunID), slog.String("project", projectID))

	release, err := ix.locks.Lock(ctx, lockName(projectID), ix.config.LockTimeout)
	if err != nil {
		werr := coreerrors.WithPath(coreerrors.KindSetup, "lock project", project.Path, err)
		return res.fail(werr), werr
	}
	defer release()

	walker, err := scan.NewWalker(scan.WalkConfig{
		Root:           project.Path,
		Include:        ix.config.Include,
		Exclude:        ix.config.Exclude,
		MaxFileSize:    ix.config.MaxFileSize,
		FollowSymlinks: ix.config.FollowSymlinks,
	})
	if err != nil {
		werr := coreerrors.WithPath(coreerrors.KindSetup, "configure walker", project.Path, err)
		return res.fail(werr), werr
	}

	var files []scan.PlannedFile
	var removed []string
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		lang, ok := walker.Accepts(abs)
		if !ok {
			continue
		}
		res.FilesDiscovered++

		info, err := os.Stat(abs)
		switch {
		case errors.Is(err, os.ErrNotExist):
			removed = append(removed, abs)
		case err != nil:
			res.record(abs, coreerrors.WithPath(coreerrors.KindFileRead, "stat", abs, err))
			res.FilesFailed++
		case info.Mode().IsRegular():
			files = append(files, scan.PlannedFile{Path: abs, Language: lang})
		}
	}
	sort.Strings(removed)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	res.FilesPlanned = len(files)

	for _, path := range removed {
		ix.removeFile(ctx, projectID, path, res, logger)
	}
	ix.processFiles(ctx, projectID, files, res, func(Progress) {}, logger)

	if ctx.Err() != nil {
		res.Success = false
		res.Cancelled = true
		res.Message = "index cancelled: " + ctx.Err().Error()
	}
	res.sortErrors()
	res.Duration = time.Since(res.StartedAt)
	logger.Info("files re-indexed",
		slog.Int("files_processed", res.FilesProcessed),
		slog.Int("files_removed", res.FilesRemoved),
		slog.Int("files_failed", res.FilesFailed))
	return res, nil
}
