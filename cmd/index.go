package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/indexer"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/watcher"
)

// =============================================================================
// Index Command Flags
// =============================================================================

var (
	indexProjectID string
	indexName      string
	indexWatch     bool
)

// =============================================================================
// Commands
// =============================================================================

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a project directory",
	Long: `Index a project directory into the code graph.

Git repositories whose last scanned commit is still reachable are scanned
incrementally; everything else gets a full scan. Files whose content is
unchanged are skipped either way.

Examples:
  codebase-analyzer index                      # index the current directory
  codebase-analyzer index ./svc -p payments    # choose the project id
  codebase-analyzer index --watch              # keep re-indexing on change`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

var rescanCmd = &cobra.Command{
	Use:   "rescan <project-id>",
	Short: "Forget the recorded commit and run a full scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runRescan,
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a project and re-index files as they change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		indexWatch = true
		return runIndex(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd, rescanCmd, watchCmd)

	for _, c := range []*cobra.Command{indexCmd, watchCmd} {
		c.Flags().StringVarP(&indexProjectID, "project", "p", "", "Project id (default: directory name)")
		c.Flags().StringVar(&indexName, "name", "", "Display name (default: directory name)")
	}
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "Continue watching for changes after indexing")
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func commandPath(args []string) (string, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	return filepath.Abs(path)
}

// =============================================================================
// Index
// =============================================================================

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	root, err := commandPath(args)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cmd, root)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := indexProject(ctx, cmd, a, root, indexer.IndexOptions{ProjectID: indexProjectID, Name: indexName})
	if err != nil {
		return err
	}
	if !indexWatch || !res.Success {
		return resultError(res)
	}
	return watchProject(ctx, cmd, a, res.ProjectID, res.Path)
}

func indexProject(ctx context.Context, cmd *cobra.Command, a *app, root string, opts indexer.IndexOptions) (*indexer.IndexResult, error) {
	progress := newProgressTracker(cmd.ErrOrStderr())
	opts.Progress = progress.update

	res, err := a.indexer.IndexProject(ctx, root, opts)
	progress.finish()

	if rootJSON {
		if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
			return res, werr
		}
	} else {
		printIndexResult(cmd.OutOrStdout(), res)
	}
	return res, err
}

// resultError turns an unsuccessful result into the command's exit error.
func resultError(res *indexer.IndexResult) error {
	switch {
	case res.Cancelled:
		return errors.New("index cancelled")
	case !res.Success:
		return fmt.Errorf("index failed: %s", res.Message)
	}
	return nil
}

// =============================================================================
// Rescan
// =============================================================================

func runRescan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, cmd, "")
	if err != nil {
		return err
	}
	defer a.close()

	projectID := args[0]
	info, err := a.indexer.ProjectInfo(ctx, projectID)
	if err != nil {
		return err
	}
	if err := a.indexer.ForceFullRescan(ctx, projectID); err != nil {
		return err
	}

	res, err := indexProject(ctx, cmd, a, info.Project.Path, indexer.IndexOptions{
		ProjectID: projectID,
		Name:      info.Project.Name,
	})
	if err != nil {
		return err
	}
	return resultError(res)
}

// =============================================================================
// Watch
// =============================================================================

func watchProject(ctx context.Context, cmd *cobra.Command, a *app, projectID, root string) error {
	fsw, err := watcher.NewFSWatcher(watcher.Config{
		Root:     root,
		Exclude:  a.cfg.Index.Exclude,
		Debounce: a.cfg.Watch.Debounce,
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	if !rootJSON {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s - Press Ctrl+C to stop\n", paint(colorBold+colorCyan, "Watch Mode"))
		field(w, "Watching", root)
	}

	r := watcher.NewReindexer(fsw, a.indexer, projectID,
		watcher.WithLogger(a.logger),
		watcher.OnBatch(func(res *indexer.IndexResult, err error) {
			if err != nil || !rootJSON {
				return
			}
			_ = writeJSON(cmd.OutOrStdout(), res)
		}))
	return r.Run(ctx)
}
