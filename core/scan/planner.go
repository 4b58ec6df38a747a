package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/git"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// IndexState is the part of the graph store the planner reads.
type IndexState interface {
	// FileNeedsUpdate reports whether the hash recorded for the file differs from hash.
	FileNeedsUpdate(ctx context.Context, projectID, filePath, hash string) (bool, error)
	// IndexedFiles lists every file path written for the project.
	IndexedFiles(ctx context.Context, projectID string) ([]string, error)
}

// Target describes the project being planned.
type Target struct {
	ProjectID string
	// Root is the absolute project directory.
	Root string
	// LastScanCommit is empty when no commit has been recorded.
	LastScanCommit string
}

// PlannedFile is a file the index operation must process.
type PlannedFile struct {
	Path     string
	Language language.Language
}

// Plan is the outcome of scan planning.
type Plan struct {
	Mode  Mode
	Files []PlannedFile
	// Removed lists indexed files that no longer exist and whose rows must go.
	Removed []string
	// Discovered counts candidate files before hash filtering.
	Discovered int
	// Unchanged counts full-scan files skipped because their hash is recorded.
	Unchanged int

	IsRepo bool
	Commit string
	Branch string
	// VCSError is set when version control was present but unusable and the
	// plan was downgraded to a full scan.
	VCSError error
	PlannedAt time.Time
}

// Planner decides what an index operation processes.
type Planner struct {
	walker       *Walker
	vcs          git.VCS
	state        IndexState
	pruneMissing bool
	logger       *slog.Logger
}

type PlannerOption func(*Planner)

func WithPruneMissing(prune bool) PlannerOption {
	return func(p *Planner) {
		p.pruneMissing = prune
	}
}

func WithPlannerLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPlanner builds a planner. vcs may be nil for projects outside version control.
func NewPlanner(walker *Walker, vcs git.VCS, state IndexState, opts ...PlannerOption) *Planner {
	p := &Planner{
		walker:       walker,
		vcs:          vcs,
		state:        state,
		pruneMissing: true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan computes the files to process for target.
//
// The scan is incremental only when the project is a repository, a commit was
// recorded by an earlier scan, and HEAD has moved since. Incremental plans
// take the changed, untracked and modified files from version control and do
// not consult content hashes. Every other case is a full scan that skips files
// whose current hash is already recorded. Planned files are in path order.
func (p *Planner) Plan(ctx context.Context, target Target) (*Plan, error) {
	plan := &Plan{Mode: ModeFull, PlannedAt: time.Now()}

	head, ok := p.repoState(plan)
	if ok && target.LastScanCommit != "" && head != target.LastScanCommit {
		changed, err := p.changedFiles(ctx, target.LastScanCommit, head)
		if err == nil {
			plan.Mode = ModeIncremental
			p.planIncremental(plan, changed)
			return plan, nil
		}
		p.downgrade(plan, err)
	}

	if err := p.planFull(ctx, target, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// repoState fills the repository fields of plan and returns HEAD. A broken
// repository is recorded as a downgrade.
func (p *Planner) repoState(plan *Plan) (string, bool) {
	if p.vcs == nil || !p.vcs.IsRepo() {
		return "", false
	}

	head, err := p.vcs.Head()
	if err != nil {
		p.downgrade(plan, err)
		return "", false
	}
	plan.IsRepo = true
	plan.Commit = head

	if branch, err := p.vcs.Branch(); err == nil {
		plan.Branch = branch
	}
	return head, true
}

func (p *Planner) downgrade(plan *Plan, err error) {
	plan.VCSError = coreerrors.New(coreerrors.KindVersionControlUnavailable, "plan", err)
	p.logger.Warn("version control unavailable, using full scan",
		slog.String("root", p.walker.Root()),
		slog.Any("error", err))
}

// changedFiles returns the union of diff(last, head), untracked and modified
// files as absolute paths.
func (p *Planner) changedFiles(ctx context.Context, last, head string) ([]string, error) {
	diff, err := p.vcs.Diff(ctx, last, head)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	untracked, err := p.vcs.Untracked(ctx)
	if err != nil {
		return nil, fmt.Errorf("untracked: %w", err)
	}
	modified, err := p.vcs.Modified(ctx)
	if err != nil {
		return nil, fmt.Errorf("modified: %w", err)
	}

	root := p.vcs.Root()
	seen := make(map[string]bool)
	var files []string
	for _, group := range [][]string{diff, untracked, modified} {
		for _, rel := range group {
			abs := filepath.Join(root, filepath.FromSlash(rel))
			if !seen[abs] {
				seen[abs] = true
				files = append(files, abs)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func (p *Planner) planIncremental(plan *Plan, changed []string) {
	for _, path := range changed {
		lang, ok := p.walker.Accepts(path)
		if !ok {
			continue
		}
		plan.Discovered++

		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			plan.Removed = append(plan.Removed, path)
			continue
		}
		if err != nil || !info.Mode().IsRegular() || info.Size() > p.walker.maxSize {
			continue
		}
		plan.Files = append(plan.Files, PlannedFile{Path: path, Language: lang})
	}
}

func (p *Planner) planFull(ctx context.Context, target Target, plan *Plan) error {
	files, err := p.walker.Collect(ctx)
	if err != nil {
		return err
	}
	plan.Discovered = len(files)

	present := make(map[string]bool, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		present[f.Path] = true

		hash, err := HashFile(f.Path)
		if err != nil {
			// Unreadable files are planned so the read error is reported per file.
			plan.Files = append(plan.Files, PlannedFile{Path: f.Path, Language: f.Language})
			continue
		}
		needs, err := p.state.FileNeedsUpdate(ctx, target.ProjectID, f.Path, hash)
		if err != nil {
			return fmt.Errorf("check %s: %w", f.Path, err)
		}
		if !needs {
			plan.Unchanged++
			continue
		}
		plan.Files = append(plan.Files, PlannedFile{Path: f.Path, Language: f.Language})
	}

	if !p.pruneMissing {
		return nil
	}

	indexed, err := p.state.IndexedFiles(ctx, target.ProjectID)
	if err != nil {
		return fmt.Errorf("list indexed files: %w", err)
	}
	for _, path := range indexed {
		if !present[path] && isUnder(target.Root, path) {
			plan.Removed = append(plan.Removed, path)
		}
	}
	sort.Strings(plan.Removed)
	return nil
}

func isUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HashContent returns the sha256 hex digest of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the sha256 hex digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
