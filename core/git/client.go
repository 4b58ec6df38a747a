// Package git reads repository state for incremental scan planning. It uses
// go-git for references and tree diffs and the git CLI for working tree status,
// falling back to go-git when the CLI is not installed.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrEmptyPath       = errors.New("repository path cannot be empty")
	ErrNotGitRepo      = errors.New("path is not a git repository")
	ErrNoHead          = errors.New("repository has no HEAD reference")
	ErrInvalidCommit   = errors.New("invalid commit reference")
	ErrGitNotInstalled = errors.New("git is not installed or not in PATH")
)

// VCS is the version-control contract the scan planner depends on.
type VCS interface {
	IsRepo() bool
	Root() string
	Head() (string, error)
	Branch() (string, error)
	Diff(ctx context.Context, from, to string) ([]string, error)
	Untracked(ctx context.Context) ([]string, error)
	Modified(ctx context.Context) ([]string, error)
}

// Client provides operations on a git repository.
// A Client for a path outside any repository is valid; IsRepo reports false.
type Client struct {
	path   string
	root   string
	repo   *gogit.Repository
	mu     sync.RWMutex
	isRepo bool
}

var _ VCS = (*Client)(nil)

// NewClient opens the repository containing path. The repository root may be
// an ancestor of path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	c := &Client{path: absPath, root: absPath}
	c.open()
	return c, nil
}

func (c *Client) open() {
	repo, err := gogit.PlainOpenWithOptions(c.path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return
	}
	c.repo = repo
	c.isRepo = true

	if wt, err := repo.Worktree(); err == nil {
		c.root = wt.Filesystem.Root()
	}
}

func (c *Client) IsRepo() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.isRepo
}

// Root returns the repository work tree root, or the opened path when it is
// not a repository. Paths returned by Diff, Untracked and Modified are
// relative to Root.
func (c *Client) Root() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.root
}

// Head returns the HEAD commit hash.
func (c *Client) Head() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isRepo {
		return "", ErrNotGitRepo
	}

	ref, err := c.repo.Head()
	if err != nil {
		return "", wrapHeadError(err)
	}
	return ref.Hash().String(), nil
}

// Branch returns the short name of the checked out branch. A detached HEAD
// yields "HEAD".
func (c *Client) Branch() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isRepo {
		return "", ErrNotGitRepo
	}

	ref, err := c.repo.Head()
	if err != nil {
		return "", wrapHeadError(err)
	}
	if !ref.Name().IsBranch() {
		return "HEAD", nil
	}
	return ref.Name().Short(), nil
}

func wrapHeadError(err error) error {
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return ErrNoHead
	}
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.repo = nil
	c.isRepo = false
	return nil
}

// runGitCommand executes a git command in the repository root.
func (c *Client) runGitCommand(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", parseGitError(err, stderr.String())
	}
	return stdout.String(), nil
}

func parseGitError(err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return ErrGitNotInstalled
	}
	if strings.Contains(stderr, "not a git repository") {
		return ErrNotGitRepo
	}
	if strings.Contains(stderr, "unknown revision") || strings.Contains(stderr, "bad revision") {
		return ErrInvalidCommit
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("git command failed: %s", strings.TrimSpace(stderr))
	}
	return err
}
