package git

import (
	"context"
	"errors"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// StatusEntry is one path reported by the working tree status.
// Staging and Worktree use the porcelain status letters.
type StatusEntry struct {
	Path     string
	Staging  byte
	Worktree byte
}

func (e StatusEntry) IsUntracked() bool {
	return e.Staging == '?' && e.Worktree == '?'
}

// Untracked returns untracked, non-ignored files relative to Root.
func (c *Client) Untracked(ctx context.Context) ([]string, error) {
	return c.filterStatus(ctx, func(e StatusEntry) bool { return e.IsUntracked() })
}

// Modified returns tracked files with staged or unstaged changes, relative to Root.
func (c *Client) Modified(ctx context.Context) ([]string, error) {
	return c.filterStatus(ctx, func(e StatusEntry) bool { return !e.IsUntracked() })
}

// Dirty reports whether the work tree has any uncommitted change.
func (c *Client) Dirty(ctx context.Context) (bool, error) {
	entries, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

func (c *Client) filterStatus(ctx context.Context, keep func(StatusEntry) bool) ([]string, error) {
	entries, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			files = append(files, e.Path)
		}
	}
	return files, nil
}

// Status returns the working tree status sorted by path. The git CLI is
// preferred; go-git is used when the CLI is unavailable.
func (c *Client) Status(ctx context.Context) ([]StatusEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isRepo {
		return nil, ErrNotGitRepo
	}

	output, err := c.runGitCommand(ctx, "status", "--porcelain", "-z", "-u")
	if errors.Is(err, ErrGitNotInstalled) {
		return c.worktreeStatus()
	}
	if err != nil {
		return nil, err
	}
	return parseStatusOutput(output), nil
}

// parseStatusOutput parses `git status --porcelain -z` output. Renames carry
// the original path as an extra NUL-terminated field, which is skipped.
func parseStatusOutput(output string) []StatusEntry {
	fields := strings.Split(output, "\x00")
	entries := make([]StatusEntry, 0, len(fields))

	for i := 0; i < len(fields); i++ {
		entry, ok := parseStatusLine(fields[i])
		if !ok {
			continue
		}
		if entry.Staging == 'R' || entry.Staging == 'C' {
			i++
		}
		entries = append(entries, entry)
	}

	sortEntries(entries)
	return entries
}

// parseStatusLine parses one porcelain record: "XY path".
func parseStatusLine(line string) (StatusEntry, bool) {
	if len(line) < 4 || line[2] != ' ' {
		return StatusEntry{}, false
	}
	return StatusEntry{
		Path:     line[3:],
		Staging:  line[0],
		Worktree: line[1],
	}, true
}

func (c *Client) worktreeStatus() ([]StatusEntry, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	entries := make([]StatusEntry, 0, len(status))
	for path, fs := range status {
		if fs.Staging == gogit.Unmodified && fs.Worktree == gogit.Unmodified {
			continue
		}
		entries = append(entries, StatusEntry{
			Path:     path,
			Staging:  byte(fs.Staging),
			Worktree: byte(fs.Worktree),
		})
	}

	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []StatusEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}
