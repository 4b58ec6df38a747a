package git

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Diff returns the paths changed between two commits, relative to Root.
// Deleted and renamed-away paths are included so callers can drop their rows.
func (c *Client) Diff(ctx context.Context, from, to string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isRepo {
		return nil, ErrNotGitRepo
	}
	if from == "" || to == "" {
		return nil, ErrInvalidCommit
	}

	fromTree, err := c.treeAt(from)
	if err != nil {
		return nil, err
	}
	toTree, err := c.treeAt(to)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
	}

	return changedPaths(changes), nil
}

func (c *Client) treeAt(rev string) (*object.Tree, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommit, rev)
	}
	commit, err := c.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommit, rev)
	}
	return commit.Tree()
}

func changedPaths(changes object.Changes) []string {
	seen := make(map[string]bool, len(changes))
	files := make([]string, 0, len(changes))

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		files = append(files, name)
	}

	for _, ch := range changes {
		add(ch.From.Name)
		add(ch.To.Name)
	}

	sort.Strings(files)
	return files
}
