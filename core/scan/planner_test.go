package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/git"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeState struct {
	hashes  map[string]string
	indexed []string
}

func (s *fakeState) FileNeedsUpdate(_ context.Context, _, filePath, hash string) (bool, error) {
	return s.hashes[filePath] != hash, nil
}

func (s *fakeState) IndexedFiles(context.Context, string) ([]string, error) {
	return s.indexed, nil
}

type fakeVCS struct {
	root      string
	isRepo    bool
	head      string
	headErr   error
	branch    string
	diff      []string
	diffErr   error
	untracked []string
	modified  []string
}

func (v *fakeVCS) IsRepo() bool            { return v.isRepo }
func (v *fakeVCS) Root() string            { return v.root }
func (v *fakeVCS) Head() (string, error)   { return v.head, v.headErr }
func (v *fakeVCS) Branch() (string, error) { return v.branch, nil }
func (v *fakeVCS) Diff(context.Context, string, string) ([]string, error) {
	return v.diff, v.diffErr
}
func (v *fakeVCS) Untracked(context.Context) ([]string, error) { return v.untracked, nil }
func (v *fakeVCS) Modified(context.Context) ([]string, error)  { return v.modified, nil }

var _ git.VCS = (*fakeVCS)(nil)

func plannedPaths(t *testing.T, root string, plan *Plan) []string {
	t.Helper()
	paths := make([]string, 0, len(plan.Files))
	for _, f := range plan.Files {
		rel, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		paths = append(paths, filepath.ToSlash(rel))
	}
	sort.Strings(paths)
	return paths
}

func newTestPlanner(t *testing.T, root string, vcs git.VCS, state IndexState, opts ...PlannerOption) *Planner {
	t.Helper()
	w, err := NewWalker(WalkConfig{Root: root})
	require.NoError(t, err)
	return NewPlanner(w, vcs, state, opts...)
}

func TestPlan_FullScanSkipsUnchangedHashes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"same.py":    "def same(): pass\n",
		"changed.py": "def changed(): return 2\n",
		"new.py":     "def new(): pass\n",
	})

	samePath := filepath.Join(root, "same.py")
	sameHash, err := HashFile(samePath)
	require.NoError(t, err)

	state := &fakeState{hashes: map[string]string{
		samePath:                          sameHash,
		filepath.Join(root, "changed.py"): HashContent([]byte("def changed(): return 1\n")),
	}}

	plan, err := newTestPlanner(t, root, nil, state).Plan(context.Background(), Target{ProjectID: "p", Root: root})
	require.NoError(t, err)

	assert.Equal(t, ModeFull, plan.Mode)
	assert.False(t, plan.IsRepo)
	assert.Equal(t, 3, plan.Discovered)
	assert.Equal(t, 1, plan.Unchanged)
	assert.Equal(t, []string{"changed.py", "new.py"}, plannedPaths(t, root, plan))
	assert.NoError(t, plan.VCSError)
}

func TestPlan_FullScanPrunesMissing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"kept.py": "x = 1\n"})

	gone := filepath.Join(root, "gone.py")
	other := filepath.Join(t.TempDir(), "other.py")
	state := &fakeState{indexed: []string{filepath.Join(root, "kept.py"), gone, other}}

	plan, err := newTestPlanner(t, root, nil, state).Plan(context.Background(), Target{ProjectID: "p", Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{gone}, plan.Removed)

	plan, err = newTestPlanner(t, root, nil, state, WithPruneMissing(false)).
		Plan(context.Background(), Target{ProjectID: "p", Root: root})
	require.NoError(t, err)
	assert.Empty(t, plan.Removed)
}

func TestPlan_IncrementalWhenHeadMoved(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":         "def a(): pass\n",
		"b.py":         "def b(): pass\n",
		"untracked.go": "package x\n",
		"notes.txt":    "not code\n",
		"mod.rs":       "fn m() {}\n",
	})

	vcs := &fakeVCS{
		root:      root,
		isRepo:    true,
		head:      "new",
		branch:    "main",
		diff:      []string{"a.py", "deleted.py", "notes.txt"},
		untracked: []string{"untracked.go"},
		modified:  []string{"mod.rs", "a.py"},
	}

	// Hashes are never consulted in incremental mode.
	state := &fakeState{hashes: map[string]string{}}
	for _, name := range []string{"a.py", "untracked.go", "mod.rs"} {
		h, err := HashFile(filepath.Join(root, name))
		require.NoError(t, err)
		state.hashes[filepath.Join(root, name)] = h
	}

	plan, err := newTestPlanner(t, root, vcs, state).
		Plan(context.Background(), Target{ProjectID: "p", Root: root, LastScanCommit: "old"})
	require.NoError(t, err)

	assert.Equal(t, ModeIncremental, plan.Mode)
	assert.True(t, plan.IsRepo)
	assert.Equal(t, "new", plan.Commit)
	assert.Equal(t, "main", plan.Branch)
	assert.Equal(t, []string{"a.py", "mod.rs", "untracked.go"}, plannedPaths(t, root, plan))
	assert.Equal(t, []string{filepath.Join(root, "deleted.py")}, plan.Removed)

	ordered := make([]string, 0, len(plan.Files))
	for _, f := range plan.Files {
		ordered = append(ordered, filepath.Base(f.Path))
	}
	assert.Equal(t, []string{"a.py", "mod.rs", "untracked.go"}, ordered)
}

func TestPlan_FullWhenHeadUnchangedOrNoRecordedCommit(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x = 1\n"})
	vcs := &fakeVCS{root: root, isRepo: true, head: "same", diff: []string{"a.py"}}

	for _, last := range []string{"same", ""} {
		plan, err := newTestPlanner(t, root, vcs, &fakeState{}).
			Plan(context.Background(), Target{ProjectID: "p", Root: root, LastScanCommit: last})
		require.NoError(t, err)
		assert.Equal(t, ModeFull, plan.Mode, last)
		assert.True(t, plan.IsRepo)
		assert.Equal(t, "same", plan.Commit)
	}
}

func TestPlan_DowngradesOnVCSFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x = 1\n"})

	cases := map[string]*fakeVCS{
		"broken head":  {root: root, isRepo: true, headErr: errors.New("corrupt HEAD")},
		"diff failure": {root: root, isRepo: true, head: "new", diffErr: errors.New("object not found")},
	}
	for name, vcs := range cases {
		t.Run(name, func(t *testing.T) {
			plan, err := newTestPlanner(t, root, vcs, &fakeState{}).
				Plan(context.Background(), Target{ProjectID: "p", Root: root, LastScanCommit: "old"})
			require.NoError(t, err)

			assert.Equal(t, ModeFull, plan.Mode)
			assert.Equal(t, []string{"a.py"}, plannedPaths(t, root, plan))
			require.Error(t, plan.VCSError)
			assert.Equal(t, coreerrors.KindVersionControlUnavailable, coreerrors.KindOf(plan.VCSError))
		})
	}
}

func TestPlan_IncrementalWithGitRepository(t *testing.T) {
	root := t.TempDir()
	repo := initRepo(t, root)
	writeTree(t, root, map[string]string{"a.py": "def a(): pass\n", "b.py": "def b(): pass\n"})
	first := commitAll(t, repo, "initial", "a.py", "b.py")

	writeTree(t, root, map[string]string{"b.py": "def b(): return 1\n", "c.py": "def c(): pass\n"})
	commitAll(t, repo, "second", "b.py")

	vcs, err := git.NewClient(root)
	require.NoError(t, err)

	plan, err := newTestPlanner(t, root, vcs, &fakeState{}).
		Plan(context.Background(), Target{ProjectID: "p", Root: root, LastScanCommit: first})
	require.NoError(t, err)

	assert.Equal(t, ModeIncremental, plan.Mode)
	assert.Equal(t, []string{"b.py", "c.py"}, plannedPaths(t, root, plan))
}

func TestHashContent(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashContent(nil))

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, HashContent([]byte("abc")), h)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
