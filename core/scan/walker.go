// Package scan discovers the files an index operation must process. The
// Walker enumerates a project tree; the Planner decides between a full and an
// incremental scan.
package scan

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
	"github.com/gobwas/glob"
)

// WalkConfig holds configuration for the tree walker.
type WalkConfig struct {
	// Root is the directory to walk (required).
	Root string

	// Include are glob patterns a file must match, against its slash-separated
	// relative path or its base name. Empty includes every file.
	Include []string

	// Exclude are glob patterns that drop a file or directory.
	Exclude []string

	// MaxFileSize is the largest file yielded, in bytes (default 10MB).
	MaxFileSize int64

	FollowSymlinks bool
}

// DefaultMaxFileSize is the default maximum file size (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// defaultExcludedDirs are never descended into.
var defaultExcludedDirs = map[string]struct{}{
	".git":               {},
	".hg":                {},
	".svn":               {},
	".codebase-analyzer": {},
	"node_modules":       {},
	"vendor":             {},
	"__pycache__":        {},
	".venv":              {},
	"venv":               {},
	".tox":               {},
	".mypy_cache":        {},
	".pytest_cache":      {},
	".next":              {},
	"dist":               {},
	"build":              {},
	".build":             {},
	".cache":             {},
	"target":             {},
	"bin":                {},
	"obj":                {},
	".idea":              {},
	".vscode":            {},
	".gradle":            {},
	"Pods":               {},
	"DerivedData":        {},
	"elm-stuff":          {},
	"_build":             {},
	"deps":               {},
	"zig-cache":          {},
	"zig-out":            {},
}

// File is a discovered source file.
type File struct {
	// Path is absolute.
	Path     string
	Language language.Language
	Size     int64
	ModTime  time.Time
}

var (
	ErrRootEmpty      = errors.New("root path cannot be empty")
	ErrRootNotExist   = errors.New("root path does not exist")
	ErrRootNotDir     = errors.New("root path is not a directory")
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// Walker walks a directory tree and yields files with a recognized language.
type Walker struct {
	config  WalkConfig
	include []glob.Glob
	exclude []glob.Glob
	maxSize int64
}

// NewWalker compiles the configured patterns.
func NewWalker(config WalkConfig) (*Walker, error) {
	if config.Root == "" {
		return nil, ErrRootEmpty
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, err
	}
	config.Root = root

	include, err := compileGlobs(config.Include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(config.Exclude)
	if err != nil {
		return nil, err
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Walker{
		config:  config,
		include: include,
		exclude: exclude,
		maxSize: maxSize,
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		matchers = append(matchers, matcher)
	}
	return matchers, nil
}

// Root returns the absolute walk root.
func (w *Walker) Root() string {
	return w.config.Root
}

// ValidateRoot checks that the root exists and is a directory.
func (w *Walker) ValidateRoot() error {
	info, err := os.Stat(w.config.Root)
	if os.IsNotExist(err) {
		return ErrRootNotExist
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrRootNotDir
	}
	return nil
}

// Walk streams discovered files on the returned channel, which is closed when
// the walk completes or ctx is cancelled.
func (w *Walker) Walk(ctx context.Context) (<-chan File, error) {
	if err := w.ValidateRoot(); err != nil {
		return nil, err
	}

	ch := make(chan File)
	go func() {
		defer close(ch)
		w.walkDir(ctx, w.config.Root, w.config.Root, ch, map[string]bool{})
	}()
	return ch, nil
}

// Collect walks the whole tree and returns every discovered file in walk order.
func (w *Walker) Collect(ctx context.Context) ([]File, error) {
	ch, err := w.Walk(ctx)
	if err != nil {
		return nil, err
	}

	var files []File
	for f := range ch {
		files = append(files, f)
	}
	return files, ctx.Err()
}

// walkDir walks dir, reporting paths under virtual. virtual differs from dir
// only inside a followed symlinked directory. visited guards symlink cycles.
func (w *Walker) walkDir(ctx context.Context, dir, virtual string, ch chan<- File, visited map[string]bool) {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return
	}
	if visited[real] {
		return
	}
	visited[real] = true
	dir = real

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		vpath := virtual
		if rel, relErr := filepath.Rel(dir, path); relErr == nil && rel != "." {
			vpath = filepath.Join(virtual, rel)
		}

		if d.IsDir() {
			if path != dir && w.skipDir(vpath, d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			return w.handleSymlink(ctx, path, vpath, ch, visited)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		return w.emit(ctx, vpath, info, ch)
	})
}

func (w *Walker) handleSymlink(ctx context.Context, path, vpath string, ch chan<- File, visited map[string]bool) error {
	if !w.config.FollowSymlinks {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		if w.skipDir(vpath, filepath.Base(vpath)) {
			return nil
		}
		w.walkDir(ctx, path, vpath, ch, visited)
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		return nil
	}
	return w.emit(ctx, vpath, info, ch)
}

func (w *Walker) emit(ctx context.Context, path string, info os.FileInfo, ch chan<- File) error {
	if info.Size() > w.maxSize {
		return nil
	}
	lang, ok := w.accept(path)
	if !ok {
		return nil
	}

	select {
	case <-ctx.Done():
		return fs.SkipAll
	case ch <- File{Path: path, Language: lang, Size: info.Size(), ModTime: info.ModTime()}:
		return nil
	}
}

func (w *Walker) skipDir(path, name string) bool {
	rel, err := w.relative(path)
	if err != nil {
		return false
	}
	return w.skipRel(rel, name)
}

func (w *Walker) skipRel(rel, name string) bool {
	if _, excluded := defaultExcludedDirs[name]; excluded {
		return true
	}
	return matchesAny(w.exclude, rel, name)
}

// Accepts reports whether an absolute path under Root would be yielded by a
// walk, ignoring size and existence. It is used to filter VCS change lists
// and watcher events.
func (w *Walker) Accepts(path string) (language.Language, bool) {
	rel, err := w.relative(path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", false
	}

	parts := strings.Split(rel, "/")
	for i, name := range parts[:len(parts)-1] {
		if w.skipRel(strings.Join(parts[:i+1], "/"), name) {
			return "", false
		}
	}
	return w.accept(path)
}

func (w *Walker) accept(path string) (language.Language, bool) {
	rel, err := w.relative(path)
	if err != nil {
		return "", false
	}
	name := filepath.Base(path)

	if matchesAny(w.exclude, rel, name) {
		return "", false
	}
	if len(w.include) > 0 && !matchesAny(w.include, rel, name) {
		return "", false
	}
	return language.Detect(path)
}

// relative returns the slash-separated path relative to Root.
func (w *Walker) relative(path string) (string, error) {
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func matchesAny(matchers []glob.Glob, rel, name string) bool {
	for _, m := range matchers {
		if m.Match(rel) || m.Match(name) {
			return true
		}
	}
	return false
}
