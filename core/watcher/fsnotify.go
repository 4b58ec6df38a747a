// Package watcher re-indexes project files as they change on disk.
// It wraps fsnotify with recursive directory watching, per-path debouncing
// and glob exclusion.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultDebounce is the quiet period a path needs before it is emitted.
	DefaultDebounce = 250 * time.Millisecond

	eventBuffer = 1024
)

// alwaysExcluded directory names are never watched.
var alwaysExcluded = map[string]bool{
	".git":               true,
	".hg":                true,
	".svn":               true,
	".codebase-analyzer": true,
}

// =============================================================================
// Errors
// =============================================================================

var (
	ErrPathNotExist     = errors.New("watch path does not exist")
	ErrPathNotDirectory = errors.New("watch path is not a directory")
	ErrInvalidPattern   = errors.New("invalid exclude pattern")
	ErrAlreadyStarted   = errors.New("watcher already started")
)

// =============================================================================
// Events
// =============================================================================

// Operation is the kind of change seen on a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileEvent is a debounced change to one path.
type FileEvent struct {
	Path      string
	Operation Operation
	Time      time.Time
}

// =============================================================================
// FSWatcher
// =============================================================================

// Config configures an FSWatcher.
type Config struct {
	// Root is the project directory, watched recursively.
	Root string
	// Exclude holds glob patterns matched against the root-relative path and
	// the base name of every file and directory.
	Exclude  []string
	Debounce time.Duration
}

type pendingEvent struct {
	event *FileEvent
	timer *time.Timer
}

// FSWatcher emits debounced FileEvents for a directory tree.
type FSWatcher struct {
	config   Config
	watcher  *fsnotify.Watcher
	excludes []glob.Glob

	mu       sync.Mutex
	pending  map[string]*pendingEvent
	eventCh  chan *FileEvent
	started  bool
	stopOnce sync.Once
	stopped  bool
	dropped  int
}

// NewFSWatcher validates the root and compiles the exclude patterns.
func NewFSWatcher(config Config) (*FSWatcher, error) {
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrPathNotDirectory
	}
	config.Root = root
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	excludes := make([]glob.Glob, 0, len(config.Exclude))
	for _, pattern := range config.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		excludes = append(excludes, g)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FSWatcher{
		config:   config,
		watcher:  watcher,
		excludes: excludes,
		pending:  make(map[string]*pendingEvent),
	}, nil
}

// Root returns the absolute watched directory.
func (w *FSWatcher) Root() string {
	return w.config.Root
}

// Start registers the tree and begins emitting events. The channel is
// closed when ctx is cancelled or Stop is called.
func (w *FSWatcher) Start(ctx context.Context) (<-chan *FileEvent, error) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	w.started = true
	w.eventCh = make(chan *FileEvent, eventBuffer)
	w.mu.Unlock()

	if err := w.addDirectoryRecursive(w.config.Root); err != nil {
		w.Stop()
		close(w.eventCh)
		return nil, err
	}

	go w.processEvents(ctx)
	return w.eventCh, nil
}

func (w *FSWatcher) addDirectoryRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.config.Root && w.isExcluded(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// =============================================================================
// Event Processing
// =============================================================================

func (w *FSWatcher) processEvents(ctx context.Context) {
	defer w.cleanup()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *FSWatcher) handleFSEvent(event fsnotify.Event) {
	if w.isExcluded(event.Name) {
		return
	}

	// New directories are not covered by the parent watch.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addDirectoryRecursive(event.Name)
			return
		}
	}

	w.scheduleEvent(event.Name, mapOperation(event.Op))
}

// Order matters: first match wins.
var opMappings = []struct {
	fsOp fsnotify.Op
	op   Operation
}{
	{fsnotify.Create, OpCreate},
	{fsnotify.Write, OpModify},
	{fsnotify.Remove, OpDelete},
	{fsnotify.Rename, OpRename},
	{fsnotify.Chmod, OpModify},
}

func mapOperation(op fsnotify.Op) Operation {
	for _, m := range opMappings {
		if op.Has(m.fsOp) {
			return m.op
		}
	}
	return OpModify
}

// =============================================================================
// Debouncing
// =============================================================================

func (w *FSWatcher) scheduleEvent(path string, op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	event := &FileEvent{Path: path, Operation: op, Time: time.Now()}
	if existing, ok := w.pending[path]; ok {
		existing.timer.Stop()
		existing.event = event
		existing.timer = w.debounce(path, event)
		return
	}
	w.pending[path] = &pendingEvent{event: event, timer: w.debounce(path, event)}
}

func (w *FSWatcher) debounce(path string, event *FileEvent) *time.Timer {
	return time.AfterFunc(w.config.Debounce, func() {
		w.emitEvent(path, event)
	})
}

func (w *FSWatcher) emitEvent(path string, event *FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if p, ok := w.pending[path]; !ok || p.event != event {
		return
	}
	delete(w.pending, path)

	select {
	case w.eventCh <- event:
	default:
		w.dropped++
	}
}

// Dropped reports how many events were discarded because the consumer fell
// behind.
func (w *FSWatcher) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// =============================================================================
// Exclusion
// =============================================================================

func (w *FSWatcher) isExcluded(path string) bool {
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	rel = filepath.ToSlash(rel)

	parts := strings.Split(rel, "/")
	for _, part := range parts {
		if alwaysExcluded[part] {
			return true
		}
	}
	for _, g := range w.excludes {
		if g.Match(rel) || g.Match(filepath.Base(path)) {
			return true
		}
		// Directory patterns match any ancestor.
		for i := 1; i < len(parts); i++ {
			if g.Match(strings.Join(parts[:i], "/")) {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// Stop
// =============================================================================

// Stop cancels pending events and closes the underlying watcher. It is safe
// to call more than once.
func (w *FSWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		for _, p := range w.pending {
			p.timer.Stop()
		}
		w.pending = make(map[string]*pendingEvent)
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	return err
}

func (w *FSWatcher) cleanup() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.stopped {
		w.stopped = true
		for _, p := range w.pending {
			p.timer.Stop()
		}
		w.pending = make(map[string]*pendingEvent)
	}
	close(w.eventCh)
}
