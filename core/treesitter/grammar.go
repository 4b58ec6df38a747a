package treesitter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"github.com/ebitengine/purego"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

var validGrammarName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

type GrammarHandle struct {
	libHandle uintptr
	langPtr   unsafe.Pointer
	name      string
	path      string
	checksum  string
}

// GrammarLoader dlopens tree-sitter grammar libraries from trusted
// directories. Loaded grammars and load failures are cached for the life of
// the loader.
type GrammarLoader struct {
	grammars       map[string]*GrammarHandle
	failedGrammars map[string]error
	trustedDirs    []string
	checksums      map[string]string
	disabled       map[string]struct{}
	requireVerify  bool
	mu             sync.RWMutex
}

type LoaderOption func(*GrammarLoader)

func WithTrustedDir(dir string) LoaderOption {
	return func(gl *GrammarLoader) {
		if abs, err := filepath.Abs(dir); err == nil {
			gl.trustedDirs = append(gl.trustedDirs, abs)
		}
	}
}

func WithChecksum(name, sha256sum string) LoaderOption {
	return func(gl *GrammarLoader) {
		gl.checksums[name] = sha256sum
	}
}

func WithRequireVerification(require bool) LoaderOption {
	return func(gl *GrammarLoader) {
		gl.requireVerify = require
	}
}

// WithDisabled makes Load refuse the named grammars.
func WithDisabled(names ...string) LoaderOption {
	return func(gl *GrammarLoader) {
		for _, name := range names {
			gl.disabled[name] = struct{}{}
		}
	}
}

// NewGrammarLoader searches the directories given by WithTrustedDir first,
// then the platform library directories.
func NewGrammarLoader(opts ...LoaderOption) *GrammarLoader {
	gl := &GrammarLoader{
		grammars:       make(map[string]*GrammarHandle),
		failedGrammars: make(map[string]error),
		checksums:      make(map[string]string),
		disabled:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(gl)
	}
	gl.trustedDirs = append(gl.trustedDirs, systemLibraryDirs()...)
	return gl
}

func systemLibraryDirs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/opt/homebrew/lib", "/usr/local/lib"}
	case "linux":
		return []string{"/usr/lib", "/usr/local/lib"}
	}
	return nil
}

// Load returns the grammar for name, loading it on first use.
func (gl *GrammarLoader) Load(name string) (*sitter.Language, error) {
	if err := validateGrammarName(name); err != nil {
		return nil, err
	}

	gl.mu.RLock()
	if h, ok := gl.grammars[name]; ok {
		gl.mu.RUnlock()
		return sitter.NewLanguage(h.langPtr), nil
	}
	if err, failed := gl.failedGrammars[name]; failed {
		gl.mu.RUnlock()
		return nil, err
	}
	gl.mu.RUnlock()

	gl.mu.Lock()
	defer gl.mu.Unlock()

	if h, ok := gl.grammars[name]; ok {
		return sitter.NewLanguage(h.langPtr), nil
	}
	if err, failed := gl.failedGrammars[name]; failed {
		return nil, err
	}
	if _, off := gl.disabled[name]; off {
		return nil, fmt.Errorf("%w: %s", ErrGrammarDisabled, name)
	}

	handle, err := gl.loadLibrarySafe(name)
	if err != nil {
		gl.failedGrammars[name] = err
		return nil, err
	}

	gl.grammars[name] = handle
	return sitter.NewLanguage(handle.langPtr), nil
}

func validateGrammarName(name string) error {
	if !validGrammarName.MatchString(name) {
		return fmt.Errorf("invalid grammar name %q: must be 1-64 lowercase alphanumeric chars", name)
	}
	return nil
}

func (gl *GrammarLoader) loadLibrarySafe(name string) (*GrammarHandle, error) {
	libPath, err := gl.findAndValidateLibrary(name)
	if err != nil {
		return nil, err
	}

	checksum, err := gl.verifyLibrary(name, libPath)
	if err != nil {
		return nil, err
	}

	lib, err := purego.Dlopen(libPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", libPath, err)
	}

	var langFunc func() unsafe.Pointer
	purego.RegisterLibFunc(&langFunc, lib, "tree_sitter_"+name)

	ptr := langFunc()
	if ptr == nil {
		purego.Dlclose(lib)
		return nil, fmt.Errorf("tree_sitter_%s returned null", name)
	}

	return &GrammarHandle{
		libHandle: lib,
		langPtr:   ptr,
		name:      name,
		path:      libPath,
		checksum:  checksum,
	}, nil
}

func (gl *GrammarLoader) findAndValidateLibrary(name string) (string, error) {
	for _, dir := range gl.trustedDirs {
		if err := validateDirectory(dir); err != nil {
			continue
		}

		for _, libName := range grammarLibNames(name) {
			path := filepath.Join(dir, libName)
			if err := validateLibraryFile(path, dir); err != nil {
				continue
			}
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: %q not in trusted directories", ErrGrammarNotFound, name)
}

func validateDirectory(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return err
	}

	info, err := os.Stat(realDir)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}

	if isWorldWritable(info) {
		return fmt.Errorf("world-writable directory rejected: %s", dir)
	}

	return nil
}

func validateLibraryFile(path, trustedDir string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return err
	}

	absTrusted, _ := filepath.Abs(trustedDir)
	realTrusted, _ := filepath.EvalSymlinks(absTrusted)

	if !isSubpath(realPath, realTrusted) {
		return fmt.Errorf("path escapes trusted directory: %s", path)
	}

	info, err := os.Stat(realPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return fmt.Errorf("expected file, got directory: %s", path)
	}

	if isWorldWritable(info) {
		return fmt.Errorf("world-writable file rejected: %s", path)
	}

	return nil
}

func isSubpath(child, parent string) bool {
	absChild, err := filepath.Abs(child)
	if err != nil {
		return false
	}
	absParent, err := filepath.Abs(parent)
	if err != nil {
		return false
	}

	absChild = filepath.Clean(absChild)
	absParent = filepath.Clean(absParent)

	if absChild == absParent {
		return true
	}

	parentWithSep := absParent
	if !strings.HasSuffix(parentWithSep, string(filepath.Separator)) {
		parentWithSep += string(filepath.Separator)
	}

	return strings.HasPrefix(absChild, parentWithSep)
}

func isWorldWritable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return false
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return stat.Mode&0002 != 0
}

func (gl *GrammarLoader) verifyLibrary(name, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read library: %w", err)
	}

	hash := sha256.Sum256(data)
	checksum := hex.EncodeToString(hash[:])

	if expected, ok := gl.checksums[name]; ok {
		if checksum != expected {
			return "", fmt.Errorf("checksum mismatch for %s: expected %s, got %s", name, expected, checksum)
		}
	} else if gl.requireVerify {
		return "", fmt.Errorf("no checksum registered for %s (verification required)", name)
	}

	return checksum, nil
}

// grammarLibNames lists the file names a grammar may be installed under.
// Upstream builds use dashes (libtree-sitter-c-sharp) while the exported
// symbol keeps underscores.
func grammarLibNames(name string) []string {
	names := []string{grammarLibName(name)}
	if dashed := strings.ReplaceAll(name, "_", "-"); dashed != name {
		names = append(names, grammarLibName(dashed))
	}
	return names
}

func grammarLibName(name string) string {
	switch runtime.GOOS {
	case "darwin":
		return "libtree-sitter-" + name + ".dylib"
	case "windows":
		return "tree-sitter-" + name + ".dll"
	default:
		return "libtree-sitter-" + name + ".so"
	}
}

// Available reports whether name can be loaded, loading it if needed.
func (gl *GrammarLoader) Available(name string) bool {
	_, err := gl.Load(name)
	return err == nil
}

// LoadedGrammars maps each loaded grammar to its library path.
func (gl *GrammarLoader) LoadedGrammars() map[string]string {
	gl.mu.RLock()
	defer gl.mu.RUnlock()
	result := make(map[string]string, len(gl.grammars))
	for name, h := range gl.grammars {
		result[name] = h.path
	}
	return result
}

func (gl *GrammarLoader) TrustedDirs() []string {
	gl.mu.RLock()
	defer gl.mu.RUnlock()
	return append([]string(nil), gl.trustedDirs...)
}

// Close unloads every grammar. Languages obtained from the loader must not be
// used afterwards.
func (gl *GrammarLoader) Close() error {
	gl.mu.Lock()
	defer gl.mu.Unlock()

	for name, h := range gl.grammars {
		if h.libHandle != 0 {
			purego.Dlclose(h.libHandle)
		}
		delete(gl.grammars, name)
	}
	gl.failedGrammars = make(map[string]error)
	return nil
}
