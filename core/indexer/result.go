package indexer

import (
	"sort"
	"sync"
	"time"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/scan"
)

// Stage names the phase a progress report belongs to.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageFiles     Stage = "files"
	StageFinalize  Stage = "finalize"
)

// Progress is reported on a 0-100 scale: 0-10 discovery, 10-90 files,
// 90-100 finalize.
type Progress struct {
	Percent int    `json:"percent"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
}

type ProgressFunc func(Progress)

// FileError is a failure recorded against one file or symbol.
type FileError struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// maxFileErrors caps the detailed errors kept on a result; counts are exact.
const maxFileErrors = 100

// IndexResult reports one index operation. Below-file failures are counted
// in Errors and leave Success true; only setup failures, invalid paths and
// cancellation clear it.
type IndexResult struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
	Path      string `json:"path"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`

	Mode           scan.Mode `json:"mode,omitempty"`
	IsRepo         bool      `json:"is_version_controlled"`
	Commit         string    `json:"commit,omitempty"`
	Branch         string    `json:"branch,omitempty"`
	PreviousCommit string    `json:"previous_commit,omitempty"`

	FilesDiscovered int `json:"files_discovered"`
	FilesPlanned    int `json:"files_planned"`
	FilesUnchanged  int `json:"files_unchanged"`
	FilesProcessed  int `json:"files_processed"`
	FilesFailed     int `json:"files_failed"`
	FilesRemoved    int `json:"files_removed"`

	SymbolsIndexed       int `json:"symbols_indexed"`
	SymbolsSkipped       int `json:"symbols_skipped"`
	RelationshipsIndexed int `json:"relationships_indexed"`
	EmbeddingsStored     int `json:"embeddings_stored"`

	// Errors counts recorded failures by kind name.
	Errors     map[string]int `json:"errors"`
	FileErrors []FileError    `json:"file_errors,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	mu sync.Mutex
}

func newResult(runID, projectID, path string) *IndexResult {
	return &IndexResult{
		RunID:     runID,
		ProjectID: projectID,
		Path:      path,
		Success:   true,
		Errors:    make(map[string]int),
		StartedAt: time.Now(),
	}
}

// fail marks the result fatal.
func (r *IndexResult) fail(err error) *IndexResult {
	r.Success = false
	r.Message = err.Error()
	r.record("", err)
	r.Duration = time.Since(r.StartedAt)
	return r
}

func (r *IndexResult) record(path string, err error) {
	r.recordN(path, err, 1)
}

// recordN counts n failures of err's kind and keeps err as a sample.
func (r *IndexResult) recordN(path string, err error, n int) {
	if err == nil || n <= 0 {
		return
	}
	kind := coreerrors.KindOf(err).String()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors[kind] += n
	if len(r.FileErrors) < maxFileErrors {
		r.FileErrors = append(r.FileErrors, FileError{Path: path, Kind: kind, Message: err.Error()})
	}
}

// ErrorCount returns the failures recorded for kind.
func (r *IndexResult) ErrorCount(kind coreerrors.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Errors[kind.String()]
}

func (r *IndexResult) sortErrors() {
	sort.SliceStable(r.FileErrors, func(i, j int) bool {
		return r.FileErrors[i].Path < r.FileErrors[j].Path
	})
}
