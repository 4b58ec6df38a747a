// Package errors implements the indexing error taxonomy with per-kind handling behavior.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by where it happened and how far it propagates.
type Kind int

const (
	// KindSetup indicates an uninitialized store, embedder or extractor.
	// Fatal to the whole operation.
	KindSetup Kind = iota

	// KindInvalidPath indicates the project path is missing or not a directory.
	// Fatal, reported as a structured result rather than raised.
	KindInvalidPath

	// KindFileRead indicates a planned file could not be read.
	KindFileRead

	// KindExtraction indicates the parser or pattern extractor failed for a file.
	KindExtraction

	// KindSymbolPersist indicates a symbol row could not be written.
	KindSymbolPersist

	// KindResolutionMiss indicates a relationship target name matched no symbol.
	// The relationship is dropped and counted.
	KindResolutionMiss

	// KindEmbeddingDegraded indicates a zero vector was used in place of an embedding.
	KindEmbeddingDegraded

	// KindVectorBackendUnavailable indicates semantic search used its degraded fallback.
	KindVectorBackendUnavailable

	// KindVersionControlUnavailable indicates git could not be used and the scan
	// downgraded to full mode.
	KindVersionControlUnavailable
)

var kindNames = map[Kind]string{
	KindSetup:                     "setup_error",
	KindInvalidPath:               "invalid_path",
	KindFileRead:                  "file_read_error",
	KindExtraction:                "extraction_error",
	KindSymbolPersist:             "symbol_persist_error",
	KindResolutionMiss:            "relationship_resolution_miss",
	KindEmbeddingDegraded:         "embedding_degraded",
	KindVectorBackendUnavailable:  "vector_backend_unavailable",
	KindVersionControlUnavailable: "version_control_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Fatal reports whether errors of this kind abort the whole operation.
func (k Kind) Fatal() bool {
	return k == KindSetup || k == KindInvalidPath
}

// FileScoped reports whether errors of this kind abort only the current file.
func (k Kind) FileScoped() bool {
	return k == KindFileRead || k == KindExtraction
}

// Error wraps an underlying error with its kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind && (other.Op == "" || other.Op == e.Op)
	}
	return false
}

// New creates an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithPath creates an Error of the given kind bound to a file or project path.
func WithPath(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from an error. Errors outside the taxonomy are
// treated as setup errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSetup
}

// IsFatal reports whether err should abort the whole operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Fatal()
}

// Sentinel values usable with errors.Is to test for a kind.
var (
	ErrSetup          = &Error{Kind: KindSetup}
	ErrInvalidPath    = &Error{Kind: KindInvalidPath}
	ErrFileRead       = &Error{Kind: KindFileRead}
	ErrExtraction     = &Error{Kind: KindExtraction}
	ErrPersist        = &Error{Kind: KindSymbolPersist}
	ErrVectorBackend  = &Error{Kind: KindVectorBackendUnavailable}
	ErrVersionControl = &Error{Kind: KindVersionControlUnavailable}
)
