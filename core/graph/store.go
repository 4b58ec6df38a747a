// Package graph persists projects, symbols, relationships and embeddings in
// SQLite. It is the only writer of those tables.
package graph

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/database"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNilPool         = errors.New("graph store requires an open database pool")
)

const filesTableSQL = `CREATE TABLE IF NOT EXISTS files (
    project_id TEXT NOT NULL,
    file_path  TEXT NOT NULL,
    language   TEXT NOT NULL,
    file_hash  TEXT NOT NULL,
    indexed_at TEXT NOT NULL,
    PRIMARY KEY (project_id, file_path)
)`

const backfillFilesSQL = `INSERT OR IGNORE INTO files (project_id, file_path, language, file_hash, indexed_at)
SELECT project_id, file_path, MIN(language), MIN(file_hash), MAX(created_at)
FROM symbols GROUP BY project_id, file_path`

var migrations = []database.Migration{
	{Version: 1, Description: "create graph tables", Up: database.Statements(schemaSQL)},
	{Version: 2, Description: "track indexed files", Up: database.Statements(filesTableSQL, backfillFilesSQL)},
}

// ChangeListener observes committed writes. Listeners run synchronously after
// the transaction commits and must not call back into the store's write path.
type ChangeListener interface {
	FileReplaced(change FileChange)
	ProjectDeleted(projectID string)
}

// FileChange describes one committed file replacement or removal.
type FileChange struct {
	ProjectID  string
	FilePath   string
	RemovedIDs []int64
	Added      []Symbol
	// Vectors holds the embeddings written with Added, keyed by symbol id.
	Vectors map[int64][]float32
}

type Store struct {
	pool       *database.Pool
	logger     *slog.Logger
	generation atomic.Uint64

	listenersMu sync.RWMutex
	listeners   []ChangeListener
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore migrates the schema on pool and returns a store over it.
func NewStore(ctx context.Context, pool *database.Pool, opts ...Option) (*Store, error) {
	if pool == nil || pool.DB() == nil {
		return nil, ErrNilPool
	}

	s := &Store{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	applied, err := database.NewMigrator(pool, migrations).Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate %s: %w", pool.Path(), err)
	}
	if applied > 0 {
		s.logger.Debug("graph schema migrated", slog.String("path", pool.Path()), slog.Int("applied", applied))
	}
	return s, nil
}

func (s *Store) Pool() *database.Pool {
	return s.pool
}

// Generation increases after every committed write. Caches key on it.
func (s *Store) Generation() uint64 {
	return s.generation.Load()
}

func (s *Store) AddListener(l ChangeListener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

func (s *Store) notifyFile(change FileChange) {
	s.generation.Add(1)

	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l.FileReplaced(change)
	}
}

func (s *Store) notifyProjectDeleted(projectID string) {
	s.generation.Add(1)

	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l.ProjectDeleted(projectID)
	}
}

// Ping verifies the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(value sql.NullString) time.Time {
	if !value.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
