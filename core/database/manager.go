// Package database opens SQLite connection pools for the graph store, applies
// schema migrations and provides cross-process advisory locks.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/storage"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverCGO is the mattn/go-sqlite3 driver.
	DriverCGO = "sqlite3"
	// DriverPure is the modernc.org/sqlite driver.
	DriverPure = "sqlite"
)

var (
	ErrUnknownDriver = errors.New("unknown sqlite driver")
	ErrPoolClosed    = errors.New("database pool is closed")
)

type Manager struct {
	dirs  *storage.Dirs
	pools map[string]*Pool
	mu    sync.RWMutex
}

type Pool struct {
	db     *sql.DB
	path   string
	config PoolConfig
	mu     sync.RWMutex
}

type PoolConfig struct {
	Driver      string
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	BusyTimeout time.Duration
	EnableWAL   bool
	ForeignKeys bool
	// CacheSizeKB sets PRAGMA cache_size as a negative KiB count.
	CacheSizeKB int
}

// DefaultPoolConfig serializes writes on a single connection.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Driver:      DriverCGO,
		MaxOpen:     1,
		MaxIdle:     1,
		MaxLifetime: time.Hour,
		BusyTimeout: 5 * time.Second,
		EnableWAL:   true,
		ForeignKeys: true,
		CacheSizeKB: 8192,
	}
}

func NewManager(dirs *storage.Dirs) *Manager {
	return &Manager{
		dirs:  dirs,
		pools: make(map[string]*Pool),
	}
}

// Open returns the pool for name, opening it on first use. name is "graph"
// for the default database, or an absolute file path.
func (m *Manager) Open(name string, config PoolConfig) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pool, ok := m.pools[name]; ok {
		return pool, nil
	}

	pool, err := OpenPool(m.resolvePath(name), config)
	if err != nil {
		return nil, err
	}

	m.pools[name] = pool
	return pool, nil
}

// OpenPool opens a pool on the SQLite file at path, creating its directory.
func OpenPool(path string, config PoolConfig) (*Pool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	dsn, err := buildDSN(path, config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if config.MaxOpen > 0 {
		db.SetMaxOpenConns(config.MaxOpen)
	}
	if config.MaxIdle > 0 {
		db.SetMaxIdleConns(config.MaxIdle)
	}
	db.SetConnMaxLifetime(config.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Pool{
		db:     db,
		path:   path,
		config: config,
	}, nil
}

// buildDSN encodes connection pragmas in the form each driver understands.
func buildDSN(path string, config PoolConfig) (string, error) {
	busy := int(config.BusyTimeout.Milliseconds())
	cache := -config.CacheSizeKB
	journal := "DELETE"
	if config.EnableWAL {
		journal = "WAL"
	}

	q := url.Values{}
	switch config.Driver {
	case DriverCGO, "":
		q.Set("_busy_timeout", fmt.Sprint(busy))
		q.Set("_journal_mode", journal)
		q.Set("_foreign_keys", fmt.Sprint(boolToInt(config.ForeignKeys)))
		if cache != 0 {
			q.Set("_cache_size", fmt.Sprint(cache))
		}
	case DriverPure:
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
		q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", journal))
		q.Add("_pragma", fmt.Sprintf("foreign_keys(%d)", boolToInt(config.ForeignKeys)))
		if cache != 0 {
			q.Add("_pragma", fmt.Sprintf("cache_size(%d)", cache))
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, config.Driver)
	}

	return "file:" + path + "?" + q.Encode(), nil
}

func (m *Manager) Get(name string) (*Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pool, ok := m.pools[name]
	return pool, ok
}

func (m *Manager) Close(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.pools[name]
	if !ok {
		return nil
	}

	delete(m.pools, name)
	return pool.Close()
}

func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, pool := range m.pools {
		if err := pool.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.pools, name)
	}
	return firstErr
}

func (m *Manager) resolvePath(name string) string {
	switch {
	case name == "graph":
		return m.dirs.DatabasePath()
	case filepath.IsAbs(name):
		return name
	default:
		return m.dirs.DataDir(name + ".db")
	}
}

func (p *Pool) DB() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

func (p *Pool) Path() string {
	return p.path
}

func (p *Pool) Driver() string {
	return p.config.Driver
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}

	err := p.db.Close()
	p.db = nil
	return err
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db := p.DB()
	if db == nil {
		return nil, ErrPoolClosed
	}
	return db.ExecContext(ctx, query, args...)
}

func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db := p.DB()
	if db == nil {
		return nil, ErrPoolClosed
	}
	return db.QueryContext(ctx, query, args...)
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.DB().QueryRowContext(ctx, query, args...)
}

func (p *Pool) Begin(ctx context.Context) (*sql.Tx, error) {
	db := p.DB()
	if db == nil {
		return nil, ErrPoolClosed
	}
	return db.BeginTx(ctx, nil)
}

// Transaction runs fn in a transaction, rolling back when fn fails.
func (p *Pool) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (p *Pool) Version(ctx context.Context) (int, error) {
	var version int
	err := p.QueryRow(ctx, "PRAGMA user_version").Scan(&version)
	return version, err
}

func (p *Pool) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := p.QueryRow(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// JournalMode reports the active journal mode, e.g. "wal".
func (p *Pool) JournalMode(ctx context.Context) (string, error) {
	var mode string
	err := p.QueryRow(ctx, "PRAGMA journal_mode").Scan(&mode)
	return mode, err
}

func (p *Pool) Stats() sql.DBStats {
	db := p.DB()
	if db == nil {
		return sql.DBStats{}
	}
	return db.Stats()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
