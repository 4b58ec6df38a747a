package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/storage"
)

func openTestPool(t *testing.T, driver string) *Pool {
	t.Helper()
	config := DefaultPoolConfig()
	config.Driver = driver

	pool, err := OpenPool(filepath.Join(t.TempDir(), "test.db"), config)
	if err != nil {
		t.Fatalf("OpenPool(%s) failed: %v", driver, err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestManagerOpenClose(t *testing.T) {
	dirs := storage.NewDirs(t.TempDir())

	mgr := NewManager(dirs)
	defer mgr.CloseAll()

	pool, err := mgr.Open("graph", DefaultPoolConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if pool.Path() != dirs.DatabasePath() {
		t.Errorf("Path = %q, want %q", pool.Path(), dirs.DatabasePath())
	}

	pool2, ok := mgr.Get("graph")
	if !ok || pool2 != pool {
		t.Error("Get should return same pool")
	}

	if _, ok := mgr.Get("nonexistent"); ok {
		t.Error("Get should return false for nonexistent pool")
	}

	if err := mgr.Close("graph"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, ok := mgr.Get("graph"); ok {
		t.Error("Pool should be removed after close")
	}
}

func TestManagerResolvePath(t *testing.T) {
	dirs := storage.NewDirs(t.TempDir())
	mgr := NewManager(dirs)

	abs := filepath.Join(t.TempDir(), "custom.db")
	if got := mgr.resolvePath(abs); got != abs {
		t.Errorf("absolute path rewritten to %q", got)
	}
	if got := mgr.resolvePath("scratch"); got != dirs.DataDir("scratch.db") {
		t.Errorf("relative name resolved to %q", got)
	}
}

func TestBuildDSN(t *testing.T) {
	config := DefaultPoolConfig()

	dsn, err := buildDSN("/tmp/g.db", config)
	if err != nil {
		t.Fatalf("buildDSN failed: %v", err)
	}
	for _, want := range []string{"file:/tmp/g.db?", "_busy_timeout=5000", "_journal_mode=WAL", "_foreign_keys=1"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("sqlite3 DSN %q missing %q", dsn, want)
		}
	}

	config.Driver = DriverPure
	dsn, err = buildDSN("/tmp/g.db", config)
	if err != nil {
		t.Fatalf("buildDSN failed: %v", err)
	}
	for _, want := range []string{"_pragma=busy_timeout%285000%29", "_pragma=foreign_keys%281%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("sqlite DSN %q missing %q", dsn, want)
		}
	}

	config.Driver = "postgres"
	if _, err := buildDSN("/tmp/g.db", config); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestPoolDrivers(t *testing.T) {
	for _, driver := range []string{DriverCGO, DriverPure} {
		t.Run(driver, func(t *testing.T) {
			pool := openTestPool(t, driver)
			ctx := context.Background()

			if pool.Driver() != driver {
				t.Errorf("Driver = %q", pool.Driver())
			}

			mode, err := pool.JournalMode(ctx)
			if err != nil {
				t.Fatalf("JournalMode failed: %v", err)
			}
			if mode != "wal" {
				t.Errorf("journal mode = %q, want wal", mode)
			}

			var fk int
			if err := pool.QueryRow(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
				t.Fatalf("foreign_keys failed: %v", err)
			}
			if fk != 1 {
				t.Error("foreign keys should be enabled")
			}

			if err := pool.IntegrityCheck(ctx); err != nil {
				t.Errorf("IntegrityCheck failed: %v", err)
			}
		})
	}
}

func TestPoolTransaction(t *testing.T) {
	pool := openTestPool(t, DriverCGO)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE failed: %v", err)
	}

	err := pool.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO test (value) VALUES (?)", "committed")
		return err
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	boom := errors.New("boom")
	err = pool.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO test (value) VALUES (?)", "rolled back"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM test").Scan(&count); err != nil {
		t.Fatalf("COUNT failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestPoolClosed(t *testing.T) {
	pool := openTestPool(t, DriverCGO)
	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if _, err := pool.Exec(context.Background(), "SELECT 1"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestMigrator(t *testing.T) {
	pool := openTestPool(t, DriverPure)
	ctx := context.Background()

	migrations := []Migration{
		{Version: 2, Description: "add index", Up: Statements("CREATE INDEX idx_items_name ON items(name)")},
		{Version: 1, Description: "create items", Up: Statements(
			"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)",
			"INSERT INTO items (name) VALUES ('seed')",
		)},
	}

	m := NewMigrator(pool, migrations)
	if m.LatestVersion() != 2 {
		t.Errorf("LatestVersion = %d", m.LatestVersion())
	}

	applied, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}

	version, err := m.CurrentVersion(ctx)
	if err != nil || version != 2 {
		t.Errorf("version = %d, err = %v", version, err)
	}

	applied, err = m.Migrate(ctx)
	if err != nil || applied != 0 {
		t.Errorf("second Migrate applied %d, err = %v", applied, err)
	}

	pending, err := m.PendingMigrations(ctx)
	if err != nil || len(pending) != 0 {
		t.Errorf("pending = %d, err = %v", len(pending), err)
	}
}

func TestMigratorFailureRollsBack(t *testing.T) {
	pool := openTestPool(t, DriverCGO)
	ctx := context.Background()

	m := NewMigrator(pool, []Migration{
		{Version: 1, Description: "ok", Up: Statements("CREATE TABLE a (id INTEGER)")},
		{Version: 2, Description: "broken", Up: Statements(
			"CREATE TABLE b (id INTEGER)",
			"CREATE TABLE a (id INTEGER)",
		)},
	})

	applied, err := m.Migrate(ctx)
	if err == nil {
		t.Fatal("expected migration error")
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}

	version, _ := m.CurrentVersion(ctx)
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}

	var name string
	err = pool.QueryRow(ctx, "SELECT name FROM sqlite_master WHERE name = 'b'").Scan(&name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("table b should have been rolled back, err = %v", err)
	}
}

func TestAdvisoryLock(t *testing.T) {
	dir := t.TempDir()

	first, err := NewAdvisoryLock(dir, "project")
	if err != nil {
		t.Fatalf("NewAdvisoryLock failed: %v", err)
	}
	if err := first.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !first.IsHeld() {
		t.Error("lock should be held")
	}

	second, _ := NewAdvisoryLock(dir, "project")
	ok, err := second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Error("second lock should not be acquired while first is held")
	}

	err = second.Acquire(context.Background(), 120*time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	ok, err = second.TryAcquire()
	if err != nil || !ok {
		t.Errorf("TryAcquire after release: ok=%v err=%v", ok, err)
	}
	second.Release()
}

func TestLockManagerSerializes(t *testing.T) {
	lm := NewLockManager(t.TempDir())
	ctx := context.Background()

	release, err := lm.Lock(ctx, "p1", time.Second)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	if _, err := lm.Lock(ctx, "p1", 100*time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}

	other, err := lm.Lock(ctx, "p2", time.Second)
	if err != nil {
		t.Fatalf("independent lock failed: %v", err)
	}
	other()

	done := make(chan error, 1)
	go func() {
		r, err := lm.Lock(ctx, "p1", 5*time.Second)
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := release(); err != nil {
		t.Errorf("second release failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("waiting Lock failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiting Lock never acquired")
	}
}

func TestLockManagerCancelled(t *testing.T) {
	lm := NewLockManager(t.TempDir())

	release, err := lm.Lock(context.Background(), "p", 0)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lm.Lock(ctx, "p", time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
