package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	projectRoot := t.TempDir()
	return NewManager(storage.NewDirs(t.TempDir()), projectRoot), projectRoot
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 300, cfg.Embedding.Dimension)
	assert.Equal(t, 50, cfg.Embedding.BatchSize)
	assert.Equal(t, 100, cfg.Index.ChunkSize)
	assert.Equal(t, 25, cfg.Index.LargeFileChunkSize)
	assert.Equal(t, 1000, cfg.Index.LargeFileThreshold)
	assert.Equal(t, "first", cfg.Index.CallAttribution)
	assert.Equal(t, "hnsw", cfg.Search.VectorBackend)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
}

func TestManagerLoad_NoFiles(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Load())
	assert.Equal(t, DefaultConfig(), m.Get())
}

func TestManagerLoad_ProjectThenUser(t *testing.T) {
	m, root := newTestManager(t)

	writeFile(t, storage.ResolveProjectDirs(root).Config, `
index:
  workers: 4
  prune_missing: false
  exclude: ["*.gen.go"]
search:
  vector_backend: none
`)
	writeFile(t, m.dirs.ConfigDir("config.yaml"), `
index:
  workers: 2
embedding:
  provider: openai
  timeout: 10s
`)

	require.NoError(t, m.Load())
	cfg := m.Get()

	assert.Equal(t, 2, cfg.Index.Workers)
	assert.False(t, cfg.Index.PruneMissing)
	assert.Equal(t, []string{"*.gen.go"}, cfg.Index.Exclude)
	assert.Equal(t, "none", cfg.Search.VectorBackend)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 10*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 300, cfg.Embedding.Dimension)
}

func TestManagerLoad_ExplicitFile(t *testing.T) {
	m, _ := newTestManager(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, path, "logging:\n  level: debug\n")

	require.NoError(t, m.WithFile(path).Load())
	assert.Equal(t, "debug", m.Get().Logging.Level)
}

func TestManagerLoad_InvalidYAML(t *testing.T) {
	m, root := newTestManager(t)
	writeFile(t, storage.ResolveProjectDirs(root).Config, "index: [unclosed")

	err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project config")
}

func TestManagerEnvironmentOverride(t *testing.T) {
	m, _ := newTestManager(t)

	t.Setenv(EnvPrefix+"DB", "/tmp/graph.db")
	t.Setenv(EnvPrefix+"WORKERS", "6")
	t.Setenv(EnvPrefix+"VECTOR_BACKEND", "none")
	t.Setenv(EnvPrefix+"PRUNE_MISSING", "false")

	require.NoError(t, m.Load())
	cfg := m.Get()

	assert.Equal(t, "/tmp/graph.db", cfg.Database.Path)
	assert.Equal(t, 6, cfg.Index.Workers)
	assert.Equal(t, "none", cfg.Search.VectorBackend)
	assert.False(t, cfg.Index.PruneMissing)
}

func TestManagerApplyAndOnChange(t *testing.T) {
	m, _ := newTestManager(t)

	var seen *Config
	m.OnChange(func(cfg *Config) { seen = cfg })

	m.Apply(&Config{Logging: LoggingConfig{Level: "warn"}})

	require.NotNil(t, seen)
	assert.Equal(t, "warn", seen.Logging.Level)
	assert.Equal(t, "text", m.Get().Logging.Format)
	assert.Equal(t, "info", DefaultConfig().Logging.Level)
}
