// Package config loads layered YAML configuration for the analyzer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/storage"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CODEBASE_ANALYZER_"

type Manager struct {
	configPtr   atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	explicit    string
	watchers    []func(*Config)
	watcherMu   sync.RWMutex
}

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Parser    ParserConfig    `yaml:"parser"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DatabaseConfig struct {
	// Path of the SQLite file. Empty means the XDG data dir.
	Path string `yaml:"path"`
	// Driver is "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
	Driver       string        `yaml:"driver"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	CacheSizeKB  int           `yaml:"cache_size_kb"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

type IndexConfig struct {
	Include            []string      `yaml:"include"`
	Exclude            []string      `yaml:"exclude"`
	MaxFileSize        int64         `yaml:"max_file_size"`
	FollowSymlinks     bool          `yaml:"follow_symlinks"`
	Workers            int           `yaml:"workers"`
	ChunkSize          int           `yaml:"chunk_size"`
	LargeFileChunkSize int           `yaml:"large_file_chunk_size"`
	LargeFileThreshold int           `yaml:"large_file_threshold"`
	CallAttribution    string        `yaml:"call_attribution"`
	PruneMissing       bool          `yaml:"prune_missing"`
	LockTimeout        time.Duration `yaml:"lock_timeout"`
}

type ParserConfig struct {
	GrammarDirs         []string          `yaml:"grammar_dirs"`
	RequireVerification bool              `yaml:"require_verification"`
	Checksums           map[string]string `yaml:"checksums"`
	DisabledLanguages   []string          `yaml:"disabled_languages"`
	ParsersPerLanguage  int               `yaml:"parsers_per_language"`
}

type EmbeddingConfig struct {
	// Provider is one of local, openai, gemini, none.
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int64         `yaml:"cache_size"`
}

type SearchConfig struct {
	// VectorBackend is "hnsw" or "none". "none" forces the degraded fallback.
	VectorBackend   string     `yaml:"vector_backend"`
	HNSW            HNSWConfig `yaml:"hnsw"`
	TextIndex       bool       `yaml:"text_index"`
	ResultCacheSize int        `yaml:"result_cache_size"`
	DefaultLimit    int        `yaml:"default_limit"`
}

type HNSWConfig struct {
	M           int `yaml:"m"`
	EfConstruct int `yaml:"ef_construct"`
	EfSearch    int `yaml:"ef_search"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewManager creates a manager holding the default configuration.
// projectRoot is the directory searched for the project-level config file.
func NewManager(dirs *storage.Dirs, projectRoot string) *Manager {
	m := &Manager{
		dirs:        dirs,
		projectRoot: projectRoot,
	}
	m.configPtr.Store(DefaultConfig())
	return m
}

// WithFile makes Load read an explicit config file after the standard layers.
func (m *Manager) WithFile(path string) *Manager {
	m.explicit = path
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       "sqlite3",
			BusyTimeout:  5 * time.Second,
			CacheSizeKB:  8192,
			MaxOpenConns: 1,
		},
		Index: IndexConfig{
			MaxFileSize:        10 * 1024 * 1024,
			Workers:            1,
			ChunkSize:          100,
			LargeFileChunkSize: 25,
			LargeFileThreshold: 1000,
			CallAttribution:    "first",
			PruneMissing:       true,
			LockTimeout:        30 * time.Second,
		},
		Parser: ParserConfig{
			ParsersPerLanguage: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: 300,
			BatchSize: 50,
			Timeout:   30 * time.Second,
			CacheSize: 1 << 26,
		},
		Search: SearchConfig{
			VectorBackend: "hnsw",
			HNSW: HNSWConfig{
				M:           16,
				EfConstruct: 200,
				EfSearch:    50,
			},
			TextIndex:       true,
			ResultCacheSize: 256,
			DefaultLimit:    50,
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (m *Manager) Get() *Config {
	return m.configPtr.Load()
}

// Load rebuilds the configuration from defaults, the project file, the user
// file, the local override file, the explicit file and the environment, in that
// order. Later layers win key by key.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	projectDirs := storage.ResolveProjectDirs(m.projectRoot)
	layers := []struct {
		name string
		path string
	}{
		{"project config", projectDirs.Config},
		{"user config", m.dirs.ConfigDir("config.yaml")},
		{"local config", filepath.Join(projectDirs.Local, "config.yaml")},
	}
	if m.explicit != "" {
		layers = append(layers, struct {
			name string
			path string
		}{"config file", m.explicit})
	}

	for _, layer := range layers {
		if err := loadYAMLFile(layer.path, cfg); err != nil {
			return fmt.Errorf("%s: %w", layer.name, err)
		}
	}

	applyEnvironment(cfg)

	m.configPtr.Store(cfg)
	m.notifyWatchers(cfg)
	return nil
}

// Apply overlays non-zero fields of overrides onto the current configuration.
func (m *Manager) Apply(overrides *Config) {
	cfg := *m.Get()
	DeepMerge(&cfg, overrides)
	m.configPtr.Store(&cfg)
	m.notifyWatchers(&cfg)
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv(EnvPrefix + "DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvPrefix + "EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv(EnvPrefix + "VECTOR_BACKEND"); v != "" {
		cfg.Search.VectorBackend = v
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Workers = n
		}
	}
	if v := os.Getenv(EnvPrefix + "GRAMMAR_DIRS"); v != "" {
		cfg.Parser.GrammarDirs = filepath.SplitList(v)
	}
	if v := os.Getenv(EnvPrefix + "PRUNE_MISSING"); v != "" {
		cfg.Index.PruneMissing = strings.ToLower(v) == "true"
	}
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}
