package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/config"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/database"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/embedding"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/extract"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/indexer"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/query"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/storage"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/textindex"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/treesitter"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/vector"
)

// app holds every long-lived component a command needs.
type app struct {
	cfg    *config.Config
	dirs   *storage.Dirs
	logger *slog.Logger

	pools     *database.Manager
	store     *graph.Store
	vectors   *vector.Backend
	text      *textindex.Index
	embed     *embedding.Result
	grammars  *treesitter.GrammarLoader
	extractor *treesitter.Extractor
	engine    *query.Engine
	indexer   *indexer.Indexer
}

// openApp loads configuration for projectRoot and wires the store, search
// backends, extractor, query engine and indexer. The caller must close it.
func openApp(ctx context.Context, cmd *cobra.Command, projectRoot string) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	if a.dirs, err = resolveDirs(); err != nil {
		return a, err
	}
	if err = a.dirs.EnsureAll(); err != nil {
		return a, fmt.Errorf("create directories: %w", err)
	}

	if projectRoot == "" {
		projectRoot, _ = os.Getwd()
	}
	mgr := config.NewManager(a.dirs, projectRoot)
	if rootConfigFile != "" {
		mgr.WithFile(rootConfigFile)
	}
	if err = mgr.Load(); err != nil {
		return a, fmt.Errorf("load config: %w", err)
	}
	if rootLogLevel != "" {
		mgr.Apply(&config.Config{Logging: config.LoggingConfig{Level: rootLogLevel}})
	}
	a.cfg = mgr.Get()

	a.logger = newLogger(cmd.ErrOrStderr(), a.cfg.Logging)
	slog.SetDefault(a.logger)

	if err = a.openStore(ctx); err != nil {
		return a, err
	}
	if err = a.openSearch(ctx); err != nil {
		return a, err
	}
	if err = a.openIndexer(); err != nil {
		return a, err
	}
	return a, nil
}

func resolveDirs() (*storage.Dirs, error) {
	if rootDataDir != "" {
		return storage.NewDirs(rootDataDir), nil
	}
	return storage.ResolveDirs()
}

func (a *app) openStore(ctx context.Context) error {
	poolCfg := database.DefaultPoolConfig()
	dbCfg := a.cfg.Database
	if dbCfg.Driver != "" {
		poolCfg.Driver = dbCfg.Driver
	}
	if dbCfg.BusyTimeout > 0 {
		poolCfg.BusyTimeout = dbCfg.BusyTimeout
	}
	if dbCfg.CacheSizeKB > 0 {
		poolCfg.CacheSizeKB = dbCfg.CacheSizeKB
	}
	if dbCfg.MaxOpenConns > 0 {
		poolCfg.MaxOpen = dbCfg.MaxOpenConns
	}

	name := "graph"
	if dbCfg.Path != "" {
		name = dbCfg.Path
	}
	a.pools = database.NewManager(a.dirs)
	pool, err := a.pools.Open(name, poolCfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	a.store, err = graph.NewStore(ctx, pool, graph.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	return nil
}

func (a *app) openSearch(ctx context.Context) error {
	var err error
	a.embed, err = embedding.New(ctx, a.cfg.Embedding, a.logger)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	if a.cfg.Search.VectorBackend != "none" {
		hnsw := a.cfg.Search.HNSW
		a.vectors = vector.NewBackend(a.store, vector.Config{
			M:           hnsw.M,
			EfConstruct: hnsw.EfConstruct,
			EfSearch:    hnsw.EfSearch,
			Seed:        1,
		}, vector.WithBackendLogger(a.logger))
		a.store.AddListener(a.vectors)
	}

	if a.cfg.Search.TextIndex {
		a.text, err = textindex.Open(a.dirs.TextIndexPath(),
			textindex.WithLogger(a.logger),
			textindex.WithCacheSize(a.cfg.Search.ResultCacheSize))
		if err != nil {
			return fmt.Errorf("open text index: %w", err)
		}
		a.store.AddListener(a.text)
	}

	opts := []query.Option{
		query.WithLogger(a.logger),
		query.WithCacheSize(a.cfg.Search.ResultCacheSize),
	}
	if a.vectors != nil {
		opts = append(opts, query.WithVectorSearcher(a.vectors))
	}
	if a.text != nil {
		opts = append(opts, query.WithTextSearcher(a.text))
	}
	if a.embed.Embedder != nil {
		opts = append(opts, query.WithEmbedder(a.embed.Embedder))
	}
	a.engine, err = query.NewEngine(a.store, opts...)
	return err
}

func (a *app) openIndexer() error {
	parser := a.cfg.Parser
	loaderOpts := []treesitter.LoaderOption{
		treesitter.WithTrustedDir(a.dirs.GrammarDir()),
		treesitter.WithRequireVerification(parser.RequireVerification),
		treesitter.WithDisabled(parser.DisabledLanguages...),
	}
	for _, dir := range parser.GrammarDirs {
		loaderOpts = append(loaderOpts, treesitter.WithTrustedDir(dir))
	}
	for name, sum := range parser.Checksums {
		loaderOpts = append(loaderOpts, treesitter.WithChecksum(name, sum))
	}
	a.grammars = treesitter.NewGrammarLoader(loaderOpts...)
	a.extractor = treesitter.NewExtractor(a.grammars,
		treesitter.WithLogger(a.logger),
		treesitter.WithParserPool(treesitter.NewParserPool(parser.ParsersPerLanguage)))

	pipeline := extract.NewPipeline(a.extractor, extract.ParseAttribution(a.cfg.Index.CallAttribution), a.logger)

	opts := []indexer.Option{
		indexer.WithConfig(a.cfg.Index),
		indexer.WithLogger(a.logger),
		indexer.WithGrammarStatus(a.extractor),
		indexer.WithEmbedder(a.embed.Embedder, embeddingName(a.cfg.Embedding, a.embed.Source)),
	}
	if a.vectors != nil {
		opts = append(opts, indexer.WithVectorStatus(a.vectors))
	}

	var err error
	a.indexer, err = indexer.New(a.store, pipeline, database.NewLockManager(a.dirs.LockDir()), opts...)
	return err
}

func embeddingName(cfg config.EmbeddingConfig, source string) string {
	if cfg.Model == "" {
		return source
	}
	return source + "/" + cfg.Model
}

// syncTextIndex rebuilds the text index for projectID when it has drifted
// from the store, for example after writes by another process.
func (a *app) syncTextIndex(ctx context.Context, projectID string) error {
	if a.text == nil {
		return nil
	}
	rebuilt, err := a.text.Sync(ctx, a.store, projectID)
	if err != nil {
		return err
	}
	if rebuilt {
		a.logger.Info("text index rebuilt", slog.String("project", projectID))
	}
	return nil
}

func (a *app) close() {
	if a == nil {
		return
	}
	var errs []error
	if a.text != nil {
		errs = append(errs, a.text.Close())
	}
	if a.extractor != nil {
		errs = append(errs, a.extractor.Close())
	}
	if a.grammars != nil {
		errs = append(errs, a.grammars.Close())
	}
	a.embed.Close()
	if a.pools != nil {
		errs = append(errs, a.pools.CloseAll())
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn("shutdown", slog.Any("error", err))
	}
}
