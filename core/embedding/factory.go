package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/config"
	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
)

const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Result is a ready generator chain: provider, cache and batcher.
type Result struct {
	// Embedder is nil when the provider is "none".
	Embedder Embedder
	Source   string
	cache    *CachedEmbedder
}

func (r *Result) Close() {
	if r != nil && r.cache != nil {
		r.cache.Close()
	}
}

// New builds the configured generator. Remote providers without credentials
// fail with a setup error rather than silently falling back.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderLocal
	}

	var (
		base Embedder
		err  error
	)
	switch provider {
	case ProviderNone:
		return &Result{Source: ProviderNone}, nil
	case ProviderLocal:
		base = NewLocalEmbedder(cfg.Dimension)
	case ProviderOpenAI:
		base, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    apiKey(cfg.APIKeyEnv),
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case ProviderGemini:
		base, err = NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:    apiKey(cfg.APIKeyEnv),
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, coreerrors.New(coreerrors.KindSetup, "embedding provider", fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider))
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Source: provider}
	chain := base
	if cfg.CacheSize > 0 {
		cached, err := NewCachedEmbedder(base, provider+"/"+cfg.Model, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		result.cache = cached
		chain = cached
	}
	result.Embedder = NewBatcher(chain, WithBatchSize(cfg.BatchSize), WithBatchLogger(logger))

	logger.Debug("embedding generator ready",
		slog.String("provider", provider),
		slog.Int("dimension", result.Embedder.Dimension()))
	return result, nil
}

func apiKey(env string) string {
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}
