package embedding

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
)

const (
	defaultGeminiModel  = "gemini-embedding-001"
	defaultGeminiKeyEnv = "GEMINI_API_KEY"
)

type GeminiConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	Retry     *coreerrors.RetryPolicy
}

// GeminiEmbedder requests vectors from the Gemini API with the output
// dimensionality pinned to the configured width.
type GeminiEmbedder struct {
	client *genai.Client
	config GeminiConfig
}

func NewGeminiEmbedder(ctx context.Context, config GeminiConfig) (*GeminiEmbedder, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv(defaultGeminiKeyEnv)
	}
	if config.APIKey == "" {
		return nil, coreerrors.New(coreerrors.KindSetup, "gemini embedder", ErrMissingAPIKey)
	}
	if config.Model == "" {
		config.Model = defaultGeminiModel
	}
	if config.Dimension <= 0 {
		config.Dimension = DefaultDimension
	}
	if config.Retry == nil {
		config.Retry = coreerrors.DefaultRetryPolicy()
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindSetup, "gemini embedder", err)
	}
	return &GeminiEmbedder{client: client, config: config}, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dim := int32(e.config.Dimension)
	config := &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dim,
	}

	var resp *genai.EmbedContentResponse
	err := coreerrors.Retry(ctx, e.config.Retry, func() error {
		var err error
		resp, err = e.client.Models.EmbedContent(ctx, e.config.Model, contents, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: %w", ErrEmptyResponse)
	}

	results := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini embeddings: %w: item %d", ErrEmptyResponse, i)
		}
		results[i] = fit(emb.Values, e.config.Dimension)
	}
	return results, nil
}
