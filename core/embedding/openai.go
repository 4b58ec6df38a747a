package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
)

const (
	defaultOpenAIModel  = openai.EmbeddingModelTextEmbedding3Small
	defaultOpenAIKeyEnv = "OPENAI_API_KEY"
)

type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	Timeout   time.Duration
	Retry     *coreerrors.RetryPolicy
}

// OpenAIEmbedder requests vectors of the configured width from the OpenAI
// embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig
}

func NewOpenAIEmbedder(config OpenAIConfig) (*OpenAIEmbedder, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv(defaultOpenAIKeyEnv)
	}
	if config.APIKey == "" {
		return nil, coreerrors.New(coreerrors.KindSetup, "openai embedder", ErrMissingAPIKey)
	}
	if config.Model == "" {
		config.Model = string(defaultOpenAIModel)
	}
	if config.Dimension <= 0 {
		config.Dimension = DefaultDimension
	}
	if config.Retry == nil {
		config.Retry = coreerrors.DefaultRetryPolicy()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	client := openai.NewClient(opts...)
	return &OpenAIEmbedder{client: &client, config: config}, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.config.Dimension
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(e.config.Model),
		Dimensions:     openai.Int(int64(e.config.Dimension)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}

	var resp *openai.CreateEmbeddingResponse
	err := coreerrors.Retry(ctx, e.config.Retry, func() error {
		var err error
		resp, err = e.client.Embeddings.New(ctx, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: %w: got %d for %d texts", ErrEmptyResponse, len(resp.Data), len(texts))
	}

	results := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, f := range item.Embedding {
			vec[i] = float32(f)
		}
		results[item.Index] = fit(vec, e.config.Dimension)
	}
	return results, nil
}
