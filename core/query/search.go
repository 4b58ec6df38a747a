package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/embedding"
	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
)

// SearchByName returns symbols whose name contains text, case-insensitively,
// ordered by name then file. A limit of zero or less returns every match.
func (e *Engine) SearchByName(ctx context.Context, text, language, projectID string, limit int) ([]ScoredSymbol, error) {
	key := cacheKey{op: "name", name: text, language: language, projectID: projectID, limit: limit}
	return cached(e, key, func() ([]ScoredSymbol, error) {
		symbols, err := e.store.SearchByName(ctx, text, language, projectID, limit)
		if err != nil {
			return nil, fmt.Errorf("search by name %q: %w", text, err)
		}
		results := make([]ScoredSymbol, len(symbols))
		for i, s := range symbols {
			results[i] = ScoredSymbol{Symbol: s}
		}
		return results, nil
	})
}

// SearchSemantic returns the topK symbols nearest to vec. Without a healthy
// vector backend it returns up to topK unranked symbols with score 0 and
// Degraded set, and logs a warning. Only a store failure during that
// fallback is returned as an error.
func (e *Engine) SearchSemantic(ctx context.Context, vec []float32, topK int, projectID string) (*SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	switch {
	case e.vectors == nil:
		return e.degraded(ctx, "", topK, projectID, errors.New("vector backend disabled"))
	case embedding.IsZero(vec):
		return e.degraded(ctx, "", topK, projectID, errors.New("query vector is empty"))
	}

	hits, err := e.vectors.Search(ctx, vec, topK, projectID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.degraded(ctx, "", topK, projectID, err)
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	symbols, err := e.store.SymbolsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load semantic hits: %w", err)
	}

	out := &SearchResult{Results: make([]ScoredSymbol, 0, len(hits))}
	for _, h := range hits {
		s, ok := symbols[h.ID]
		if !ok {
			continue
		}
		out.Results = append(out.Results, ScoredSymbol{Symbol: s, Score: h.Similarity})
	}
	return out, nil
}

// SearchSemanticText embeds text with the configured generator and runs
// SearchSemantic. A missing or failing generator degrades the same way a
// missing vector backend does.
func (e *Engine) SearchSemanticText(ctx context.Context, text string, topK int, projectID string) (*SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if e.embedder == nil {
		return e.degraded(ctx, text, topK, projectID, errors.New("no embedding provider configured"))
	}

	vec, err := e.embedder.Embed(ctx, embedding.Clean(text))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.degraded(ctx, text, topK, projectID, fmt.Errorf("embed query: %w", err))
	}

	res, err := e.SearchSemantic(ctx, vec, topK, projectID)
	if err != nil {
		return nil, err
	}
	res.Query = text
	return res, nil
}

func (e *Engine) degraded(ctx context.Context, text string, topK int, projectID string, cause error) (*SearchResult, error) {
	werr := coreerrors.New(coreerrors.KindVectorBackendUnavailable, "search_semantic", cause)
	e.logger.Warn("semantic search degraded, returning unranked symbols",
		slog.String("kind", werr.Kind.String()),
		slog.String("project", projectID),
		slog.Any("error", werr))

	symbols, err := e.store.SampleSymbols(ctx, projectID, topK)
	if err != nil {
		return nil, fmt.Errorf("semantic fallback: %w", err)
	}
	out := &SearchResult{
		Query:    text,
		Results:  make([]ScoredSymbol, len(symbols)),
		Degraded: true,
		Reason:   cause.Error(),
	}
	for i, s := range symbols {
		out.Results[i] = ScoredSymbol{Symbol: s}
	}
	return out, nil
}

// SearchText runs a full-text query over symbol names and snippets.
func (e *Engine) SearchText(ctx context.Context, text, projectID string, limit int) (*SearchResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if e.text == nil {
		return nil, ErrTextIndexDisabled
	}
	if limit <= 0 {
		limit = DefaultTopK
	}

	hits, err := e.text.Search(ctx, text, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("text search %q: %w", text, err)
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.SymbolID
	}
	symbols, err := e.store.SymbolsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load text hits: %w", err)
	}

	out := &SearchResult{Query: text, Results: make([]ScoredSymbol, 0, len(hits))}
	for _, h := range hits {
		if s, ok := symbols[h.SymbolID]; ok {
			out.Results = append(out.Results, ScoredSymbol{Symbol: s, Score: h.Score})
		}
	}
	return out, nil
}
