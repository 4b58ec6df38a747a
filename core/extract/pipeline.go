package extract

import (
	"context"
	"fmt"
	"log/slog"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

// Grammar is a syntax-tree backed extractor. Returning no symbols, with or
// without an error, hands the file to the line-pattern tables.
type Grammar interface {
	Extract(ctx context.Context, content []byte, lang language.Language) ([]RawSymbol, error)
}

// Pipeline runs grammar extraction, the line-pattern fallback and
// relationship inference for one file at a time. It is safe for concurrent
// use when the Grammar is.
type Pipeline struct {
	grammar    Grammar
	inferencer *Inferencer
	logger     *slog.Logger
}

// NewPipeline builds a pipeline. grammar may be nil, in which case every file
// goes straight to the line patterns.
func NewPipeline(grammar Grammar, attribution Attribution, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		grammar:    grammar,
		inferencer: NewInferencer(attribution),
		logger:     logger,
	}
}

// Extract never fails: grammar errors are logged and trigger the fallback.
func (p *Pipeline) Extract(ctx context.Context, path string, content []byte, lang language.Language) Result {
	lines := SplitLines(content)

	symbols, err := p.extractGrammar(ctx, content, lang)
	method := "grammar"
	if err != nil {
		p.logger.Debug("grammar extraction failed, using line patterns",
			slog.String("path", path),
			slog.String("language", lang.String()),
			slog.Any("error", err))
	}
	if len(symbols) == 0 {
		symbols = Fallback(lines, lang)
		method = "fallback"
	}
	if len(symbols) == 0 {
		return Result{Method: "none", Relationships: Relationships{}}
	}

	return Result{
		Symbols:       symbols,
		Relationships: p.inferencer.Infer(lines, symbols, lang),
		Method:        method,
	}
}

func (p *Pipeline) extractGrammar(ctx context.Context, content []byte, lang language.Language) (symbols []RawSymbol, err error) {
	if p.grammar == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			symbols = nil
			err = coreerrors.New(coreerrors.KindExtraction, "grammar", fmt.Errorf("panic: %v", r))
		}
	}()
	return p.grammar.Extract(ctx, content, lang)
}
