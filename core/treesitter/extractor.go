// Package treesitter extracts symbols from source files with tree-sitter
// grammars loaded at runtime and queries embedded in the binary.
package treesitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/extract"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

// Extractor implements extract.Grammar. A language without a query or an
// installed grammar yields no symbols and no error, which hands the file to
// the line-pattern fallback.
type Extractor struct {
	loader  *GrammarLoader
	parsers *ParserPool
	queries *QueryCache
	logger  *slog.Logger
}

type ExtractorOption func(*Extractor)

func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func WithParserPool(pool *ParserPool) ExtractorOption {
	return func(e *Extractor) {
		e.parsers = pool
	}
}

func NewExtractor(loader *GrammarLoader, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		loader:  loader,
		parsers: NewParserPool(0),
		queries: NewQueryCache(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ extract.Grammar = (*Extractor)(nil)

func (e *Extractor) Extract(ctx context.Context, content []byte, lang language.Language) ([]extract.RawSymbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := lang.String()
	if !HasQuery(name) {
		return nil, nil
	}

	grammar, err := e.loader.Load(name)
	if err != nil {
		if !errors.Is(err, ErrGrammarNotFound) && !errors.Is(err, ErrGrammarDisabled) {
			e.logger.Debug("grammar unavailable", slog.String("language", name), slog.Any("error", err))
		}
		return nil, nil
	}

	query, err := e.queries.Get(name, grammar)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindExtraction, "compile query", err)
	}

	parser, err := e.parsers.Get(name, grammar)
	if err != nil {
		return nil, coreerrors.New(coreerrors.KindExtraction, "parser", err)
	}
	defer e.parsers.Put(name, parser)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, coreerrors.New(coreerrors.KindExtraction, "parse", fmt.Errorf("%w: %s", ErrParseFailed, name))
	}
	defer tree.Close()

	var symbols []extract.RawSymbol
	for _, c := range runQuery(query, tree, content) {
		if sym, ok := symbolFromCapture(c, lang); ok {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

// Available reports whether grammar extraction can run for lang.
func (e *Extractor) Available(lang language.Language) bool {
	return HasQuery(lang.String()) && e.loader.Available(lang.String())
}

// Languages lists the languages with an embedded query.
func Languages() []language.Language {
	var langs []language.Language
	for _, lang := range language.All() {
		if HasQuery(lang.String()) {
			langs = append(langs, lang)
		}
	}
	return langs
}

func (e *Extractor) Stats() map[string]ParserPoolStats {
	return e.parsers.Stats()
}

func (e *Extractor) Close() error {
	e.queries.Close()
	return e.parsers.Close()
}
