package textindex

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	unicodetok "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// AnalyzerName indexes identifiers and code: unicode words, split into
	// camelCase and snake_case parts, lowercased.
	AnalyzerName = "codebase_identifier"

	identifierFilterName = "codebase_identifier_parts"
)

func init() {
	registry.RegisterTokenFilter(identifierFilterName, newIdentifierFilter)
	registry.RegisterAnalyzer(AnalyzerName, newIdentifierAnalyzer)
}

func newIdentifierAnalyzer(_ map[string]interface{}, cache *registry.Cache) (analysis.Analyzer, error) {
	tokenizer, err := cache.TokenizerNamed(unicodetok.Name)
	if err != nil {
		return nil, err
	}
	parts, err := cache.TokenFilterNamed(identifierFilterName)
	if err != nil {
		return nil, err
	}
	lower, err := cache.TokenFilterNamed(lowercase.Name)
	if err != nil {
		return nil, err
	}
	return &analysis.DefaultAnalyzer{
		Tokenizer:    tokenizer,
		TokenFilters: []analysis.TokenFilter{parts, lower},
	}, nil
}

// identifierFilter keeps each token and appends its camelCase and
// snake_case parts, so parseConfig matches "parse", "config" and itself.
type identifierFilter struct{}

func newIdentifierFilter(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return identifierFilter{}, nil
}

func (identifierFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input)*2)
	for _, token := range input {
		out = append(out, token)
		parts := splitIdentifier(string(token.Term))
		if len(parts) <= 1 {
			continue
		}
		for _, part := range parts {
			out = append(out, &analysis.Token{
				Term:     []byte(part),
				Start:    token.Start,
				End:      token.End,
				Position: token.Position,
				Type:     token.Type,
			})
		}
	}
	return out
}

// splitIdentifier splits on '_' and '-' and then on case transitions.
// XMLParser splits as XML, Parser.
func splitIdentifier(s string) []string {
	var parts []string
	for _, word := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' }) {
		parts = append(parts, splitCamel([]rune(word))...)
	}
	return parts
}

func splitCamel(runes []rune) []string {
	if len(runes) == 0 {
		return nil
	}

	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, curr := runes[i-1], runes[i]
		lowerToUpper := !unicode.IsUpper(prev) && unicode.IsUpper(curr)
		acronymEnd := unicode.IsUpper(prev) && unicode.IsUpper(curr) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if lowerToUpper || acronymEnd {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}
