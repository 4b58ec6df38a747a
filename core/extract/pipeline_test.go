package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

type stubGrammar struct {
	symbols []RawSymbol
	err     error
	panics  bool
}

func (g *stubGrammar) Extract(context.Context, []byte, language.Language) ([]RawSymbol, error) {
	if g.panics {
		panic("parser crashed")
	}
	return g.symbols, g.err
}

const scenarioA = "def foo(): pass\ndef bar(): foo()\n"

func TestPipeline_PrefersGrammar(t *testing.T) {
	grammar := &stubGrammar{symbols: []RawSymbol{
		{Name: "foo", Type: TypeFunction, LineStart: 1, LineEnd: 1, Snippet: "def foo(): pass"},
	}}
	p := NewPipeline(grammar, AttributeFirst, nil)

	res := p.Extract(context.Background(), "foo.py", []byte(scenarioA), language.Python)

	assert.Equal(t, "grammar", res.Method)
	assert.Len(t, res.Symbols, 1)
}

func TestPipeline_FallsBack(t *testing.T) {
	tests := []struct {
		name    string
		grammar Grammar
	}{
		{"no grammar", nil},
		{"zero captures", &stubGrammar{}},
		{"grammar error", &stubGrammar{err: errors.New("query failed")}},
		{"grammar panic", &stubGrammar{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.grammar, AttributeFirst, nil)

			res := p.Extract(context.Background(), "foo.py", []byte(scenarioA), language.Python)

			assert.Equal(t, "fallback", res.Method)
			require.Len(t, res.Symbols, 2)
			assert.Equal(t, 1, res.Relationships.Count())
			assert.Equal(t, "foo", res.Relationships["bar"][0].Target)
		})
	}
}

func TestPipeline_NothingFound(t *testing.T) {
	p := NewPipeline(nil, AttributeFirst, nil)

	res := p.Extract(context.Background(), "notes.py", []byte("# just a comment\n"), language.Python)

	assert.Equal(t, "none", res.Method)
	assert.Empty(t, res.Symbols)
	assert.NotNil(t, res.Relationships)
}
