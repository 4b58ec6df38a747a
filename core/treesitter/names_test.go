package treesitter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/extract"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/language"
)

func TestCaptureType(t *testing.T) {
	assert.Equal(t, "function", captureType("definition.function", language.Python))
	assert.Equal(t, "macro", captureType("definition.macro", language.Rust))
	assert.Equal(t, extract.TypeClass, captureType("class_name", language.Java))
	assert.Equal(t, extract.TypeVariable, captureType("name", language.Go))
	assert.Equal(t, extract.TypeFunction, captureType("function.name", language.Bash))
	assert.Equal(t, extract.TypeUnknown, captureType("function.name", language.Go))
	assert.Equal(t, extract.TypeUnknown, captureType("definition.", language.Go))
	assert.Equal(t, extract.TypeUnknown, captureType("reference.call", language.Go))
}

func TestNameFromDefinition(t *testing.T) {
	tests := []struct {
		text    string
		name    string
		keyword string
	}{
		{"def foo(a, b):\n    return a", "foo", "def"},
		{"async def fetch(url):", "fetch", "def"},
		{"class Widget(Base):", "Widget", "class"},
		{"export default function render() {}", "render", "function"},
		{"public static final class Holder {", "Holder", "class"},
		{"data class User(val name: String)", "User", "class"},
		{"enum class Color { RED }", "Color", "enum"},
		{"fun <T> List<T>.second(): T", "second", "fun"},
		{"private fun String.shout() = uppercase()", "shout", "fun"},
		{"pub(crate) fn run() {}", "run", "fn"},
		{"@objc public func tapped(_ sender: Any) {", "tapped", "func"},
		{"init(name: String) {", "init", "init"},
		{"interface Shape {", "Shape", "interface"},
		{"macro_rules! vec {", "vec", "macro_rules!"},
		{"namespace {", "", "namespace"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, keyword := nameFromDefinition(tt.text)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.keyword, keyword)
		})
	}
}

func TestSymbolFromCapture(t *testing.T) {
	t.Run("name field wins", func(t *testing.T) {
		sym, ok := symbolFromCapture(capture{
			name:      "definition.function",
			text:      "def foo():\n    pass",
			startRow:  4,
			endRow:    5,
			fieldName: "foo",
		}, language.Python)

		assert.True(t, ok)
		assert.Equal(t, extract.RawSymbol{
			Name: "foo", Type: "function", LineStart: 5, LineEnd: 6, Snippet: "def foo():\n    pass",
		}, sym)
	})

	t.Run("heuristic without name field", func(t *testing.T) {
		sym, ok := symbolFromCapture(capture{name: "definition.class", text: "interface Shape {\n}"}, language.Kotlin)
		assert.True(t, ok)
		assert.Equal(t, "Shape", sym.Name)
		assert.Equal(t, extract.TypeInterface, sym.Type)
	})

	t.Run("swift declaration kind refines class", func(t *testing.T) {
		for kind, want := range map[string]string{
			"struct":    extract.TypeStruct,
			"enum":      extract.TypeEnum,
			"actor":     extract.TypeActor,
			"extension": extract.TypeExtension,
			"class":     extract.TypeClass,
		} {
			sym, ok := symbolFromCapture(capture{
				name: "definition.class", text: kind + " Thing {}", fieldName: "Thing", declKind: kind,
			}, language.Swift)
			assert.True(t, ok)
			assert.Equal(t, want, sym.Type, kind)
		}
	})

	t.Run("name capture uses node text", func(t *testing.T) {
		sym, ok := symbolFromCapture(capture{name: "name", text: " counter "}, language.Go)
		assert.True(t, ok)
		assert.Equal(t, "counter", sym.Name)
		assert.Equal(t, extract.TypeVariable, sym.Type)
	})

	t.Run("unnamed definitions are dropped", func(t *testing.T) {
		_, ok := symbolFromCapture(capture{name: "definition.namespace", text: "namespace {\n}"}, language.CPP)
		assert.False(t, ok)
	})
}
