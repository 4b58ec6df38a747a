// Package extract turns file content into raw symbols and relationships.
//
// Grammar-based extraction is pluggable through the Grammar interface; when it
// yields nothing the per-language line-pattern tables take over. Relationship
// inference runs over the raw text in both cases.
package extract

// Symbol types produced by the extractors. Types are open strings; grammar
// captures may yield values outside this set.
const (
	TypeFunction    = "function"
	TypeMethod      = "method"
	TypeClass       = "class"
	TypeStruct      = "struct"
	TypeInterface   = "interface"
	TypeProtocol    = "protocol"
	TypeTrait       = "trait"
	TypeEnum        = "enum"
	TypeVariable    = "variable"
	TypeConstant    = "constant"
	TypeModule      = "module"
	TypePackage     = "package"
	TypeNamespace   = "namespace"
	TypeProperty    = "property"
	TypeType        = "type"
	TypeConstructor = "constructor"
	TypeInitializer = "initializer"
	TypeExtension   = "extension"
	TypeActor       = "actor"
	TypeMacro       = "macro"
	TypeHeading     = "heading"
	TypeKey         = "key"
	TypeTable       = "table"
	TypeSection     = "section"
	TypeUnknown     = "unknown"
)

// Relationship types.
const (
	RelCalls      = "calls"
	RelInherits   = "inherits"
	RelImplements = "implements"
	RelExtends    = "extends"
	RelImports    = "imports"
	RelExports    = "exports"
	RelReferences = "references"
	RelContains   = "contains"
	RelUses       = "uses"
	RelDependsOn  = "depends_on"
	RelOverrides  = "overrides"
	RelSources    = "sources"
)

// RawSymbol is an extracted symbol before it has a store id.
type RawSymbol struct {
	Name      string `json:"name"`
	Type      string `json:"symbol_type"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Snippet   string `json:"code_snippet"`
}

// Contains reports whether line falls within the symbol's range.
func (s RawSymbol) Contains(line int) bool {
	return s.LineStart <= line && line <= s.LineEnd
}

// Span is the number of lines covered minus one.
func (s RawSymbol) Span() int {
	return s.LineEnd - s.LineStart
}

// RawRelationship is an unresolved edge. Target is a symbol name looked up
// project-wide at persist time.
type RawRelationship struct {
	Type       string `json:"type"`
	Target     string `json:"target"`
	TargetType string `json:"target_type"`
	Line       int    `json:"line"`
}

// Relationships groups raw edges by the name of their source symbol.
type Relationships map[string][]RawRelationship

func (r Relationships) add(source string, rel RawRelationship) {
	r[source] = append(r[source], rel)
}

// Count returns the total number of edges.
func (r Relationships) Count() int {
	n := 0
	for _, rels := range r {
		n += len(rels)
	}
	return n
}

// Result is everything extracted from one file.
type Result struct {
	Symbols       []RawSymbol
	Relationships Relationships
	// Method is "grammar", "fallback" or "none".
	Method string
}
