package treesitter

import (
	"embed"
	"fmt"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

//go:embed queries/*.scm
var queryFS embed.FS

// QueryCache compiles each language's embedded symbol query once.
type QueryCache struct {
	queries map[string]*sitter.Query
	mu      sync.RWMutex
}

func NewQueryCache() *QueryCache {
	return &QueryCache{
		queries: make(map[string]*sitter.Query),
	}
}

// HasQuery reports whether a symbol query ships for the language.
func HasQuery(langName string) bool {
	_, err := queryFS.ReadFile(queryPath(langName))
	return err == nil
}

func queryPath(langName string) string {
	return fmt.Sprintf("queries/%s.scm", langName)
}

// Get returns the compiled query for langName, compiling it against lang on
// first use.
func (qc *QueryCache) Get(langName string, lang *sitter.Language) (*sitter.Query, error) {
	qc.mu.RLock()
	if q, ok := qc.queries[langName]; ok {
		qc.mu.RUnlock()
		return q, nil
	}
	qc.mu.RUnlock()

	qc.mu.Lock()
	defer qc.mu.Unlock()

	if q, ok := qc.queries[langName]; ok {
		return q, nil
	}

	source, err := queryFS.ReadFile(queryPath(langName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoQuery, langName)
	}

	q, qerr := sitter.NewQuery(lang, string(source))
	if qerr != nil {
		return nil, fmt.Errorf("%w for %s: %s", ErrInvalidQuery, langName, qerr.Error())
	}

	qc.queries[langName] = q
	return q, nil
}

func (qc *QueryCache) Close() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	for _, q := range qc.queries {
		q.Close()
	}
	qc.queries = make(map[string]*sitter.Query)
}

// capture is a query capture copied out of the tree so it outlives it.
type capture struct {
	index     uint32
	name      string
	text      string
	startRow  uint
	endRow    uint
	fieldName string
	declKind  string
}

// runQuery executes q over the tree and returns captures grouped by capture
// index (the order capture names first appear in the query), each group in
// document order.
func runQuery(q *sitter.Query, tree *sitter.Tree, source []byte) []capture {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	names := q.CaptureNames()
	groups := make([][]capture, len(names))

	matches := cursor.Matches(q, tree.RootNode(), source)
	for match := matches.Next(); match != nil; match = matches.Next() {
		for _, c := range match.Captures {
			if int(c.Index) >= len(names) {
				continue
			}
			node := c.Node
			groups[c.Index] = append(groups[c.Index], capture{
				index:     c.Index,
				name:      names[c.Index],
				text:      node.Utf8Text(source),
				startRow:  node.StartPosition().Row,
				endRow:    node.EndPosition().Row,
				fieldName: declaredName(&node, source),
				declKind:  fieldText(&node, "declaration_kind", source),
			})
		}
	}

	var out []capture
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func fieldText(node *sitter.Node, field string, source []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Utf8Text(source)
}

// identifierKinds end a declarator chain.
var identifierKinds = map[string]bool{
	"identifier":        true,
	"field_identifier":  true,
	"type_identifier":   true,
	"destructor_name":   true,
	"operator_name":     true,
	"simple_identifier": true,
}

// declaredName reads the name a grammar attaches to a definition node: its
// name field, or the identifier at the end of a C-style declarator chain.
func declaredName(node *sitter.Node, source []byte) string {
	if name := fieldText(node, "name", source); name != "" {
		return name
	}

	d := node.ChildByFieldName("declarator")
	for depth := 0; d != nil && depth < 16; depth++ {
		kind := d.Kind()
		if identifierKinds[kind] {
			return d.Utf8Text(source)
		}
		if kind == "qualified_identifier" {
			if name := d.ChildByFieldName("name"); name != nil {
				if identifierKinds[name.Kind()] {
					return name.Utf8Text(source)
				}
				d = name
				continue
			}
			return d.Utf8Text(source)
		}
		d = d.ChildByFieldName("declarator")
	}
	return ""
}
