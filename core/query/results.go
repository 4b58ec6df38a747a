package query

import (
	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
)

// SymbolRef is the short form of a symbol used inside results.
type SymbolRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	File string `json:"file"`
	Line int    `json:"line"`
}

func refOf(s graph.Symbol) SymbolRef {
	return SymbolRef{ID: s.ID, Name: s.Name, Type: s.SymbolType, File: s.FilePath, Line: s.LineStart}
}

// CallerResult is one calls edge into a queried function.
type CallerResult struct {
	CallerID     int64                  `json:"caller_id"`
	CallerName   string                 `json:"caller_name"`
	CallerType   string                 `json:"caller_type"`
	CallerFile   string                 `json:"caller_file"`
	CallerLine   int                    `json:"caller_line"`
	CallerCode   string                 `json:"caller_code"`
	FunctionName string                 `json:"function_name"`
	FunctionFile string                 `json:"function_file"`
	FunctionLine int                    `json:"function_line"`
	Data         graph.RelationshipData `json:"relationship_data"`
}

// ImplementationResult is one implements, extends or inherits edge into a
// queried type.
type ImplementationResult struct {
	ImplementationID   int64                  `json:"implementation_id"`
	ImplementationName string                 `json:"implementation_name"`
	ImplementationType string                 `json:"implementation_type"`
	ImplementationFile string                 `json:"implementation_file"`
	ImplementationLine int                    `json:"implementation_line"`
	ImplementationCode string                 `json:"implementation_code"`
	InterfaceName      string                 `json:"interface_name"`
	InterfaceFile      string                 `json:"interface_file"`
	InterfaceLine      int                    `json:"interface_line"`
	RelationshipType   string                 `json:"relationship_type"`
	Data               graph.RelationshipData `json:"relationship_data"`
}

// RelationshipResult is one edge seen from a resolved symbol. Related is the
// other endpoint.
type RelationshipResult struct {
	Symbol    SymbolRef              `json:"symbol"`
	Type      string                 `json:"type"`
	Direction graph.Direction        `json:"direction"`
	Data      graph.RelationshipData `json:"data"`
	Related   SymbolRef              `json:"related_symbol"`
}

type RelationshipsResult struct {
	SymbolName         string               `json:"symbol_name"`
	ProjectID          string               `json:"project_id,omitempty"`
	RelationshipType   string               `json:"relationship_type,omitempty"`
	Direction          graph.Direction      `json:"direction"`
	TotalRelationships int                  `json:"total_relationships"`
	Relationships      []RelationshipResult `json:"relationships"`
}

// GraphNode is keyed "file:name"; the first symbol seen with the key wins.
type GraphNode struct {
	Key  string `json:"key"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	File string `json:"file"`
}

type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// DependencyGraph holds every relationship in scope. MaxDepth is echoed
// back and does not limit the graph.
type DependencyGraph struct {
	ProjectID  string      `json:"project_id,omitempty"`
	MaxDepth   int         `json:"max_depth"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
	TotalNodes int         `json:"total_nodes"`
	TotalEdges int         `json:"total_edges"`
	// Cycles lists strongly connected node groups larger than one node.
	Cycles [][]string `json:"cycles"`
}

// CallHierarchy is one hop of callers and callees. Depth is echoed back and
// does not make the walk recursive.
type CallHierarchy struct {
	FunctionName string      `json:"function_name"`
	ProjectID    string      `json:"project_id,omitempty"`
	Depth        int         `json:"max_depth"`
	Functions    []SymbolRef `json:"functions"`
	Callers      []SymbolRef `json:"callers"`
	Callees      []SymbolRef `json:"callees"`
}

// ScoredSymbol is a search hit. Score is cosine similarity for semantic
// search, bleve relevance for text search, and 0 for degraded results.
type ScoredSymbol struct {
	graph.Symbol
	Score float64 `json:"score"`
}

// SearchResult carries ranked hits. Degraded marks a semantic search that
// fell back to unranked symbol rows.
type SearchResult struct {
	Query    string         `json:"query,omitempty"`
	Results  []ScoredSymbol `json:"results"`
	Degraded bool           `json:"degraded"`
	Reason   string         `json:"reason,omitempty"`
}
