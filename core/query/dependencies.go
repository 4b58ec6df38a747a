package query

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// DependencyGraph builds a node per "file:name" key and an edge per
// relationship in scope. maxDepth is recorded but does not prune.
func (e *Engine) DependencyGraph(ctx context.Context, projectID string, maxDepth int) (*DependencyGraph, error) {
	edges, err := e.store.AllEdges(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("dependency graph: %w", err)
	}

	out := &DependencyGraph{
		ProjectID: projectID,
		MaxDepth:  maxDepth,
		Nodes:     []GraphNode{},
		Edges:     make([]GraphEdge, 0, len(edges)),
		Cycles:    [][]string{},
	}

	index := make(map[string]int64)
	directed := simple.NewDirectedGraph()
	addNode := func(key string, node GraphNode) int64 {
		if id, ok := index[key]; ok {
			return id
		}
		id := int64(len(out.Nodes))
		index[key] = id
		node.Key = key
		out.Nodes = append(out.Nodes, node)
		directed.AddNode(simple.Node(id))
		return id
	}

	for _, edge := range edges {
		sourceKey := edge.Source.FilePath + ":" + edge.Source.Name
		targetKey := edge.Target.FilePath + ":" + edge.Target.Name
		from := addNode(sourceKey, GraphNode{ID: edge.Source.ID, Name: edge.Source.Name, Type: edge.Source.SymbolType, File: edge.Source.FilePath})
		to := addNode(targetKey, GraphNode{ID: edge.Target.ID, Name: edge.Target.Name, Type: edge.Target.SymbolType, File: edge.Target.FilePath})

		out.Edges = append(out.Edges, GraphEdge{Source: sourceKey, Target: targetKey, Type: edge.Type})
		if from != to {
			directed.SetEdge(directed.NewEdge(simple.Node(from), simple.Node(to)))
		}
	}

	for _, component := range topo.TarjanSCC(directed) {
		if len(component) < 2 {
			continue
		}
		keys := make([]string, len(component))
		for i, n := range component {
			keys[i] = out.Nodes[n.ID()].Key
		}
		sort.Strings(keys)
		out.Cycles = append(out.Cycles, keys)
	}
	sort.Slice(out.Cycles, func(i, j int) bool {
		return out.Cycles[i][0] < out.Cycles[j][0]
	})

	out.TotalNodes = len(out.Nodes)
	out.TotalEdges = len(out.Edges)
	return out, nil
}
