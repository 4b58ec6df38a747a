package query

import (
	"context"
	"fmt"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
)

// FindCallers returns calls edges targeting any function or method named
// name, ordered by caller file then line.
func (e *Engine) FindCallers(ctx context.Context, name, projectID string) ([]CallerResult, error) {
	return cached(e, cacheKey{op: "callers", name: name, projectID: projectID}, func() ([]CallerResult, error) {
		edges, err := e.edgesInto(ctx, name, callableTypes, callTypes, projectID)
		if err != nil {
			return nil, fmt.Errorf("find callers of %q: %w", name, err)
		}

		results := make([]CallerResult, 0, len(edges))
		for _, edge := range edges {
			results = append(results, CallerResult{
				CallerID:     edge.Source.ID,
				CallerName:   edge.Source.Name,
				CallerType:   edge.Source.SymbolType,
				CallerFile:   edge.Source.FilePath,
				CallerLine:   edge.Source.LineStart,
				CallerCode:   edge.Source.CodeSnippet,
				FunctionName: edge.Target.Name,
				FunctionFile: edge.Target.FilePath,
				FunctionLine: edge.Target.LineStart,
				Data:         edge.Data,
			})
		}
		return results, nil
	})
}

// FindImplementations returns implements, extends and inherits edges
// targeting any interface, protocol or class named name.
func (e *Engine) FindImplementations(ctx context.Context, name, projectID string) ([]ImplementationResult, error) {
	return cached(e, cacheKey{op: "implementations", name: name, projectID: projectID}, func() ([]ImplementationResult, error) {
		edges, err := e.edgesInto(ctx, name, implementableTypes, implementationTypes, projectID)
		if err != nil {
			return nil, fmt.Errorf("find implementations of %q: %w", name, err)
		}

		results := make([]ImplementationResult, 0, len(edges))
		for _, edge := range edges {
			results = append(results, ImplementationResult{
				ImplementationID:   edge.Source.ID,
				ImplementationName: edge.Source.Name,
				ImplementationType: edge.Source.SymbolType,
				ImplementationFile: edge.Source.FilePath,
				ImplementationLine: edge.Source.LineStart,
				ImplementationCode: edge.Source.CodeSnippet,
				InterfaceName:      edge.Target.Name,
				InterfaceFile:      edge.Target.FilePath,
				InterfaceLine:      edge.Target.LineStart,
				RelationshipType:   edge.Type,
				Data:               edge.Data,
			})
		}
		return results, nil
	})
}

func (e *Engine) edgesInto(ctx context.Context, name string, symbolTypes, relTypes []string, projectID string) ([]graph.Edge, error) {
	targets, err := e.store.FindSymbols(ctx, name, symbolTypes, projectID)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	return e.store.EdgesTo(ctx, ids, relTypes, projectID)
}

// SymbolRelationships returns the edges of every symbol named name, tagged
// incoming or outgoing. An empty relType matches every type.
func (e *Engine) SymbolRelationships(ctx context.Context, name, relType string, dir graph.Direction, projectID string) (*RelationshipsResult, error) {
	symbols, err := e.store.FindSymbols(ctx, name, nil, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}

	out := &RelationshipsResult{
		SymbolName:       name,
		ProjectID:        projectID,
		RelationshipType: relType,
		Direction:        dir,
		Relationships:    []RelationshipResult{},
	}
	for _, sym := range symbols {
		edges, err := e.store.EdgesOf(ctx, sym.ID, relType, dir, projectID)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			related := edge.Target
			if edge.Direction == graph.DirectionIncoming {
				related = edge.Source
			}
			out.Relationships = append(out.Relationships, RelationshipResult{
				Symbol:    refOf(sym),
				Type:      edge.Type,
				Direction: edge.Direction,
				Data:      edge.Data,
				Related:   refOf(related),
			})
		}
	}
	out.TotalRelationships = len(out.Relationships)
	return out, nil
}

// CallHierarchy returns the callers of name and the functions its matching
// symbols call, one hop each way.
func (e *Engine) CallHierarchy(ctx context.Context, name, projectID string, depth int) (*CallHierarchy, error) {
	functions, err := e.store.FindSymbols(ctx, name, nil, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}
	if len(functions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}

	h := &CallHierarchy{
		FunctionName: name,
		ProjectID:    projectID,
		Depth:        depth,
		Functions:    make([]SymbolRef, 0, len(functions)),
		Callers:      []SymbolRef{},
		Callees:      []SymbolRef{},
	}
	for _, fn := range functions {
		h.Functions = append(h.Functions, refOf(fn))
	}

	callers, err := e.FindCallers(ctx, name, projectID)
	if err != nil {
		return nil, err
	}
	for _, c := range callers {
		h.Callers = append(h.Callers, SymbolRef{ID: c.CallerID, Name: c.CallerName, Type: c.CallerType, File: c.CallerFile, Line: c.CallerLine})
	}

	for _, fn := range functions {
		edges, err := e.store.EdgesOf(ctx, fn.ID, "calls", graph.DirectionOutgoing, projectID)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			h.Callees = append(h.Callees, refOf(edge.Target))
		}
	}
	return h, nil
}
