package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const symbolColumns = `id, project_id, language, symbol_type, name, file_path, line_start, line_end,
	code_snippet, file_hash`

func scanSymbol(row rowScanner) (Symbol, error) {
	var sym Symbol
	err := row.Scan(&sym.ID, &sym.ProjectID, &sym.Language, &sym.SymbolType, &sym.Name, &sym.FilePath,
		&sym.LineStart, &sym.LineEnd, &sym.CodeSnippet, &sym.FileHash)
	return sym, err
}

func (s *Store) querySymbols(ctx context.Context, query string, args ...any) ([]Symbol, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// FindSymbols returns symbols named exactly name, restricted to types when
// non-empty and to projectID when non-empty, ordered by id.
func (s *Store) FindSymbols(ctx context.Context, name string, types []string, projectID string) ([]Symbol, error) {
	var where []string
	args := []any{name}
	where = append(where, "name = ?")

	if len(types) > 0 {
		where = append(where, "symbol_type IN ("+placeholders(len(types))+")")
		args = append(args, stringArgs(types)...)
	}
	if projectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, projectID)
	}

	symbols, err := s.querySymbols(ctx,
		"SELECT "+symbolColumns+" FROM symbols WHERE "+strings.Join(where, " AND ")+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("find symbols %q: %w", name, err)
	}
	return symbols, nil
}

// ProjectSymbols returns every symbol of a project, restricted to language
// when non-empty, ordered by language, name, file and line.
func (s *Store) ProjectSymbols(ctx context.Context, projectID, language string) ([]Symbol, error) {
	query := "SELECT " + symbolColumns + " FROM symbols WHERE project_id = ?"
	args := []any{projectID}
	if language != "" {
		query += " AND language = ?"
		args = append(args, language)
	}
	query += " ORDER BY language, name, file_path, line_start"

	symbols, err := s.querySymbols(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list symbols of %s: %w", projectID, err)
	}
	return symbols, nil
}

// SymbolsByID loads symbols by id. Missing ids are absent from the map.
func (s *Store) SymbolsByID(ctx context.Context, ids []int64) (map[int64]Symbol, error) {
	result := make(map[int64]Symbol, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	symbols, err := s.querySymbols(ctx,
		"SELECT "+symbolColumns+" FROM symbols WHERE id IN ("+placeholders(len(ids))+")", int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("load symbols: %w", err)
	}
	for _, sym := range symbols {
		result[sym.ID] = sym
	}
	return result, nil
}

// SearchByName matches name case-insensitively as a substring, ordered by
// name then file. language and projectID filter when non-empty; limit <= 0
// returns every match.
func (s *Store) SearchByName(ctx context.Context, text, language, projectID string, limit int) ([]Symbol, error) {
	where := []string{"name LIKE ? ESCAPE '\\'"}
	args := []any{"%" + escapeLike(text) + "%"}

	if language != "" {
		where = append(where, "language = ?")
		args = append(args, language)
	}
	if projectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, projectID)
	}

	query := "SELECT " + symbolColumns + " FROM symbols WHERE " + strings.Join(where, " AND ") +
		" ORDER BY name, file_path, line_start"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	symbols, err := s.querySymbols(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search by name %q: %w", text, err)
	}
	return symbols, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SampleSymbols returns up to limit symbols in id order. It backs the
// unranked semantic search fallback.
func (s *Store) SampleSymbols(ctx context.Context, projectID string, limit int) ([]Symbol, error) {
	query := "SELECT " + symbolColumns + " FROM symbols"
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	symbols, err := s.querySymbols(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sample symbols: %w", err)
	}
	return symbols, nil
}

// EachSymbol streams every symbol of a project (all projects when empty) in
// id order. fn must not call back into the store.
func (s *Store) EachSymbol(ctx context.Context, projectID string, fn func(Symbol) error) error {
	query := "SELECT " + symbolColumns + " FROM symbols"
	var args []any
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("read symbols: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return err
		}
		if err := fn(sym); err != nil {
			return err
		}
	}
	return rows.Err()
}

const edgeSelect = `
	SELECT r.id, r.project_id, r.relationship_type, r.relationship_data,
		s.id, s.project_id, s.language, s.symbol_type, s.name, s.file_path, s.line_start, s.line_end, s.code_snippet, s.file_hash,
		t.id, t.project_id, t.language, t.symbol_type, t.name, t.file_path, t.line_start, t.line_end, t.code_snippet, t.file_hash
	FROM relationships r
	JOIN symbols s ON r.source_symbol_id = s.id
	JOIN symbols t ON r.target_symbol_id = t.id`

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]Edge, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var (
			e    Edge
			data sql.NullString
		)
		src, tgt := &e.Source, &e.Target
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Type, &data,
			&src.ID, &src.ProjectID, &src.Language, &src.SymbolType, &src.Name, &src.FilePath, &src.LineStart, &src.LineEnd, &src.CodeSnippet, &src.FileHash,
			&tgt.ID, &tgt.ProjectID, &tgt.Language, &tgt.SymbolType, &tgt.Name, &tgt.FilePath, &tgt.LineStart, &tgt.LineEnd, &tgt.CodeSnippet, &tgt.FileHash,
		); err != nil {
			return nil, err
		}
		if data.Valid && data.String != "" {
			_ = json.Unmarshal([]byte(data.String), &e.Data)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesTo returns relationships of the given types whose target is one of
// targetIDs, ordered by source file then source line.
func (s *Store) EdgesTo(ctx context.Context, targetIDs []int64, types []string, projectID string) ([]Edge, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}

	where := []string{"r.target_symbol_id IN (" + placeholders(len(targetIDs)) + ")"}
	args := int64Args(targetIDs)
	if len(types) > 0 {
		where = append(where, "r.relationship_type IN ("+placeholders(len(types))+")")
		args = append(args, stringArgs(types)...)
	}
	if projectID != "" {
		where = append(where, "r.project_id = ?")
		args = append(args, projectID)
	}

	edges, err := s.queryEdges(ctx,
		edgeSelect+" WHERE "+strings.Join(where, " AND ")+" ORDER BY s.file_path, s.line_start, r.id", args...)
	if err != nil {
		return nil, fmt.Errorf("edges to %v: %w", targetIDs, err)
	}
	return edges, nil
}

// EdgesOf returns relationships touching symbolID in the given direction,
// optionally filtered by type, ordered by type, source name, target name.
// Each edge is tagged incoming or outgoing relative to symbolID.
func (s *Store) EdgesOf(ctx context.Context, symbolID int64, relType string, dir Direction, projectID string) ([]Edge, error) {
	var where []string
	var args []any
	switch dir {
	case DirectionOutgoing:
		where = append(where, "r.source_symbol_id = ?")
		args = append(args, symbolID)
	case DirectionIncoming:
		where = append(where, "r.target_symbol_id = ?")
		args = append(args, symbolID)
	default:
		where = append(where, "(r.source_symbol_id = ? OR r.target_symbol_id = ?)")
		args = append(args, symbolID, symbolID)
	}
	if relType != "" {
		where = append(where, "r.relationship_type = ?")
		args = append(args, relType)
	}
	if projectID != "" {
		where = append(where, "r.project_id = ?")
		args = append(args, projectID)
	}

	edges, err := s.queryEdges(ctx,
		edgeSelect+" WHERE "+strings.Join(where, " AND ")+" ORDER BY r.relationship_type, s.name, t.name, r.id", args...)
	if err != nil {
		return nil, fmt.Errorf("edges of %d: %w", symbolID, err)
	}

	for i := range edges {
		if edges[i].Source.ID == symbolID {
			edges[i].Direction = DirectionOutgoing
		} else {
			edges[i].Direction = DirectionIncoming
		}
	}
	return edges, nil
}

// AllEdges returns every relationship in scope ordered by type, source name,
// target name.
func (s *Store) AllEdges(ctx context.Context, projectID string) ([]Edge, error) {
	query := edgeSelect
	var args []any
	if projectID != "" {
		query += " WHERE r.project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY r.relationship_type, s.name, t.name, r.id"

	edges, err := s.queryEdges(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("all edges: %w", err)
	}
	return edges, nil
}
