package graph

import (
	"context"
	"fmt"
)

// Stats summarizes one project, or every project when projectID is empty.
func (s *Store) Stats(ctx context.Context, projectID string) (*Stats, error) {
	st := &Stats{
		ProjectID:         projectID,
		Languages:         make(map[string]int64),
		RelationshipTypes: make(map[string]int64),
	}

	where, args := "", []any(nil)
	if projectID != "" {
		where, args = " WHERE project_id = ?", []any{projectID}
	}

	counts := []struct {
		dest  *int64
		query string
	}{
		{&st.TotalSymbols, "SELECT COUNT(*) FROM symbols" + where},
		{&st.SymbolsWithEmbeddings, "SELECT COUNT(*) FROM symbol_embeddings" + where},
		{&st.TotalFiles, "SELECT COUNT(*) FROM (SELECT DISTINCT project_id, file_path FROM symbols" + where + ")"},
		{&st.TotalRelationships, "SELECT COUNT(*) FROM relationships" + where},
	}
	for _, c := range counts {
		if err := s.pool.QueryRow(ctx, c.query, args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}

	if err := s.groupCount(ctx, "SELECT language, COUNT(*) FROM symbols"+where+" GROUP BY language", args, st.Languages); err != nil {
		return nil, fmt.Errorf("stats by language: %w", err)
	}
	if err := s.groupCount(ctx, "SELECT relationship_type, COUNT(*) FROM relationships"+where+" GROUP BY relationship_type", args, st.RelationshipTypes); err != nil {
		return nil, fmt.Errorf("stats by relationship type: %w", err)
	}
	return st, nil
}

func (s *Store) groupCount(ctx context.Context, query string, args []any, into map[string]int64) error {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
