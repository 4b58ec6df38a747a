package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	coreerrors "github.com/emilylaguna/codebase-analyzer-mcp/core/errors"
)

// FileNeedsUpdate reports whether the hash recorded for the file differs
// from hash. A file with no recorded hash needs an update.
func (s *Store) FileNeedsUpdate(ctx context.Context, projectID, filePath, hash string) (bool, error) {
	var recorded string
	err := s.pool.QueryRow(ctx,
		"SELECT file_hash FROM files WHERE project_id = ? AND file_path = ?",
		projectID, filePath).Scan(&recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check file hash %s: %w", filePath, err)
	}
	return recorded != hash, nil
}

// IndexedFiles lists every written file path of a project, sorted. Files
// that produced no symbols are included.
func (s *Store) IndexedFiles(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT file_path FROM files WHERE project_id = ? ORDER BY file_path", projectID)
	if err != nil {
		return nil, fmt.Errorf("list indexed files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, rows.Err()
}

// ProjectFiles lists the written files of a project with their symbol
// counts, ordered by path.
func (s *Store) ProjectFiles(ctx context.Context, projectID string) ([]IndexedFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.file_path, f.language, f.file_hash, f.indexed_at, COUNT(s.id)
		FROM files f
		LEFT JOIN symbols s ON s.project_id = f.project_id AND s.file_path = f.file_path
		WHERE f.project_id = ?
		GROUP BY f.file_path, f.language, f.file_hash, f.indexed_at
		ORDER BY f.file_path
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project files: %w", err)
	}
	defer rows.Close()

	var files []IndexedFile
	for rows.Next() {
		var (
			f         IndexedFile
			indexedAt sql.NullString
		)
		if err := rows.Scan(&f.FilePath, &f.Language, &f.FileHash, &indexedAt, &f.Symbols); err != nil {
			return nil, err
		}
		f.IndexedAt = parseTime(indexedAt)
		files = append(files, f)
	}
	return files, rows.Err()
}

// ReplaceFile swaps the file's rows for rec in one transaction: prior symbols
// are deleted (relationships and embeddings cascade), the new symbols are
// upserted with their embeddings, then relationships are resolved by name
// and inserted. The file's hash is recorded even when it has no symbols. A
// symbol that fails to persist is skipped and reported in SymbolErrors, an
// embedding that fails to persist leaves its symbol without a vector and is
// reported in EmbeddingErrors; any other failure rolls the whole file back.
func (s *Store) ReplaceFile(ctx context.Context, rec FileRecord) (*ReplaceResult, error) {
	result := &ReplaceResult{SymbolIDs: make([]int64, len(rec.Symbols))}
	var removedIDs []int64
	var added []Symbol
	vectors := make(map[int64][]float32)

	err := s.pool.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		removedIDs, result.Removed, err = deleteFileRows(ctx, tx, rec.ProjectID, rec.FilePath)
		if err != nil {
			return err
		}

		ts := now()
		if err := recordFile(ctx, tx, rec, ts); err != nil {
			return err
		}

		nameToID := make(map[string]int64, len(rec.Symbols))
		for i, sym := range rec.Symbols {
			id, err := upsertSymbol(ctx, tx, rec, sym, ts)
			if err != nil {
				result.SymbolErrors = append(result.SymbolErrors,
					coreerrors.WithPath(coreerrors.KindSymbolPersist, "persist symbol "+sym.Name, rec.FilePath, err))
				continue
			}
			result.SymbolIDs[i] = id
			nameToID[sym.Name] = id
			result.Symbols++
			added = append(added, Symbol{
				ID:          id,
				ProjectID:   rec.ProjectID,
				Language:    rec.Language,
				SymbolType:  sym.Type,
				Name:        sym.Name,
				FilePath:    rec.FilePath,
				LineStart:   sym.LineStart,
				LineEnd:     sym.LineEnd,
				CodeSnippet: sym.Snippet,
				FileHash:    rec.Hash,
			})

			if sym.Vector != nil {
				if err := insertEmbedding(ctx, tx, rec.ProjectID, id, sym.Vector); err != nil {
					result.EmbeddingErrors = append(result.EmbeddingErrors,
						coreerrors.WithPath(coreerrors.KindEmbeddingDegraded, "store embedding for "+sym.Name, rec.FilePath, err))
					continue
				}
				vectors[id] = sym.Vector
				result.Embeddings++
			}
		}

		for _, rel := range rec.Relationships {
			resolved, inserted, err := insertRelationship(ctx, tx, rec.ProjectID, nameToID, rel)
			if err != nil {
				return fmt.Errorf("insert %s relationship %s -> %s: %w", rel.Type, rel.SourceName, rel.TargetName, err)
			}
			if !resolved {
				result.ResolutionMisses++
				s.logger.Debug("relationship target not found",
					slog.String("file", rec.FilePath),
					slog.String("type", rel.Type),
					slog.String("source", rel.SourceName),
					slog.String("target", rel.TargetName))
				continue
			}
			if inserted {
				result.Relationships++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace %s: %w", rec.FilePath, err)
	}

	s.notifyFile(FileChange{
		ProjectID:  rec.ProjectID,
		FilePath:   rec.FilePath,
		RemovedIDs: removedIDs,
		Added:      dedupeSymbols(added),
		Vectors:    vectors,
	})
	return result, nil
}

// RemoveFile deletes every row of a file, returning the counts removed.
func (s *Store) RemoveFile(ctx context.Context, projectID, filePath string) (Counts, error) {
	var removedIDs []int64
	var removed Counts

	err := s.pool.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		removedIDs, removed, err = deleteFileRows(ctx, tx, projectID, filePath)
		return err
	})
	if err != nil {
		return Counts{}, fmt.Errorf("remove %s: %w", filePath, err)
	}

	if len(removedIDs) > 0 {
		s.notifyFile(FileChange{ProjectID: projectID, FilePath: filePath, RemovedIDs: removedIDs})
	}
	return removed, nil
}

func deleteFileRows(ctx context.Context, tx *sql.Tx, projectID, filePath string) ([]int64, Counts, error) {
	var counts Counts

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM files WHERE project_id = ? AND file_path = ?", projectID, filePath); err != nil {
		return nil, counts, err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM symbols WHERE project_id = ? AND file_path = ?", projectID, filePath)
	if err != nil {
		return nil, counts, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, counts, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, counts, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, counts, nil
	}
	counts.Symbols = int64(len(ids))
	counts.Files = 1

	subquery := "SELECT id FROM symbols WHERE project_id = ? AND file_path = ?"
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM relationships WHERE source_symbol_id IN ("+subquery+") OR target_symbol_id IN ("+subquery+")",
		projectID, filePath, projectID, filePath).Scan(&counts.Relationships); err != nil {
		return nil, counts, err
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM symbol_embeddings WHERE symbol_id IN ("+subquery+")",
		projectID, filePath).Scan(&counts.Embeddings); err != nil {
		return nil, counts, err
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM symbols WHERE project_id = ? AND file_path = ?", projectID, filePath); err != nil {
		return nil, counts, err
	}
	return ids, counts, nil
}

func recordFile(ctx context.Context, tx *sql.Tx, rec FileRecord, ts string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO files (project_id, file_path, language, file_hash, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			language = excluded.language,
			file_hash = excluded.file_hash,
			indexed_at = excluded.indexed_at
	`, rec.ProjectID, rec.FilePath, rec.Language, rec.Hash, ts)
	return err
}

func upsertSymbol(ctx context.Context, tx *sql.Tx, rec FileRecord, sym SymbolInput, ts string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO symbols (project_id, language, symbol_type, name, file_path, line_start, line_end,
			code_snippet, file_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, language, name, file_path, line_start) DO UPDATE SET
			symbol_type = excluded.symbol_type,
			line_end = excluded.line_end,
			code_snippet = excluded.code_snippet,
			file_hash = excluded.file_hash
		RETURNING id
	`, rec.ProjectID, rec.Language, sym.Type, sym.Name, rec.FilePath, sym.LineStart, sym.LineEnd,
		sym.Snippet, rec.Hash, ts).Scan(&id)
	return id, err
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, projectID string, symbolID int64, vector []float32) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO symbol_embeddings (symbol_id, project_id, dimension, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol_id) DO UPDATE SET dimension = excluded.dimension, vector = excluded.vector
	`, symbolID, projectID, len(vector), EncodeVector(vector))
	return err
}

// insertRelationship resolves the source from this file's symbols and the
// target as the lowest-id project symbol with exactly the target name.
// resolved is false when either end is missing; inserted is false when an
// identical edge already exists.
func insertRelationship(ctx context.Context, tx *sql.Tx, projectID string, nameToID map[string]int64, rel RelationshipInput) (resolved, inserted bool, err error) {
	sourceID, ok := nameToID[rel.SourceName]
	if !ok {
		return false, false, nil
	}

	var targetID int64
	var candidates int
	err = tx.QueryRowContext(ctx, `
		SELECT id, (SELECT COUNT(*) FROM symbols WHERE project_id = ? AND name = ?)
		FROM symbols WHERE project_id = ? AND name = ?
		ORDER BY id LIMIT 1
	`, projectID, rel.TargetName, projectID, rel.TargetName).Scan(&targetID, &candidates)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	data, err := json.Marshal(RelationshipData{
		Line:       rel.Line,
		TargetName: rel.TargetName,
		TargetType: rel.TargetType,
		Link:       LinkBestEffort,
		Candidates: candidates,
	})
	if err != nil {
		return true, false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO relationships
			(project_id, source_symbol_id, target_symbol_id, relationship_type, relationship_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, projectID, sourceID, targetID, rel.Type, string(data), now())
	if err != nil {
		return true, false, err
	}
	n, err := res.RowsAffected()
	return true, n > 0, err
}

// dedupeSymbols keeps the last entry per id; upserts of a repeated key share one id.
func dedupeSymbols(symbols []Symbol) []Symbol {
	index := make(map[int64]int, len(symbols))
	out := symbols[:0]
	for _, sym := range symbols {
		if i, ok := index[sym.ID]; ok {
			out[i] = sym
			continue
		}
		index[sym.ID] = len(out)
		out = append(out, sym)
	}
	return out
}
