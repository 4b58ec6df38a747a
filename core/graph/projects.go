package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertProject creates the project row or refreshes its path, name and
// version-control flag. Recorded scan state is preserved.
func (s *Store) UpsertProject(ctx context.Context, p Project) error {
	ts := now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (project_id, path, name, is_version_controlled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			path = excluded.path,
			name = excluded.name,
			is_version_controlled = excluded.is_version_controlled,
			updated_at = excluded.updated_at
	`, p.ID, p.Path, p.Name, boolToInt(p.IsVersionControlled), ts, ts)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	s.generation.Add(1)
	return nil
}

const projectColumns = `project_id, path, name, is_version_controlled, last_scan_commit,
	last_scan_branch, last_scan_time, created_at, updated_at`

func (s *Store) GetProject(ctx context.Context, projectID string) (*Project, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+projectColumns+" FROM projects WHERE project_id = ?", projectID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p                        Project
		vcs                      int
		commit, branch, scanTime sql.NullString
		createdAt, updatedAt     sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Path, &p.Name, &vcs, &commit, &branch, &scanTime, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.IsVersionControlled = vcs != 0
	p.LastScanCommit = commit.String
	p.LastScanBranch = branch.String
	p.LastScanTime = parseTime(scanTime)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// ListProjects returns every project with its row counts, ordered by id.
func (s *Store) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY project_id")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var projects []ProjectSummary
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, ProjectSummary{Project: *p})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range projects {
		counts, err := s.ProjectCounts(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Counts = counts
	}
	return projects, nil
}

// ProjectCounts counts the rows owned by a project.
func (s *Store) ProjectCounts(ctx context.Context, projectID string) (Counts, error) {
	var c Counts
	queries := []struct {
		dest  *int64
		query string
	}{
		{&c.Symbols, "SELECT COUNT(*) FROM symbols WHERE project_id = ?"},
		{&c.Files, "SELECT COUNT(DISTINCT file_path) FROM symbols WHERE project_id = ?"},
		{&c.Relationships, "SELECT COUNT(*) FROM relationships WHERE project_id = ?"},
		{&c.Embeddings, "SELECT COUNT(*) FROM symbol_embeddings WHERE project_id = ?"},
	}
	for _, q := range queries {
		if err := s.pool.QueryRow(ctx, q.query, projectID).Scan(q.dest); err != nil {
			return Counts{}, fmt.Errorf("count rows for %s: %w", projectID, err)
		}
	}
	return c, nil
}

// UpdateScanInfo records the commit and branch a completed scan saw.
func (s *Store) UpdateScanInfo(ctx context.Context, projectID, commit, branch string, at time.Time) error {
	res, err := s.pool.Exec(ctx, `
		UPDATE projects
		SET last_scan_commit = ?, last_scan_branch = ?, last_scan_time = ?, updated_at = ?
		WHERE project_id = ?
	`, nullString(commit), nullString(branch), at.UTC().Format(time.RFC3339Nano), now(), projectID)
	if err != nil {
		return fmt.Errorf("update scan info for %s: %w", projectID, err)
	}
	return requireRow(res, projectID)
}

// ClearScanCommit forgets the recorded commit so the next scan is full.
func (s *Store) ClearScanCommit(ctx context.Context, projectID string) error {
	res, err := s.pool.Exec(ctx,
		"UPDATE projects SET last_scan_commit = NULL, updated_at = ? WHERE project_id = ?",
		now(), projectID)
	if err != nil {
		return fmt.Errorf("clear scan commit for %s: %w", projectID, err)
	}
	return requireRow(res, projectID)
}

// DeleteProject removes the project row and everything it owns, returning
// the counts removed.
func (s *Store) DeleteProject(ctx context.Context, projectID string) (DeleteResult, error) {
	var result DeleteResult

	counts, err := s.ProjectCounts(ctx, projectID)
	if err != nil {
		return result, err
	}
	result.Counts = counts

	err = s.pool.Transaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM relationships WHERE project_id = ?",
			"DELETE FROM symbol_embeddings WHERE project_id = ?",
			"DELETE FROM symbols WHERE project_id = ?",
			"DELETE FROM files WHERE project_id = ?",
		} {
			if _, err := tx.ExecContext(ctx, stmt, projectID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE project_id = ?", projectID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		result.ProjectRemoved = n > 0
		return nil
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete project %s: %w", projectID, err)
	}

	s.notifyProjectDeleted(projectID)
	return result, nil
}

func requireRow(res sql.Result, projectID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
