package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const runColumns = `id, kind, structure_path, work_dir, scenario, duration, log_level,
	status, error_kind, error_message, exit_code, started_at, finished_at`

// GetRun returns one run with its result files.
// Returns ErrNotFound if no run has the given id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	r.Results, err = s.readResultFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
// Result files are not loaded; use GetRun for those.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// readResultFiles returns the result files of a run ordered by component.
func (s *Store) readResultFiles(ctx context.Context, runID string) ([]ResultFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT component, path, row_count, columns
		FROM result_files
		WHERE run_id = ?
		ORDER BY component COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query result files: %w", err)
	}
	defer rows.Close()

	var files []ResultFile
	for rows.Next() {
		var rf ResultFile
		if err := rows.Scan(&rf.Component, &rf.Path, &rf.Rows, &rf.Columns); err != nil {
			return nil, fmt.Errorf("scan result file: %w", err)
		}
		files = append(files, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result files: %w", err)
	}
	return files, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r            Run
		kind, status string
		startedAt    string
		finishedAt   sql.NullString
	)
	err := sc.Scan(
		&r.ID, &kind, &r.StructurePath, &r.WorkDir, &r.Scenario, &r.Duration, &r.LogLevel,
		&status, &r.ErrorKind, &r.ErrorMessage, &r.ExitCode, &startedAt, &finishedAt,
	)
	if err != nil {
		return Run{}, err
	}
	r.Kind = Kind(kind)
	r.Status = Status(status)

	r.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return r, nil
}
