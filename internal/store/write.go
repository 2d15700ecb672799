package store

import (
	"context"
	"fmt"
	"time"
)

// StartRun inserts a run record with status running.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) StartRun(ctx context.Context, r Run) error {
	status := r.Status
	if status == "" {
		status = StatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, kind, structure_path, work_dir, scenario, duration, log_level, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		string(r.Kind),
		r.StructurePath,
		r.WorkDir,
		r.Scenario,
		r.Duration,
		r.LogLevel,
		string(status),
		formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun records the outcome and result files of a run in one
// transaction. Returns ErrNotFound if the run was never started.
func (s *Store) FinishRun(ctx context.Context, id string, f Finish) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, error_kind = ?, error_message = ?, exit_code = ?, finished_at = ?
		WHERE id = ?
	`,
		string(f.Status),
		f.ErrorKind,
		f.ErrorMessage,
		f.ExitCode,
		formatTime(f.FinishedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}

	for _, rf := range f.Results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO result_files (run_id, component, path, row_count, columns)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, component) DO UPDATE SET
				path = excluded.path, row_count = excluded.row_count, columns = excluded.columns
		`, id, rf.Component, rf.Path, rf.Rows, rf.Columns)
		if err != nil {
			return fmt.Errorf("finish run: result file %s: %w", rf.Component, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// DeleteRun removes a run and its result files.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrNotFound)
	}
	return nil
}

// timeLayout is RFC 3339 with fixed-width nanoseconds so values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
