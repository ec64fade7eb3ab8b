package hashstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Outcome is the recorded result of one invocation.
type Outcome string

const (
	OutcomeRunning     Outcome = "running"
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomePartial     Outcome = "partial"
	OutcomeFailed      Outcome = "failed"
	OutcomeNoChanges   Outcome = "no_changes"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeAbandoned   Outcome = "abandoned"
)

// Run is one row of run history.
type Run struct {
	ID          string
	Command     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     Outcome
	Forced      bool
	TasksTotal  int
	TasksFailed int
	Message     string
}

// Duration returns the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunResult closes a run started with BeginRun.
type RunResult struct {
	Outcome     Outcome
	Forced      bool
	TasksTotal  int
	TasksFailed int
	Message     string
}

// BeginRun records the start of an invocation.
func (s *Store) BeginRun(ctx context.Context, id, command string, forced bool) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, command, started_at, outcome, forced) VALUES (?, ?, ?, ?, ?)`,
		id, command, formatTime(time.Now()), OutcomeRunning, boolToInt(forced),
	); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// FinishRun records the result of an invocation.
func (s *Store) FinishRun(ctx context.Context, id string, result RunResult) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, forced = ?, tasks_total = ?, tasks_failed = ?, message = ?
		 WHERE id = ?`,
		formatTime(time.Now()), result.Outcome, boolToInt(result.Forced),
		result.TasksTotal, result.TasksFailed, result.Message, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %q", id)
	}
	return nil
}

// MarkAbandonedRuns closes history rows left running by a crashed process.
func (s *Store) MarkAbandonedRuns(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET outcome = ?, finished_at = ?, message = 'process exited before completion'
		 WHERE outcome = ?`,
		OutcomeAbandoned, formatTime(time.Now()), OutcomeRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned runs: %w", err)
	}
	return res.RowsAffected()
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, started_at, finished_at, outcome, forced, tasks_total, tasks_failed, message
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run      Run
			started  sql.NullString
			finished sql.NullString
			outcome  string
			forced   int
			message  sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Command, &started, &finished, &outcome, &forced,
			&run.TasksTotal, &run.TasksFailed, &message); err != nil {
			return nil, err
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		run.Outcome = Outcome(outcome)
		run.Forced = forced != 0
		run.Message = message.String
		out = append(out, run)
	}
	return out, rows.Err()
}

// PruneRuns deletes history rows started before cutoff.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM runs WHERE started_at < ? AND outcome != ?`, formatTime(cutoff), OutcomeRunning)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
