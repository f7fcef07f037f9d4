package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chainproof/chainproof/internal/runner"
)

// ErrRunNotFound is returned when a run token has no stored report.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunToken  string
	Scenario  string
	Pass      bool
	StartedAt time.Time
	Duration  time.Duration
}

// ListRuns returns stored runs, most recent first, bounded by limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_token, scenario, pass, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		summary, err := scanRunSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// LoadRun reconstructs a full run report from storage.
func (s *Store) LoadRun(ctx context.Context, runToken string) (*runner.RunResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_token, scenario, pass, started_at, duration_ms
		FROM runs WHERE run_token = ?
	`, runToken)

	var (
		result     runner.RunResult
		pass       int
		startedAt  string
		durationMS int64
	)
	err := row.Scan(&result.RunToken, &result.Scenario, &pass, &startedAt, &durationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runToken, err)
	}
	result.Pass = pass != 0
	result.Duration = time.Duration(durationMS) * time.Millisecond
	if result.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("load run %s: bad started_at: %w", runToken, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, status, code, detail, logs, signature, attempts, duration_ms
		FROM step_results
		WHERE run_token = ?
		ORDER BY step_index
	`, runToken)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runToken, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			step       runner.StepResult
			status     string
			logsJSON   string
			durationMS int64
		)
		if err := rows.Scan(&step.Name, &status, &step.Code, &step.Detail,
			&logsJSON, &step.Signature, &step.Attempts, &durationMS); err != nil {
			return nil, fmt.Errorf("load run %s: scan step: %w", runToken, err)
		}
		step.Status = runner.StepStatus(status)
		step.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(logsJSON), &step.Logs); err != nil {
			return nil, fmt.Errorf("load run %s: bad logs: %w", runToken, err)
		}
		result.Steps = append(result.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runToken, err)
	}
	return &result, nil
}

func scanRunSummary(rows *sql.Rows) (RunSummary, error) {
	var (
		summary    RunSummary
		pass       int
		startedAt  string
		durationMS int64
	)
	if err := rows.Scan(&summary.RunToken, &summary.Scenario, &pass, &startedAt, &durationMS); err != nil {
		return RunSummary{}, err
	}
	summary.Pass = pass != 0
	summary.Duration = time.Duration(durationMS) * time.Millisecond
	var err error
	if summary.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return RunSummary{}, fmt.Errorf("bad started_at: %w", err)
	}
	return summary, nil
}
