package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainproof/chainproof/internal/runner"
)

// SaveRun persists a run report and its step results in one transaction.
// Saving the same run token twice is an error; run tokens are unique per
// execution.
func (s *Store) SaveRun(ctx context.Context, result *runner.RunResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_token, scenario, pass, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`,
		result.RunToken,
		result.Scenario,
		boolToInt(result.Pass),
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", result.RunToken, err)
	}

	for i, step := range result.Steps {
		logs, err := json.Marshal(step.Logs)
		if err != nil {
			return fmt.Errorf("save run %s: marshal logs for step %d: %w", result.RunToken, i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_results
			(run_token, step_index, name, status, code, detail, logs, signature, attempts, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			result.RunToken,
			i,
			step.Name,
			string(step.Status),
			step.Code,
			step.Detail,
			string(logs),
			step.Signature,
			step.Attempts,
			step.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("save run %s: step %d: %w", result.RunToken, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run %s: %w", result.RunToken, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
