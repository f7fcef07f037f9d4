package runner

import "time"

// StepStatus is the recorded outcome of one executed step.
type StepStatus string

const (
	StepPassed StepStatus = "passed"
	StepFailed StepStatus = "failed"
)

// StepResult is the structured record of one executed step. Steps that were
// never reached (fail-fast abort) have no result; partial results up to the
// failing step are always present and ordered.
type StepResult struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`

	// Code is the error taxonomy code for a failed step, empty on pass.
	Code string `json:"code,omitempty"`

	// Detail is the failure description, empty on pass.
	Detail string `json:"detail,omitempty"`

	// Logs holds program-emitted log lines verbatim. Log content is often
	// the only diagnostic signal for on-chain failures, so it is never
	// summarized away.
	Logs []string `json:"logs,omitempty"`

	// Signature is the transaction identifier, when submission succeeded.
	Signature string `json:"signature,omitempty"`

	// Attempts counts executions of this step, >1 only under retry.
	Attempts int `json:"attempts"`

	Duration time.Duration `json:"duration"`
}

// RunResult is the ordered report of a scenario run.
type RunResult struct {
	RunToken  string        `json:"run_token"`
	Scenario  string        `json:"scenario"`
	Pass      bool          `json:"pass"`
	Steps     []StepResult  `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// record appends a step result and folds its status into the overall pass
// flag.
func (r *RunResult) record(step StepResult) {
	r.Steps = append(r.Steps, step)
	if step.Status != StepPassed {
		r.Pass = false
	}
}
