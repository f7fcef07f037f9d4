package runner

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// StepSnapshot is the deterministic slice of a step result used for golden
// comparison. Signatures and durations vary per run and are excluded.
type StepSnapshot struct {
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Code   string   `json:"code,omitempty"`
	Logs   []string `json:"logs,omitempty"`
}

// ReportSnapshot is the golden-file form of a run report.
type ReportSnapshot struct {
	Scenario string         `json:"scenario"`
	RunToken string         `json:"run_token"`
	Pass     bool           `json:"pass"`
	Steps    []StepSnapshot `json:"steps"`
}

// Snapshot reduces a run result to its deterministic parts.
func Snapshot(result *RunResult) ReportSnapshot {
	snap := ReportSnapshot{
		Scenario: result.Scenario,
		RunToken: result.RunToken,
		Pass:     result.Pass,
	}
	for _, step := range result.Steps {
		snap.Steps = append(snap.Steps, StepSnapshot{
			Name:   step.Name,
			Status: string(step.Status),
			Code:   step.Code,
			Logs:   step.Logs,
		})
	}
	return snap
}

// AssertGolden compares a run result against testdata/<scenario>.golden.
// Regenerate with: go test ./internal/runner -update
//
// Callers must run the scenario with a FixedGenerator so the run token is
// stable across executions.
func AssertGolden(t *testing.T, result *RunResult) {
	t.Helper()
	g := goldie.New(t)
	g.AssertJson(t, result.Scenario, Snapshot(result))
}
