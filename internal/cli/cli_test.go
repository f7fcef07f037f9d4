package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof/chainproof/internal/runner"
	"github.com/chainproof/chainproof/internal/store"
)

const testSchemaCUE = `
accounts: {
	Counter: {
		discriminator: "account:Counter"
		fields: [
			{name: "count", type: "u64"},
			{name: "bump", type: "u8"},
		]
	}
}
`

const testScenarioYAML = `
name: counter-lifecycle
description: Exercise the counter program.
program: 8sHV6MjJSkemTc34PXrymjmungpjgf7b1np52eSnoLBx
schemas: [counter.cue]
accounts:
  user:
    signer: true
  counter:
    seeds: ["counter", "@user"]
steps:
  - name: initialize
    instructions:
      - data: r0BHNYHEWdI=
        accounts:
          - ref: counter
            writable: true
          - ref: user
            writable: true
            signer: true
    expect:
      - account: counter
        type: Counter
        fields:
          count: 0
`

func writeScenarioFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.cue"), []byte(testSchemaCUE), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testScenarioYAML), 0o644))
	return path
}

// execute runs the CLI with the given args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_ValidScenario(t *testing.T) {
	out, err := execute(t, "validate", writeScenarioFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "counter-lifecycle")
	assert.Contains(t, out, "OK")
}

func TestValidate_JSONFormat(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", writeScenarioFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
	assert.Contains(t, out, `"name": "counter-lifecycle"`)
}

func TestValidate_InvalidScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: only-a-name\n"), 0o644))

	_, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario is invalid")
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "validate", "whatever.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestReport_EmptyStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	out, err := execute(t, "report", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func seedRun(t *testing.T, db, token string, pass bool, startedAt time.Time) {
	t.Helper()
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	status := runner.StepPassed
	if !pass {
		status = runner.StepFailed
	}
	require.NoError(t, st.SaveRun(context.Background(), &runner.RunResult{
		RunToken:  token,
		Scenario:  fmt.Sprintf("scenario-%s", token),
		Pass:      pass,
		StartedAt: startedAt,
		Duration:  time.Second,
		Steps: []runner.StepResult{
			{Name: "initialize", Status: status, Attempts: 1},
		},
	}))
}

func TestReport_ListsRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seedRun(t, db, "run-old", true, base)
	seedRun(t, db, "run-new", false, base.Add(time.Hour))

	out, err := execute(t, "report", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "run-old")
	assert.Contains(t, out, "run-new")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL")

	// Most recent run listed first.
	assert.Less(t, bytes.Index([]byte(out), []byte("run-new")), bytes.Index([]byte(out), []byte("run-old")))
}

func TestReport_SingleRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	seedRun(t, db, "run-1", true, time.Now().UTC())

	out, err := execute(t, "report", "--db", db, "--run", "run-1", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"run_token": "run-1"`)
	assert.Contains(t, out, `"scenario": "scenario-run-1"`)
}

func TestReport_UnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	seedRun(t, db, "run-1", true, time.Now().UTC())

	_, err := execute(t, "report", "--db", db, "--run", "run-404")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no run with token run-404")
}

func TestReport_RequiresDatabase(t *testing.T) {
	_, err := execute(t, "report")
	require.Error(t, err)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "boom")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain error")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "wrapped", fmt.Errorf("cause"))))
}
