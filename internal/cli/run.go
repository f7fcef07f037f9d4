package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainproof/chainproof/internal/chain"
	"github.com/chainproof/chainproof/internal/runner"
	"github.com/chainproof/chainproof/internal/scenario"
	"github.com/chainproof/chainproof/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	URL         string
	Commitment  string
	StepTimeout time.Duration
	Database    string
	Policy      string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Execute a scenario against a network",
		Long: `Execute a scenario file against a Solana RPC endpoint.

Each step resolves its accounts, builds and signs a transaction, submits it,
waits for the configured commitment level, and verifies the expected account
state. Steps run strictly in order; under the default abort policy the first
failed step ends the run.

Exit codes:
  0 - All steps passed
  1 - One or more steps failed
  2 - Command error (bad scenario, unreachable endpoint flagging, etc.)

Examples:
  chainproof run scenario.yaml --url http://127.0.0.1:8899
  chainproof run scenario.yaml --url $RPC_URL --commitment finalized
  chainproof run scenario.yaml --url $RPC_URL --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "RPC endpoint URL (required)")
	cmd.Flags().StringVar(&opts.Commitment, "commitment", string(chain.CommitmentConfirmed), "confirmation threshold (processed|confirmed|finalized)")
	cmd.Flags().DurationVar(&opts.StepTimeout, "timeout", runner.DefaultStepTimeout, "per-step submit-and-confirm timeout")
	cmd.Flags().StringVar(&opts.Database, "db", "", "persist the run report to this SQLite database")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "override every step's on_failure policy (abort|continue|retry)")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	commitment := chain.Commitment(opts.Commitment)
	switch commitment {
	case chain.CommitmentProcessed, chain.CommitmentConfirmed, chain.CommitmentFinalized:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid commitment %q", opts.Commitment))
	}

	scen, err := scenario.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	if opts.Policy != "" {
		policy, err := parsePolicy(opts.Policy)
		if err != nil {
			return NewExitError(ExitCommandError, err.Error())
		}
		for i := range scen.Steps {
			scen.Steps[i].Policy = policy
		}
	}
	logger.Info("scenario loaded",
		"name", scen.Name,
		"steps", len(scen.Steps),
		"accounts", len(scen.Accounts.Names()),
	)

	client := chain.NewRPC(opts.URL, commitment)
	r := runner.New(client,
		runner.WithCommitment(commitment),
		runner.WithStepTimeout(opts.StepTimeout),
		runner.WithLogger(logger),
	)

	// Ctrl-C cancels the in-flight wait instead of hanging.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := r.Run(ctx, scen)
	if err != nil {
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open run store", err)
		}
		defer st.Close()
		if err := st.SaveRun(ctx, result); err != nil {
			return WrapExitError(ExitCommandError, "failed to persist run", err)
		}
		logger.Info("run persisted", "db", opts.Database, "run", result.RunToken)
	}

	if err := printRunResult(cmd, opts.Format, result); err != nil {
		return err
	}
	if !result.Pass {
		return NewExitError(ExitFailure, runner.Summary(result))
	}
	return nil
}

func parsePolicy(s string) (scenario.Policy, error) {
	switch scenario.Policy(s) {
	case scenario.PolicyAbort, scenario.PolicyContinue, scenario.PolicyRetry:
		return scenario.Policy(s), nil
	default:
		return "", fmt.Errorf("invalid policy %q: must be abort, continue, or retry", s)
	}
}

func printRunResult(cmd *cobra.Command, format string, result *runner.RunResult) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		f := &OutputFormatter{Format: format, Writer: out}
		return f.JSON(result)
	}

	fmt.Fprintf(out, "Scenario: %s (run %s)\n", result.Scenario, result.RunToken)
	for _, step := range result.Steps {
		mark := "PASS"
		if step.Status != runner.StepPassed {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "  [%s] %-24s %s", mark, step.Name, step.Duration.Round(time.Millisecond))
		if step.Attempts > 1 {
			fmt.Fprintf(out, " (%d attempts)", step.Attempts)
		}
		fmt.Fprintln(out)
		if step.Status != runner.StepPassed {
			if step.Code != "" {
				fmt.Fprintf(out, "        code:   %s\n", step.Code)
			}
			fmt.Fprintf(out, "        detail: %s\n", step.Detail)
			for _, line := range step.Logs {
				fmt.Fprintf(out, "        log:    %s\n", line)
			}
		}
	}
	fmt.Fprintln(out, runner.Summary(result))
	return nil
}
