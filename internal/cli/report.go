package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainproof/chainproof/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Run      string
	Limit    int
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show persisted run reports",
		Long: `List persisted runs, or show one run in full.

Examples:
  chainproof report --db ./runs.db
  chainproof report --db ./runs.db --run 0191b7a2-...
  chainproof report --db ./runs.db --run 0191b7a2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run store (required)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run token to show in full")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showReport(opts *ReportOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run store", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.Run != "" {
		result, err := st.LoadRun(ctx, opts.Run)
		if errors.Is(err, store.ErrRunNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("no run with token %s", opts.Run))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load run", err)
		}
		return printRunResult(cmd, opts.Format, result)
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: out}
		return f.JSON(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		status := "PASS"
		if !run.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s  [%s]  %-32s %s\n",
			run.StartedAt.Format(time.RFC3339), status, run.Scenario, run.RunToken)
	}
	return nil
}
