package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainproof/chainproof/internal/scenario"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Load and validate a scenario without running it",
		Long: `Load a scenario file, compile its schemas, resolve all account
references, and check every step without touching any network.

This catches typos in account references, unknown schema types, malformed
payloads, and bad policies before a run is attempted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenario(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func validateScenario(opts *RootOptions, path string, cmd *cobra.Command) error {
	scen, err := scenario.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario is invalid", err)
	}

	if opts.Format == "json" {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.JSON(map[string]interface{}{
			"name":     scen.Name,
			"steps":    len(scen.Steps),
			"accounts": scen.Accounts.Names(),
			"valid":    true,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d step(s), %d account(s): OK\n",
		scen.Name, len(scen.Steps), len(scen.Accounts.Names()))
	return nil
}
