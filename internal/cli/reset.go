package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Zero today's total",
		Long: `Zero today's step total and forget the stored sensor value.

The next reading after a reset establishes progress from zero again.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(rootOpts, cmd)
		},
	}

	return cmd
}

func runReset(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	a, err := openApp(opts)
	if err != nil {
		return fail(formatter, err)
	}
	defer a.Close()

	rec, err := a.tracker.Reset(cmd.Context())
	if err != nil {
		return fail(formatter, WrapExitError(ExitFailure, ErrCodeWriteFailed+": reset not saved", err))
	}

	if formatter.Format == "json" {
		return formatter.Success(rec)
	}
	fmt.Fprintf(formatter.Writer, "Reset %s to 0 steps\n", rec.Day)
	return nil
}
