package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/stepd/internal/publish"
	"github.com/roach88/stepd/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past daily totals",
		Long: `List recorded daily totals, newest first.

Example:
  stepd history --limit 7
  stepd history --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 30, "maximum number of days (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Limit < 0 {
		return fail(formatter, NewExitError(ExitCommandError,
			fmt.Sprintf("%s: --limit must not be negative", ErrCodeInvalidArg)))
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return fail(formatter, err)
	}
	defer a.Close()

	totals, err := a.store.History(cmd.Context(), opts.Limit)
	if err != nil {
		return fail(formatter, WrapExitError(ExitFailure, ErrCodeGeneric+": history unavailable", err))
	}

	if formatter.Format == "json" {
		return formatter.Success(totals)
	}
	return writeHistory(formatter, totals, a.cfg.DailyGoal)
}

func writeHistory(f *OutputFormatter, totals []store.DailyTotal, goal int64) error {
	if len(totals) == 0 {
		fmt.Fprintln(f.Writer, "No history recorded yet")
		return nil
	}

	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(tw, "DAY\tSTEPS\tGOAL\t")
	for _, d := range totals {
		p.Fprintf(tw, "%s\t%d\t%.1f%%\t\n", d.Day, d.Steps, publish.Percent(d.Steps, goal))
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
