package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/stepd/internal/publish"
)

// progressWidth is the number of cells in the text progress bar.
const progressWidth = 20

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's step total",
		Long: `Show today's reconciled step total with goal progress, distance and
energy estimates.

Reading the total applies day rollover: if the stored day is not today, the
total is zeroed and persisted before it is shown.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	a, err := openApp(opts)
	if err != nil {
		return fail(formatter, err)
	}
	defer a.Close()

	rec := a.tracker.Today(cmd.Context())
	summary := publish.NewSummary(rec, a.cfg.DailyGoal, publish.Body{
		StrideM:     a.cfg.StrideM,
		KcalPerStep: a.cfg.KcalPerStep,
	})

	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	return writeSummary(formatter.Writer, summary)
}

// writeSummary prints a Summary as aligned, locale-formatted text.
func writeSummary(w io.Writer, s publish.Summary) error {
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	p.Fprintf(tw, "Day\t%s\n", s.Day)
	p.Fprintf(tw, "Steps\t%d / %d\n", s.Steps, s.Goal)
	p.Fprintf(tw, "Progress\t%s %.1f%%\n", progressBar(s.Percent), s.Percent)
	p.Fprintf(tw, "Distance\t%.2f km\n", s.DistanceKm)
	p.Fprintf(tw, "Energy\t%.2f kcal\n", s.Kcal)
	p.Fprintf(tw, "Sensor\t%d\n", s.LastSensorValue)

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// progressBar renders percent as a fixed-width bar, capped at full.
func progressBar(percent float64) string {
	filled := int(percent / 100 * progressWidth)
	if filled > progressWidth {
		filled = progressWidth
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", progressWidth-filled) + "]"
}
