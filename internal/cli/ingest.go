package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/stepd/internal/tracker"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Source string
}

// IngestResult is the JSON payload of a successful ingest.
type IngestResult struct {
	Odometer int64           `json:"odometer"`
	Outcome  tracker.Outcome `json:"outcome"`
	Delta    int64           `json:"delta"`
	Record   tracker.Record  `json:"record"`
}

// outcomeCapture records the last reconciliation outcome.
type outcomeCapture struct {
	outcome tracker.Outcome
	delta   int64
}

func (c *outcomeCapture) ObserveReading(outcome tracker.Outcome, delta int64, _ tracker.Record) {
	c.outcome = outcome
	c.delta = delta
}

func (c *outcomeCapture) IncStorageError(string) {}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <odometer>",
		Short: "Apply one odometer reading",
		Long: `Reconcile a single raw odometer reading into today's total.

The reading goes through the same rules as the daemon: reset detection,
the implausible-jump filter and day rollover. Use this when the daemon is
not running; while it runs, POST /readings instead.

Example:
  stepd ingest 5120
  stepd ingest --source pedometer 12`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "cli", "source name recorded with the reading")

	return cmd
}

func runIngest(opts *IngestOptions, arg string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	value, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || value < 0 {
		return fail(formatter, NewExitError(ExitCommandError,
			fmt.Sprintf("%s: odometer must be a non-negative integer, got %q", ErrCodeInvalidArg, arg)))
	}

	capture := &outcomeCapture{}
	a, err := openApp(opts.RootOptions, tracker.WithObserver(capture))
	if err != nil {
		return fail(formatter, err)
	}
	defer a.Close()

	formatter.VerboseLog("Ingesting odometer %d from %s", value, opts.Source)

	rec, err := a.tracker.OnReading(cmd.Context(), tracker.Reading{
		OdometerValue: value,
		ObservedAt:    opts.now(),
		Source:        opts.Source,
	})
	if err != nil {
		return fail(formatter, WrapExitError(ExitFailure, ErrCodeWriteFailed+": reading not saved", err))
	}

	result := IngestResult{
		Odometer: value,
		Outcome:  capture.outcome,
		Delta:    capture.delta,
		Record:   rec,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	p := message.NewPrinter(language.English)
	p.Fprintf(formatter.Writer, "%s: %d steps (+%d, %s)\n",
		rec.Day, rec.CumulativeSteps, result.Delta, result.Outcome)
	return nil
}
