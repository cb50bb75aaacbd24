package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/stepd/internal/api"
	"github.com/roach88/stepd/internal/config"
	"github.com/roach88/stepd/internal/driver"
	"github.com/roach88/stepd/internal/metrics"
	"github.com/roach88/stepd/internal/publish"
	"github.com/roach88/stepd/internal/sensor"
	"github.com/roach88/stepd/internal/tracker"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Addr string

	// Publisher overrides the progress publisher (for testing).
	// If nil, NATS is used when configured, otherwise the log.
	Publisher publish.Publisher

	// Ready is called once the driver has started (for testing).
	Ready func(*daemon)
}

// RunStatus is printed once the daemon is running.
type RunStatus struct {
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	Addr      string    `json:"addr,omitempty"`
}

// String implements fmt.Stringer for text output.
func (s RunStatus) String() string {
	msg := fmt.Sprintf("stepd running (source %s", s.Source)
	if s.Addr != "" {
		msg += ", http " + s.Addr
	}
	return msg + "). Press Ctrl-C to stop."
}

// daemon is the running service graph.
type daemon struct {
	app      *app
	source   sensor.Source
	driver   *driver.Driver
	server   *api.Server
	registry *prom.Registry
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the step reconciliation daemon",
		Long: `Run the keep-alive loop that restarts the sensor source every interval,
takes one reading per cycle, and reconciles it into today's total.

The stored total is published on start so consumers see a value before the
first fresh reading. With http.addr set, an HTTP API serves /today,
/history, /readings, /healthz and /metrics.

Example:
  stepd run --config /etc/stepd.yaml
  stepd run --db ./steps.db --addr :8080 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides config http.addr)")

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	registry := prom.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	a, err := openApp(opts.RootOptions, tracker.WithObserver(recorder))
	if err != nil {
		return err
	}
	defer a.Close()
	slog.Info("database ready", "path", a.cfg.Database)

	source, err := sensor.New(a.cfg.SensorSource())
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeInvalidConfig+": invalid sensor", err)
	}

	publisher, err := opts.newPublisher(a.cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, ErrCodeGeneric+": failed to connect publisher", err)
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			slog.Error("error closing publisher", "error", closeErr)
		}
	}()

	d := &daemon{
		app:      a,
		source:   source,
		registry: registry,
		driver: driver.New(a.tracker, source,
			driver.WithInterval(a.cfg.Driver.Interval),
			driver.WithReadingTimeout(a.cfg.Driver.ReadingTimeout),
			driver.WithEpoch(a.cfg.Driver.ReferenceEpoch.Time),
			driver.WithGoal(a.cfg.DailyGoal),
			driver.WithPublisher(publisher),
			driver.WithRecorder(recorder),
			driver.WithNow(opts.now),
		),
	}

	addr := a.cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	if addr != "" {
		d.server = api.NewServer(addr, d.apiDeps())
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	session, err := d.driver.Start(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, ErrCodeGeneric+": failed to start driver", err)
	}

	serveErr := make(chan error, 1)
	if d.server != nil {
		go func() { serveErr <- d.server.Run() }()
	}

	status := RunStatus{Source: session.Source, StartedAt: session.StartedAt, Addr: addr}
	if err := opts.formatter(cmd).SessionSuccess(session.ID, status); err != nil {
		slog.Warn("writing run status", "error", err)
	}
	if opts.Ready != nil {
		opts.Ready(d)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = WrapExitError(ExitFailure, ErrCodeGeneric+": http server failed", err)
		}
	}

	return errors.Join(runErr, d.shutdown())
}

// shutdown stops the HTTP server and the driver. Safe to call once the
// daemon has started.
func (d *daemon) shutdown() error {
	var errs []error

	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if err := d.driver.Stop(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return WrapExitError(ExitFailure, ErrCodeGeneric+": shutdown", errors.Join(errs...))
	}
	slog.Info("stepd stopped gracefully")
	return nil
}

func (d *daemon) apiDeps() api.Deps {
	deps := api.Deps{
		Tracker: d.app.tracker,
		History: d.app.store,
		Health:  d.app.store,
		Metrics: metrics.Handler(d.registry),
		Goal:    d.app.cfg.DailyGoal,
		Body: publish.Body{
			StrideM:     d.app.cfg.StrideM,
			KcalPerStep: d.app.cfg.KcalPerStep,
		},
	}
	if manual, ok := d.source.(*sensor.ManualSource); ok {
		deps.Ingest = manual
	}
	return deps
}

func (o *RunOptions) newPublisher(cfg *config.Config) (publish.Publisher, error) {
	if o.Publisher != nil {
		return o.Publisher, nil
	}
	if cfg.NATS.URL == "" {
		return publish.LogPublisher{}, nil
	}
	slog.Info("connecting to nats", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	return publish.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject)
}
