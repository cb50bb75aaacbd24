package cli

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/stepd/internal/config"
	"github.com/roach88/stepd/internal/store"
	"github.com/roach88/stepd/internal/tracker"
)

// clockFunc adapts a func to tracker.Clock.
type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// app is the storage and reconciliation core shared by every command.
type app struct {
	cfg     *config.Config
	loc     *time.Location
	store   *store.Store
	tracker *tracker.Tracker
}

// loadConfig reads configuration and applies the --db override.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	loader := o.Loader
	if loader == nil {
		loader = &config.Loader{}
	}

	cfg, err := loader.Load(o.Config)
	if err != nil {
		return nil, configExitError(err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	return cfg, nil
}

// openApp loads config, opens the store and builds the tracker.
// Extra tracker options are applied after the configured ones.
func openApp(o *RootOptions, extra ...tracker.Option) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeInvalidConfig+": invalid timezone", err)
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database,
		store.WithHistory(tracker.KeyStepsDate, tracker.KeyCumulativeSteps),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeStoreOpen+": failed to open database", err)
	}

	opts := []tracker.Option{
		tracker.WithClock(clockFunc(o.now)),
		tracker.WithLocation(loc),
		tracker.WithMaxDelta(cfg.MaxDelta),
		tracker.WithBaselineOnFirstReading(cfg.BaselineFirstReading),
	}
	opts = append(opts, extra...)

	return &app{
		cfg:     cfg,
		loc:     loc,
		store:   st,
		tracker: tracker.New(st, opts...),
	}, nil
}

func (a *app) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// configExitError maps a config error onto an exit error keeping its code.
func configExitError(err error) error {
	var ce *config.Error
	if errors.As(err, &ce) {
		return WrapExitError(ExitCommandError, ce.Code+": invalid configuration", err)
	}
	return WrapExitError(ExitCommandError, ErrCodeGeneric+": invalid configuration", err)
}

// setupLogging installs the default slog logger on w.
func setupLogging(o *RootOptions, w io.Writer) {
	logLevel := slog.LevelInfo
	if o.Verbose {
		logLevel = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if o.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

// errorCode returns the "Exxx" prefix of an ExitError message, if any.
func errorCode(err error) string {
	code, _ := splitCode(err)
	return code
}

// splitCode separates the "Exxx: " prefix from an error's text.
func splitCode(err error) (string, string) {
	var ee *ExitError
	if errors.As(err, &ee) {
		if code, _, ok := strings.Cut(ee.Message, ": "); ok && len(code) == 4 && code[0] == 'E' {
			return code, strings.TrimPrefix(err.Error(), code+": ")
		}
	}
	return ErrCodeGeneric, err.Error()
}

// fail reports err through the formatter and returns it marked as reported,
// keeping its exit code.
func fail(f *OutputFormatter, err error) error {
	code, msg := splitCode(err)
	_ = f.Error(code, msg, nil)

	var ee *ExitError
	if errors.As(err, &ee) {
		ee.Reported = true
		return err
	}
	return &ExitError{Code: ExitFailure, Message: code, Err: err, Reported: true}
}
