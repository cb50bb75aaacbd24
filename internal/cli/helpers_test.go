package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepd/internal/config"
	"github.com/roach88/stepd/internal/store"
	"github.com/roach88/stepd/internal/tracker"
)

var noon = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// newTestOptions returns options backed by a temporary database, a fixed
// clock at noon UTC, and an environment holding only env.
func newTestOptions(t *testing.T, format string, env map[string]string) *RootOptions {
	t.Helper()

	vars := map[string]string{"STEPD_TIMEZONE": "UTC"}
	for k, v := range env {
		vars[k] = v
	}

	return &RootOptions{
		Format:    format,
		LogFormat: "text",
		Database:  filepath.Join(t.TempDir(), "steps.db"),
		Now:       func() time.Time { return noon },
		Loader: &config.Loader{
			EnvFiles: []string{},
			LookupEnv: func(k string) (string, bool) {
				v, ok := vars[k]
				return v, ok
			},
		},
	}
}

// seedDay writes one day's state the way the tracker persists it.
func seedDay(t *testing.T, opts *RootOptions, day string, steps, sensor int64) {
	t.Helper()
	st, err := store.Open(opts.Database, store.WithHistory(tracker.KeyStepsDate, tracker.KeyCumulativeSteps))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.SetMany(context.Background(), map[string]any{
		tracker.KeyStepsDate:       day,
		tracker.KeyCumulativeSteps: steps,
		tracker.KeyLastSensorCount: sensor,
	}))
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
