package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stepd/internal/config"
)

// ValidationResult holds config validation results.
type ValidationResult struct {
	Valid  bool            `json:"valid"`
	Path   string          `json:"path,omitempty"`
	Errors []ConfigProblem `json:"errors,omitempty"`
	Config *config.Config  `json:"config,omitempty"`
}

// ConfigProblem is one reported configuration error.
type ConfigProblem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate configuration without starting",
		Long: `Validate a stepd configuration file against the embedded schema and the
merged environment overrides, without opening the database.

Without an argument the --config path (or built-in defaults) is checked.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loader := opts.Loader
	if loader == nil {
		loader = &config.Loader{}
	}

	formatter.VerboseLog("Validating configuration %q", path)

	cfg, err := loader.Load(path)
	if err != nil {
		return outputValidationError(formatter, path, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Path: path, Config: cfg})
	}

	fmt.Fprintln(formatter.Writer, "✓ Configuration valid")
	return nil
}

// outputValidationError reports a config error with its schema line, if known.
func outputValidationError(formatter *OutputFormatter, path string, err error) error {
	problem := ConfigProblem{Code: ErrCodeGeneric, Message: err.Error()}

	var ce *config.Error
	if errors.As(err, &ce) {
		problem.Code = ce.Code
		problem.Message = ce.Message
		if ce.Pos.IsValid() {
			problem.Line = ce.Pos.Line()
		}
		if ce.Err != nil && ce.Code != config.CodeSchema {
			problem.Message = fmt.Sprintf("%s: %v", ce.Message, ce.Err)
		}
	}

	if formatter.Format == "json" {
		_ = formatter.Success(ValidationResult{Valid: false, Path: path, Errors: []ConfigProblem{problem}})
	} else {
		if problem.Line > 0 {
			fmt.Fprintf(formatter.Writer, "✗ [%s] line %d: %s\n", problem.Code, problem.Line, problem.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "✗ [%s] %s\n", problem.Code, problem.Message)
		}
	}

	// Invalid configuration is a command-level error (exit code 2)
	exitErr := NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", problem.Code, problem.Message))
	exitErr.Reported = true
	return exitErr
}
