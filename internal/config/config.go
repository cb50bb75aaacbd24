// Package config loads stepd configuration.
//
// Sources, lowest precedence first:
//  1. Built-in defaults
//  2. A YAML file, checked against an embedded CUE schema
//  3. STEPD_* environment variables, including those from a .env file
//
// The merged result is validated before use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stepd/internal/driver"
	"github.com/roach88/stepd/internal/publish"
	"github.com/roach88/stepd/internal/sensor"
	"github.com/roach88/stepd/internal/tracker"
)

//go:embed schema.cue
var schemaSource string

// Error codes carried by *Error.
const (
	CodeNotFound   = "E005" // config file not found
	CodeLoadFailed = "E004" // unreadable or malformed YAML
	CodeSchema     = "E006" // document does not match the schema
	CodeInvalid    = "E008" // merged values failed validation
)

// Error describes a configuration problem.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a *Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Config is the full stepd configuration.
type Config struct {
	Database             string  `yaml:"database" validate:"required"`
	Timezone             string  `yaml:"timezone"`
	MaxDelta             int64   `yaml:"max_delta" validate:"gte=0"`
	BaselineFirstReading bool    `yaml:"baseline_first_reading"`
	DailyGoal            int64   `yaml:"daily_goal" validate:"gt=0"`
	StrideM              float64 `yaml:"stride_m" validate:"gte=0"`
	KcalPerStep          float64 `yaml:"kcal_per_step" validate:"gte=0"`

	Driver DriverConfig `yaml:"driver"`
	Sensor SensorConfig `yaml:"sensor"`
	HTTP   HTTPConfig   `yaml:"http"`
	NATS   NATSConfig   `yaml:"nats"`
}

// DriverConfig tunes the check-in loop.
type DriverConfig struct {
	Interval       time.Duration `yaml:"interval" validate:"gt=0"`
	ReadingTimeout time.Duration `yaml:"reading_timeout" validate:"gt=0"`
	ReferenceEpoch Timestamp     `yaml:"reference_epoch"`
}

// timestampLayouts are the reference_epoch forms accepted, matching
// #Timestamp in schema.cue.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a point in time written as a date or an RFC 3339 timestamp.
// Quoted and plain YAML scalars decode the same way; values without a zone
// are UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Timestamp) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", value.Line)
	}
	parsed, err := ParseTimestamp(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses s in any accepted Timestamp form.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// SensorConfig selects the reading source.
type SensorConfig struct {
	Kind         string        `yaml:"kind" validate:"oneof=odometer health manual"`
	Path         string        `yaml:"path" validate:"required_unless=Kind manual"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=0"`
}

// HTTPConfig configures the HTTP API. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// NATSConfig configures progress publishing. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url" validate:"omitempty,url"`
	Subject string `yaml:"subject" validate:"required_with=URL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:    "stepd.db",
		MaxDelta:    tracker.DefaultMaxDelta,
		DailyGoal:   publish.DefaultGoal,
		StrideM:     0.762,
		KcalPerStep: 0.04,
		Driver: DriverConfig{
			Interval:       driver.DefaultInterval,
			ReadingTimeout: driver.DefaultReadingTimeout,
			ReferenceEpoch: Timestamp{Time: driver.DefaultEpoch},
		},
		Sensor: SensorConfig{
			Kind:         sensor.KindManual,
			PollInterval: sensor.DefaultPollInterval,
		},
		NATS: NATSConfig{
			Subject: publish.DefaultSubject,
		},
	}
}

// Location resolves Timezone. Empty means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SensorSource converts the sensor section for sensor.New.
func (c *Config) SensorSource() sensor.Config {
	return sensor.Config{
		Kind:         c.Sensor.Kind,
		Path:         c.Sensor.Path,
		PollInterval: c.Sensor.PollInterval,
	}
}

// Loader reads configuration. The zero value reads .env from the working
// directory and the process environment.
type Loader struct {
	// EnvFiles are loaded into the process environment when present.
	// Existing variables are not overwritten. Nil means [".env"].
	EnvFiles []string

	// LookupEnv reads environment variables. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load reads path (optional) with the default Loader.
func Load(path string) (*Config, error) {
	return (&Loader{}).Load(path)
}

// Load builds a Config from defaults, the file at path, and the environment.
// An empty path skips the file.
func (l *Loader) Load(path string) (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadEnvFiles() error {
	files := l.EnvFiles
	if files == nil {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return &Error{Code: CodeLoadFailed, Message: fmt.Sprintf("loading %s", f), Err: err}
		}
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf("configuration file not found: %s", path), Err: err}
	}
	if err != nil {
		return &Error{Code: CodeLoadFailed, Message: fmt.Sprintf("reading %s", path), Err: err}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &Error{Code: CodeLoadFailed, Message: fmt.Sprintf("parsing %s", path), Err: err}
	}
	if err := checkSchema(path, raw); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &Error{Code: CodeLoadFailed, Message: fmt.Sprintf("decoding %s", path), Err: err}
	}
	return nil
}

// checkSchema unifies the decoded document with #Config.
func checkSchema(path string, raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return &Error{Code: CodeSchema, Message: "compiling embedded schema", Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	if raw == nil {
		raw = map[string]any{}
	}
	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return &Error{Code: CodeSchema, Message: fmt.Sprintf("%s: encoding document", path), Err: err}
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		errs := cueerrors.Errors(err)
		ce := &Error{Code: CodeSchema, Message: fmt.Sprintf("%s: %v", path, err), Err: err}
		if len(errs) > 0 {
			ce.Message = fmt.Sprintf("%s: %s", path, errs[0].Error())
			ce.Pos = errs[0].Position()
		}
		return ce
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a merged Config.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &Error{
				Code:    CodeInvalid,
				Message: fmt.Sprintf("%s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()),
				Err:     err,
			}
		}
		return &Error{Code: CodeInvalid, Message: "invalid configuration", Err: err}
	}
	if _, err := cfg.Location(); err != nil {
		return &Error{Code: CodeInvalid, Message: "timezone", Err: err}
	}
	return nil
}
