package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STEPD_"

// applyEnv overrides cfg fields from STEPD_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATABASE":     &cfg.Database,
		"TIMEZONE":     &cfg.Timezone,
		"SENSOR_KIND":  &cfg.Sensor.Kind,
		"SENSOR_PATH":  &cfg.Sensor.Path,
		"HTTP_ADDR":    &cfg.HTTP.Addr,
		"NATS_URL":     &cfg.NATS.URL,
		"NATS_SUBJECT": &cfg.NATS.Subject,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int64{
		"MAX_DELTA":  &cfg.MaxDelta,
		"DAILY_GOAL": &cfg.DailyGoal,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"DRIVER_INTERVAL":        &cfg.Driver.Interval,
		"DRIVER_READING_TIMEOUT": &cfg.Driver.ReadingTimeout,
		"SENSOR_POLL_INTERVAL":   &cfg.Sensor.PollInterval,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError(name, v, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvPrefix + "BASELINE_FIRST_READING"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("BASELINE_FIRST_READING", v, err)
		}
		cfg.BaselineFirstReading = b
	}

	return nil
}

func envError(name, value string, err error) error {
	return &Error{
		Code:    CodeInvalid,
		Message: fmt.Sprintf("%s%s=%q", EnvPrefix, name, value),
		Err:     err,
	}
}
