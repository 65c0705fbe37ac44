// Package config assembles worker settings from defaults, an optional YAML
// file, and STARB_* environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`

	Schedules       Schedules       `yaml:"schedules"`
	GC              GC              `yaml:"gc"`
	DailyPulse      DailyPulse      `yaml:"daily_pulse"`
	ConnectorPoll   ConnectorPoll   `yaml:"connector_poll"`
	FirstPulseRetry FirstPulseRetry `yaml:"first_pulse_retry"`
	RunNow          RunNow          `yaml:"run_now"`
}

// Schedules are standard cron specs for the recurring worker tasks.
type Schedules struct {
	Hygiene         string `yaml:"hygiene"`
	DailyPulse      string `yaml:"daily_pulse"`
	ConnectorPoll   string `yaml:"connector_poll"`
	FirstPulseRetry string `yaml:"first_pulse_retry"`
}

type GC struct {
	RetentionDays int     `yaml:"retention_days"`
	Batch         int     `yaml:"batch"`
	BatchesPerSec float64 `yaml:"batches_per_sec"`
}

type DailyPulse struct {
	Batch int `yaml:"batch"`
}

type ConnectorPoll struct {
	IntervalMins int `yaml:"interval_mins"`
	Batch        int `yaml:"batch"`
}

type FirstPulseRetry struct {
	Enabled     *bool `yaml:"enabled"`
	WindowHours int   `yaml:"window_hours"`
	MaxAttempts int   `yaml:"max_attempts"`
	Batch       int   `yaml:"batch"`
}

type RunNow struct {
	UserPerMinute      int `yaml:"user_per_minute"`
	WorkspacePerMinute int `yaml:"workspace_per_minute"`
	WorkspacePerDay    int `yaml:"workspace_per_day"`
}

func defaults() Config {
	return Config{
		Env:      "development",
		LogLevel: "info",
		Schedules: Schedules{
			Hygiene:         "17 * * * *",
			DailyPulse:      "*/10 * * * *",
			ConnectorPoll:   "*/5 * * * *",
			FirstPulseRetry: "*/15 * * * *",
		},
		GC: GC{
			RetentionDays: 30,
			Batch:         1000,
			BatchesPerSec: 10,
		},
		DailyPulse: DailyPulse{
			Batch: 200,
		},
		ConnectorPoll: ConnectorPoll{
			IntervalMins: 15,
			Batch:        20,
		},
		FirstPulseRetry: FirstPulseRetry{
			WindowHours: 24,
			MaxAttempts: 3,
			Batch:       120,
		},
		RunNow: RunNow{
			UserPerMinute:      3,
			WorkspacePerMinute: 5,
			WorkspacePerDay:    20,
		},
	}
}

// Load builds the effective config. path may be empty; a missing file at a
// non-empty path is an error, since an operator asked for it explicitly.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(body, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	clamp(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("STARB_ENV")); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(os.Getenv("STARB_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	cfg.GC.RetentionDays = intEnv("STARB_DB_GC_RETENTION_DAYS", cfg.GC.RetentionDays)
	cfg.GC.Batch = intEnv("STARB_DB_GC_BATCH", cfg.GC.Batch)

	cfg.DailyPulse.Batch = intEnv("STARB_DAILY_PULSE_ENQUEUE_BATCH", cfg.DailyPulse.Batch)

	cfg.ConnectorPoll.IntervalMins = intEnv("STARB_CONNECTOR_POLL_INTERVAL_MINS", cfg.ConnectorPoll.IntervalMins)
	cfg.ConnectorPoll.Batch = intEnv("STARB_CONNECTOR_POLL_BATCH", cfg.ConnectorPoll.Batch)

	if v, ok := os.LookupEnv("STARB_FIRST_PULSE_AUTO_RETRY_V1"); ok {
		b := isTruthy(v)
		cfg.FirstPulseRetry.Enabled = &b
	}
	cfg.FirstPulseRetry.WindowHours = intEnv("STARB_FIRST_PULSE_RETRY_WINDOW_HOURS", cfg.FirstPulseRetry.WindowHours)
	cfg.FirstPulseRetry.MaxAttempts = intEnv("STARB_FIRST_PULSE_RETRY_MAX_ATTEMPTS", cfg.FirstPulseRetry.MaxAttempts)
	cfg.FirstPulseRetry.Batch = intEnv("STARB_FIRST_PULSE_RETRY_BATCH", cfg.FirstPulseRetry.Batch)

	cfg.RunNow.UserPerMinute = intEnv("STARB_RUN_NOW_USER_LIMIT_1M", cfg.RunNow.UserPerMinute)
	cfg.RunNow.WorkspacePerMinute = intEnv("STARB_RUN_NOW_WORKSPACE_LIMIT_1M", cfg.RunNow.WorkspacePerMinute)
	cfg.RunNow.WorkspacePerDay = intEnv("STARB_RUN_WORKSPACE_LIMIT_1D", cfg.RunNow.WorkspacePerDay)
}

func clamp(cfg *Config) {
	cfg.GC.RetentionDays = max(1, cfg.GC.RetentionDays)
	cfg.GC.Batch = min(5000, max(100, cfg.GC.Batch))
	cfg.DailyPulse.Batch = min(500, max(1, cfg.DailyPulse.Batch))
	cfg.ConnectorPoll.IntervalMins = min(240, max(1, cfg.ConnectorPoll.IntervalMins))
	cfg.ConnectorPoll.Batch = min(200, max(1, cfg.ConnectorPoll.Batch))
	cfg.FirstPulseRetry.WindowHours = min(72, max(1, cfg.FirstPulseRetry.WindowHours))
	cfg.FirstPulseRetry.MaxAttempts = min(8, max(1, cfg.FirstPulseRetry.MaxAttempts))
	cfg.FirstPulseRetry.Batch = min(300, max(1, cfg.FirstPulseRetry.Batch))
}

func validate(cfg Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("missing DATABASE_URL")
	}
	specs := map[string]string{
		"hygiene":           cfg.Schedules.Hygiene,
		"daily_pulse":       cfg.Schedules.DailyPulse,
		"connector_poll":    cfg.Schedules.ConnectorPoll,
		"first_pulse_retry": cfg.Schedules.FirstPulseRetry,
	}
	for name, spec := range specs {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}
	return nil
}

// RetryEnabled defaults to on outside production, matching the rollout flag
// convention.
func (c Config) RetryEnabled() bool {
	if c.FirstPulseRetry.Enabled != nil {
		return *c.FirstPulseRetry.Enabled
	}
	return c.Env != "production"
}

func intEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
