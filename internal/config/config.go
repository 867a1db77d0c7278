// Package config loads the dayroll YAML configuration.
//
// Loading order: .env files (never overriding the process environment),
// ${VAR} expansion, YAML decode, normalization, defaults, validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
)

// Config is the complete daemon configuration.
type Config struct {
	// Timezone is an IANA zone name; empty means the host zone.
	Timezone  string          `yaml:"timezone"`
	DataDir   string          `yaml:"data_dir"`
	Store     StoreConfig     `yaml:"store"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Recompute RecomputeConfig `yaml:"recompute"`
	Display   DisplayConfig   `yaml:"display"`
	NATS      NATSConfig      `yaml:"nats"`
	Watch     WatchConfig     `yaml:"watch"`
	Retry     RetryConfig     `yaml:"retry"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StoreConfig selects the persistence backend and namespace layout.
type StoreConfig struct {
	Backend            StoreBackend `yaml:"backend"`
	CanonicalNamespace string       `yaml:"canonical_namespace"`
	// LegacyNamespaces are scanned after the canonical one, in order.
	LegacyNamespaces []string `yaml:"legacy_namespaces"`
	SQLitePath       string   `yaml:"sqlite_path,omitempty"`
	NATSBucketPrefix string   `yaml:"nats_bucket_prefix,omitempty"`
}

// ScheduleConfig tunes the wake scheduler and periodic job.
type ScheduleConfig struct {
	ToleranceWindow  Duration `yaml:"tolerance_window"`
	FallbackOffset   Duration `yaml:"fallback_offset"`
	PeriodicJobName  string   `yaml:"periodic_job_name"`
	PeriodicInterval Duration `yaml:"periodic_interval"`
	DebugMaxSeconds  int      `yaml:"debug_max_seconds"`
}

// RecomputeConfig selects the authoritative recompute surface.
type RecomputeConfig struct {
	Surface  RecomputeSurface `yaml:"surface"`
	Deadline Duration         `yaml:"deadline"`
	// Command is the argv run by the command surface.
	Command []string `yaml:"command,omitempty"`
}

// DisplayConfig selects display-refresh sinks.
type DisplayConfig struct {
	Log  *bool `yaml:"log,omitempty"`
	NATS bool  `yaml:"nats"`
}

// NATSConfig configures the shared NATS connection.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	// Triggers subscribes to <prefix>.trigger for external signals.
	Triggers bool `yaml:"triggers"`
}

// WatchConfig configures the clock and timezone watchers.
type WatchConfig struct {
	Clock              *bool    `yaml:"clock,omitempty"`
	ClockInterval      Duration `yaml:"clock_interval"`
	ClockSkewThreshold Duration `yaml:"clock_skew_threshold"`
	Timezone           *bool    `yaml:"timezone,omitempty"`
	TimezoneFile       string   `yaml:"timezone_file"`
}

// RetryConfig configures periodic job retries.
type RetryConfig struct {
	Mode       string   `yaml:"mode"`
	Initial    Duration `yaml:"initial"`
	Max        Duration `yaml:"max"`
	MaxRetries *int     `yaml:"max_retries,omitempty"`
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	// AdminAddr is the listen address; empty disables the server.
	AdminAddr string `yaml:"admin_addr"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Enabled reports a tri-state flag, falling back to def when unset.
func Enabled(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Duration is a time.Duration that reads and writes YAML strings like "15m".
type Duration time.Duration

// D returns the duration as time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads, expands, defaults and validates the configuration at configPath.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, ferrors.ConfigError("configuration file not found").
			WithContext("path", configPath).
			Build()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Build()
	}
	for _, w := range Normalize(&cfg) {
		fmt.Fprintf(os.Stderr, "config normalization: %s\n", w)
	}
	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	var cfg Config
	// Defaults never fail on an empty config.
	_ = ApplyDefaults(&cfg)
	return &cfg
}

// Init writes a default configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
