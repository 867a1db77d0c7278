package config

import (
	"regexp"
	"slices"
	"time"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/retry"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "unknown timezone").
				WithContext("timezone", cfg.Timezone).
				Build()
		}
	}
	if err := validateStore(cfg); err != nil {
		return err
	}
	if err := validateSchedule(&cfg.Schedule); err != nil {
		return err
	}
	if err := validateRecompute(cfg); err != nil {
		return err
	}
	if err := validateWatch(&cfg.Watch); err != nil {
		return err
	}
	if _, err := RetryPolicy(cfg); err != nil {
		return err
	}
	return nil
}

// RetryPolicy builds the periodic job retry policy.
func RetryPolicy(cfg *Config) (retry.Policy, error) {
	mode := retry.ParseMode(cfg.Retry.Mode)
	if mode == "" {
		return retry.Policy{}, ferrors.ConfigError("invalid retry mode").
			WithContext("mode", cfg.Retry.Mode).
			Build()
	}
	maxRetries := -1
	if cfg.Retry.MaxRetries != nil {
		maxRetries = *cfg.Retry.MaxRetries
		if maxRetries < 0 {
			return retry.Policy{}, ferrors.ConfigError("retry.max_retries cannot be negative").Build()
		}
	}
	p := retry.NewPolicy(mode, cfg.Retry.Initial.D(), cfg.Retry.Max.D(), maxRetries)
	if err := p.Validate(); err != nil {
		return retry.Policy{}, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid retry policy").Build()
	}
	return p, nil
}

func validateStore(cfg *Config) error {
	s := &cfg.Store
	switch s.Backend {
	case StoreBackendJSON, StoreBackendSQLite, StoreBackendMemory:
	case StoreBackendNATS:
		if cfg.NATS.URL == "" {
			return ferrors.ConfigError("store.backend nats requires nats.url").Build()
		}
	default:
		return ferrors.ConfigError("invalid store backend").
			WithContext("backend", string(s.Backend)).
			WithContext("valid", storeBackendNormalizer.Keys()).
			Build()
	}
	if !namespacePattern.MatchString(s.CanonicalNamespace) {
		return ferrors.ConfigError("invalid canonical namespace").
			WithContext("namespace", s.CanonicalNamespace).
			Build()
	}
	for _, ns := range s.LegacyNamespaces {
		if !namespacePattern.MatchString(ns) {
			return ferrors.ConfigError("invalid legacy namespace").
				WithContext("namespace", ns).
				Build()
		}
		if ns == s.CanonicalNamespace {
			return ferrors.ConfigError("legacy namespaces must not repeat the canonical namespace").
				WithContext("namespace", ns).
				Build()
		}
	}
	sorted := slices.Clone(s.LegacyNamespaces)
	slices.Sort(sorted)
	if len(slices.Compact(sorted)) != len(s.LegacyNamespaces) {
		return ferrors.ConfigError("duplicate legacy namespace").Build()
	}
	return nil
}

func validateSchedule(s *ScheduleConfig) error {
	if s.ToleranceWindow.D() <= 0 {
		return ferrors.ConfigError("schedule.tolerance_window must be positive").Build()
	}
	if s.FallbackOffset.D() <= 0 {
		return ferrors.ConfigError("schedule.fallback_offset must be positive").Build()
	}
	if s.PeriodicInterval.D() < 15*time.Minute {
		return ferrors.ConfigError("schedule.periodic_interval must be at least 15m").
			WithContext("interval", s.PeriodicInterval.D().String()).
			Build()
	}
	if s.DebugMaxSeconds < 1 {
		return ferrors.ConfigError("schedule.debug_max_seconds must be positive").Build()
	}
	return nil
}

func validateRecompute(cfg *Config) error {
	r := &cfg.Recompute
	if r.Deadline.D() <= 0 {
		return ferrors.ConfigError("recompute.deadline must be positive").Build()
	}
	switch r.Surface {
	case RecomputeSurfaceNone:
	case RecomputeSurfaceCommand:
		if len(r.Command) == 0 || r.Command[0] == "" {
			return ferrors.ConfigError("recompute.surface command requires recompute.command").Build()
		}
	case RecomputeSurfaceNATS:
		if cfg.NATS.URL == "" {
			return ferrors.ConfigError("recompute.surface nats requires nats.url").Build()
		}
	default:
		return ferrors.ConfigError("invalid recompute surface").
			WithContext("surface", string(r.Surface)).
			WithContext("valid", recomputeSurfaceNormalizer.Keys()).
			Build()
	}
	if (cfg.Display.NATS || cfg.NATS.Triggers) && cfg.NATS.URL == "" {
		return ferrors.ConfigError("display.nats and nats.triggers require nats.url").Build()
	}
	return nil
}

func validateWatch(w *WatchConfig) error {
	if Enabled(w.Clock, true) {
		if w.ClockInterval.D() < time.Second {
			return ferrors.ConfigError("watch.clock_interval must be at least 1s").Build()
		}
		if w.ClockSkewThreshold.D() <= 0 {
			return ferrors.ConfigError("watch.clock_skew_threshold must be positive").Build()
		}
	}
	return nil
}
