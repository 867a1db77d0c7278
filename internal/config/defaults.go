package config

import (
	"path/filepath"
	"time"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
)

// DefaultApplier fills unset values for one configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// appliers run in order; later domains may depend on earlier ones
// (the store needs DataDir).
var appliers = []DefaultApplier{
	&coreDefaults{},
	&storeDefaults{},
	&scheduleDefaults{},
	&recomputeDefaults{},
	&natsDefaults{},
	&watchDefaults{},
	&retryDefaults{},
	&loggingDefaults{},
}

// ApplyDefaults runs every domain applier.
func ApplyDefaults(cfg *Config) error {
	for _, a := range appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to apply defaults").
				WithContext("domain", a.Domain()).
				Build()
		}
	}
	return nil
}

type coreDefaults struct{}

func (coreDefaults) Domain() string { return "core" }

func (coreDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Metrics.Enabled == nil {
		on := true
		cfg.Metrics.Enabled = &on
	}
	return nil
}

type storeDefaults struct{}

func (storeDefaults) Domain() string { return "store" }

func (storeDefaults) ApplyDefaults(cfg *Config) error {
	s := &cfg.Store
	if s.Backend == "" {
		s.Backend = StoreBackendJSON
	}
	if s.CanonicalNamespace == "" {
		s.CanonicalNamespace = DefaultCanonicalNamespace
	}
	if s.LegacyNamespaces == nil {
		s.LegacyNamespaces = append([]string(nil), DefaultLegacyNamespaces...)
	}
	if s.Backend == StoreBackendSQLite && s.SQLitePath == "" {
		s.SQLitePath = filepath.Join(cfg.DataDir, "dayroll.db")
	}
	if s.Backend == StoreBackendNATS && s.NATSBucketPrefix == "" {
		s.NATSBucketPrefix = "dayroll"
	}
	return nil
}

type scheduleDefaults struct{}

func (scheduleDefaults) Domain() string { return "schedule" }

func (scheduleDefaults) ApplyDefaults(cfg *Config) error {
	s := &cfg.Schedule
	if s.ToleranceWindow == 0 {
		s.ToleranceWindow = Duration(15 * time.Minute)
	}
	if s.FallbackOffset == 0 {
		s.FallbackOffset = Duration(60 * time.Second)
	}
	if s.PeriodicJobName == "" {
		s.PeriodicJobName = "daily-reconcile"
	}
	if s.PeriodicInterval == 0 {
		s.PeriodicInterval = Duration(24 * time.Hour)
	}
	if s.DebugMaxSeconds == 0 {
		s.DebugMaxSeconds = 3600
	}
	return nil
}

type recomputeDefaults struct{}

func (recomputeDefaults) Domain() string { return "recompute" }

func (recomputeDefaults) ApplyDefaults(cfg *Config) error {
	r := &cfg.Recompute
	if r.Surface == "" {
		r.Surface = RecomputeSurfaceNone
	}
	if r.Deadline == 0 {
		r.Deadline = Duration(2 * time.Second)
	}
	if cfg.Display.Log == nil {
		on := true
		cfg.Display.Log = &on
	}
	return nil
}

type natsDefaults struct{}

func (natsDefaults) Domain() string { return "nats" }

func (natsDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "dayroll"
	}
	return nil
}

type watchDefaults struct{}

func (watchDefaults) Domain() string { return "watch" }

func (watchDefaults) ApplyDefaults(cfg *Config) error {
	w := &cfg.Watch
	if w.Clock == nil {
		on := true
		w.Clock = &on
	}
	if w.ClockInterval == 0 {
		w.ClockInterval = Duration(30 * time.Second)
	}
	if w.ClockSkewThreshold == 0 {
		w.ClockSkewThreshold = Duration(5 * time.Second)
	}
	if w.Timezone == nil {
		on := true
		w.Timezone = &on
	}
	if w.TimezoneFile == "" {
		w.TimezoneFile = "/etc/localtime"
	}
	return nil
}

type retryDefaults struct{}

func (retryDefaults) Domain() string { return "retry" }

func (retryDefaults) ApplyDefaults(cfg *Config) error {
	r := &cfg.Retry
	if r.Mode == "" {
		r.Mode = "exponential"
	}
	if r.Initial == 0 {
		r.Initial = Duration(30 * time.Second)
	}
	if r.Max == 0 {
		r.Max = Duration(5 * time.Hour)
	}
	if r.MaxRetries == nil {
		n := 3
		r.MaxRetries = &n
	}
	return nil
}

type loggingDefaults struct{}

func (loggingDefaults) Domain() string { return "logging" }

func (loggingDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
	return nil
}
