package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/dayroll/internal/config"
	"git.home.luguber.info/inful/dayroll/internal/display"
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/natsbus"
	"git.home.luguber.info/inful/dayroll/internal/recompute"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// needsBus reports whether any configured component talks to NATS.
func (d *Daemon) needsBus() bool {
	cfg := d.cfg
	if cfg.NATS.URL == "" {
		return false
	}
	return (d.backend == nil && cfg.Store.Backend == config.StoreBackendNATS) ||
		(d.surface == nil && cfg.Recompute.Surface == config.RecomputeSurfaceNATS) ||
		(d.sinks == nil && cfg.Display.NATS) ||
		cfg.NATS.Triggers
}

func (d *Daemon) connectBus() error {
	if !d.needsBus() {
		return nil
	}
	bus, err := natsbus.Connect(d.cfg.NATS.URL, d.cfg.NATS.SubjectPrefix, "dayroll")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "failed to connect to NATS").
			WithContext("url", d.cfg.NATS.URL).
			Build()
	}
	d.bus = bus
	return nil
}

func (d *Daemon) openStore() error {
	backend := d.backend
	if backend == nil {
		var err error
		backend, err = openBackend(d.cfg, d.bus)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryStore, "failed to open store backend").
				WithContext("backend", string(d.cfg.Store.Backend)).
				Build()
		}
	}
	d.store = state.NewStore(backend, d.cfg.Store.CanonicalNamespace, d.cfg.Store.LegacyNamespaces...)
	d.store.SetRecorder(d.recorder)
	return nil
}

func openBackend(cfg *config.Config, bus *natsbus.Client) (state.Backend, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		return state.NewMemoryBackend(), nil
	case config.StoreBackendSQLite:
		path := cfg.Store.SQLitePath
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		return state.NewSQLiteBackend(path)
	case config.StoreBackendNATS:
		if bus == nil {
			return nil, fmt.Errorf("nats backend requires a NATS connection")
		}
		return state.NewNATSBackend(bus.JetStream(), cfg.Store.NATSBucketPrefix), nil
	case config.StoreBackendJSON:
		return state.NewJSONBackend(cfg.DataDir)
	default:
		return state.NewJSONBackend(cfg.DataDir)
	}
}

func (d *Daemon) displaySinks() []display.Sink {
	if d.sinks != nil {
		return d.sinks
	}
	var sinks []display.Sink
	if config.Enabled(d.cfg.Display.Log, true) {
		sinks = append(sinks, display.LogSink{})
	}
	if d.cfg.Display.NATS && d.bus != nil {
		sinks = append(sinks, display.NewNATSSink(d.bus.Conn(), d.bus.Subject(natsbus.SubjectDisplayRefresh)))
	}
	return sinks
}

func (d *Daemon) recomputeSurface() (recompute.Surface, error) {
	if d.surface != nil {
		return d.surface, nil
	}
	rc := d.cfg.Recompute
	switch rc.Surface {
	case config.RecomputeSurfaceCommand:
		s, err := recompute.NewCommandSurface(rc.Command)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid recompute command").Build()
		}
		return s, nil
	case config.RecomputeSurfaceNATS:
		if d.bus == nil {
			return nil, ferrors.ConfigError("nats recompute surface requires nats.url").Build()
		}
		d.natsSurface = recompute.NewNATSSurface(d.bus.Conn(), d.bus.Conn(), d.bus.Prefix())
		return d.natsSurface, nil
	case config.RecomputeSurfaceNone:
		return recompute.NoopSurface{}, nil
	default:
		return recompute.NoopSurface{}, nil
	}
}

func (d *Daemon) closeBus() {
	if d.bus != nil {
		_ = d.bus.Close()
	}
}

// closeResources releases what New opened before a later step failed.
func (d *Daemon) closeResources() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("Failed to close store", logfields.Error(err))
		}
	}
	d.closeBus()
}
