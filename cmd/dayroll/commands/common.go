package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dayroll/internal/config"
	"git.home.luguber.info/inful/dayroll/internal/daemon"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/server"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"dayroll.yaml" env:"DAYROLL_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Remote  string           `short:"r" help:"Admin API of a running daemon (host:port or URL); without it commands act on the store directly" env:"DAYROLL_REMOTE"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Daemon      DaemonCmd      `cmd:"" help:"Run the reconciliation daemon"`
	Status      StatusCmd      `cmd:"" help:"Show the diagnostic state"`
	Trigger     TriggerCmd     `cmd:"" help:"Reconcile now for a cause or raw signal name"`
	Refresh     RefreshCmd     `cmd:"" help:"Force a boundary-equivalent reconciliation"`
	DebugWake   DebugWakeCmd   `cmd:"" name:"debug-wake" help:"Arm a one-shot debug wake-up on the running daemon"`
	Clear       ClearCmd       `cmd:"" help:"Clear diagnostic records"`
	SetProgress SetProgressCmd `cmd:"" name:"set-progress" help:"Write today's progress"`
	Init        InitCmd        `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the configuration and applies its logging section.
// -v always wins over the configured level.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg, root.Verbose)
	return cfg, nil
}

func configureLogging(cfg *config.Config, verbose bool) {
	level := cfg.Logging.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Logging.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// withOffline runs fn against a one-shot daemon sharing the configured store.
func withOffline(root *CLI, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	d, err := daemon.New(cfg, daemon.WithOffline())
	if err != nil {
		return err
	}
	ctx := context.Background()
	runErr := fn(ctx, d)
	if err := d.Stop(ctx); err != nil {
		slog.Warn("Failed to release resources", logfields.Error(err))
	}
	return runErr
}

func remoteClient(root *CLI) *server.Client {
	if root.Remote == "" {
		return nil
	}
	return server.NewClient(root.Remote, nil)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
