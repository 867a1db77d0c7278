package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/dayroll/internal/config"
	"git.home.luguber.info/inful/dayroll/internal/daemon"
	"git.home.luguber.info/inful/dayroll/internal/logfields"
	"git.home.luguber.info/inful/dayroll/internal/server"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	DataDir string `short:"d" help:"Override data_dir from the configuration"`
	Admin   string `help:"Override http.admin_addr from the configuration"`
}

func (c *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	if c.Admin != "" {
		cfg.HTTP.AdminAddr = c.Admin
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunDaemon(ctx, cfg)
}

// RunDaemon runs the daemon and its admin server until ctx is cancelled.
func RunDaemon(ctx context.Context, cfg *config.Config) error {
	slog.Info("Starting daemon mode", logfields.Path(cfg.DataDir))

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(ctx); err != nil {
		_ = d.Stop(context.Background())
		return fmt.Errorf("daemon error: %w", err)
	}

	var admin *server.Server
	if cfg.HTTP.AdminAddr != "" {
		admin = server.New(cfg.HTTP.AdminAddr, d, d.MetricsHandler())
		if err := admin.Start(ctx); err != nil {
			_ = d.Stop(context.Background())
			return err
		}
	}

	slog.Info("Daemon started, waiting for shutdown signal...")
	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping daemon...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	if admin != nil {
		if err := admin.Stop(stopCtx); err != nil {
			slog.Warn("Failed to stop admin server", logfields.Error(err))
		}
	}
	if err := d.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	slog.Info("Daemon stopped successfully")
	return nil
}
