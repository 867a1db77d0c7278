package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/dayroll/internal/cause"
	"git.home.luguber.info/inful/dayroll/internal/daemon"
)

// TriggerCmd implements the 'trigger' command.
type TriggerCmd struct {
	Cause string `arg:"" help:"Cause (boot, date_changed, ...) or raw signal name (boot_completed, user_present, ...)"`
}

func (t *TriggerCmd) Run(g *Global, root *CLI) error {
	// Validate locally so a typo never reaches the daemon.
	c, err := cause.Parse(t.Cause)
	if err != nil {
		return err
	}
	if rc := remoteClient(root); rc != nil {
		out, err := rc.Trigger(context.Background(), string(c))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(g.out(), "triggered %s\n", out.Cause)
		return err
	}
	return withOffline(root, func(ctx context.Context, d *daemon.Daemon) error {
		d.TriggerReconciliation(ctx, c)
		_, err := fmt.Fprintf(g.out(), "triggered %s\n", c)
		return err
	})
}

// RefreshCmd implements the 'refresh' command.
type RefreshCmd struct{}

func (r *RefreshCmd) Run(g *Global, root *CLI) error {
	if rc := remoteClient(root); rc != nil {
		if err := rc.Refresh(context.Background()); err != nil {
			return err
		}
	} else if err := withOffline(root, func(ctx context.Context, d *daemon.Daemon) error {
		d.RequestImmediateRefresh(ctx)
		return nil
	}); err != nil {
		return err
	}
	_, err := fmt.Fprintf(g.out(), "triggered %s\n", cause.ManualForce)
	return err
}
