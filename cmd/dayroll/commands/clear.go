package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/dayroll/internal/daemon"
)

// ClearCmd implements the 'clear' command.
type ClearCmd struct {
	All bool `help:"Also remove today's progress"`
}

func (c *ClearCmd) Run(g *Global, root *CLI) error {
	if rc := remoteClient(root); rc != nil {
		if err := rc.Clear(context.Background(), c.All); err != nil {
			return err
		}
	} else if err := withOffline(root, func(ctx context.Context, d *daemon.Daemon) error {
		if c.All {
			d.ClearAll(ctx)
		} else {
			d.ClearDiagnostics(ctx)
		}
		return nil
	}); err != nil {
		return err
	}

	what := "diagnostics"
	if c.All {
		what = "all"
	}
	_, err := fmt.Fprintf(g.out(), "cleared %s\n", what)
	return err
}
