package commands

import (
	"context"

	"git.home.luguber.info/inful/dayroll/internal/daemon"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct{}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	if c := remoteClient(root); c != nil {
		ds, err := c.Diagnostics(context.Background())
		if err != nil {
			return err
		}
		return printJSON(g.out(), ds)
	}
	return withOffline(root, func(ctx context.Context, d *daemon.Daemon) error {
		return printJSON(g.out(), d.GetDiagnosticState(ctx))
	})
}
