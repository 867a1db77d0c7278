package commands

import (
	"context"

	"git.home.luguber.info/inful/dayroll/internal/daemon"
	"git.home.luguber.info/inful/dayroll/internal/state"
)

// SetProgressCmd implements the 'set-progress' command.
type SetProgressCmd struct {
	Percent int  `short:"p" required:"" help:"Progress percentage; clamped to 0..100"`
	HasGoal bool `name:"has-goal" help:"A goal is configured for today"`
}

func (c *SetProgressCmd) Run(g *Global, root *CLI) error {
	var (
		saved state.DailyState
		err   error
	)
	if rc := remoteClient(root); rc != nil {
		saved, err = rc.SetProgress(context.Background(), c.Percent, c.HasGoal)
	} else {
		err = withOffline(root, func(ctx context.Context, d *daemon.Daemon) error {
			var serr error
			saved, serr = d.SetDailyProgress(ctx, c.Percent, c.HasGoal)
			return serr
		})
	}
	if err != nil {
		return err
	}
	return printJSON(g.out(), saved)
}
