package commands

import (
	"context"

	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
)

// DebugWakeCmd implements the 'debug-wake' command.
type DebugWakeCmd struct {
	Seconds int `short:"s" help:"Delay before the wake-up fires" default:"10"`
}

func (c *DebugWakeCmd) Run(g *Global, root *CLI) error {
	rc := remoteClient(root)
	if rc == nil {
		// A wake-up armed in this short-lived process would never fire.
		return ferrors.ValidationError("debug-wake needs a running daemon; pass --remote").Build()
	}
	wr, err := rc.DebugWake(context.Background(), c.Seconds)
	if err != nil {
		return err
	}
	return printJSON(g.out(), wr)
}
