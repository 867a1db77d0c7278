package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dayroll/cmd/dayroll/commands"
	ferrors "git.home.luguber.info/inful/dayroll/internal/foundation/errors"
	"git.home.luguber.info/inful/dayroll/internal/version"
)

func main() {
	var cli commands.CLI
	kctx := kong.Parse(&cli,
		kong.Name("dayroll"),
		kong.Description("Resets today's progress exactly once per local day."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	global := &commands.Global{Logger: slog.Default(), Out: os.Stdout}
	if err := kctx.Run(global, &cli); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
