package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/dayroll/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	// If the user specified an output directory, place the config there as "dayroll.yaml".
	if i.Output != "" {
		return RunInit(g, filepath.Join(i.Output, "dayroll.yaml"), i.Force)
	}
	return RunInit(g, root.Config, i.Force)
}

func RunInit(g *Global, configPath string, force bool) error {
	w := g.out()
	_, _ = fmt.Fprintf(w, "Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		_, _ = fmt.Fprintln(w, "Initialization failed")
		return err
	}
	_, _ = fmt.Fprintln(w, "initialized successfully")
	return nil
}
