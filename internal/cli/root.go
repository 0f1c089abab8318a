// Package cli wires the proposal services into the "proposal" command.
package cli

import (
	"io"
	"os"

	"github.com/joelkehle/sales-proposal-agency/internal/config"
	"github.com/spf13/cobra"
)

// App carries process-level dependencies shared by every subcommand.
type App struct {
	Version string
	Out     io.Writer
	Err     io.Writer
	In      io.Reader

	// IsInteractive reports whether Out is a terminal; colour is only used when it is.
	IsInteractive func() bool
	// LoadConfig defaults to config.Load.
	LoadConfig func(path string) (*config.Config, error)

	configPath string
}

func (a *App) defaults() {
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.Err == nil {
		a.Err = os.Stderr
	}
	if a.In == nil {
		a.In = os.Stdin
	}
	if a.IsInteractive == nil {
		a.IsInteractive = func() bool { return false }
	}
	if a.LoadConfig == nil {
		a.LoadConfig = config.Load
	}
	if a.Version == "" {
		a.Version = "dev"
	}
}

func (a *App) config() (*config.Config, error) {
	return a.LoadConfig(a.configPath)
}

// NewRootCmd creates the top-level "proposal" command.
func NewRootCmd(app *App) *cobra.Command {
	app.defaults()
	root := &cobra.Command{
		Use:           "proposal",
		Short:         "Sales proposal estimator: build-vs-buy cost, revenue impact and pricing",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)
	root.SetIn(app.In)
	root.PersistentFlags().StringVar(&app.configPath, "config", os.Getenv("PROPOSAL_CONFIG"), "YAML config file")

	root.AddCommand(
		newQuoteCmd(app),
		newServeCmd(app),
		newAgentCmd(app),
		newHistoryCmd(app),
		newRenderCmd(app),
		newTokenCmd(app),
	)
	return root
}
