package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joelkehle/sales-proposal-agency/internal/cli"
	"github.com/mattn/go-isatty"
)

var version = "dev"

func main() {
	app := &cli.App{
		Version: version,
		IsInteractive: func() bool {
			return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
		},
	}
	if err := cli.NewRootCmd(app).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
