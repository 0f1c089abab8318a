package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/render"
	"github.com/spf13/cobra"
)

func newRenderCmd(app *App) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "render <proposal-id>",
		Short: "Render a recorded proposal as Markdown, HTML or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			history, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if history == nil {
				return errHistoryDisabled
			}
			defer history.Close()

			env, err := history.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			var blob []byte
			switch strings.ToLower(format) {
			case "md", "markdown":
				blob = []byte(env.ReportMarkdown)
			case "html":
				page, err := render.HTML(env)
				if err != nil {
					return err
				}
				blob = []byte(page)
			case "pdf":
				if out == "" {
					out = env.ProposalID + ".pdf"
				}
				blob, err = render.NewPDFRenderer(cfg.Render.ChromePath).Render(cmd.Context(), env)
				if err != nil {
					return proposal.NewUpstreamFailure("render pdf", err)
				}
			default:
				return proposal.NewInvalidInput("format", fmt.Sprintf("unknown format %q", format))
			}

			if out == "" {
				_, err = app.Out.Write(blob)
				return err
			}
			if err := os.WriteFile(out, blob, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(app.Err, "wrote %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "md", "Output format: md, html or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to a file instead of stdout (pdf defaults to <id>.pdf)")
	return cmd
}
