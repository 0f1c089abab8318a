package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joelkehle/sales-proposal-agency/internal/events"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/roadmap"
	"github.com/joelkehle/sales-proposal-agency/internal/telemetry"
	"github.com/spf13/cobra"
)

type quoteFlags struct {
	source          string
	customer        string
	projectType     string
	industry        string
	geography       string
	currency        string
	expedited       bool
	extendedSupport bool
	output          string
	save            bool
	trace           bool
}

func newQuoteCmd(app *App) *cobra.Command {
	var f quoteFlags

	cmd := &cobra.Command{
		Use:   "quote [roadmap text]",
		Short: "Estimate a proposal from a roadmap",
		Long: "Estimate a proposal from roadmap text given as arguments, from a file or URL (--from),\n" +
			"or from stdin when neither is given.",
		Example: `  proposal quote "basic MVP with authentication and a dashboard"
  proposal quote --from roadmap.md --customer Acme --output markdown
  proposal quote --from https://example.com/roadmap --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.config()
			if err != nil {
				return err
			}
			logger, err := newLogger(app.Err, cfg.Log, "text")
			if err != nil {
				return err
			}

			if f.trace {
				cfg.Telemetry.Stdout = true
				cfg.Telemetry.StdoutWriter = app.Err
				_, shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, app.Version)
				if err != nil {
					return err
				}
				defer func() { _ = shutdown(context.Background()) }()
			}

			text, err := readRoadmap(cmd, app, f.source, args)
			if err != nil {
				return err
			}
			pipeline, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			req := proposal.ProposalRequest{
				ProposalID: proposal.NewProposalID(),
				Customer:   f.customer,
				Roadmap: proposal.RoadmapInput{
					Description: text,
					ProjectType: f.projectType,
					Industry:    f.industry,
				},
				Geography:       f.geography,
				Currency:        f.currency,
				Expedited:       f.expedited,
				ExtendedSupport: f.extendedSupport,
			}
			result, err := pipeline.Run(ctx, req)
			if err != nil {
				return err
			}
			env := proposal.BuildResponse(result)

			if f.save {
				history, err := openHistory(cfg)
				if err != nil {
					return err
				}
				if history == nil {
					return errHistoryDisabled
				}
				defer history.Close()
				publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
				if err != nil {
					return err
				}
				defer publisher.Close()
				if err := newFanout(history, publisher).Record(ctx, env); err != nil {
					return err
				}
				logger.Info("proposal saved", "proposal_id", env.ProposalID)
			}
			return writeEnvelope(app, env, f.output)
		},
	}

	cmd.Flags().StringVar(&f.source, "from", "", "Read the roadmap from a file path or http(s) URL")
	cmd.Flags().StringVar(&f.customer, "customer", "", "Customer name shown on the report")
	cmd.Flags().StringVar(&f.projectType, "project-type", "", "Project type hint (a tier name forces that tier)")
	cmd.Flags().StringVar(&f.industry, "industry", "", "Industry hint")
	cmd.Flags().StringVar(&f.geography, "geography", "", "Market geography (default from config)")
	cmd.Flags().StringVar(&f.currency, "currency", "", "Currency symbol (default from config)")
	cmd.Flags().BoolVar(&f.expedited, "expedited", false, "Include expedited delivery")
	cmd.Flags().BoolVar(&f.extendedSupport, "extended-support", false, "Include extended support")
	cmd.Flags().StringVarP(&f.output, "output", "o", "summary", "Output format: summary, markdown or json")
	cmd.Flags().BoolVar(&f.save, "save", false, "Record the proposal in history and publish it")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "Print pipeline stage spans to stderr")
	return cmd
}

func readRoadmap(cmd *cobra.Command, app *App, source string, args []string) (string, error) {
	if source != "" {
		if len(args) > 0 {
			return "", proposal.NewInvalidInput("roadmap", "give either --from or roadmap text, not both")
		}
		doc, err := roadmap.NewLoader(nil, 0).Load(cmd.Context(), source)
		if err != nil {
			return "", err
		}
		return doc.Text, nil
	}
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	blob, err := io.ReadAll(io.LimitReader(app.In, roadmap.DefaultMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(blob))
	if text == "" {
		return "", proposal.NewInvalidInput("roadmap", "no roadmap given (pass text, --from, or pipe it on stdin)")
	}
	return text, nil
}

func writeEnvelope(app *App, env proposal.ResponseEnvelope, output string) error {
	switch strings.ToLower(output) {
	case "json":
		enc := json.NewEncoder(app.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	case "markdown", "md":
		_, err := io.WriteString(app.Out, env.ReportMarkdown)
		return err
	case "summary", "":
		_, err := io.WriteString(app.Out, formatQuote(env, newStyles(app.IsInteractive())))
		return err
	default:
		return proposal.NewInvalidInput("output", fmt.Sprintf("unknown format %q", output))
	}
}
