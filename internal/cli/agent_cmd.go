package cli

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joelkehle/sales-proposal-agency/internal/busclient"
	"github.com/joelkehle/sales-proposal-agency/internal/events"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/telemetry"
	"github.com/spf13/cobra"
)

func newAgentCmd(app *App) *cobra.Command {
	var busURL, agentID string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve sales-proposal requests from the agent bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			if busURL != "" {
				cfg.Bus.URL = busURL
			}
			if agentID != "" {
				cfg.Bus.AgentID = agentID
			}
			if strings.TrimSpace(cfg.Bus.Secret) == "" {
				return proposal.NewConfigurationError("bus.secret", "SALES_PROPOSAL_AGENT_SECRET is required")
			}
			logger, err := newLogger(app.Err, cfg.Log, "")
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, app.Version)
			if err != nil {
				return err
			}
			defer func() { _ = shutdownTracing(context.Background()) }()

			pipeline, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			history, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if history != nil {
				defer history.Close()
			}
			publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
			if err != nil {
				return err
			}
			defer publisher.Close()

			bus := busclient.New(cfg.Bus.URL, cfg.Bus.AgentID, cfg.Bus.Secret)
			agent := proposal.NewAgent(proposal.AgentConfig{
				PollWait:          cfg.Bus.PollWait,
				HeartbeatInterval: cfg.Bus.HeartbeatInterval,
				MaxConcurrent:     cfg.Bus.MaxConcurrent,
			}, bus, pipeline, newFanout(history, publisher), logger)

			logger.Info("starting sales-proposal agent", "bus", cfg.Bus.URL, "agent", cfg.Bus.AgentID)
			if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&busURL, "bus-url", "", "Bus base URL (overrides bus.url)")
	cmd.Flags().StringVar(&agentID, "agent-id", "", "Agent ID (overrides bus.agent_id)")
	return cmd
}
