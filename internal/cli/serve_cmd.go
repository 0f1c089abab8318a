package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joelkehle/sales-proposal-agency/internal/auth"
	"github.com/joelkehle/sales-proposal-agency/internal/events"
	"github.com/joelkehle/sales-proposal-agency/internal/render"
	"github.com/joelkehle/sales-proposal-agency/internal/telemetry"
	"github.com/joelkehle/sales-proposal-agency/internal/toolapi"
	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP tool API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
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
			opts := toolapi.Options{
				Pipeline:     pipeline,
				PDF:          render.NewPDFRenderer(cfg.Render.ChromePath),
				Logger:       logger,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
			}
			if history != nil {
				defer history.Close()
				opts.History = history
			}
			if cfg.Server.JWTSecret != "" {
				issuer, err := auth.NewIssuer(cfg.Server.JWTSecret)
				if err != nil {
					return err
				}
				opts.Tokens = issuer
			}
			publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
			if err != nil {
				return err
			}
			defer publisher.Close()
			opts.Publisher = publisher

			gin.SetMode(gin.ReleaseMode)
			api, err := toolapi.New(opts)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("tool api listening", "addr", cfg.Server.Addr, "history", history != nil, "auth", opts.Tokens != nil, "llm", cfg.LLM.Enabled)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
