package cli

import (
	"fmt"
	"time"

	"github.com/joelkehle/sales-proposal-agency/internal/auth"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/spf13/cobra"
)

func newTokenCmd(app *App) *cobra.Command {
	var subject string
	var ttl time.Duration
	var scopes []string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the tool API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return proposal.NewConfigurationError("server.jwt_secret", "PROPOSAL_JWT_SECRET is required to mint tokens")
			}
			issuer, err := auth.NewIssuer(cfg.Server.JWTSecret)
			if err != nil {
				return err
			}
			tok, err := issuer.Mint(subject, ttl, scopes...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(app.Out, tok)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, e.g. the calling service")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to embed (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
