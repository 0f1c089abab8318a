// Package events announces generated proposals to other services over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/nats-io/nats.go"
)

const DefaultSubject = "proposals.generated"

type Publisher interface {
	Publish(ctx context.Context, env proposal.ResponseEnvelope) error
	Close() error
}

// Generated is the event payload. The full envelope stays in the store; the
// event carries the headline figures.
type Generated struct {
	ProposalID        string                  `json:"proposal_id"`
	Customer          string                  `json:"customer,omitempty"`
	Complexity        proposal.ComplexityTier `json:"complexity"`
	BusinessModel     proposal.BusinessModel  `json:"business_model"`
	Currency          string                  `json:"currency"`
	DIYCost           int64                   `json:"diy_cost"`
	FinalTotal        int64                   `json:"final_total"`
	SavingsPercentage int                     `json:"savings_percentage"`
	Consistent        bool                    `json:"consistent"`
	ReportMode        proposal.ReportMode     `json:"report_mode"`
	GeneratedAt       time.Time               `json:"generated_at"`
}

func NewGenerated(env proposal.ResponseEnvelope) Generated {
	return Generated{
		ProposalID:        env.ProposalID,
		Customer:          env.Customer,
		Complexity:        env.Profile.Complexity,
		BusinessModel:     env.Profile.BusinessModel,
		Currency:          env.Currency,
		DIYCost:           env.Quote.DIYCost,
		FinalTotal:        env.Quote.FinalTotal,
		SavingsPercentage: env.Quote.SavingsPercentage,
		Consistent:        env.Consistency.IsConsistent,
		ReportMode:        env.ReportMode,
		GeneratedAt:       env.PipelineMetadata.CompletedAt,
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, proposal.ResponseEnvelope) error { return nil }
func (Nop) Close() error { return nil }

type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

type NATSPublisher struct {
	nc      conn
	subject string
	logger  *slog.Logger
}

// Connect dials url; an empty url yields a Nop publisher.
func Connect(url, subject string, logger *slog.Logger) (Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return Nop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("sales-proposal-agency"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) { logger.Info("nats reconnected", "url", c.ConnectedUrl()) }),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newNATSPublisher(nc, subject, logger), nil
}

func newNATSPublisher(nc conn, subject string, logger *slog.Logger) *NATSPublisher {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, subject: subject, logger: logger}
}

func (p *NATSPublisher) Publish(ctx context.Context, env proposal.ResponseEnvelope) error {
	data, err := json.Marshal(NewGenerated(env))
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set(nats.MsgIdHdr, env.ProposalID)
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	p.logger.Debug("proposal event published", "subject", p.subject, "proposal_id", env.ProposalID)
	return nil
}

func (p *NATSPublisher) Close() error { return p.nc.Drain() }
