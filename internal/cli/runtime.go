package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/joelkehle/sales-proposal-agency/internal/config"
	"github.com/joelkehle/sales-proposal-agency/internal/events"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/store"
)

// newLogger builds the process logger. format overrides cfg.Format when set.
func newLogger(w io.Writer, cfg config.LogConfig, format string) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = cfg.Format
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// newPipeline attaches the LLM narrator only when it is enabled in cfg.
func newPipeline(cfg *config.Config, logger *slog.Logger) (*proposal.Pipeline, error) {
	var narrator proposal.NarrativeRunner
	if cfg.LLM.Enabled {
		caller, err := proposal.NewAnthropicCaller(cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		narrator = proposal.NewLLMNarrator(proposal.NewStageExecutor(caller, logger))
	}
	return proposal.NewPipeline(cfg.Pricing, narrator)
}

// openHistory returns nil when no DSN is configured.
func openHistory(cfg *config.Config) (*store.Store, error) {
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		return nil, nil
	}
	return store.Open(cfg.Storage.DSN)
}

var errHistoryDisabled = errors.New("proposal history is disabled (storage.dsn is empty)")

// fanout records an envelope in the history and announces it on the event
// subject. Both are attempted; failures are joined.
type fanout struct {
	history   saver
	publisher events.Publisher
}

type saver interface {
	Save(ctx context.Context, env proposal.ResponseEnvelope) error
}

func newFanout(history *store.Store, publisher events.Publisher) fanout {
	f := fanout{publisher: publisher}
	if history != nil {
		f.history = history
	}
	return f
}

func (f fanout) Record(ctx context.Context, env proposal.ResponseEnvelope) error {
	var errs []error
	if f.history != nil {
		if err := f.history.Save(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	if f.publisher != nil {
		if err := f.publisher.Publish(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
