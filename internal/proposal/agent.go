package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joelkehle/sales-proposal-agency/internal/busclient"
)

// Bus is the slice of the bus client the agent needs.
type Bus interface {
	AgentID() string
	Register(ctx context.Context, capabilities []string, ttl time.Duration) error
	Poll(ctx context.Context, cursor int, wait time.Duration) ([]busclient.InboxEvent, int, error)
	Ack(ctx context.Context, messageID, status, reason string) error
	Emit(ctx context.Context, messageID, eventType, body string, meta map[string]any) error
	Send(ctx context.Context, msg busclient.Message) (string, error)
}

// ResultSink receives every successfully generated proposal, for storage or fan-out.
type ResultSink interface {
	Record(ctx context.Context, env ResponseEnvelope) error
}

type AgentConfig struct {
	PollWait          time.Duration
	HeartbeatInterval time.Duration
	RegistrationTTL   time.Duration
	MaxConcurrent     int
}

type Agent struct {
	cfg      AgentConfig
	bus      Bus
	pipeline *Pipeline
	sink     ResultSink
	logger   *slog.Logger
	cursor   int
	sem      chan struct{}
	wg       sync.WaitGroup
}

func NewAgent(cfg AgentConfig, bus Bus, pipeline *Pipeline, sink ResultSink, logger *slog.Logger) *Agent {
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	if cfg.RegistrationTTL <= 0 {
		cfg.RegistrationTTL = 2 * cfg.HeartbeatInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:      cfg,
		bus:      bus,
		pipeline: pipeline,
		sink:     sink,
		logger:   logger.With("agent_id", bus.AgentID()),
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run registers, then polls until ctx is cancelled. In-flight requests are
// drained before it returns.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}
	a.logger.Info("registered", "capability", CapabilitySalesProposal)
	go a.heartbeatLoop(ctx)
	defer a.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		events, next, err := a.bus.Poll(ctx, a.cursor, a.cfg.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("poll failed", "err", err)
			_ = wait(ctx, 500*time.Millisecond)
			continue
		}
		a.cursor = next
		for _, evt := range events {
			a.logger.Info("received", "message_id", evt.MessageID, "from", evt.From, "conversation", evt.ConversationID)
			select {
			case a.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			a.wg.Add(1)
			go func(ev busclient.InboxEvent) {
				defer a.wg.Done()
				defer func() { <-a.sem }()
				if err := a.handleEvent(ctx, ev); err != nil {
					a.logger.Error("handle event failed", "message_id", ev.MessageID, "err", err)
				}
			}(evt)
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.register(ctx); err != nil {
				a.logger.Warn("heartbeat register failed", "err", err)
			} else {
				a.logger.Debug("heartbeat renewed", "capability", CapabilitySalesProposal)
			}
		}
	}
}

func (a *Agent) register(ctx context.Context) error {
	if err := a.bus.Register(ctx, []string{CapabilitySalesProposal}, a.cfg.RegistrationTTL); err != nil {
		return NewUpstreamFailure("register with bus", err)
	}
	return nil
}

func (a *Agent) handleEvent(ctx context.Context, evt busclient.InboxEvent) error {
	if err := a.bus.Ack(ctx, evt.MessageID, "accepted", "generating sales proposal"); err != nil {
		return NewUpstreamFailure("ack", err)
	}

	req, err := parseRequest(evt.Body)
	if err != nil {
		_ = a.bus.Emit(ctx, evt.MessageID, "error", "invalid proposal request", map[string]any{"kind": KindOf(err)})
		_ = a.sendError(ctx, evt, err)
		return err
	}
	if req.ProposalID == "" {
		req.ProposalID = NewProposalID()
	}

	result, runErr := a.pipeline.RunWithProgress(ctx, req, func(stage, message string) {
		_ = a.bus.Emit(ctx, evt.MessageID, "progress", message, map[string]any{"stage": stage})
	})
	if runErr != nil {
		stage := StageNameFromError(runErr)
		_ = a.bus.Emit(ctx, evt.MessageID, "error", runErr.Error(), map[string]any{"stage": stage, "kind": KindOf(runErr)})
		_ = a.sendError(ctx, evt, runErr)
		return runErr
	}

	env := BuildResponse(result)
	if a.sink != nil {
		if err := a.sink.Record(ctx, env); err != nil {
			a.logger.Warn("record proposal failed", "proposal_id", env.ProposalID, "err", err)
		}
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = a.bus.Send(ctx, busclient.Message{
		To:             evt.ReplyTo(),
		ConversationID: evt.ConversationID,
		RequestID:      fmt.Sprintf("sales-proposal-response-%s", evt.MessageID),
		Type:           "response",
		Body:           string(blob),
		Meta:           map[string]any{"stage": "done", "mode": result.Metadata.Mode, "proposal_id": env.ProposalID},
	})
	if err != nil {
		_ = a.bus.Emit(ctx, evt.MessageID, "error", "failed to send response", nil)
		return NewUpstreamFailure("send response", err)
	}

	_ = a.bus.Emit(ctx, evt.MessageID, "final", fmt.Sprintf("%s%d", env.Currency, env.Quote.FinalTotal), map[string]any{"mode": result.Metadata.Mode, "proposal_id": env.ProposalID})
	return nil
}

func (a *Agent) sendError(ctx context.Context, evt busclient.InboxEvent, cause error) error {
	body, _ := json.Marshal(map[string]any{
		"error": cause.Error(),
		"kind":  KindOf(cause),
		"stage": StageNameFromError(cause),
	})
	_, err := a.bus.Send(ctx, busclient.Message{
		To:             evt.ReplyTo(),
		ConversationID: evt.ConversationID,
		RequestID:      fmt.Sprintf("sales-proposal-error-%s", evt.MessageID),
		Type:           "response",
		Body:           string(body),
		Meta:           map[string]any{"stage": "error", "status": "error"},
	})
	return err
}

// parseRequest accepts a full ProposalRequest, a flat roadmap object, or plain text.
func parseRequest(body string) (ProposalRequest, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ProposalRequest{}, NewInvalidInput("body", "is empty")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return ProposalRequest{Roadmap: RoadmapInput{Description: trimmed}}, nil
	}

	var req ProposalRequest
	if err := json.Unmarshal([]byte(trimmed), &req); err == nil && strings.TrimSpace(req.Roadmap.Description) != "" {
		return req, nil
	}

	var flat struct {
		ProposalID  string `json:"proposal_id"`
		Customer    string `json:"customer"`
		Description string `json:"description"`
		Roadmap     string `json:"roadmap"`
		ProjectType string `json:"project_type"`
		Industry    string `json:"industry"`
		Geography   string `json:"geography"`
		Currency    string `json:"currency"`
	}
	if err := json.Unmarshal([]byte(trimmed), &flat); err != nil {
		return ProposalRequest{}, &Error{Kind: KindInvalidInput, Field: "body", Message: "not a proposal request", Err: err}
	}
	desc := flat.Description
	if strings.TrimSpace(desc) == "" {
		desc = flat.Roadmap
	}
	if strings.TrimSpace(desc) == "" {
		return ProposalRequest{}, NewInvalidInput("roadmap.description", "is required")
	}
	return ProposalRequest{
		ProposalID: flat.ProposalID,
		Customer:   flat.Customer,
		Roadmap:    RoadmapInput{Description: desc, ProjectType: flat.ProjectType, Industry: flat.Industry},
		Geography:  flat.Geography,
		Currency:   flat.Currency,
	}, nil
}

var _ Bus = (*busclient.Client)(nil)
