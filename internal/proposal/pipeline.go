package proposal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StageNormalize    = "normalize"
	StageEstimateCost = "estimate_cost"
	StageRevenue      = "project_revenue"
	StagePrice        = "calculate_price"
	StageConsistency  = "check_consistency"
	StageNarrative    = "narrative"
)

const tracerName = "github.com/joelkehle/sales-proposal-agency/internal/proposal"

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type StageProgressFn func(stage, message string)

type Pipeline struct {
	cfg      Config
	narrator NarrativeRunner
	tracer   trace.Tracer
}

// NewPipeline validates cfg once; narrator may be nil, in which case the
// deterministic narrative is used.
func NewPipeline(cfg Config, narrator NarrativeRunner) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, narrator: narrator, tracer: otel.Tracer(tracerName)}, nil
}

func (p *Pipeline) Config() Config { return p.cfg }

func NewProposalID() string { return "prop-" + uuid.NewString() }

func (p *Pipeline) Run(ctx context.Context, req ProposalRequest) (PipelineResult, error) {
	return p.runWithProgress(ctx, req, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, req ProposalRequest, progress StageProgressFn) (PipelineResult, error) {
	return p.runWithProgress(ctx, req, progress)
}

func (p *Pipeline) runWithProgress(ctx context.Context, req ProposalRequest, progress StageProgressFn) (PipelineResult, error) {
	res := PipelineResult{
		Request:  req,
		Attempts: map[string]StageAttemptMetrics{},
		Metadata: PipelineMetadata{StartedAt: time.Now().UTC(), Mode: ReportModeComplete},
	}
	if strings.TrimSpace(req.Roadmap.Description) == "" {
		return res, NewInvalidInput("roadmap.description", "is required")
	}
	if utf8.RuneCountInString(req.Roadmap.Description) > MaxRoadmapChars {
		req.Roadmap.Description = string([]rune(req.Roadmap.Description)[:MaxRoadmapChars])
		res.Metadata.InputTruncated = true
		res.Metadata.Warnings = append(res.Metadata.Warnings, fmt.Sprintf("roadmap truncated to %d characters", MaxRoadmapChars))
	}
	req.Currency = valueOr(req.Currency, p.cfg.DefaultCurrency)
	req.Geography = valueOr(req.Geography, p.cfg.DefaultGeography)
	res.Request = req

	ctx, span := p.tracer.Start(ctx, "proposal.pipeline", trace.WithAttributes(attribute.String("proposal.id", req.ProposalID)))
	defer span.End()

	steps := []struct {
		name, message string
		fn            func() error
	}{
		{StageNormalize, "Normalizing roadmap features and complexity...", func() (err error) {
			res.Profile, err = Normalize(p.cfg, req.Roadmap)
			return err
		}},
		{StageEstimateCost, "Estimating in-house build cost...", func() (err error) {
			res.Cost, err = EstimateCost(p.cfg, CostInput{
				BackendHours:           res.Profile.EstimatedBackendHours,
				Complexity:             res.Profile.Complexity,
				Features:               res.Profile.Features,
				ComplianceRequirements: res.Profile.ComplianceRequirements,
				EnterpriseFeatures:     res.Profile.EnterpriseFeatures,
				MultiPhase:             res.Profile.MultiPhase,
				PhaseCount:             res.Profile.PhaseCount,
				Overrides:              req.CostOverrides,
			})
			return err
		}},
		{StageRevenue, "Projecting revenue opportunity...", func() (err error) {
			res.Revenue, err = ProjectRevenue(p.cfg, RevenueInput{
				BusinessModel: res.Profile.BusinessModel,
				Geography:     req.Geography,
				Currency:      req.Currency,
				Overrides:     req.RevenueOverride,
			})
			return err
		}},
		{StagePrice, "Calculating proposal price...", func() (err error) {
			res.Quote, err = CalculatePrice(p.cfg, PriceInput{
				DIYCost:                res.Cost.TotalDIYCost,
				Complexity:             res.Profile.Complexity,
				ComplianceRequirements: res.Profile.ComplianceRequirements,
				Expedited:              req.Expedited,
				ExtendedSupport:        req.ExtendedSupport,
			})
			return err
		}},
		{StageConsistency, "Checking price consistency...", func() (err error) {
			components := res.Cost.SalaryCost + res.Cost.HiddenCosts.Total()
			res.Consistency, err = CheckConsistency(p.cfg, ConsistencyInput{
				Complexity:         res.Profile.Complexity,
				ComplianceRequired: len(res.Profile.ComplianceRequirements) > 0,
				DIYCost:            res.Quote.DIYCost,
				CorePrice:          res.Quote.CorePrice,
				BackendHours:       &res.Profile.EstimatedBackendHours,
				TotalHours:         &res.Cost.TotalHours,
				ComponentsTotal:    &components,
			})
			return err
		}},
	}
	for _, st := range steps {
		if err := p.runStage(ctx, &res, progress, st.name, st.message, st.fn); err != nil {
			span.SetStatus(codes.Error, err.Error())
			res.Metadata.StageFailed = st.name
			return p.finalize(res), err
		}
	}
	for _, issue := range res.Consistency.Issues {
		res.Metadata.Warnings = append(res.Metadata.Warnings, "consistency: "+issue.Message)
	}

	if p.narrator == nil {
		res.Narrative = DeterministicNarrative(res)
		return p.finalize(res), nil
	}
	err := p.runStage(ctx, &res, progress, StageNarrative, "Drafting proposal narrative...", func() error {
		n, m, err := p.narrator.Narrate(ctx, res)
		res.Attempts[StageNarrative] = m
		if err != nil {
			return err
		}
		res.Narrative = n
		return nil
	})
	if err != nil {
		return p.finalizeDegraded(res, StageNarrative, err), nil
	}
	return p.finalize(res), nil
}

func (p *Pipeline) runStage(ctx context.Context, res *PipelineResult, progress StageProgressFn, name, message string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	emit(progress, name, message)
	_, span := p.tracer.Start(ctx, "proposal."+name)
	defer span.End()
	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: name, Err: err}
	}
	res.Metadata.StagesExecuted = append(res.Metadata.StagesExecuted, name)
	return nil
}

func (p *Pipeline) finalizeDegraded(res PipelineResult, failedStage string, err error) PipelineResult {
	res.Metadata.Mode = ReportModeDegraded
	res.Metadata.StageFailed = failedStage
	res.Metadata.Warnings = append(res.Metadata.Warnings, fmt.Sprintf("%s unavailable, using standard copy: %v", failedStage, err))
	res.Narrative = DeterministicNarrative(res)
	return p.finalize(res)
}

func (p *Pipeline) finalize(res PipelineResult) PipelineResult {
	res.Metadata.CompletedAt = time.Now().UTC()
	if res.Metadata.Mode == "" {
		res.Metadata.Mode = ReportModeComplete
	}
	res.Metadata.StageAttempts = map[string]int{}
	for stage, m := range res.Attempts {
		res.Metadata.StageAttempts[stage] = m.Attempts
		res.Metadata.TotalLLMCalls += m.Attempts
	}
	return res
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}
