package proposal

import "time"

const Disclaimer = "This is a preliminary automated estimate for a sales conversation, not a binding quote. " +
	"Figures are derived from keyword signals in the roadmap and default rate tables."

const (
	CapabilitySalesProposal = "sales-proposal"
	MaxRoadmapChars         = 50000
)

type ComplexityTier string

const (
	TierSimple     ComplexityTier = "simple"
	TierMedium     ComplexityTier = "medium"
	TierComplex    ComplexityTier = "complex"
	TierEnterprise ComplexityTier = "enterprise"
	TierPlatform   ComplexityTier = "platform"
)

var tierOrder = []ComplexityTier{TierSimple, TierMedium, TierComplex, TierEnterprise, TierPlatform}

// Rank returns the ordinal position of the tier, or -1 for an unknown tier.
func (t ComplexityTier) Rank() int {
	for i, v := range tierOrder {
		if v == t {
			return i
		}
	}
	return -1
}

func (t ComplexityTier) Valid() bool { return t.Rank() >= 0 }

// Specialist reports whether the tier unlocks specialist cost stages.
func (t ComplexityTier) Specialist() bool { return t == TierEnterprise || t == TierPlatform }

type BusinessModel string

const (
	ModelSubscription  BusinessModel = "subscription"
	ModelTransactional BusinessModel = "transactional"
	ModelDealBased     BusinessModel = "deal_based"
	ModelUsageBased    BusinessModel = "usage_based"
)

func (m BusinessModel) Valid() bool {
	switch m {
	case ModelSubscription, ModelTransactional, ModelDealBased, ModelUsageBased:
		return true
	}
	return false
}

type ReportMode string

const (
	ReportModeComplete ReportMode = "COMPLETE"
	ReportModeDegraded ReportMode = "DEGRADED"
)

type RoadmapInput struct {
	Description string `json:"description"`
	ProjectType string `json:"project_type,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

type NormalizedProfile struct {
	Features               []string       `json:"features"`
	Complexity             ComplexityTier `json:"complexity"`
	EstimatedBackendHours  int            `json:"estimated_backend_hours"`
	BusinessModel          BusinessModel  `json:"business_model"`
	MarketCategory         string         `json:"market_category"`
	ComplianceRequirements []string       `json:"compliance_requirements"`
	EnterpriseFeatures     []string       `json:"enterprise_features"`
	MultiPhase             bool           `json:"multi_phase"`
	PhaseCount             int            `json:"phase_count"`
}

// CostOverrides replaces individual table entries for one request; nil fields keep defaults.
type CostOverrides struct {
	BackendSharePct  *float64           `json:"backend_share_pct,omitempty"`
	StagePercentages map[string]float64 `json:"stage_percentages,omitempty"`
	HourlyRates      map[string]int64   `json:"hourly_rates,omitempty"`
}

type CostInput struct {
	BackendHours           int            `json:"backend_hours"`
	Complexity             ComplexityTier `json:"complexity"`
	Features               []string       `json:"features"`
	ComplianceRequirements []string       `json:"compliance_requirements"`
	EnterpriseFeatures     []string       `json:"enterprise_features"`
	MultiPhase             bool           `json:"multi_phase"`
	PhaseCount             int            `json:"phase_count"`
	Overrides              CostOverrides  `json:"overrides,omitempty"`
}

type StageCost struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
	Hours      int     `json:"hours"`
	HourlyRate int64   `json:"hourly_rate"`
	Cost       int64   `json:"cost"`
	Specialist bool    `json:"specialist,omitempty"`
}

type TeamMember struct {
	Role       string `json:"role"`
	Hours      int    `json:"hours"`
	Weeks      int    `json:"weeks"`
	HourlyRate int64  `json:"hourly_rate"`
	WeeklyCost int64  `json:"weekly_cost"`
}

type HiddenCosts struct {
	Recruitment          int64   `json:"recruitment"`
	Benefits             int64   `json:"benefits"`
	Equipment            int64   `json:"equipment"`
	Onboarding           int64   `json:"onboarding"`
	ComplianceAudit      int64   `json:"compliance_audit"`
	ComplianceMultiplier float64 `json:"compliance_multiplier"`
}

func (h HiddenCosts) Total() int64 {
	return h.Recruitment + h.Benefits + h.Equipment + h.Onboarding + h.ComplianceAudit
}

type CostBreakdown struct {
	BackendHours  int          `json:"backend_hours"`
	TotalHours    int          `json:"total_hours"`
	Stages        []StageCost  `json:"stages"`
	Team          []TeamMember `json:"team"`
	TeamSize      int          `json:"team_size"`
	SalaryCost    int64        `json:"salary_cost"`
	HiddenCosts   HiddenCosts  `json:"hidden_costs"`
	TotalDIYCost  int64        `json:"total_diy_cost"`
	TimelineWeeks int          `json:"timeline_weeks"`
	Timeline      string       `json:"timeline"`
}

// RevenueOverrides replaces individual model parameters; nil fields keep the configured value.
type RevenueOverrides struct {
	AcquisitionRate   *float64 `json:"acquisition_rate,omitempty"`
	ARPU              *float64 `json:"arpu,omitempty"`
	Churn             *float64 `json:"churn,omitempty"`
	MonthlyVolume     *float64 `json:"monthly_volume,omitempty"`
	AverageOrderValue *float64 `json:"average_order_value,omitempty"`
	Margin            *float64 `json:"margin,omitempty"`
	DealSize          *float64 `json:"deal_size,omitempty"`
	DealsPerPeriod    *float64 `json:"deals_per_period,omitempty"`
	WinRate           *float64 `json:"win_rate,omitempty"`
	PeriodMonths      *float64 `json:"period_months,omitempty"`
	ActiveUsers       *float64 `json:"active_users,omitempty"`
	RevenuePerUser    *float64 `json:"revenue_per_user,omitempty"`
	MarketPenetration *float64 `json:"market_penetration,omitempty"`
}

type RevenueInput struct {
	BusinessModel BusinessModel    `json:"business_model"`
	Geography     string           `json:"geography,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Overrides     RevenueOverrides `json:"overrides,omitempty"`
}

type DelayScenario struct {
	Period      string  `json:"period"`
	Factor      float64 `json:"factor"`
	LostRevenue int64   `json:"lost_revenue"`
}

type DelayCosts struct {
	TwoWeek    DelayScenario `json:"two_week"`
	OneMonth   DelayScenario `json:"one_month"`
	ThreeMonth DelayScenario `json:"three_month"`
}

type RevenueProjection struct {
	BusinessModel           BusinessModel `json:"business_model"`
	Geography               string        `json:"geography"`
	Currency                string        `json:"currency"`
	Formula                 string        `json:"formula"`
	RawMonthlyRevenue       float64       `json:"raw_monthly_revenue"`
	MarketPenetration       float64       `json:"market_penetration"`
	MonthlyRevenuePotential int64         `json:"monthly_revenue_potential"`
	DelayCosts              DelayCosts    `json:"delay_costs"`
	FirstMoverAdvantage     int64         `json:"first_mover_advantage"`
	FirstMoverMonths        int           `json:"first_mover_months"`
	ConservativeProjection  int64         `json:"conservative_projection"`
}

type PriceInput struct {
	DIYCost                int64          `json:"diy_cost"`
	Complexity             ComplexityTier `json:"complexity"`
	ComplianceRequirements []string       `json:"compliance_requirements"`
	Expedited              bool           `json:"expedited"`
	ExtendedSupport        bool           `json:"extended_support"`
}

type ModularOption struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Percentage  float64 `json:"percentage"`
	Price       int64   `json:"price"`
	Included    bool    `json:"included"`
	Description string  `json:"description"`
}

type PriceQuote struct {
	DIYCost           int64           `json:"diy_cost"`
	Complexity        ComplexityTier  `json:"complexity"`
	Multiplier        float64         `json:"multiplier"`
	ComplianceAdded   bool            `json:"compliance_adjustment"`
	RoundingUnit      int64           `json:"rounding_unit"`
	CorePrice         int64           `json:"core_price"`
	Options           []ModularOption `json:"options"`
	FinalTotal        int64           `json:"final_total"`
	Savings           int64           `json:"savings"`
	SavingsPercentage int             `json:"savings_percentage"`
}

type ConsistencyInput struct {
	Complexity         ComplexityTier `json:"complexity"`
	ComplianceRequired bool           `json:"compliance_required"`
	DIYCost            int64          `json:"diy_cost"`
	CorePrice          int64          `json:"core_price"`
	BackendHours       *int           `json:"backend_hours,omitempty"`
	TotalHours         *int           `json:"total_hours,omitempty"`
	ComponentsTotal    *int64         `json:"components_total,omitempty"`
}

type ConsistencyIssue struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

type ConsistencyReport struct {
	IsConsistent       bool               `json:"is_consistent"`
	Score              int                `json:"score"`
	ExpectedMultiplier float64            `json:"expected_multiplier"`
	ActualMultiplier   float64            `json:"actual_multiplier"`
	Deviation          float64            `json:"deviation"`
	Tolerance          float64            `json:"tolerance"`
	ExpectedCorePrice  int64              `json:"expected_core_price"`
	SavingsPercentage  int                `json:"savings_percentage"`
	Issues             []ConsistencyIssue `json:"issues"`
	Note               string             `json:"note"`
}

type ProposalRequest struct {
	ProposalID      string           `json:"proposal_id,omitempty"`
	Customer        string           `json:"customer,omitempty"`
	Roadmap         RoadmapInput     `json:"roadmap"`
	Geography       string           `json:"geography,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	Expedited       bool             `json:"expedited,omitempty"`
	ExtendedSupport bool             `json:"extended_support,omitempty"`
	CostOverrides   CostOverrides    `json:"cost_overrides,omitempty"`
	RevenueOverride RevenueOverrides `json:"revenue_overrides,omitempty"`
}

type Narrative struct {
	Headline          string   `json:"headline"`
	ExecutiveSummary  string   `json:"executive_summary"`
	TalkingPoints     []string `json:"talking_points"`
	ObjectionHandling []string `json:"objection_handling"`
	Generated         bool     `json:"generated"`
}

type StageAttemptMetrics struct {
	Attempts       int
	ContentRetries int
}

type PipelineMetadata struct {
	StagesExecuted []string       `json:"stages_executed"`
	StageFailed    string         `json:"stage_failed,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
	InputTruncated bool           `json:"input_truncated"`
	Mode           ReportMode     `json:"mode"`
	Warnings       []string       `json:"warnings,omitempty"`
	TotalLLMCalls  int            `json:"total_llm_calls"`
	StageAttempts  map[string]int `json:"stage_attempts,omitempty"`
}

type PipelineResult struct {
	Request     ProposalRequest
	Profile     NormalizedProfile
	Cost        CostBreakdown
	Revenue     RevenueProjection
	Quote       PriceQuote
	Consistency ConsistencyReport
	Narrative   Narrative
	Attempts    map[string]StageAttemptMetrics
	Metadata    PipelineMetadata
}

type ResponseEnvelope struct {
	ProposalID       string            `json:"proposal_id"`
	Customer         string            `json:"customer,omitempty"`
	Currency         string            `json:"currency"`
	ReportMode       ReportMode        `json:"report_mode"`
	ReportMarkdown   string            `json:"report_markdown"`
	Profile          NormalizedProfile `json:"profile"`
	Cost             CostBreakdown     `json:"cost"`
	Revenue          RevenueProjection `json:"revenue"`
	Quote            PriceQuote        `json:"quote"`
	Consistency      ConsistencyReport `json:"consistency"`
	Narrative        Narrative         `json:"narrative"`
	PipelineMetadata PipelineMetadata  `json:"pipeline_metadata"`
	Disclaimer       string            `json:"disclaimer"`
}
