package proposal

import (
	"fmt"
	"math"
	"strings"
)

// Term is one vocabulary entry. An empty Keywords list matches on Name itself.
type Term struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

type StageRate struct {
	Name       string  `yaml:"name" json:"name"`
	Percentage float64 `yaml:"percentage" json:"percentage"`
	HourlyRate int64   `yaml:"hourly_rate" json:"hourly_rate"`
}

// SpecialistStage is appended for enterprise/platform tiers when its gate opens:
// any enterprise feature containing one of Keywords, the platform tier when
// OnPlatform is set, or any compliance requirement when OnCompliance is set.
type SpecialistStage struct {
	StageRate    `yaml:",inline"`
	Keywords     []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	OnPlatform   bool     `yaml:"on_platform,omitempty" json:"on_platform,omitempty"`
	OnCompliance bool     `yaml:"on_compliance,omitempty" json:"on_compliance,omitempty"`
}

type ComplianceStandard struct {
	Name            string   `yaml:"name" json:"name"`
	Keywords        []string `yaml:"keywords" json:"keywords"`
	HiddenCostDelta float64  `yaml:"hidden_cost_delta" json:"hidden_cost_delta"`
}

type HiddenCostRates struct {
	Recruitment                  float64 `yaml:"recruitment"`
	Benefits                     float64 `yaml:"benefits"`
	Onboarding                   float64 `yaml:"onboarding"`
	ComplianceAudit              float64 `yaml:"compliance_audit"`
	EquipmentPerMember           int64   `yaml:"equipment_per_member"`
	EquipmentPerMemberSpecialist int64   `yaml:"equipment_per_member_specialist"`
}

type TeamConfig struct {
	HoursPerWeek             int     `yaml:"hours_per_week"`
	WeeksPerMember           int     `yaml:"weeks_per_member"`
	WeeksPerMemberMultiPhase int     `yaml:"weeks_per_member_multi_phase"`
	MultiPhaseTimelineFactor float64 `yaml:"multi_phase_timeline_factor"`
}

type ModelParams struct {
	AcquisitionRate   float64 `yaml:"acquisition_rate,omitempty" json:"acquisition_rate,omitempty"`
	ARPU              float64 `yaml:"arpu,omitempty" json:"arpu,omitempty"`
	Churn             float64 `yaml:"churn,omitempty" json:"churn,omitempty"`
	MonthlyVolume     float64 `yaml:"monthly_volume,omitempty" json:"monthly_volume,omitempty"`
	AverageOrderValue float64 `yaml:"average_order_value,omitempty" json:"average_order_value,omitempty"`
	Margin            float64 `yaml:"margin,omitempty" json:"margin,omitempty"`
	DealSize          float64 `yaml:"deal_size,omitempty" json:"deal_size,omitempty"`
	DealsPerPeriod    float64 `yaml:"deals_per_period,omitempty" json:"deals_per_period,omitempty"`
	WinRate           float64 `yaml:"win_rate,omitempty" json:"win_rate,omitempty"`
	PeriodMonths      float64 `yaml:"period_months,omitempty" json:"period_months,omitempty"`
	ActiveUsers       float64 `yaml:"active_users,omitempty" json:"active_users,omitempty"`
	RevenuePerUser    float64 `yaml:"revenue_per_user,omitempty" json:"revenue_per_user,omitempty"`
}

type RevenueModels struct {
	Subscription  ModelParams `yaml:"subscription"`
	Transactional ModelParams `yaml:"transactional"`
	DealBased     ModelParams `yaml:"deal_based"`
	UsageBased    ModelParams `yaml:"usage_based"`
}

func (m RevenueModels) For(model BusinessModel) (ModelParams, bool) {
	switch model {
	case ModelSubscription:
		return m.Subscription, true
	case ModelTransactional:
		return m.Transactional, true
	case ModelDealBased:
		return m.DealBased, true
	case ModelUsageBased:
		return m.UsageBased, true
	}
	return ModelParams{}, false
}

type RevenueConfig struct {
	MarketPenetration  float64       `yaml:"market_penetration"`
	FirstMoverMonths   int           `yaml:"first_mover_months"`
	FirstMoverPremium  float64       `yaml:"first_mover_premium"`
	ConservativeFactor float64       `yaml:"conservative_factor"`
	Models             RevenueModels `yaml:"models"`
}

type PricingConfig struct {
	Multipliers                map[ComplexityTier]float64 `yaml:"multipliers"`
	ComplianceAdjustment       float64                    `yaml:"compliance_adjustment"`
	ExtendedSupportPct         float64                    `yaml:"extended_support_pct"`
	ExpeditedPct               float64                    `yaml:"expedited_pct"`
	AdditionalFeaturesPct      float64                    `yaml:"additional_features_pct"`
	ComplianceCertificationPct float64                    `yaml:"compliance_certification_pct"`
}

type Rounding struct {
	HoursUnit   int   `yaml:"hours_unit"`
	PriceUnit   int64 `yaml:"price_unit"`
	RevenueUnit int64 `yaml:"revenue_unit"`
}

// Config carries every table the pipeline reads. Build it once at startup and
// pass it to each stage; stages never modify it.
type Config struct {
	FeatureVocabulary    []Term                 `yaml:"feature_vocabulary"`
	EnterpriseVocabulary []Term                 `yaml:"enterprise_vocabulary"`
	ComplianceStandards  []ComplianceStandard   `yaml:"compliance_standards"`
	ComplexityRules      []Rule[ComplexityTier] `yaml:"complexity_rules"`
	DefaultComplexity    ComplexityTier         `yaml:"default_complexity"`
	BusinessModelRules   []Rule[BusinessModel]  `yaml:"business_model_rules"`
	MarketRules          []Rule[string]         `yaml:"market_rules"`
	DefaultMarket        string                 `yaml:"default_market"`
	PhaseKeywords        []string               `yaml:"phase_keywords"`
	DefaultPhaseCount    map[ComplexityTier]int `yaml:"default_phase_count"`
	MaxPhaseCount        int                    `yaml:"max_phase_count"`
	BaseHours            map[ComplexityTier]int `yaml:"base_hours"`
	FeatureHoursFactor   float64                `yaml:"feature_hours_factor"`
	BackendSharePct      float64                `yaml:"backend_share_pct"`
	Stages               []StageRate            `yaml:"stages"`
	SpecialistStages     []SpecialistStage      `yaml:"specialist_stages"`
	HiddenCosts          HiddenCostRates        `yaml:"hidden_costs"`
	Team                 TeamConfig             `yaml:"team"`
	Revenue              RevenueConfig          `yaml:"revenue"`
	Pricing              PricingConfig          `yaml:"pricing"`
	Rounding             Rounding               `yaml:"rounding"`
	ConsistencyTolerance float64                `yaml:"consistency_tolerance"`
	DefaultCurrency      string                 `yaml:"default_currency"`
	DefaultGeography     string                 `yaml:"default_geography"`
}

func DefaultConfig() Config {
	return Config{
		FeatureVocabulary: []Term{
			{Name: "authentication", Keywords: []string{"authentication", "login", "sign-in", "sign up", "signup"}},
			{Name: "user management", Keywords: []string{"user management", "user profiles", "accounts"}},
			{Name: "dashboard"},
			{Name: "analytics"},
			{Name: "reporting", Keywords: []string{"reporting", "reports"}},
			{Name: "payments", Keywords: []string{"payment", "billing", "invoic"}},
			{Name: "notifications", Keywords: []string{"notification", "alerts"}},
			{Name: "search"},
			{Name: "chat", Keywords: []string{"chat", "messaging"}},
			{Name: "file upload", Keywords: []string{"file upload", "upload", "attachments"}},
			{Name: "api", Keywords: []string{"api", "apis", "rest api", "graphql", "webhook"}},
			{Name: "third-party integrations", Keywords: []string{"integration"}},
			{Name: "admin panel", Keywords: []string{"admin"}},
			{Name: "mobile app", Keywords: []string{"mobile", "ios", "android"}},
			{Name: "real-time updates", Keywords: []string{"real-time", "realtime", "live updates", "websocket"}},
			{Name: "geolocation", Keywords: []string{"geolocation", "location tracking", "gps"}},
			{Name: "calendar"},
			{Name: "scheduling", Keywords: []string{"scheduling", "booking", "appointments"}},
			{Name: "crm"},
			{Name: "inventory"},
			{Name: "shopping cart", Keywords: []string{"shopping cart", "checkout"}},
			{Name: "subscriptions", Keywords: []string{"subscription"}},
			{Name: "localization", Keywords: []string{"localization", "multi-language", "i18n"}},
			{Name: "video", Keywords: []string{"video", "streaming"}},
			{Name: "ai features", Keywords: []string{"ai", "artificial intelligence", "machine learning", "llm"}},
			{Name: "recommendation engine", Keywords: []string{"recommendation"}},
			{Name: "data import/export", Keywords: []string{"import", "export", "csv"}},
			{Name: "workflow automation", Keywords: []string{"workflow", "automation"}},
			{Name: "role-based access", Keywords: []string{"role-based", "rbac", "permissions"}},
			{Name: "single sign-on", Keywords: []string{"sso", "single sign-on", "saml"}},
			{Name: "audit log", Keywords: []string{"audit log", "audit trail"}},
			{Name: "encryption"},
			{Name: "offline mode", Keywords: []string{"offline"}},
			{Name: "penetration testing", Keywords: []string{"penetration test", "pentest", "pen test"}},
		},
		EnterpriseVocabulary: []Term{
			{Name: "ai-powered analytics", Keywords: []string{"ai", "artificial intelligence", "predictive"}},
			{Name: "machine learning models", Keywords: []string{"machine learning", "ml model"}},
			{Name: "scenario modeling", Keywords: []string{"scenario"}},
			{Name: "advanced security", Keywords: []string{"advanced security", "security hardening", "threat detection", "penetration test"}},
			{Name: "end-to-end encryption", Keywords: []string{"encryption"}},
			{Name: "audit trail", Keywords: []string{"audit"}},
			{Name: "multi-tenant architecture", Keywords: []string{"multi-tenant", "multitenant"}},
			{Name: "microservices architecture", Keywords: []string{"microservice"}},
			{Name: "api gateway", Keywords: []string{"api gateway"}},
			{Name: "cloud infrastructure", Keywords: []string{"cloud", "aws", "azure", "gcp"}},
			{Name: "containerization", Keywords: []string{"kubernetes", "docker", "container"}},
			{Name: "high availability", Keywords: []string{"high availability", "failover", "disaster recovery"}},
			{Name: "single sign-on", Keywords: []string{"sso", "single sign-on", "saml"}},
			{Name: "data warehouse", Keywords: []string{"data warehouse", "etl"}},
		},
		ComplianceStandards: []ComplianceStandard{
			{Name: "GDPR", Keywords: []string{"gdpr"}, HiddenCostDelta: 0.15},
			{Name: "SOC 2", Keywords: []string{"soc 2", "soc2"}, HiddenCostDelta: 0.15},
			{Name: "HIPAA", Keywords: []string{"hipaa"}, HiddenCostDelta: 0.25},
			{Name: "PCI DSS", Keywords: []string{"pci"}, HiddenCostDelta: 0.20},
			{Name: "ISO 27001", Keywords: []string{"iso 27001", "iso27001"}, HiddenCostDelta: 0.10},
			{Name: "CCPA", Keywords: []string{"ccpa"}, HiddenCostDelta: 0.10},
			{Name: "FedRAMP", Keywords: []string{"fedramp"}, HiddenCostDelta: 0.30},
		},
		ComplexityRules: []Rule[ComplexityTier]{
			{Result: TierPlatform, Keywords: []string{"platform", "marketplace", "ecosystem", "multi-sided", "white-label", "white label"}},
			{Result: TierEnterprise, Keywords: []string{"enterprise", "compliance", "hipaa", "gdpr", "soc 2", "soc2", "fedramp", "multi-tenant", "sso", "single sign-on"}},
			{Result: TierComplex, Keywords: []string{"complex", "real-time", "realtime", "machine learning", "artificial intelligence", "ai", "microservice", "integrations", "video streaming", "advanced analytics"}},
			{Result: TierSimple, Keywords: []string{"simple", "landing page", "static site", "brochure", "single page", "one-pager"}},
		},
		DefaultComplexity: TierMedium,
		BusinessModelRules: []Rule[BusinessModel]{
			{Result: ModelSubscription, Keywords: []string{"subscription", "saas", "recurring", "membership", "monthly plan", "per seat"}},
			{Result: ModelTransactional, Keywords: []string{"ecommerce", "e-commerce", "marketplace", "checkout", "transaction", "booking fee", "commission"}},
			{Result: ModelDealBased, Keywords: []string{"b2b", "enterprise sales", "contract", "licensing", "procurement", "sales team"}},
			{Result: ModelUsageBased, Keywords: []string{"usage-based", "usage based", "pay-per-use", "pay as you go", "metered", "per api call", "consumption"}},
		},
		MarketRules: []Rule[string]{
			{Result: "fintech", Keywords: []string{"fintech", "banking", "lending", "insurance", "trading", "payments"}},
			{Result: "healthtech", Keywords: []string{"health", "medical", "patient", "clinic", "hipaa", "telemedicine"}},
			{Result: "edtech", Keywords: []string{"education", "learning management", "students", "course", "school"}},
			{Result: "ecommerce", Keywords: []string{"ecommerce", "e-commerce", "retail", "storefront", "checkout"}},
			{Result: "logistics", Keywords: []string{"logistics", "shipping", "fleet", "delivery", "supply chain"}},
			{Result: "real estate", Keywords: []string{"real estate", "property", "rental", "landlord"}},
			{Result: "hr tech", Keywords: []string{"recruiting", "hiring", "payroll", "employee"}},
		},
		DefaultMarket: "general software",
		PhaseKeywords: []string{"phase", "stage", "milestone", "sprint", "iteration"},
		DefaultPhaseCount: map[ComplexityTier]int{
			TierSimple: 2, TierMedium: 2, TierComplex: 3, TierEnterprise: 4, TierPlatform: 4,
		},
		MaxPhaseCount: 12,
		BaseHours: map[ComplexityTier]int{
			TierSimple: 80, TierMedium: 160, TierComplex: 320, TierEnterprise: 500, TierPlatform: 800,
		},
		FeatureHoursFactor: 0.1,
		BackendSharePct:    32,
		Stages: []StageRate{
			{Name: "Planning", Percentage: 8, HourlyRate: 90},
			{Name: "Design", Percentage: 10, HourlyRate: 85},
			{Name: "Markup", Percentage: 8, HourlyRate: 70},
			{Name: "Frontend", Percentage: 18, HourlyRate: 80},
			{Name: "Backend", Percentage: 32, HourlyRate: 95},
			{Name: "QA", Percentage: 14, HourlyRate: 65},
			{Name: "Management", Percentage: 10, HourlyRate: 90},
		},
		SpecialistStages: []SpecialistStage{
			{StageRate: StageRate{Name: "AI/ML Engineering", Percentage: 12, HourlyRate: 140}, Keywords: []string{"ai", "machine learning", "scenario"}},
			{StageRate: StageRate{Name: "Security Engineering", Percentage: 10, HourlyRate: 130}, Keywords: []string{"security", "encryption", "audit"}},
			{StageRate: StageRate{Name: "Solution Architecture", Percentage: 8, HourlyRate: 135}, Keywords: []string{"architecture", "microservice", "gateway"}, OnPlatform: true},
			{StageRate: StageRate{Name: "Compliance Engineering", Percentage: 8, HourlyRate: 120}, OnCompliance: true},
			{StageRate: StageRate{Name: "DevOps", Percentage: 15, HourlyRate: 115}, Keywords: []string{"cloud", "kubernetes", "container", "devops"}},
		},
		HiddenCosts: HiddenCostRates{
			Recruitment:                  0.20,
			Benefits:                     0.35,
			Onboarding:                   0.25,
			ComplianceAudit:              0.08,
			EquipmentPerMember:           2500,
			EquipmentPerMemberSpecialist: 4000,
		},
		Team: TeamConfig{
			HoursPerWeek:             40,
			WeeksPerMember:           16,
			WeeksPerMemberMultiPhase: 20,
			MultiPhaseTimelineFactor: 1.3,
		},
		Revenue: RevenueConfig{
			MarketPenetration:  0.7,
			FirstMoverMonths:   6,
			FirstMoverPremium:  0.30,
			ConservativeFactor: 0.65,
			Models: RevenueModels{
				Subscription:  ModelParams{AcquisitionRate: 250, ARPU: 49, Churn: 0.05},
				Transactional: ModelParams{MonthlyVolume: 1500, AverageOrderValue: 85, Margin: 0.15},
				DealBased:     ModelParams{DealSize: 45000, DealsPerPeriod: 4, WinRate: 0.25, PeriodMonths: 3},
				UsageBased:    ModelParams{ActiveUsers: 2000, RevenuePerUser: 6.5},
			},
		},
		Pricing: PricingConfig{
			Multipliers: map[ComplexityTier]float64{
				TierSimple: 0.35, TierMedium: 0.37, TierComplex: 0.40, TierEnterprise: 0.42, TierPlatform: 0.45,
			},
			ComplianceAdjustment:       0.02,
			ExtendedSupportPct:         0.30,
			ExpeditedPct:               0.20,
			AdditionalFeaturesPct:      0.30,
			ComplianceCertificationPct: 0.15,
		},
		Rounding: Rounding{
			HoursUnit:   10,
			PriceUnit:   1000,
			RevenueUnit: 100,
		},
		ConsistencyTolerance: 0.05,
		DefaultCurrency:      "$",
		DefaultGeography:     "United States",
	}
}

// Validate rejects tables that would divide by zero or produce nonsensical figures.
func (c Config) Validate() error {
	if c.Rounding.HoursUnit <= 0 {
		return NewConfigurationError("rounding.hours_unit", "must be positive")
	}
	if c.Rounding.PriceUnit <= 0 {
		return NewConfigurationError("rounding.price_unit", "must be positive")
	}
	if c.Rounding.RevenueUnit <= 0 || c.Rounding.RevenueUnit%2 != 0 {
		return NewConfigurationError("rounding.revenue_unit", "must be a positive even number")
	}
	if !c.DefaultComplexity.Valid() {
		return NewConfigurationError("default_complexity", fmt.Sprintf("unknown tier %q", c.DefaultComplexity))
	}
	prev := -1
	for _, tier := range tierOrder {
		h, ok := c.BaseHours[tier]
		if !ok || h <= 0 {
			return NewConfigurationError("base_hours."+string(tier), "must be positive")
		}
		if h < prev {
			return NewConfigurationError("base_hours."+string(tier), "must not decrease with tier")
		}
		prev = h
		if _, ok := c.DefaultPhaseCount[tier]; !ok {
			return NewConfigurationError("default_phase_count."+string(tier), "missing")
		}
		if m, ok := c.Pricing.Multipliers[tier]; !ok || m <= 0 || m >= 1 {
			return NewConfigurationError("pricing.multipliers."+string(tier), "must be in (0,1)")
		}
	}
	for _, r := range c.ComplexityRules {
		if !r.Result.Valid() {
			return NewConfigurationError("complexity_rules", fmt.Sprintf("unknown tier %q", r.Result))
		}
	}
	if len(c.BusinessModelRules) == 0 {
		return NewConfigurationError("business_model_rules", "at least one rule required")
	}
	for _, r := range c.BusinessModelRules {
		if !r.Result.Valid() {
			return NewConfigurationError("business_model_rules", fmt.Sprintf("unknown model %q", r.Result))
		}
	}
	if c.FeatureHoursFactor < 0 {
		return NewConfigurationError("feature_hours_factor", "must not be negative")
	}
	if err := validateShare("backend_share_pct", c.BackendSharePct); err != nil {
		return err
	}
	if len(c.Stages) == 0 {
		return NewConfigurationError("stages", "at least one stage required")
	}
	for _, s := range c.Stages {
		if err := validateStageRate("stages."+s.Name, s); err != nil {
			return err
		}
	}
	for _, s := range c.SpecialistStages {
		if err := validateStageRate("specialist_stages."+s.Name, s.StageRate); err != nil {
			return err
		}
	}
	for _, cs := range c.ComplianceStandards {
		if cs.HiddenCostDelta < 0 {
			return NewConfigurationError("compliance_standards."+cs.Name, "hidden_cost_delta must not be negative")
		}
	}
	h := c.HiddenCosts
	for name, v := range map[string]float64{"recruitment": h.Recruitment, "benefits": h.Benefits, "onboarding": h.Onboarding, "compliance_audit": h.ComplianceAudit} {
		if v < 0 {
			return NewConfigurationError("hidden_costs."+name, "must not be negative")
		}
	}
	if h.EquipmentPerMember < 0 || h.EquipmentPerMemberSpecialist < 0 {
		return NewConfigurationError("hidden_costs.equipment", "must not be negative")
	}
	if c.Team.HoursPerWeek <= 0 || c.Team.WeeksPerMember <= 0 || c.Team.WeeksPerMemberMultiPhase <= 0 {
		return NewConfigurationError("team", "hours and weeks per member must be positive")
	}
	if c.Team.MultiPhaseTimelineFactor < 1 {
		return NewConfigurationError("team.multi_phase_timeline_factor", "must be at least 1")
	}
	if err := c.Revenue.validate(); err != nil {
		return err
	}
	p := c.Pricing
	for name, v := range map[string]float64{"compliance_adjustment": p.ComplianceAdjustment, "extended_support_pct": p.ExtendedSupportPct, "expedited_pct": p.ExpeditedPct, "additional_features_pct": p.AdditionalFeaturesPct, "compliance_certification_pct": p.ComplianceCertificationPct} {
		if v < 0 {
			return NewConfigurationError("pricing."+name, "must not be negative")
		}
	}
	if c.ConsistencyTolerance <= 0 {
		return NewConfigurationError("consistency_tolerance", "must be positive")
	}
	return nil
}

func (r RevenueConfig) validate() error {
	if r.MarketPenetration <= 0 || r.MarketPenetration > 1 {
		return NewConfigurationError("revenue.market_penetration", "must be in (0,1]")
	}
	if r.FirstMoverMonths < 0 || r.FirstMoverPremium < 0 || r.ConservativeFactor < 0 {
		return NewConfigurationError("revenue", "first mover and conservative factors must not be negative")
	}
	for _, model := range []BusinessModel{ModelSubscription, ModelTransactional, ModelDealBased, ModelUsageBased} {
		p, _ := r.Models.For(model)
		if err := validateModelParams(model, p); err != nil {
			return err
		}
	}
	return nil
}

func validateModelParams(model BusinessModel, p ModelParams) error {
	field := func(name string) string { return "revenue.models." + string(model) + "." + name }
	for name, v := range map[string]float64{"churn": p.Churn, "margin": p.Margin, "win_rate": p.WinRate} {
		if v < 0 || v > 1 {
			return NewConfigurationError(field(name), "must be in [0,1]")
		}
	}
	for name, v := range map[string]float64{
		"acquisition_rate": p.AcquisitionRate, "arpu": p.ARPU, "monthly_volume": p.MonthlyVolume,
		"average_order_value": p.AverageOrderValue, "deal_size": p.DealSize, "deals_per_period": p.DealsPerPeriod,
		"active_users": p.ActiveUsers, "revenue_per_user": p.RevenuePerUser,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return NewConfigurationError(field(name), "must be a non-negative number")
		}
	}
	if model == ModelDealBased && p.PeriodMonths <= 0 {
		return NewConfigurationError(field("period_months"), "must be positive")
	}
	return nil
}

func validateShare(field string, pct float64) error {
	if pct <= 0 || pct > 100 || math.IsNaN(pct) {
		return NewConfigurationError(field, "must be in (0,100]")
	}
	return nil
}

func validateStageRate(field string, s StageRate) error {
	if strings.TrimSpace(s.Name) == "" {
		return NewConfigurationError(field, "stage name required")
	}
	if err := validateShare(field+".percentage", s.Percentage); err != nil {
		return err
	}
	if s.HourlyRate < 0 {
		return NewConfigurationError(field+".hourly_rate", "must not be negative")
	}
	return nil
}

func (c Config) complianceDelta(name string) float64 {
	for _, cs := range c.ComplianceStandards {
		if strings.EqualFold(cs.Name, name) {
			return cs.HiddenCostDelta
		}
	}
	return 0
}

func roundToInt(v float64, unit int) int {
	return int(math.Round(v/float64(unit))) * unit
}

func roundTo64(v float64, unit int64) int64 {
	return int64(math.Round(v/float64(unit))) * unit
}
