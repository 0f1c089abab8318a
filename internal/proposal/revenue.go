package proposal

import (
	"fmt"
	"math"
	"strings"
)

const (
	delayTwoWeekFactor    = 0.5
	delayOneMonthFactor   = 1
	delayThreeMonthFactor = 3
)

// ProjectRevenue computes monthly revenue potential for the business model and the
// cost of delaying launch.
func ProjectRevenue(cfg Config, in RevenueInput) (RevenueProjection, error) {
	params, ok := cfg.Revenue.Models.For(in.BusinessModel)
	if !ok {
		return RevenueProjection{}, NewInvalidInput("business_model", fmt.Sprintf("unknown business model %q", in.BusinessModel))
	}
	params = in.Overrides.apply(params)
	if err := validateModelParams(in.BusinessModel, params); err != nil {
		return RevenueProjection{}, err
	}
	penetration := cfg.Revenue.MarketPenetration
	if in.Overrides.MarketPenetration != nil {
		penetration = *in.Overrides.MarketPenetration
	}
	if penetration <= 0 || penetration > 1 || math.IsNaN(penetration) {
		return RevenueProjection{}, NewConfigurationError("market_penetration", "must be in (0,1]")
	}
	unit := cfg.Rounding.RevenueUnit
	if unit <= 0 || unit%2 != 0 {
		return RevenueProjection{}, NewConfigurationError("rounding.revenue_unit", "must be a positive even number")
	}

	raw, formula := monthlyRevenue(in.BusinessModel, params, valueOr(in.Currency, cfg.DefaultCurrency))
	monthly := roundTo64(raw*penetration, unit)

	out := RevenueProjection{
		BusinessModel:           in.BusinessModel,
		Geography:               valueOr(in.Geography, cfg.DefaultGeography),
		Currency:                valueOr(in.Currency, cfg.DefaultCurrency),
		Formula:                 formula,
		RawMonthlyRevenue:       raw,
		MarketPenetration:       penetration,
		MonthlyRevenuePotential: monthly,
		DelayCosts: DelayCosts{
			TwoWeek:    DelayScenario{Period: "2 weeks", Factor: delayTwoWeekFactor, LostRevenue: monthly / 2},
			OneMonth:   DelayScenario{Period: "1 month", Factor: delayOneMonthFactor, LostRevenue: monthly},
			ThreeMonth: DelayScenario{Period: "3 months", Factor: delayThreeMonthFactor, LostRevenue: monthly * 3},
		},
		FirstMoverAdvantage:    int64(math.Round(float64(monthly) * float64(cfg.Revenue.FirstMoverMonths) * cfg.Revenue.FirstMoverPremium)),
		FirstMoverMonths:       cfg.Revenue.FirstMoverMonths,
		ConservativeProjection: int64(math.Round(float64(monthly) * cfg.Revenue.ConservativeFactor)),
	}
	return out, nil
}

func monthlyRevenue(model BusinessModel, p ModelParams, currency string) (float64, string) {
	switch model {
	case ModelTransactional:
		return p.MonthlyVolume * p.AverageOrderValue * p.Margin,
			fmt.Sprintf("%s orders/month × %s%s average order × %s margin", num(p.MonthlyVolume), currency, num(p.AverageOrderValue), pct(p.Margin))
	case ModelDealBased:
		return p.DealSize * p.DealsPerPeriod * p.WinRate / p.PeriodMonths,
			fmt.Sprintf("%s%s deal × %s deals × %s win rate ÷ %s months", currency, num(p.DealSize), num(p.DealsPerPeriod), pct(p.WinRate), num(p.PeriodMonths))
	case ModelUsageBased:
		return p.ActiveUsers * p.RevenuePerUser,
			fmt.Sprintf("%s active users × %s%s per user", num(p.ActiveUsers), currency, num(p.RevenuePerUser))
	default:
		return p.AcquisitionRate * p.ARPU * (1 - p.Churn),
			fmt.Sprintf("%s customers × %s%s ARPU × (1 − %s churn)", num(p.AcquisitionRate), currency, num(p.ARPU), pct(p.Churn))
	}
}

func (o RevenueOverrides) apply(p ModelParams) ModelParams {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.AcquisitionRate, o.AcquisitionRate)
	set(&p.ARPU, o.ARPU)
	set(&p.Churn, o.Churn)
	set(&p.MonthlyVolume, o.MonthlyVolume)
	set(&p.AverageOrderValue, o.AverageOrderValue)
	set(&p.Margin, o.Margin)
	set(&p.DealSize, o.DealSize)
	set(&p.DealsPerPeriod, o.DealsPerPeriod)
	set(&p.WinRate, o.WinRate)
	set(&p.PeriodMonths, o.PeriodMonths)
	set(&p.ActiveUsers, o.ActiveUsers)
	set(&p.RevenuePerUser, o.RevenuePerUser)
	return p
}

func num(v float64) string { return fmt.Sprintf("%g", v) }

func pct(v float64) string { return fmt.Sprintf("%g%%", math.Round(v*1000)/10) }

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

