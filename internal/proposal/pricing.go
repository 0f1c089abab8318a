package proposal

import (
	"fmt"
	"math"
)

const (
	OptionExtendedSupport         = "extended_support"
	OptionExpedited               = "expedited_delivery"
	OptionAdditionalFeatures      = "additional_features"
	OptionComplianceCertification = "compliance_certification"
)

// ExpectedMultiplier is the tier's price multiplier plus the compliance adjustment when required.
func ExpectedMultiplier(cfg Config, tier ComplexityTier, compliance bool) (float64, error) {
	m, ok := cfg.Pricing.Multipliers[tier]
	if !ok {
		return 0, NewInvalidInput("complexity", fmt.Sprintf("unknown tier %q", tier))
	}
	if compliance {
		m += cfg.Pricing.ComplianceAdjustment
	}
	return roundRatio(m), nil
}

// CalculatePrice prices the build as a share of the DIY cost and lists the modular add-ons.
func CalculatePrice(cfg Config, in PriceInput) (PriceQuote, error) {
	if in.DIYCost <= 0 {
		return PriceQuote{}, NewInvalidInput("diy_cost", "must be positive")
	}
	unit := cfg.Rounding.PriceUnit
	if unit <= 0 {
		return PriceQuote{}, NewConfigurationError("rounding.price_unit", "must be positive")
	}
	compliance := len(in.ComplianceRequirements) > 0
	mult, err := ExpectedMultiplier(cfg, in.Complexity, compliance)
	if err != nil {
		return PriceQuote{}, err
	}
	core := roundTo64(float64(in.DIYCost)*mult, unit)
	if core <= 0 || roundingSlack(in.DIYCost, core, mult) >= cfg.ConsistencyTolerance {
		return PriceQuote{}, NewInvalidInput("diy_cost", fmt.Sprintf("%d is too small to price in units of %d at a %.2f multiplier", in.DIYCost, unit, mult))
	}

	p := cfg.Pricing
	option := func(key, name, desc string, pct float64, included bool) ModularOption {
		return ModularOption{
			Key:         key,
			Name:        name,
			Percentage:  pct,
			Price:       roundTo64(float64(core)*pct, unit),
			Included:    included,
			Description: desc,
		}
	}
	options := []ModularOption{
		option(OptionExtendedSupport, "Extended Support", "Twelve months of maintenance, monitoring and priority fixes after launch.", p.ExtendedSupportPct, in.ExtendedSupport),
		option(OptionExpedited, "Expedited Delivery", "Additional engineers allocated to compress the delivery timeline.", p.ExpeditedPct, in.Expedited),
		option(OptionAdditionalFeatures, "Additional Features", "Budget reserved for features identified after discovery.", p.AdditionalFeaturesPct, false),
	}
	if in.Complexity.Specialist() {
		options = append(options, option(OptionComplianceCertification, "Compliance Certification", "Audit preparation and certification support for the required standards.", p.ComplianceCertificationPct, false))
	}

	total := core
	for _, o := range options {
		if o.Included {
			total += o.Price
		}
	}
	savings := in.DIYCost - total
	return PriceQuote{
		DIYCost:           in.DIYCost,
		Complexity:        in.Complexity,
		Multiplier:        mult,
		ComplianceAdded:   compliance,
		RoundingUnit:      unit,
		CorePrice:         core,
		Options:           options,
		FinalTotal:        total,
		Savings:           savings,
		SavingsPercentage: savingsPercentage(in.DIYCost, total),
	}, nil
}

func savingsPercentage(diy, price int64) int {
	if diy <= 0 {
		return 0
	}
	return int(math.Round(float64(diy-price) / float64(diy) * 100))
}

// roundingSlack is how far rounding alone moves the core price off the tier multiplier.
func roundingSlack(diy, core int64, mult float64) float64 {
	return math.Abs(float64(core)/float64(diy) - mult)
}

func roundRatio(v float64) float64 { return math.Round(v*1e4) / 1e4 }
