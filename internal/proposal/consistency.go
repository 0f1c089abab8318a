package proposal

import (
	"fmt"
	"math"
)

const (
	CheckHoursRounding   = "hours_rounding"
	CheckDIYIntegrity    = "diy_integrity"
	CheckPriceRounding   = "price_rounding"
	CheckMultiplierMatch = "multiplier_match"

	consistencyChecks = 4
)

// CheckConsistency compares a quoted core price against the tier's expected multiplier.
// It only reports: the quoted figures are echoed back unchanged and the caller decides
// what to do with ExpectedCorePrice.
func CheckConsistency(cfg Config, in ConsistencyInput) (ConsistencyReport, error) {
	if in.DIYCost <= 0 {
		return ConsistencyReport{}, NewInvalidInput("diy_cost", "must be positive")
	}
	if in.CorePrice < 0 {
		return ConsistencyReport{}, NewInvalidInput("core_price", "must not be negative")
	}
	if cfg.Rounding.HoursUnit <= 0 || cfg.Rounding.PriceUnit <= 0 {
		return ConsistencyReport{}, NewConfigurationError("rounding", "units must be positive")
	}
	expected, err := ExpectedMultiplier(cfg, in.Complexity, in.ComplianceRequired)
	if err != nil {
		return ConsistencyReport{}, err
	}
	tolerance := cfg.ConsistencyTolerance
	actual := float64(in.CorePrice) / float64(in.DIYCost)
	deviation := math.Abs(actual - expected)

	issues := []ConsistencyIssue{}
	hours := cfg.Rounding.HoursUnit
	if in.BackendHours != nil && *in.BackendHours%hours != 0 {
		issues = append(issues, ConsistencyIssue{Check: CheckHoursRounding, Message: fmt.Sprintf("backend hours %d are not a multiple of %d", *in.BackendHours, hours)})
	} else if in.TotalHours != nil && *in.TotalHours%hours != 0 {
		issues = append(issues, ConsistencyIssue{Check: CheckHoursRounding, Message: fmt.Sprintf("total hours %d are not a multiple of %d", *in.TotalHours, hours)})
	}
	if in.ComponentsTotal != nil && *in.ComponentsTotal != in.DIYCost {
		issues = append(issues, ConsistencyIssue{Check: CheckDIYIntegrity, Message: fmt.Sprintf("cost components sum to %d but DIY cost is %d", *in.ComponentsTotal, in.DIYCost)})
	}
	if in.CorePrice%cfg.Rounding.PriceUnit != 0 {
		issues = append(issues, ConsistencyIssue{Check: CheckPriceRounding, Message: fmt.Sprintf("core price %d is not a multiple of %d", in.CorePrice, cfg.Rounding.PriceUnit)})
	}
	expectedCore := roundTo64(float64(in.DIYCost)*expected, cfg.Rounding.PriceUnit)
	consistent := deviation < tolerance
	if !consistent && roundingSlack(in.DIYCost, expectedCore, expected) >= tolerance {
		// The DIY cost is too small for the price unit to land inside the band,
		// so the formula price is the only consistent one.
		consistent = in.CorePrice == expectedCore
	}
	if !consistent {
		issues = append(issues, ConsistencyIssue{Check: CheckMultiplierMatch, Message: fmt.Sprintf("multiplier %.4f deviates from expected %.2f by %.4f (tolerance %.2f)", actual, expected, deviation, tolerance)})
	}

	note := "Advisory only: quoted values are reported unchanged."
	if !consistent {
		note += fmt.Sprintf(" The %s tier formula gives a core price of %d.", in.Complexity, expectedCore)
	}
	return ConsistencyReport{
		IsConsistent:       consistent,
		Score:              int(math.Round(100 * (1 - float64(len(issues))/consistencyChecks))),
		ExpectedMultiplier: expected,
		ActualMultiplier:   roundRatio(actual),
		Deviation:          roundRatio(deviation),
		Tolerance:          tolerance,
		ExpectedCorePrice:  expectedCore,
		SavingsPercentage:  savingsPercentage(in.DIYCost, in.CorePrice),
		Issues:             issues,
		Note:               note,
	}, nil
}
