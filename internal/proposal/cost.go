package proposal

import (
	"fmt"
	"math"
	"strings"
)

// EstimateCost expands backend hours into stage costs, team, hidden overhead and a DIY total.
func EstimateCost(cfg Config, in CostInput) (CostBreakdown, error) {
	if in.BackendHours <= 0 {
		return CostBreakdown{}, NewInvalidInput("backend_hours", "must be positive")
	}
	if !in.Complexity.Valid() {
		return CostBreakdown{}, NewInvalidInput("complexity", fmt.Sprintf("unknown tier %q", in.Complexity))
	}
	if cfg.Rounding.HoursUnit <= 0 {
		return CostBreakdown{}, NewConfigurationError("rounding.hours_unit", "must be positive")
	}
	if cfg.Team.HoursPerWeek <= 0 || cfg.Team.WeeksPerMember <= 0 || cfg.Team.WeeksPerMemberMultiPhase <= 0 {
		return CostBreakdown{}, NewConfigurationError("team", "hours and weeks per member must be positive")
	}
	share := cfg.BackendSharePct
	if in.Overrides.BackendSharePct != nil {
		share = *in.Overrides.BackendSharePct
	}
	if err := validateShare("backend_share_pct", share); err != nil {
		return CostBreakdown{}, err
	}
	if err := checkOverrideNames(cfg, in.Overrides); err != nil {
		return CostBreakdown{}, err
	}

	total := roundToInt(float64(in.BackendHours)/share*100, cfg.Rounding.HoursUnit)
	out := CostBreakdown{BackendHours: in.BackendHours, TotalHours: total}

	for _, s := range cfg.Stages {
		sc, err := stageCost(applyStageOverrides(s, in.Overrides), total, false)
		if err != nil {
			return CostBreakdown{}, err
		}
		out.Stages = append(out.Stages, sc)
	}
	if in.Complexity.Specialist() {
		for _, sp := range cfg.SpecialistStages {
			if !specialistApplies(sp, in) {
				continue
			}
			sc, err := stageCost(applyStageOverrides(sp.StageRate, in.Overrides), total, true)
			if err != nil {
				return CostBreakdown{}, err
			}
			out.Stages = append(out.Stages, sc)
		}
	}

	hpw := cfg.Team.HoursPerWeek
	for _, s := range out.Stages {
		out.SalaryCost += s.Cost
		out.Team = append(out.Team, TeamMember{
			Role:       s.Name,
			Hours:      s.Hours,
			Weeks:      ceilDiv(s.Hours, hpw),
			HourlyRate: s.HourlyRate,
			WeeklyCost: int64(min(s.Hours, hpw)) * s.HourlyRate,
		})
	}

	weeksPerMember := cfg.Team.WeeksPerMember
	if in.MultiPhase {
		weeksPerMember = cfg.Team.WeeksPerMemberMultiPhase
	}
	out.TeamSize = max(1, ceilDiv(total, hpw*weeksPerMember))

	out.HiddenCosts = hiddenCosts(cfg, out.SalaryCost, out.TeamSize, in)
	out.TotalDIYCost = out.SalaryCost + out.HiddenCosts.Total()

	out.TimelineWeeks = ceilDiv(total, out.TeamSize*hpw)
	if in.MultiPhase {
		out.TimelineWeeks = ceilTolerant(float64(out.TimelineWeeks) * cfg.Team.MultiPhaseTimelineFactor)
	}
	out.Timeline = timelineLabel(out.TimelineWeeks, in.MultiPhase, in.PhaseCount)
	return out, nil
}

func stageCost(s StageRate, totalHours int, specialist bool) (StageCost, error) {
	if err := validateStageRate("stage "+s.Name, s); err != nil {
		return StageCost{}, err
	}
	hours := int(math.Round(s.Percentage * float64(totalHours) / 100))
	return StageCost{
		Name:       s.Name,
		Percentage: s.Percentage,
		Hours:      hours,
		HourlyRate: s.HourlyRate,
		Cost:       int64(hours) * s.HourlyRate,
		Specialist: specialist,
	}, nil
}

func applyStageOverrides(s StageRate, o CostOverrides) StageRate {
	for name, pct := range o.StagePercentages {
		if strings.EqualFold(name, s.Name) {
			s.Percentage = pct
		}
	}
	for name, rate := range o.HourlyRates {
		if strings.EqualFold(name, s.Name) {
			s.HourlyRate = rate
		}
	}
	return s
}

func checkOverrideNames(cfg Config, o CostOverrides) error {
	known := func(name string) bool {
		for _, s := range cfg.Stages {
			if strings.EqualFold(s.Name, name) {
				return true
			}
		}
		for _, s := range cfg.SpecialistStages {
			if strings.EqualFold(s.Name, name) {
				return true
			}
		}
		return false
	}
	for name := range o.StagePercentages {
		if !known(name) {
			return NewInvalidInput("overrides.stage_percentages", fmt.Sprintf("unknown stage %q", name))
		}
	}
	for name := range o.HourlyRates {
		if !known(name) {
			return NewInvalidInput("overrides.hourly_rates", fmt.Sprintf("unknown stage %q", name))
		}
	}
	return nil
}

func specialistApplies(sp SpecialistStage, in CostInput) bool {
	if sp.OnPlatform && in.Complexity == TierPlatform {
		return true
	}
	if sp.OnCompliance && len(in.ComplianceRequirements) > 0 {
		return true
	}
	if len(sp.Keywords) == 0 {
		return false
	}
	for _, f := range in.EnterpriseFeatures {
		if containsAny(strings.ToLower(f), sp.Keywords) {
			return true
		}
	}
	return false
}

// ComplianceMultiplier is 1 plus the configured delta of every recognised standard.
// A standard listed more than once, in any case, counts once.
func ComplianceMultiplier(cfg Config, requirements []string) float64 {
	m := 1.0
	seen := make(map[string]bool, len(requirements))
	for _, r := range requirements {
		key := strings.ToLower(strings.TrimSpace(r))
		if seen[key] {
			continue
		}
		seen[key] = true
		m += cfg.complianceDelta(key)
	}
	return m
}

func hiddenCosts(cfg Config, salary int64, teamSize int, in CostInput) HiddenCosts {
	rates := cfg.HiddenCosts
	mult := ComplianceMultiplier(cfg, in.ComplianceRequirements)
	pct := func(rate float64) int64 { return int64(math.Round(float64(salary) * rate * mult)) }
	equipment := rates.EquipmentPerMember
	if in.Complexity.Specialist() {
		equipment = rates.EquipmentPerMemberSpecialist
	}
	h := HiddenCosts{
		Recruitment:          pct(rates.Recruitment),
		Benefits:             pct(rates.Benefits),
		Onboarding:           pct(rates.Onboarding),
		Equipment:            int64(teamSize) * equipment,
		ComplianceMultiplier: mult,
	}
	if len(in.ComplianceRequirements) > 0 {
		h.ComplianceAudit = int64(math.Round(float64(salary) * rates.ComplianceAudit))
	}
	return h
}

func timelineLabel(weeks int, multiPhase bool, phases int) string {
	unit := "weeks"
	if weeks == 1 {
		unit = "week"
	}
	if multiPhase && phases > 1 {
		return fmt.Sprintf("%d %s across %d phases", weeks, unit, phases)
	}
	return fmt.Sprintf("%d %s", weeks, unit)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// ceilTolerant rounds up but absorbs float noise such as 10*1.3 = 13.000000000000002.
func ceilTolerant(v float64) int {
	return int(math.Ceil(v - 1e-9))
}
