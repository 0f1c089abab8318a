package proposal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

type NarrativeRunner interface {
	Narrate(ctx context.Context, res PipelineResult) (Narrative, StageAttemptMetrics, error)
}

type LLMNarrator struct {
	exec *StageExecutor
}

func NewLLMNarrator(exec *StageExecutor) *LLMNarrator {
	return &LLMNarrator{exec: exec}
}

const narrativeSchemaPrompt = `Required JSON schema:
{
  "headline":"string",
  "executive_summary":"string (2-4 sentences)",
  "talking_points":["string (3-6)"],
  "objection_handling":["string (1-4)"]
}`

const narrativeRules = `Rules:
- Every figure below was computed by the system. Quote them exactly or not at all.
- Do not introduce new prices, costs, percentages or timelines.
- Write for a prospect comparing an in-house build with this proposal.`

func (n *LLMNarrator) Narrate(ctx context.Context, res PipelineResult) (Narrative, StageAttemptMetrics, error) {
	out := Narrative{}
	facts := map[string]any{
		"customer": res.Request.Customer,
		"profile":  res.Profile,
		"cost": map[string]any{
			"total_hours":    res.Cost.TotalHours,
			"team_size":      res.Cost.TeamSize,
			"timeline":       res.Cost.Timeline,
			"salary_cost":    res.Cost.SalaryCost,
			"hidden_costs":   res.Cost.HiddenCosts.Total(),
			"total_diy_cost": res.Cost.TotalDIYCost,
		},
		"revenue": res.Revenue,
		"quote":   res.Quote,
	}
	prompt := fmt.Sprintf(
		"Sales proposal narrative.\nWrite the narrative sections of a proposal for the project below.\n\n%s\n\n%s\n\nComputed figures (currency %s):\n%s",
		narrativeRules,
		narrativeSchemaPrompt,
		res.Revenue.Currency,
		mustJSON(facts),
	)
	allowed := allowedFigures(res)
	amounts := moneyPattern(res.Revenue.Currency)
	m, err := n.exec.Run(ctx, "narrative", prompt, &out, func() error { return validateNarrative(out, amounts, allowed) })
	if err != nil {
		return Narrative{}, m, err
	}
	out.Generated = true
	return out, m, nil
}

// moneyPattern matches amounts prefixed with the proposal's currency symbol or "$".
func moneyPattern(currency string) *regexp.Regexp {
	symbols := []string{regexp.QuoteMeta("$")}
	if c := strings.TrimSpace(currency); c != "" && c != "$" {
		symbols = append(symbols, regexp.QuoteMeta(c))
	}
	return regexp.MustCompile(`(?:` + strings.Join(symbols, "|") + `)\s?(\d[\d,]*)`)
}

func validateNarrative(n Narrative, amounts *regexp.Regexp, allowed map[int64]bool) error {
	if strings.TrimSpace(n.Headline) == "" {
		return errors.New("headline is required")
	}
	if strings.TrimSpace(n.ExecutiveSummary) == "" {
		return errors.New("executive_summary is required")
	}
	if len(n.TalkingPoints) < 3 {
		return errors.New("talking_points must contain at least 3 items")
	}
	if len(n.ObjectionHandling) == 0 {
		return errors.New("objection_handling must contain at least 1 item")
	}
	texts := append([]string{n.Headline, n.ExecutiveSummary}, n.TalkingPoints...)
	texts = append(texts, n.ObjectionHandling...)
	for _, t := range texts {
		for _, m := range amounts.FindAllStringSubmatch(t, -1) {
			v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
			if err != nil {
				continue
			}
			if !allowed[v] {
				return fmt.Errorf("figure %s does not match any computed value", m[0])
			}
		}
	}
	return nil
}

func allowedFigures(res PipelineResult) map[int64]bool {
	vals := []int64{
		res.Cost.SalaryCost, res.Cost.HiddenCosts.Total(), res.Cost.TotalDIYCost,
		res.Cost.HiddenCosts.Recruitment, res.Cost.HiddenCosts.Benefits, res.Cost.HiddenCosts.Equipment,
		res.Cost.HiddenCosts.Onboarding, res.Cost.HiddenCosts.ComplianceAudit,
		res.Cost.HiddenCosts.Recruitment + res.Cost.HiddenCosts.Onboarding,
		res.Quote.CorePrice, res.Quote.FinalTotal, res.Quote.Savings,
		res.Revenue.MonthlyRevenuePotential, res.Revenue.DelayCosts.TwoWeek.LostRevenue,
		res.Revenue.DelayCosts.OneMonth.LostRevenue, res.Revenue.DelayCosts.ThreeMonth.LostRevenue,
		res.Revenue.FirstMoverAdvantage, res.Revenue.ConservativeProjection,
	}
	for _, o := range res.Quote.Options {
		vals = append(vals, o.Price)
	}
	for _, s := range res.Cost.Stages {
		vals = append(vals, s.Cost)
	}
	out := make(map[int64]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}

// DeterministicNarrative builds narrative copy from the computed figures without an LLM.
func DeterministicNarrative(res PipelineResult) Narrative {
	cur := res.Revenue.Currency
	q := res.Quote
	c := res.Cost
	who := "your team"
	if s := strings.TrimSpace(res.Request.Customer); s != "" {
		who = s
	}
	headline := fmt.Sprintf("Launch your %s %s build for %s instead of %s in-house", res.Profile.Complexity, res.Profile.MarketCategory, money(cur, q.FinalTotal), money(cur, c.TotalDIYCost))
	summary := fmt.Sprintf(
		"Building this in-house would take an estimated %s hours across a team of %d over %s, for a fully loaded cost of %s. "+
			"We deliver the same scope for %s, saving %s (%d%%). Every month of delay forgoes roughly %s in revenue.",
		humanize.Comma(int64(c.TotalHours)), c.TeamSize, c.Timeline, money(cur, c.TotalDIYCost),
		money(cur, q.FinalTotal), money(cur, q.Savings), q.SavingsPercentage, money(cur, res.Revenue.DelayCosts.OneMonth.LostRevenue),
	)
	points := []string{
		fmt.Sprintf("Hidden costs of hiring add %s on top of %s in salaries.", money(cur, c.HiddenCosts.Total()), money(cur, c.SalaryCost)),
		fmt.Sprintf("The %s business model points to about %s in monthly revenue once live.", strings.ReplaceAll(string(res.Revenue.BusinessModel), "_", "-"), money(cur, res.Revenue.MonthlyRevenuePotential)),
		fmt.Sprintf("Reaching market first is worth an estimated %s over %s.", money(cur, res.Revenue.FirstMoverAdvantage), monthsLabel(res.Revenue.FirstMoverMonths)),
	}
	if len(res.Profile.ComplianceRequirements) > 0 {
		points = append(points, fmt.Sprintf("Compliance with %s is built into the plan from day one.", strings.Join(res.Profile.ComplianceRequirements, ", ")))
	}
	objections := []string{
		fmt.Sprintf("\"We can build it ourselves.\" %s would first need to hire %d people; recruitment and onboarding alone cost %s.", who, c.TeamSize, money(cur, c.HiddenCosts.Recruitment+c.HiddenCosts.Onboarding)),
		fmt.Sprintf("\"The price is too high.\" Even the conservative revenue projection of %s per month recovers the investment quickly.", money(cur, res.Revenue.ConservativeProjection)),
	}
	return Narrative{
		Headline:          headline,
		ExecutiveSummary:  summary,
		TalkingPoints:     points,
		ObjectionHandling: objections,
	}
}

func monthsLabel(n int) string {
	if n == 1 {
		return "one month"
	}
	return fmt.Sprintf("%d months", n)
}

func money(currency string, v int64) string {
	if v < 0 {
		return "-" + currency + humanize.Comma(-v)
	}
	return currency + humanize.Comma(v)
}
