package proposal

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func BuildResponse(result PipelineResult) ResponseEnvelope {
	env := ResponseEnvelope{
		ProposalID:       result.Request.ProposalID,
		Customer:         result.Request.Customer,
		Currency:         result.Revenue.Currency,
		ReportMode:       result.Metadata.Mode,
		Profile:          result.Profile,
		Cost:             result.Cost,
		Revenue:          result.Revenue,
		Quote:            result.Quote,
		Consistency:      result.Consistency,
		Narrative:        result.Narrative,
		PipelineMetadata: result.Metadata,
		Disclaimer:       Disclaimer,
	}
	if env.Currency == "" {
		env.Currency = result.Request.Currency
	}
	env.ReportMarkdown = buildMarkdown(result)
	return env
}

func buildMarkdown(result PipelineResult) string {
	var b strings.Builder
	cur := result.Revenue.Currency
	q := result.Quote
	c := result.Cost
	p := result.Profile

	title := "Project Proposal"
	if s := sanitize(result.Request.Customer); s != "" {
		title += ": " + s
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if result.Request.ProposalID != "" {
		fmt.Fprintf(&b, "- Proposal ID: %s\n", result.Request.ProposalID)
	}
	fmt.Fprintf(&b, "- Date: %s\n", reportDate(result.Metadata))
	fmt.Fprintf(&b, "- Mode: %s\n\n", result.Metadata.Mode)
	if result.Metadata.Mode == ReportModeDegraded {
		fmt.Fprintf(&b, "> DEGRADED: the `%s` stage failed. Figures are complete; narrative copy is the standard template.\n\n", sanitize(result.Metadata.StageFailed))
	}

	n := result.Narrative
	if h := sanitize(n.Headline); h != "" {
		fmt.Fprintf(&b, "## %s\n\n", h)
	}
	if s := sanitize(n.ExecutiveSummary); s != "" {
		fmt.Fprintf(&b, "%s\n\n", s)
	}

	fmt.Fprintf(&b, "## Investment Summary\n\n")
	fmt.Fprintf(&b, "| | Amount |\n|---|---:|\n")
	fmt.Fprintf(&b, "| In-house build (DIY) | %s |\n", money(cur, q.DIYCost))
	fmt.Fprintf(&b, "| Core build price | %s |\n", money(cur, q.CorePrice))
	for _, o := range q.Options {
		if o.Included {
			fmt.Fprintf(&b, "| %s | %s |\n", sanitizeCell(o.Name), money(cur, o.Price))
		}
	}
	fmt.Fprintf(&b, "| **Proposal total** | **%s** |\n", money(cur, q.FinalTotal))
	fmt.Fprintf(&b, "| Savings | %s (%d%%) |\n\n", money(cur, q.Savings), q.SavingsPercentage)

	fmt.Fprintf(&b, "## Project Profile\n\n")
	fmt.Fprintf(&b, "- Complexity: `%s`\n", p.Complexity)
	fmt.Fprintf(&b, "- Business model: `%s`\n", p.BusinessModel)
	fmt.Fprintf(&b, "- Market: %s\n", sanitize(p.MarketCategory))
	fmt.Fprintf(&b, "- Features: %s\n", listOrNone(p.Features))
	fmt.Fprintf(&b, "- Enterprise features: %s\n", listOrNone(p.EnterpriseFeatures))
	fmt.Fprintf(&b, "- Compliance: %s\n", listOrNone(p.ComplianceRequirements))
	if p.MultiPhase {
		fmt.Fprintf(&b, "- Delivery: %d phases\n", p.PhaseCount)
	}
	fmt.Fprintf(&b, "- Estimated backend effort: %s hours\n\n", humanize.Comma(int64(p.EstimatedBackendHours)))

	fmt.Fprintf(&b, "## In-House Cost Breakdown\n\n")
	fmt.Fprintf(&b, "Total effort of %s hours with a team of %d over %s.\n\n", humanize.Comma(int64(c.TotalHours)), c.TeamSize, c.Timeline)
	fmt.Fprintf(&b, "| Stage | Share | Hours | Rate | Cost |\n|---|---:|---:|---:|---:|\n")
	for _, s := range c.Stages {
		name := sanitizeCell(s.Name)
		if s.Specialist {
			name += " (specialist)"
		}
		fmt.Fprintf(&b, "| %s | %g%% | %s | %s/h | %s |\n", name, s.Percentage, humanize.Comma(int64(s.Hours)), money(cur, s.HourlyRate), money(cur, s.Cost))
	}
	fmt.Fprintf(&b, "| **Salaries** | | | | **%s** |\n\n", money(cur, c.SalaryCost))

	h := c.HiddenCosts
	fmt.Fprintf(&b, "### Hidden Costs\n\n")
	if h.ComplianceMultiplier > 1 {
		fmt.Fprintf(&b, "Compliance requirements raise people costs by a factor of %.2f.\n\n", h.ComplianceMultiplier)
	}
	fmt.Fprintf(&b, "| Item | Cost |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Recruitment | %s |\n", money(cur, h.Recruitment))
	fmt.Fprintf(&b, "| Benefits | %s |\n", money(cur, h.Benefits))
	fmt.Fprintf(&b, "| Equipment | %s |\n", money(cur, h.Equipment))
	fmt.Fprintf(&b, "| Onboarding | %s |\n", money(cur, h.Onboarding))
	if h.ComplianceAudit > 0 {
		fmt.Fprintf(&b, "| Compliance audit | %s |\n", money(cur, h.ComplianceAudit))
	}
	fmt.Fprintf(&b, "| **Total DIY cost** | **%s** |\n\n", money(cur, c.TotalDIYCost))

	r := result.Revenue
	fmt.Fprintf(&b, "## Revenue Opportunity\n\n")
	fmt.Fprintf(&b, "- Model: %s\n", sanitize(r.Formula))
	fmt.Fprintf(&b, "- Market penetration: %g%%\n", r.MarketPenetration*100)
	fmt.Fprintf(&b, "- Monthly revenue potential: %s\n", money(cur, r.MonthlyRevenuePotential))
	fmt.Fprintf(&b, "- Conservative projection: %s per month\n", money(cur, r.ConservativeProjection))
	fmt.Fprintf(&b, "- First-mover advantage: %s\n\n", money(cur, r.FirstMoverAdvantage))
	fmt.Fprintf(&b, "| Launch delay | Revenue lost |\n|---|---:|\n")
	for _, d := range []DelayScenario{r.DelayCosts.TwoWeek, r.DelayCosts.OneMonth, r.DelayCosts.ThreeMonth} {
		fmt.Fprintf(&b, "| %s | %s |\n", d.Period, money(cur, d.LostRevenue))
	}
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "## Optional Add-ons\n\n")
	fmt.Fprintf(&b, "| Option | Price | Included | Description |\n|---|---:|:---:|---|\n")
	for _, o := range q.Options {
		included := "no"
		if o.Included {
			included = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", sanitizeCell(o.Name), money(cur, o.Price), included, sanitizeCell(o.Description))
	}
	fmt.Fprintf(&b, "\n")

	if len(n.TalkingPoints) > 0 {
		fmt.Fprintf(&b, "## Why Partner With Us\n\n")
		for _, tp := range n.TalkingPoints {
			fmt.Fprintf(&b, "- %s\n", sanitize(tp))
		}
		fmt.Fprintf(&b, "\n")
	}
	if len(n.ObjectionHandling) > 0 {
		fmt.Fprintf(&b, "## Common Questions\n\n")
		for _, o := range n.ObjectionHandling {
			fmt.Fprintf(&b, "- %s\n", sanitize(o))
		}
		fmt.Fprintf(&b, "\n")
	}

	cr := result.Consistency
	fmt.Fprintf(&b, "## Pricing Check\n\n")
	fmt.Fprintf(&b, "- Consistent: %t (score %d/100)\n", cr.IsConsistent, cr.Score)
	fmt.Fprintf(&b, "- Multiplier: %.4f actual vs %.2f expected\n", cr.ActualMultiplier, cr.ExpectedMultiplier)
	for _, w := range result.Metadata.Warnings {
		fmt.Fprintf(&b, "- [!] %s\n", sanitize(w))
	}
	fmt.Fprintf(&b, "\n---\n\n%s\n", Disclaimer)
	return b.String()
}

func reportDate(m PipelineMetadata) string {
	t := m.CompletedAt
	if t.IsZero() {
		t = m.StartedAt
	}
	if t.IsZero() {
		return "n/a"
	}
	return t.Format(time.DateOnly)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none detected"
	}
	return sanitize(strings.Join(items, ", "))
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

func sanitizeCell(s string) string {
	return strings.ReplaceAll(sanitize(s), "|", "\\|")
}
