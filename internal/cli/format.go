package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/joelkehle/sales-proposal-agency/internal/store"
)

var (
	colorGreen  = lipgloss.Color("#8ec07c")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorDim    = lipgloss.Color("#928374")
	colorHeader = lipgloss.Color("#fe8019")
)

type styles struct {
	header lipgloss.Style
	bold   lipgloss.Style
	dim    lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	box    lipgloss.Style
}

// newStyles returns unstyled renderers when color is false so piped output
// stays plain.
func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{header: plain, bold: plain, dim: plain, good: plain, warn: plain, bad: plain, box: plain}
	}
	return styles{
		header: lipgloss.NewStyle().Foreground(colorHeader).Bold(true),
		bold:   lipgloss.NewStyle().Bold(true),
		dim:    lipgloss.NewStyle().Foreground(colorDim),
		good:   lipgloss.NewStyle().Foreground(colorGreen),
		warn:   lipgloss.NewStyle().Foreground(colorYellow),
		bad:    lipgloss.NewStyle().Foreground(colorRed),
		box:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorHeader).Padding(0, 1),
	}
}

func (s styles) section(title string) string {
	upper := strings.ToUpper(title)
	return s.header.Render(upper) + "\n" + s.dim.Render(strings.Repeat("─", lipgloss.Width(upper)))
}

func money(cur string, v int64) string {
	if v < 0 {
		return "-" + cur + humanize.Comma(-v)
	}
	return cur + humanize.Comma(v)
}

// formatQuote renders the terminal summary of a generated proposal.
func formatQuote(env proposal.ResponseEnvelope, st styles) string {
	cur := env.Currency
	q := env.Quote
	var b strings.Builder

	title := "Proposal " + env.ProposalID
	if env.Customer != "" {
		title += " for " + env.Customer
	}
	headline := []string{
		st.bold.Render(title),
		fmt.Sprintf("%s tier · %s · %s", strings.ToUpper(string(env.Profile.Complexity)), env.Profile.BusinessModel, env.Cost.Timeline),
		"",
		fmt.Sprintf("Our price     %s", st.good.Render(money(cur, q.FinalTotal))),
		fmt.Sprintf("In-house cost %s", money(cur, q.DIYCost)),
		fmt.Sprintf("Savings       %s (%d%%)", money(cur, q.Savings), q.SavingsPercentage),
	}
	b.WriteString(st.box.Render(strings.Join(headline, "\n")))
	b.WriteString("\n\n")

	if env.ReportMode == proposal.ReportModeDegraded {
		b.WriteString(st.warn.Render("DEGRADED: narrative unavailable, standard copy used"))
		b.WriteString("\n\n")
	}

	b.WriteString(st.section("Cost breakdown"))
	b.WriteString("\n")
	rows := make([][]string, 0, len(env.Cost.Stages))
	for _, s := range env.Cost.Stages {
		rows = append(rows, []string{s.Name, fmt.Sprintf("%d", s.Hours), money(cur, s.HourlyRate) + "/h", money(cur, s.Cost)})
	}
	b.WriteString(renderTable(st, []string{"Stage", "Hours", "Rate", "Cost"}, rows))
	fmt.Fprintf(&b, "%s %s  %s %s\n\n",
		st.dim.Render("salary"), money(cur, env.Cost.SalaryCost),
		st.dim.Render("hidden"), money(cur, env.Cost.HiddenCosts.Total()))

	b.WriteString(st.section("Pricing"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Core build %s (x%.2f of in-house)\n", money(cur, q.CorePrice), q.Multiplier)
	for _, o := range q.Options {
		mark := st.dim.Render("optional")
		if o.Included {
			mark = st.good.Render("included")
		}
		fmt.Fprintf(&b, "  %-28s %10s  %s\n", o.Name, money(cur, o.Price), mark)
	}
	b.WriteString("\n")

	b.WriteString(st.section("Revenue"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Monthly potential %s · one month of delay costs %s\n\n",
		money(cur, env.Revenue.MonthlyRevenuePotential), money(cur, env.Revenue.DelayCosts.OneMonth.LostRevenue))

	c := env.Consistency
	status := st.good.Render(fmt.Sprintf("consistent (score %d)", c.Score))
	if !c.IsConsistent {
		status = st.bad.Render(fmt.Sprintf("inconsistent (score %d)", c.Score))
	}
	fmt.Fprintf(&b, "Pricing check: %s\n", status)
	for _, issue := range c.Issues {
		fmt.Fprintf(&b, "  %s %s\n", st.warn.Render("!"), issue.Message)
	}
	for _, w := range env.PipelineMetadata.Warnings {
		fmt.Fprintf(&b, "%s %s\n", st.warn.Render("warning:"), w)
	}
	return b.String()
}

func formatHistory(items []store.Summary, st styles) string {
	if len(items) == 0 {
		return st.dim.Render("No proposals recorded yet.") + "\n"
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		check := "ok"
		if !it.Consistent {
			check = "flagged"
		}
		rows = append(rows, []string{
			it.ProposalID,
			it.Customer,
			it.Complexity,
			money(it.Currency, it.FinalTotal),
			money(it.Currency, it.DIYCost),
			it.ReportMode,
			check,
			humanize.Time(it.CreatedAt),
		})
	}
	return renderTable(st, []string{"ID", "Customer", "Tier", "Price", "In-house", "Mode", "Check", "Created"}, rows)
}

// renderTable pads columns by visible width so styled cells line up.
func renderTable(st styles, headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(headers) && i < len(row); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	const gap = 2
	var b strings.Builder
	writeRow := func(cells []string, style lipgloss.Style) {
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(style.Render(cell))
			if i < len(headers)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+gap))
			}
		}
		b.WriteString("\n")
	}
	writeRow(headers, st.header)
	for i, w := range widths {
		b.WriteString(st.dim.Render(strings.Repeat("─", w)))
		if i < len(widths)-1 {
			b.WriteString(strings.Repeat(" ", gap))
		}
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row, lipgloss.NewStyle())
	}
	return b.String()
}
