// Package render turns a proposal response envelope into a standalone HTML
// page (goldmark, GitHub-flavoured tables) or a PDF printed by headless Chrome.
package render

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed style.css
var styleCSS string

var (
	md             = goldmark.New(goldmark.WithExtensions(extension.GFM))
	reBreakHeading = regexp.MustCompile(`<h2([^>]*)>\s*(Optional Add-ons|Pricing Check)\s*</h2>`)
)

// HTML renders the envelope's Markdown report into a complete HTML document.
func HTML(env proposal.ResponseEnvelope) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(env.ReportMarkdown), &body); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	content := reBreakHeading.ReplaceAllString(body.String(), `<h2$1 data-page-break-before="true">$2</h2>`)

	title := "Project Proposal"
	if c := strings.TrimSpace(env.Customer); c != "" {
		title += " for " + c
	}
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset='utf-8'><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title><style>")
	b.WriteString(styleCSS)
	b.WriteString("</style></head><body><div class='proposal-wrap'><div class='proposal-header'><div class='proposal-meta'>")
	b.WriteString(metaHTML(env))
	b.WriteString("</div><div class='proposal-badges'>")
	b.WriteString(badgeHTML(env))
	b.WriteString("</div></div><div class='proposal-body'>")
	b.WriteString(content)
	b.WriteString("</div></div></body></html>")
	return b.String(), nil
}

func metaHTML(env proposal.ResponseEnvelope) string {
	var out strings.Builder
	if env.ProposalID != "" {
		out.WriteString("<div><strong>Reference:</strong> " + html.EscapeString(env.ProposalID) + "</div>")
	}
	if env.Customer != "" {
		out.WriteString("<div><strong>Prepared for:</strong> " + html.EscapeString(env.Customer) + "</div>")
	}
	if ts := env.PipelineMetadata.CompletedAt; !ts.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(ts.UTC().Format("January 2, 2006")) + "</div>")
	}
	return out.String()
}

func badgeHTML(env proposal.ResponseEnvelope) string {
	var out strings.Builder
	if tier := env.Profile.Complexity; tier != "" {
		out.WriteString("<span class='proposal-badge'>" + html.EscapeString(string(tier)) + "</span>")
	}
	if env.ReportMode == proposal.ReportModeDegraded {
		out.WriteString("<span class='proposal-badge degraded'>DEGRADED</span>")
	}
	return out.String()
}

// PDFRenderer prints the HTML report with a headless Chrome instance.
type PDFRenderer struct {
	chromePath string
	timeout    time.Duration
}

func NewPDFRenderer(chromePath string) *PDFRenderer {
	if strings.TrimSpace(chromePath) == "" {
		chromePath = detectChromePath()
	}
	return &PDFRenderer{chromePath: chromePath, timeout: 30 * time.Second}
}

func (r *PDFRenderer) Render(ctx context.Context, env proposal.ResponseEnvelope) ([]byte, error) {
	doc, err := HTML(env)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(doc))
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				html.EscapeString(env.ProposalID) + ` &middot; Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

func detectChromePath() string {
	for _, p := range []string{"/usr/bin/chromium-browser", "/usr/bin/chromium", "/usr/bin/google-chrome"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
