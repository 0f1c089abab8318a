// Package roadmap loads roadmap text from files or URLs. HTML sources are
// reduced to their main content and converted to Markdown before scanning.
package roadmap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/joelkehle/sales-proposal-agency/internal/proposal"
	"golang.org/x/net/html"
)

const DefaultMaxBytes = 2 << 20

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

type Document struct {
	Source string
	Title  string
	Text   string
	HTML   bool
}

type Loader struct {
	client    *http.Client
	maxBytes  int64
	converter *md.Converter
}

func NewLoader(client *http.Client, maxBytes int64) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &Loader{client: client, maxBytes: maxBytes, converter: conv}
}

// Load reads source, which is either an http(s) URL or a local file path.
func (l *Loader) Load(ctx context.Context, source string) (Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Document{}, proposal.NewInvalidInput("roadmap", "source is empty")
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return l.fetch(ctx, source)
	}
	f, err := os.Open(source)
	if err != nil {
		return Document{}, proposal.NewInvalidInput("roadmap", err.Error())
	}
	defer f.Close()
	blob, err := l.readLimited(f)
	if err != nil {
		return Document{}, err
	}
	ext := strings.ToLower(filepath.Ext(source))
	return l.document(source, blob, ext == ".html" || ext == ".htm")
}

func (l *Loader) fetch(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, proposal.NewInvalidInput("roadmap", err.Error())
	}
	req.Header.Set("User-Agent", "sales-proposal-agency/1.0")
	req.Header.Set("Accept", "text/html,text/markdown,text/plain;q=0.9,*/*;q=0.5")
	resp, err := l.client.Do(req)
	if err != nil {
		return Document{}, proposal.NewUpstreamFailure("fetch roadmap", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Document{}, proposal.NewUpstreamFailure(fmt.Sprintf("fetch roadmap: status %d", resp.StatusCode), nil)
	}
	blob, err := l.readLimited(resp.Body)
	if err != nil {
		return Document{}, err
	}
	isHTML := strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html")
	return l.document(url, blob, isHTML)
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	blob, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(blob)) > l.maxBytes {
		return nil, proposal.NewInvalidInput("roadmap", fmt.Sprintf("exceeds %d bytes", l.maxBytes))
	}
	return blob, nil
}

func (l *Loader) document(source string, blob []byte, isHTML bool) (Document, error) {
	doc := Document{Source: source, HTML: isHTML}
	if !isHTML {
		doc.Text = strings.TrimSpace(string(blob))
		doc.Title = markdownTitle(doc.Text)
	} else {
		text, title, err := l.convert(blob)
		if err != nil {
			return Document{}, err
		}
		doc.Text, doc.Title = text, title
	}
	if doc.Text == "" {
		return Document{}, proposal.NewInvalidInput("roadmap", "source has no text")
	}
	return doc, nil
}

func (l *Loader) convert(blob []byte) (string, string, error) {
	root, err := html.Parse(strings.NewReader(string(blob)))
	if err != nil {
		return "", "", proposal.NewInvalidInput("roadmap", "unparseable html")
	}
	title := ""
	if t := findElement(root, "title"); t != nil && t.FirstChild != nil {
		title = strings.TrimSpace(t.FirstChild.Data)
	}
	removeElements(root, map[string]bool{"script": true, "style": true, "nav": true, "header": true, "footer": true, "noscript": true, "form": true})
	content := root
	for _, tag := range []string{"main", "article", "body"} {
		if n := findElement(root, tag); n != nil {
			content = n
			break
		}
	}
	var sb strings.Builder
	if err := html.Render(&sb, content); err != nil {
		return "", "", err
	}
	out, err := l.converter.ConvertString(sb.String())
	if err != nil {
		return "", "", fmt.Errorf("convert html: %w", err)
	}
	out = strings.TrimSpace(excessiveLinesRe.ReplaceAllString(out, "\n\n"))
	if title == "" {
		title = markdownTitle(out)
	}
	return out, title, nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeElements(n *html.Node, tags map[string]bool) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && tags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		removeElements(c, tags)
	}
}

func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); strings.HasPrefix(t, "# ") {
			return strings.TrimSpace(t[2:])
		}
	}
	return ""
}
