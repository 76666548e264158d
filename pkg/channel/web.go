package channel

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mpislabs/draftflow/pkg/core"
	"github.com/mpislabs/draftflow/pkg/ingest"
	"github.com/mpislabs/draftflow/pkg/security"
)

// DefaultUserAgent is sent with every web request.
const DefaultUserAgent = "Mozilla/5.0 (compatible; draftflow/1.0)"

// noise is removed before the main text is extracted.
const noise = "nav, footer, header, script, style, noscript, iframe, form, .ad, .ads, .advertisement, .sidebar, .cookie-banner, .popup"

// contentSelectors are tried in order; the body is the fallback.
var contentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	".content",
	"#content",
	".main-content",
	"#main-content",
}

// Web fetches public pages and extracts their main text.
type Web struct {
	client    *http.Client
	userAgent string
	allowed   []string
	denied    []string
}

// WebOption configures a Web adapter.
type WebOption func(*Web)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) WebOption {
	return func(w *Web) { w.client = c }
}

// WithAllowedDomains restricts fetching to the given domains and their subdomains.
func WithAllowedDomains(domains ...string) WebOption {
	return func(w *Web) { w.allowed = normalizeDomains(domains) }
}

// WithDeniedDomains blocks the given domains and their subdomains.
func WithDeniedDomains(domains ...string) WebOption {
	return func(w *Web) { w.denied = normalizeDomains(domains) }
}

// WithWebTimeout sets the per-request timeout.
func WithWebTimeout(d time.Duration) WebOption {
	return func(w *Web) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

// NewWeb creates a web adapter.
func NewWeb(opts ...WebOption) *Web {
	w := &Web{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Channel implements ingest.Adapter.
func (w *Web) Channel() core.Channel { return core.ChannelWeb }

// Allowed reports whether host passes the deny and allow lists.
// An empty allow list admits every host that is not denied.
func (w *Web) Allowed(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if matchDomain(host, w.denied) {
		return false
	}
	if len(w.allowed) == 0 {
		return true
	}
	return matchDomain(host, w.allowed)
}

// Fetch implements ingest.Adapter.
func (w *Web) Fetch(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ingest.UnsupportedFormat(ref, "invalid URL", err)
	}
	if !w.Allowed(u.Hostname()) {
		return "", ingest.UnsupportedFormat(ref, "domain not allowed", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", ingest.TransportError(ref, "failed to create request", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", ingest.TransportError(ref, "HTTP request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", ingest.TransportError(ref, fmt.Sprintf("HTTP status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, security.MaxSourceTextSize))
	if err != nil {
		return "", ingest.TransportError(ref, "failed to read response body", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/html", "application/xhtml+xml", "":
		text, err := ExtractMainText(string(body))
		if err != nil {
			return "", ingest.UnsupportedFormat(ref, "failed to parse HTML", err)
		}
		return text, nil
	case "text/plain", "text/markdown":
		return string(body), nil
	default:
		return "", ingest.UnsupportedFormat(ref, "content type "+mediaType, nil)
	}
}

// ExtractMainText returns the readable text of an HTML page, one line per block.
func ExtractMainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find(noise).Remove()

	var main *goquery.Selection
	for _, sel := range contentSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			main = s.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	var lines []string
	blocks := main.Find("h1, h2, h3, h4, h5, h6, p, li, blockquote, pre, td")
	if blocks.Length() == 0 {
		lines = append(lines, strings.TrimSpace(main.Text()))
	}
	blocks.Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are emitted by their innermost element.
		if s.Find("p, li, blockquote, pre").Length() > 0 {
			return
		}
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			lines = append(lines, t)
		}
	})
	return strings.Join(lines, "\n\n"), nil
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

func matchDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
