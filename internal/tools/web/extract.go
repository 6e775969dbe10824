// Package web hosts the network tools: webfetch and websearch.
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ContentExtractor fetches a page and reduces it to readable text.
type ContentExtractor struct {
	httpClient    *http.Client
	skipSSRFCheck bool
}

// NewContentExtractor creates an extractor with a 15s request timeout.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewContentExtractorForTesting allows localhost URLs. Tests only.
func NewContentExtractorForTesting() *ContentExtractor {
	return &ContentExtractor{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		skipSSRFCheck: true,
	}
}

func isPrivateOrReservedIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsMulticast()
}

// validateURL rejects non-HTTP schemes and hosts that resolve to
// private, loopback, or otherwise reserved addresses.
func (e *ContentExtractor) validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}
	if e.skipSSRFCheck {
		return nil
	}
	ips, err := net.LookupIP(parsed.Hostname())
	if err != nil {
		return fmt.Errorf("resolve host: %w", err)
	}
	for _, ip := range ips {
		if isPrivateOrReservedIP(ip) {
			return fmt.Errorf("host resolves to a restricted address")
		}
	}
	return nil
}

// Extract fetches the URL and returns its readable text content.
func (e *ContentExtractor) Extract(ctx context.Context, rawURL string) (string, error) {
	if err := e.validateURL(rawURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "loom/1.0 (+https://github.com/strandlabs/loom)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") {
		return string(body), nil
	}
	return htmlToText(string(body)), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
	spaceRe  = regexp.MustCompile(`[ \t]{2,}`)
)

// htmlToText strips markup and collapses whitespace. Deliberately
// simple; block elements become newlines, everything else is dropped.
func htmlToText(html string) string {
	text := scriptRe.ReplaceAllString(html, "")
	text = regexp.MustCompile(`(?i)<(/p|/div|/h[1-6]|/li|br\s*/?)>`).ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	).Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimSpace(line))
	}
	text = strings.Join(out, "\n")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
