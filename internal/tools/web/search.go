package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/strandlabs/loom/internal/retry"
	"github.com/strandlabs/loom/pkg/models"
)

// SearchBackend selects how websearch queries are answered.
type SearchBackend string

const (
	BackendDuckDuckGo  SearchBackend = "duckduckgo"
	BackendBraveSearch SearchBackend = "brave"

	// maxCacheSize bounds cached responses.
	maxCacheSize = 1000
)

// SearchConfig holds websearch backend credentials and defaults.
type SearchConfig struct {
	// BraveAPIKey enables the Brave backend when set.
	BraveAPIKey string

	// DefaultBackend falls back to DuckDuckGo, which needs no key.
	DefaultBackend SearchBackend

	// DuckDuckGoURL overrides the HTML endpoint (tests).
	DuckDuckGoURL string

	// BraveURL overrides the API endpoint (tests).
	BraveURL string

	DefaultResultCount int
	CacheTTLSeconds    int
}

// SearchResult is a single hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type cacheEntry struct {
	results   []SearchResult
	backend   SearchBackend
	expiresAt time.Time
}

// WebSearchTool queries a search backend and returns ranked results.
type WebSearchTool struct {
	config     SearchConfig
	httpClient *http.Client

	cacheMu sync.RWMutex
	cache   map[string]*cacheEntry
}

// NewWebSearchTool creates a websearch tool with defaults applied.
func NewWebSearchTool(config SearchConfig) *WebSearchTool {
	if config.DefaultResultCount <= 0 {
		config.DefaultResultCount = 5
	}
	if config.CacheTTLSeconds <= 0 {
		config.CacheTTLSeconds = 300
	}
	if config.DefaultBackend == "" {
		if config.BraveAPIKey != "" {
			config.DefaultBackend = BackendBraveSearch
		} else {
			config.DefaultBackend = BackendDuckDuckGo
		}
	}
	if config.DuckDuckGoURL == "" {
		config.DuckDuckGoURL = "https://html.duckduckgo.com/html/"
	}
	if config.BraveURL == "" {
		config.BraveURL = "https://api.search.brave.com/res/v1/web/search"
	}
	return &WebSearchTool{
		config:     config,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      make(map[string]*cacheEntry),
	}
}

func (t *WebSearchTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "websearch",
		Description: "Search the web and return result titles, URLs, and snippets.",
		Category:    models.CategoryIntelligence,
		Parameters: []models.ToolParameter{
			{Name: "query", Type: models.TypeString, Description: "Search query.", Required: true},
			{Name: "count", Type: models.TypeNumber, Description: "Number of results to return."},
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	query := strings.TrimSpace(stringParam(params, "query"))
	if query == "" {
		return failure("query is required"), nil
	}
	count := intParam(params, "count")
	if count <= 0 {
		count = t.config.DefaultResultCount
	}

	results, backend, err := t.search(ctx, query, count)
	if err != nil {
		return failure("search failed: " + err.Error()), nil
	}

	payload, err := json.MarshalIndent(map[string]any{
		"query":   query,
		"backend": string(backend),
		"results": results,
		"count":   len(results),
	}, "", "  ")
	if err != nil {
		return failure("encode result: " + err.Error()), nil
	}
	return &models.ExecutionResult{Success: true, Output: string(payload)}, nil
}

func (t *WebSearchTool) search(ctx context.Context, query string, count int) ([]SearchResult, SearchBackend, error) {
	key := fmt.Sprintf("%s|%d", query, count)
	if entry := t.cached(key); entry != nil {
		return entry.results, entry.backend, nil
	}

	backend := t.config.DefaultBackend
	if backend != BackendBraveSearch {
		backend = BackendDuckDuckGo
	}

	// Search backends rate-limit and flake; transient failures get a
	// couple of quick retries before the tool reports an error.
	results, err := retry.DoValue(ctx, searchRetryPolicy(), func(ctx context.Context) ([]SearchResult, error) {
		if backend == BackendBraveSearch {
			return t.searchBrave(ctx, query, count)
		}
		return t.searchDuckDuckGo(ctx, query, count)
	})
	if err != nil {
		return nil, backend, err
	}

	t.store(key, &cacheEntry{
		results:   results,
		backend:   backend,
		expiresAt: time.Now().Add(time.Duration(t.config.CacheTTLSeconds) * time.Second),
	})
	return results, backend, nil
}

func (t *WebSearchTool) cached(key string) *cacheEntry {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry
}

func (t *WebSearchTool) store(key string, entry *cacheEntry) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	if len(t.cache) >= maxCacheSize {
		now := time.Now()
		for k, v := range t.cache {
			if now.After(v.expiresAt) {
				delete(t.cache, k)
			}
		}
		if len(t.cache) >= maxCacheSize {
			t.cache = make(map[string]*cacheEntry)
		}
	}
	t.cache[key] = entry
}

func searchRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Factor:       2.0,
		Jitter:       true,
		ShouldRetry:  retryableSearchError,
	}
}

// httpStatusError keeps the backend status visible to the retry
// predicate without parsing error strings.
type httpStatusError struct {
	backend string
	status  int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.backend, e.status)
}

func retryableSearchError(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

var (
	ddgResultRe  = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.*?)</a>`)
)

func (t *WebSearchTool) searchDuckDuckGo(ctx context.Context, query string, count int) ([]SearchResult, error) {
	endpoint := t.config.DuckDuckGoURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "loom/1.0")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{backend: "duckduckgo", status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}

	page := string(body)
	links := ddgResultRe.FindAllStringSubmatch(page, count)
	snippets := ddgSnippetRe.FindAllStringSubmatch(page, count)

	var results []SearchResult
	for i, m := range links {
		r := SearchResult{
			Title: strings.TrimSpace(htmlToText(m[2])),
			URL:   decodeDDGURL(m[1]),
		}
		if i < len(snippets) {
			r.Snippet = strings.TrimSpace(htmlToText(snippets[i][1]))
		}
		results = append(results, r)
		if len(results) >= count {
			break
		}
	}
	return results, nil
}

// decodeDDGURL unwraps DuckDuckGo's redirect links (//duckduckgo.com/l/?uddg=...).
func decodeDDGURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

func (t *WebSearchTool) searchBrave(ctx context.Context, query string, count int) ([]SearchResult, error) {
	endpoint := fmt.Sprintf("%s?q=%s&count=%d", t.config.BraveURL, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.config.BraveAPIKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{backend: "brave", status: resp.StatusCode}
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: htmlToText(r.Description),
		})
		if len(results) >= count {
			break
		}
	}
	return results, nil
}
