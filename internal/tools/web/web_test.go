package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMLToText(t *testing.T) {
	html := `<html><head><title>T</title><style>p{}</style>
<script>var x = 1;</script></head>
<body><h1>Header</h1><p>First &amp; second.</p><p>Third.</p></body></html>`

	text := htmlToText(html)
	if strings.Contains(text, "var x") || strings.Contains(text, "p{}") {
		t.Errorf("script/style leaked: %q", text)
	}
	if !strings.Contains(text, "Header") || !strings.Contains(text, "First & second.") {
		t.Errorf("content lost: %q", text)
	}
}

func TestValidateURLRejectsBadSchemes(t *testing.T) {
	e := NewContentExtractor()
	for _, raw := range []string{"ftp://example.com/x", "file:///etc/passwd", "://bad"} {
		if err := e.validateURL(raw); err == nil {
			t.Errorf("validateURL(%q) should fail", raw)
		}
	}
}

func TestValidateURLBlocksPrivateHosts(t *testing.T) {
	e := NewContentExtractor()
	if err := e.validateURL("http://127.0.0.1/admin"); err == nil {
		t.Error("loopback URL should be rejected")
	}
	if err := e.validateURL("http://169.254.169.254/latest/meta-data"); err == nil {
		t.Error("metadata endpoint should be rejected")
	}
}

func TestWebFetchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>Fetched content here.</p></body></html>"))
	}))
	defer server.Close()

	tool := NewWebFetchTool(FetchConfig{}, WithExtractor(NewContentExtractorForTesting()))
	result, err := tool.Execute(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("fetch failed: %s", result.Error)
	}

	var out struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.Content, "Fetched content here.") {
		t.Errorf("content = %q", out.Content)
	}
}

func TestWebFetchToolTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("a", 500)))
	}))
	defer server.Close()

	tool := NewWebFetchTool(FetchConfig{MaxChars: 100}, WithExtractor(NewContentExtractorForTesting()))
	result, err := tool.Execute(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Content   string `json:"content"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Truncated || len(out.Content) > 110 {
		t.Errorf("out = truncated=%v len=%d", out.Truncated, len(out.Content))
	}
}

const ddgPage = `<html><body>
<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F">The Go Programming Language</a>
<a class="result__snippet" href="https://go.dev/">Build simple, secure, scalable systems.</a>
<a rel="nofollow" class="result__a" href="https://go.dev/doc/">Documentation</a>
</body></html>`

func TestWebSearchToolDuckDuckGo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "golang" {
			t.Errorf("query = %q", r.URL.Query().Get("q"))
		}
		w.Write([]byte(ddgPage))
	}))
	defer server.Close()

	tool := NewWebSearchTool(SearchConfig{DuckDuckGoURL: server.URL})
	result, err := tool.Execute(context.Background(), map[string]any{"query": "golang"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("search failed: %s", result.Error)
	}

	var out struct {
		Backend string         `json:"backend"`
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatal(err)
	}
	if out.Backend != "duckduckgo" || len(out.Results) == 0 {
		t.Fatalf("out = %+v", out)
	}
	first := out.Results[0]
	if first.Title != "The Go Programming Language" {
		t.Errorf("title = %q", first.Title)
	}
	if first.URL != "https://go.dev/" {
		t.Errorf("redirect not unwrapped: %q", first.URL)
	}
}

func TestWebSearchToolCaches(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(ddgPage))
	}))
	defer server.Close()

	tool := NewWebSearchTool(SearchConfig{DuckDuckGoURL: server.URL})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := tool.Execute(ctx, map[string]any{"query": "golang"}); err != nil {
			t.Fatal(err)
		}
	}
	if hits != 1 {
		t.Errorf("backend hit %d times, want 1 (cached)", hits)
	}
}

func TestWebSearchToolRetriesServerErrors(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(ddgPage))
	}))
	defer server.Close()

	tool := NewWebSearchTool(SearchConfig{DuckDuckGoURL: server.URL})
	result, err := tool.Execute(context.Background(), map[string]any{"query": "golang"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("search failed after retry: %s", result.Error)
	}
	if hits != 2 {
		t.Errorf("backend hit %d times, want 2 (one retry)", hits)
	}
}

func TestRetryableSearchError(t *testing.T) {
	if !retryableSearchError(&httpStatusError{backend: "brave", status: 429}) {
		t.Error("429 is retryable")
	}
	if !retryableSearchError(&httpStatusError{backend: "duckduckgo", status: 503}) {
		t.Error("503 is retryable")
	}
	if retryableSearchError(&httpStatusError{backend: "duckduckgo", status: 403}) {
		t.Error("403 is not retryable")
	}
	if retryableSearchError(errors.New("parse failure")) {
		t.Error("plain errors are not retryable")
	}
}

func TestWebSearchToolBrave(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "brave-key" {
			t.Errorf("missing subscription token")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"web": map[string]any{
				"results": []map[string]string{
					{"title": "Result", "url": "https://example.com", "description": "A <b>match</b>."},
				},
			},
		})
	}))
	defer server.Close()

	tool := NewWebSearchTool(SearchConfig{BraveAPIKey: "brave-key", BraveURL: server.URL})
	result, err := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Backend string         `json:"backend"`
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatal(err)
	}
	if out.Backend != "brave" || len(out.Results) != 1 {
		t.Fatalf("out = %+v", out)
	}
	if out.Results[0].Snippet != "A match ." && out.Results[0].Snippet != "A match." {
		t.Errorf("snippet = %q", out.Results[0].Snippet)
	}
}

func TestDecodeDDGURL(t *testing.T) {
	got := decodeDDGURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&rut=abc")
	if got != "https://go.dev/" {
		t.Errorf("decoded = %q", got)
	}
	if got := decodeDDGURL("https://plain.example/"); got != "https://plain.example/" {
		t.Errorf("plain URL changed: %q", got)
	}
}
