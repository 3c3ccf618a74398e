package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/waysongjiang/pyopencode/internal/webcache"
	"golang.org/x/net/html"
)

// --- webfetch ---

// WebFetchTool fetches a URL and returns its content as cleaned text (HTML
// stripped to visible text), backed by a SQLite cache keyed on URL.
type WebFetchTool struct {
	Cache  *webcache.Cache
	client *http.Client
}

func NewWebFetchTool(cache *webcache.Cache) *WebFetchTool {
	return &WebFetchTool{Cache: cache, client: &http.Client{Timeout: 15 * time.Second}}
}

type webFetchArgs struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars,omitempty"`
}

const defaultFetchMaxChars = 10000

func (t *WebFetchTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "webfetch",
		Description: "Fetch a URL and return its content as cleaned text (HTML tags, scripts, and styles stripped). Results are cached.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"url":       {"type": "string", "description": "The URL to fetch."},
				"max_chars": {"type": "integer", "description": "Maximum characters to return. Default 10000."}
			},
			"required": ["url"]
		}`),
		Class: "read",
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a webFetchArgs
	if err := unmarshalArgs("webfetch", args, &a); err != nil {
		return "", err
	}
	if a.URL == "" {
		return "", fmt.Errorf("webfetch: url is required")
	}
	if a.MaxChars <= 0 {
		a.MaxChars = defaultFetchMaxChars
	}

	if t.Cache != nil {
		if cached, ok := t.Cache.GetFetch(a.URL); ok {
			log.Debug().Str("url", a.URL).Msg("webfetch cache hit")
			return truncate(cached, a.MaxChars), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", fmt.Errorf("webfetch: bad url: %w", err)
	}
	req.Header.Set("User-Agent", "pyopencode/0.1")
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webfetch: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("webfetch: http %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("webfetch: read failed: %w", err)
	}

	var text string
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		text = extractText(body)
	} else {
		text = string(body)
	}

	if t.Cache != nil {
		t.Cache.SetFetch(a.URL, text)
	}
	return truncate(text, a.MaxChars), nil
}

// --- websearch ---

// WebSearchTool searches the web via Exa AI, gated on a configured API key.
// Registered only when a key is present in credentials.
type WebSearchTool struct {
	Cache    *webcache.Cache
	APIKey   string
	Endpoint string
	client   *http.Client
}

const exaDefaultEndpoint = "https://api.exa.ai/search"

func NewWebSearchTool(cache *webcache.Cache, apiKey, endpoint string) *WebSearchTool {
	if endpoint == "" {
		endpoint = exaDefaultEndpoint
	}
	return &WebSearchTool{Cache: cache, APIKey: apiKey, Endpoint: endpoint, client: &http.Client{Timeout: 15 * time.Second}}
}

type webSearchArgs struct {
	Query          string   `json:"query"`
	NumResults     int      `json:"num_results,omitempty"`
	Type           string   `json:"type,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type exaSearchRequest struct {
	Query          string            `json:"query"`
	Type           string            `json:"type"`
	NumResults     int               `json:"numResults"`
	Contents       exaSearchContents `json:"contents"`
	IncludeDomains []string          `json:"includeDomains,omitempty"`
}

type exaSearchContents struct {
	Text exaTextOptions `json:"text"`
}

type exaTextOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaSearchResponse struct {
	Results []exaResult `json:"results"`
}

type exaResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Text          string `json:"text"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

func (t *WebSearchTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        "websearch",
		Description: "Search the web using Exa AI. Use this to look up documentation, APIs, libraries, or current information. Results are cached.",
		Parameters: rawSchema(`{
			"type": "object",
			"properties": {
				"query":           {"type": "string", "description": "Search query."},
				"num_results":     {"type": "integer", "description": "Number of results to return. Default 5."},
				"type":            {"type": "string", "description": "Search type.", "enum": ["auto", "fast", "deep"]},
				"include_domains": {"type": "array", "items": {"type": "string"}, "description": "Only include results from these domains."}
			},
			"required": ["query"]
		}`),
		Class: "read",
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, tc Context, args Value) (string, error) {
	var a webSearchArgs
	if err := unmarshalArgs("websearch", args, &a); err != nil {
		return "", err
	}
	if a.Query == "" {
		return "", fmt.Errorf("websearch: query is required")
	}
	if t.APIKey == "" {
		return "", fmt.Errorf("websearch: Exa AI API key not configured (providers.exa_ai.api_key in credentials.json)")
	}
	if a.NumResults <= 0 {
		a.NumResults = 5
	}
	if a.Type == "" {
		a.Type = "auto"
	}

	exactKey := fmt.Sprintf("%s|n=%d|t=%s|d=%s", a.Query, a.NumResults, a.Type, strings.Join(a.IncludeDomains, ","))
	if t.Cache != nil {
		if cached, ok := t.Cache.GetSearch(exactKey); ok {
			log.Debug().Str("query", a.Query).Msg("websearch cache hit")
			return cached, nil
		}
	}

	body := exaSearchRequest{
		Query:      a.Query,
		Type:       a.Type,
		NumResults: a.NumResults,
		Contents:   exaSearchContents{Text: exaTextOptions{MaxCharacters: 2000}},
		IncludeDomains: a.IncludeDomains,
	}
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("websearch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return "", fmt.Errorf("websearch: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", t.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("websearch: search failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("websearch: read response failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("websearch: exa api error %d: %s", resp.StatusCode, string(respBody))
	}

	var exaResp exaSearchResponse
	if err := json.Unmarshal(respBody, &exaResp); err != nil {
		return "", fmt.Errorf("websearch: parse response failed: %w", err)
	}

	result := formatSearchResults(exaResp.Results)
	if t.Cache != nil {
		t.Cache.SetSearch(exactKey, result)
	}
	return result, nil
}

func formatSearchResults(results []exaResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n--- %d. %s ---\n", i+1, r.Title)
		fmt.Fprintf(&b, "URL: %s\n", r.URL)
		if r.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", r.PublishedDate)
		}
		if r.Text != "" {
			b.WriteString(r.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func isSkipTag(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}

// extractText parses HTML and returns visible text content, stripping
// script/style/noscript elements.
func extractText(data []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skip := 0

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return collapseWhitespace(b.String())
		}
		tn, _ := tokenizer.TagName()
		tag := string(tn)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if isSkipTag(tag) {
				skip++
			}
			if isBlockElement(tag) && b.Len() > 0 {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			if isSkipTag(tag) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "td", "th", "blockquote", "pre", "hr",
		"header", "footer", "section", "article", "nav", "main":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			if blanks <= 1 {
				out = append(out, "")
			}
			continue
		}
		blanks = 0
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "\n\n[truncated]"
}
