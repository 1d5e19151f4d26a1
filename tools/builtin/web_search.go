package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// WebSearchTool queries the DuckDuckGo HTML endpoint and returns a
// short result list. No API key is required.
type WebSearchTool struct {
	BaseURL    string
	Timeout    time.Duration
	MaxResults int
	UserAgent  string
}

func NewWebSearchTool(baseURL string, timeout time.Duration, maxResults int) *WebSearchTool {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://duckduckgo.com/html/"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearchTool{
		BaseURL:    baseURL,
		Timeout:    timeout,
		MaxResults: maxResults,
		UserAgent:  "rugpt/1.0",
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for a query and return a list of results with title and url."
}

func (t *WebSearchTool) ParameterSchema() string {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query.",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Optional max results to return.",
			},
		},
		"required": []string{"query"},
	}
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

type searchHit struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	query := paramString(params, "query")
	if query == "" {
		return "", fmt.Errorf("missing required param: query")
	}
	maxResults := parseIntDefault(params["max_results"], t.MaxResults)
	if maxResults <= 0 || maxResults > 20 {
		maxResults = t.MaxResults
	}

	base, err := url.Parse(t.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	q := base.Query()
	q.Set("q", query)
	base.RawQuery = q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", t.UserAgent)

	resp, err := (&http.Client{Timeout: t.Timeout}).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("web_search status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}

	hits := parseSearchResults(body, maxResults)
	b, _ := json.MarshalIndent(map[string]any{
		"query":   query,
		"count":   len(hits),
		"results": hits,
	}, "", "  ")
	return string(b), nil
}

// parseSearchResults pulls <a class="result__a"> anchors out of the
// DuckDuckGo HTML response.
func parseSearchResults(page []byte, max int) []searchHit {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil
	}

	hits := make([]searchHit, 0, max)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil || len(hits) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && nodeHasClass(n, "result__a") {
			href := nodeAttr(n, "href")
			title := strings.Join(strings.Fields(nodeText(n)), " ")
			if href != "" && title != "" {
				hits = append(hits, searchHit{Title: title, URL: cleanResultURL(href)})
			}
		}
		for c := n.FirstChild; c != nil && len(hits) < max; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return hits
}

// cleanResultURL unwraps DuckDuckGo redirect links of the form
// /l/?uddg=<encoded target>.
func cleanResultURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.Path == "/l/" {
		if target := u.Query().Get("uddg"); target != "" {
			if decoded, err := url.QueryUnescape(target); err == nil && decoded != "" {
				return decoded
			}
		}
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func nodeHasClass(n *html.Node, want string) bool {
	for _, part := range strings.Fields(nodeAttr(n, "class")) {
		if part == want {
			return true
		}
	}
	return false
}

func nodeAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		if x == nil {
			return
		}
		if x.Type == html.TextNode {
			b.WriteString(x.Data)
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
