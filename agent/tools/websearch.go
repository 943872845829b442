package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultSearchAPI = "https://api.duckduckgo.com/"

// WebResult is one web_search hit.
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// WebSearchTool queries the DuckDuckGo Instant Answer API. Best effort: the
// workflow treats its failures as a degraded call, never a fatal one.
type WebSearchTool struct {
	apiURL     string
	httpClient *http.Client
	maxResults int
}

// WebSearchOption customizes the web search tool.
type WebSearchOption func(*WebSearchTool)

// WithSearchAPI overrides the search endpoint.
func WithSearchAPI(apiURL string) WebSearchOption {
	return func(t *WebSearchTool) { t.apiURL = apiURL }
}

// WithSearchTimeout overrides the per-request timeout.
func WithSearchTimeout(timeout time.Duration) WebSearchOption {
	return func(t *WebSearchTool) { t.httpClient.Timeout = timeout }
}

// NewWebSearchTool creates the web search tool.
func NewWebSearchTool(opts ...WebSearchOption) *WebSearchTool {
	t := &WebSearchTool{
		apiURL:     defaultSearchAPI,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxResults: 5,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for recent information, news, or updates. " +
		"Use this when the user asks about recent developments, new papers, " +
		"or information that may not be in the local database."
}

func (t *WebSearchTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query for finding web results",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return",
				"default":     t.maxResults,
			},
		},
		"required": []string{"query"},
	}
}

// instantAnswer is the subset of the DuckDuckGo response we read.
type instantAnswer struct {
	Heading        string `json:"Heading"`
	Abstract       string `json:"Abstract"`
	AbstractURL    string `json:"AbstractURL"`
	AbstractSource string `json:"AbstractSource"`
	RelatedTopics  []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (t *WebSearchTool) Execute(ctx context.Context, args Args) (any, error) {
	query := args.String("query", "")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	maxResults := args.Int("max_results", t.maxResults)
	if maxResults <= 0 {
		maxResults = t.maxResults
	}

	params := url.Values{
		"q":           {query},
		"format":      {"json"},
		"no_redirect": {"1"},
		"no_html":     {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed: HTTP %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var results []WebResult
	if answer.Abstract != "" {
		title := answer.Heading
		if title == "" {
			title = "Answer"
		}
		source := answer.AbstractSource
		if source == "" {
			source = "DuckDuckGo"
		}
		results = append(results, WebResult{
			Title:   title,
			Snippet: answer.Abstract,
			URL:     answer.AbstractURL,
			Source:  source,
		})
	}
	for _, topic := range answer.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.Text == "" {
			continue
		}
		title := truncate(topic.Text, 100)
		results = append(results, WebResult{
			Title:   title,
			Snippet: topic.Text,
			URL:     topic.FirstURL,
			Source:  "DuckDuckGo",
		})
	}
	return results, nil
}
