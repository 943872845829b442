// Package arxiv queries the arXiv Atom API for paper metadata.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config tunes the arXiv API client.
type Config struct {
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	MaxResults int           `yaml:"max_results" json:"max_results"`
	SortBy     string        `yaml:"sort_by" json:"sort_by"`       // relevance, lastUpdatedDate, submittedDate
	SortOrder  string        `yaml:"sort_order" json:"sort_order"` // ascending, descending
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	RetryCount int           `yaml:"retry_count" json:"retry_count"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RequestsPer spaces successive API calls; arXiv asks for one request
	// every three seconds.
	RequestsPer time.Duration `yaml:"requests_per" json:"requests_per"`
	Categories  []string      `yaml:"categories" json:"categories"`
}

// DefaultConfig returns defaults that respect arXiv's usage guidance.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://export.arxiv.org/api/query",
		MaxResults:  25,
		SortBy:      "relevance",
		SortOrder:   "descending",
		Timeout:     30 * time.Second,
		RetryCount:  3,
		RetryDelay:  2 * time.Second,
		RequestsPer: 3 * time.Second,
	}
}

// Paper is one arXiv search result.
type Paper struct {
	ArxivID     string    `json:"arxiv_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Authors     []string  `json:"authors"`
	Categories  []string  `json:"categories"`
	Published   time.Time `json:"published"`
	Updated     time.Time `json:"updated"`
	PDFURL      string    `json:"pdf_url"`
	AbstractURL string    `json:"abstract_url"`
	DOI         string    `json:"doi,omitempty"`
	Comment     string    `json:"comment,omitempty"`
}

// Client talks to the arXiv API with rate limiting and retries.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates an arXiv API client.
func NewClient(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RequestsPer <= 0 {
		config.RequestsPer = 3 * time.Second
	}
	return &Client{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Every(config.RequestsPer), 1),
		logger:  logger.With(zap.String("component", "arxiv")),
	}
}

// Name returns the source name.
func (c *Client) Name() string { return "arxiv" }

// Search queries arXiv for papers matching query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	params := url.Values{
		"search_query": {c.buildQuery(query)},
		"start":        {"0"},
		"max_results":  {fmt.Sprintf("%d", maxResults)},
		"sortBy":       {c.config.SortBy},
		"sortOrder":    {c.config.SortOrder},
	}
	requestURL := fmt.Sprintf("%s?%s", c.config.BaseURL, params.Encode())

	c.logger.Info("querying arXiv",
		zap.String("query", query),
		zap.Int("max_results", maxResults),
	)

	var body []byte
	var err error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
			c.logger.Debug("retrying arXiv query", zap.Int("attempt", attempt))
		}

		body, err = c.doRequest(ctx, requestURL)
		if err == nil {
			break
		}
		c.logger.Warn("arXiv request failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		return nil, fmt.Errorf("arXiv query failed after %d retries: %w", c.config.RetryCount, err)
	}

	papers, err := parseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("parse arXiv response: %w", err)
	}

	c.logger.Info("arXiv search completed",
		zap.String("query", query),
		zap.Int("results", len(papers)),
	)
	return papers, nil
}

// GetByID fetches metadata for specific arXiv IDs.
func (c *Client) GetByID(ctx context.Context, arxivIDs []string) ([]Paper, error) {
	if len(arxivIDs) == 0 {
		return nil, nil
	}

	params := url.Values{
		"id_list":     {strings.Join(arxivIDs, ",")},
		"max_results": {fmt.Sprintf("%d", len(arxivIDs))},
	}
	requestURL := fmt.Sprintf("%s?%s", c.config.BaseURL, params.Encode())

	body, err := c.doRequest(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("arXiv id lookup failed: %w", err)
	}

	papers, err := parseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("parse arXiv response: %w", err)
	}
	return papers, nil
}

func (c *Client) buildQuery(query string) string {
	searchParts := []string{fmt.Sprintf("all:%s", query)}

	if len(c.config.Categories) > 0 {
		catParts := make([]string, len(c.config.Categories))
		for i, cat := range c.config.Categories {
			catParts[i] = fmt.Sprintf("cat:%s", cat)
		}
		searchParts = append(searchParts, fmt.Sprintf("(%s)", strings.Join(catParts, " OR ")))
	}
	return strings.Join(searchParts, " AND ")
}

func (c *Client) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Authors    []atomAuthor   `xml:"author"`
	Links      []atomLink     `xml:"link"`
	Categories []atomCategory `xml:"category"`
	DOI        string         `xml:"doi"`
	Comment    string         `xml:"comment"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

func parseFeed(body []byte) ([]Paper, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("XML parse error: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper := Paper{
			ArxivID: ExtractID(entry.ID),
			Title:   strings.Join(strings.Fields(entry.Title), " "),
			Summary: strings.TrimSpace(entry.Summary),
			DOI:     entry.DOI,
			Comment: entry.Comment,
		}

		for _, author := range entry.Authors {
			paper.Authors = append(paper.Authors, author.Name)
		}
		for _, cat := range entry.Categories {
			paper.Categories = append(paper.Categories, cat.Term)
		}

		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			paper.Published = t
		}
		if t, err := time.Parse(time.RFC3339, entry.Updated); err == nil {
			paper.Updated = t
		}

		for _, link := range entry.Links {
			switch {
			case link.Type == "application/pdf":
				paper.PDFURL = link.Href
			case link.Rel == "alternate":
				paper.AbstractURL = link.Href
			}
		}

		papers = append(papers, paper)
	}
	return papers, nil
}

// ExtractID turns an Atom entry ID like
// "http://arxiv.org/abs/2301.00001v2" into the bare arXiv ID "2301.00001".
func ExtractID(entryID string) string {
	id := entryID
	if idx := strings.LastIndex(id, "/abs/"); idx >= 0 {
		id = id[idx+len("/abs/"):]
	}
	// Strip a trailing version suffix (v1, v12).
	if idx := strings.LastIndex(id, "v"); idx > 0 {
		version := id[idx+1:]
		if version != "" && strings.TrimLeft(version, "0123456789") == "" {
			id = id[:idx]
		}
	}
	return id
}
