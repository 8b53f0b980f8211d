package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/usecase/tools/web"
)

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 5
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 2
)

// Config holds the web search API settings.
type Config struct {
	BaseURL    string
	APIKey     string
	MaxResults int
	// Depth is the provider search depth, "basic" or "advanced".
	Depth   string
	Timeout time.Duration
	Retries int
}

// Client queries a Tavily-compatible search API.
type Client struct {
	http       *resty.Client
	maxResults int
	depth      string
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth,omitempty"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type errorResponse struct {
	Detail any    `json:"detail"`
	Error  string `json:"error"`
}

// New creates a web search client.
func New(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("web search api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultRetries
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey).
		SetRetryCount(retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition)

	return &Client{http: client, maxResults: maxResults, depth: cfg.Depth}, nil
}

// Search implements web.Searcher.
func (c *Client) Search(ctx context.Context, phrase string) ([]web.Hit, error) {
	var out searchResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(searchRequest{Query: phrase, MaxResults: c.maxResults, SearchDepth: c.depth}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("web search request: %w: %w", domain.ErrSearchProviderError, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("web search API error %d: %s: %w",
			resp.StatusCode(), apiErr.message(resp), domain.ErrSearchProviderError)
	}

	hits := make([]web.Hit, 0, len(out.Results))
	for _, r := range out.Results {
		if r.URL == "" {
			continue
		}
		hits = append(hits, web.Hit{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Score:       r.Score,
			PublishedAt: parsePublished(r.PublishedDate),
		})
	}
	logger.FromContext(ctx).Debug("Web search finished",
		zap.String("phrase", phrase),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}

func (e errorResponse) message(resp *resty.Response) string {
	switch d := e.Detail.(type) {
	case string:
		if d != "" {
			return d
		}
	case map[string]any:
		if s, ok := d["error"].(string); ok && s != "" {
			return s
		}
	}
	if e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(resp.String())
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

var publishedLayouts = []string{
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// parsePublished accepts the date formats search providers emit; unknown formats yield nil.
func parsePublished(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
