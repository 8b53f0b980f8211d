package rerank

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
	"github.com/kailas-cloud/askdex/internal/usecase/tools/document"
)

const (
	defaultBaseURL = "https://api.cohere.com"
	defaultModel   = "rerank-v3.5"
	defaultTimeout = 5 * time.Second
)

// Config holds the rerank API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// TopN caps how many ids the API returns; zero returns all.
	TopN    int
	Timeout time.Duration
}

// Client reorders candidates through a Cohere-compatible rerank API.
type Client struct {
	http  *resty.Client
	model string
	topN  int
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// New creates a rerank client.
func New(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("reranker api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)

	return &Client{http: client, model: model, topN: cfg.TopN}, nil
}

// Rerank implements document.Reranker. Ids come back best first; unknown indexes are skipped.
func (c *Client) Rerank(ctx context.Context, query string, candidates []document.RerankCandidate) ([]string, error) {
	if len(candidates) == 0 {
		return []string{}, nil
	}
	docs := make([]string, len(candidates))
	for i, cand := range candidates {
		docs[i] = cand.Text
	}
	topN := c.topN
	if topN > len(candidates) {
		topN = len(candidates)
	}

	var out rerankResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rerankRequest{Model: c.model, Query: query, Documents: docs, TopN: topN}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v2/rerank")
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w: %w", domain.ErrSearchProviderError, err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("rerank API error %d: %s: %w", resp.StatusCode(), msg, domain.ErrSearchProviderError)
	}

	ids := make([]string, 0, len(out.Results))
	seen := make(map[int]struct{}, len(out.Results))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		if _, dup := seen[r.Index]; dup {
			continue
		}
		seen[r.Index] = struct{}{}
		ids = append(ids, candidates[r.Index].ID)
	}
	logger.FromContext(ctx).Debug("Rerank finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(ids)),
	)
	return ids, nil
}

// HealthCheck reports whether the API answers at all; any HTTP status counts as reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/models")
	if err != nil {
		return fmt.Errorf("rerank health: %w", err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("rerank health: status %d", resp.StatusCode())
	}
	return nil
}
