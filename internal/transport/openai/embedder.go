package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/metrics"
)

// EmbedderConfig holds the embedding provider settings.
// MaxRetries 0 means the default; a negative value disables retries.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Provider   string
	MaxRetries int
	Backoff    time.Duration
}

// Embedder vectorizes query text through an OpenAI-compatible embeddings API.
// Rate limits and server errors are retried with exponential backoff.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	provider   string
	maxRetries uint64
	backoff    time.Duration
}

// NewEmbedder creates an embedding provider. A model is required.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	e := &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		provider:   provider,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
	switch {
	case cfg.MaxRetries < 0:
		e.maxRetries = 0
	case cfg.MaxRetries > 0:
		e.maxRetries = uint64(cfg.MaxRetries)
	}
	if cfg.Backoff > 0 {
		e.backoff = cfg.Backoff
	}
	return e, nil
}

// Embed returns the vector for text. With dimensions configured, a vector of
// another length is rejected since it could never match the index.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}
	model := string(e.model)
	log := logger.FromContext(ctx)

	start := time.Now()
	resp, err := e.create(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		metrics.ObserveEmbeddingRequest(e.provider, model, "error", elapsed)
		metrics.CountEmbeddingError(e.provider, model, "api_error")
		log.Warn("Embedding request failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return domain.EmbeddingResult{}, parseAPIError("embedding", err, domain.ErrEmbeddingProviderError)
	}
	if len(resp.Data) == 0 {
		metrics.ObserveEmbeddingRequest(e.provider, model, "error", elapsed)
		metrics.CountEmbeddingError(e.provider, model, "empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}
	vec := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		metrics.ObserveEmbeddingRequest(e.provider, model, "error", elapsed)
		metrics.CountEmbeddingError(e.provider, model, "dimension_mismatch")
		return domain.EmbeddingResult{}, fmt.Errorf("embedding has %d dimensions, index expects %d: %w",
			len(vec), e.dimensions, domain.ErrEmbeddingProviderError)
	}

	metrics.ObserveEmbeddingRequest(e.provider, model, "success", elapsed)
	metrics.AddEmbeddingTokens(e.provider, model, resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

func (e *Embedder) create(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error) {
	var resp openai.EmbeddingResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, req)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	}
	if e.maxRetries == 0 {
		return resp, call(ctx)
	}
	err := retry.Do(ctx, retry.WithMaxRetries(e.maxRetries, retry.NewExponential(e.backoff)), call)
	return resp, err //nolint:wrapcheck // wrapped by the caller
}

// HealthCheck verifies API availability via ListModels.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
