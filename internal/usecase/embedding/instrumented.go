// Package embedding holds the query-side embedding decorators.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/logger"
)

// DefaultSlowThreshold is the embedding latency above which a call is logged as slow.
const DefaultSlowThreshold = 2 * time.Second

// Instrumented charges embedding tokens to the answer's Usage and logs each
// call with the request logger. Transport metrics live in transport/openai.
type Instrumented struct {
	inner    domain.Embedder
	provider string
	model    string
	slow     time.Duration
	now      func() time.Time
}

// NewInstrumented wraps inner.
func NewInstrumented(inner domain.Embedder, provider, model string) *Instrumented {
	return &Instrumented{
		inner:    inner,
		provider: provider,
		model:    model,
		slow:     DefaultSlowThreshold,
		now:      time.Now,
	}
}

// WithSlowThreshold overrides DefaultSlowThreshold. Non-positive values disable slow logging.
func (p *Instrumented) WithSlowThreshold(d time.Duration) *Instrumented {
	p.slow = d
	return p
}

// Embed delegates to the inner embedder. Cache hits report zero tokens and cost nothing.
func (p *Instrumented) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	log := logger.FromContext(ctx).With(
		zap.String("provider", p.provider),
		zap.String("model", p.model),
	)
	start := p.now()
	result, err := p.inner.Embed(ctx, text)
	elapsed := p.now().Sub(start)

	if err != nil {
		log.Error("Query embedding failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed query: %w", err)
	}

	domain.UsageFromContext(ctx).AddEmbeddingTokens(result.TotalTokens)

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	}
	if p.slow > 0 && elapsed > p.slow {
		log.Warn("Slow query embedding", fields...)
	} else {
		log.Debug("Query embedded", fields...)
	}
	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (p *Instrumented) HealthCheck(ctx context.Context) error {
	hc, ok := p.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health: %w", err)
	}
	return nil
}
