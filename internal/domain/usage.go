package domain

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// Usage collects token consumption for a single answer.
// Tools run concurrently, so counters are atomic.
type Usage struct {
	embeddingTokens atomic.Int64
	llmTokens       atomic.Int64
}

// NewContextWithUsage returns a context with an attached usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbeddingTokens records tokens spent on query embeddings.
func (u *Usage) AddEmbeddingTokens(n int) {
	if u != nil {
		u.embeddingTokens.Add(int64(n))
	}
}

// AddLLMTokens records tokens spent on chat completions.
func (u *Usage) AddLLMTokens(n int) {
	if u != nil {
		u.llmTokens.Add(int64(n))
	}
}

// EmbeddingTokens returns the embedding token total.
func (u *Usage) EmbeddingTokens() int64 {
	if u == nil {
		return 0
	}
	return u.embeddingTokens.Load()
}

// LLMTokens returns the chat completion token total.
func (u *Usage) LLMTokens() int64 {
	if u == nil {
		return 0
	}
	return u.llmTokens.Load()
}
