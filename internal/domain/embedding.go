package domain

import (
	"context"
	"fmt"
	"strings"
)

// Embedder turns query text into a vector comparable with the indexed chunk vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker is implemented by collaborators that can probe their upstream.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is a query vector plus the tokens spent producing it.
// Cache hits carry zero tokens.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// InstructionEmbedder prefixes query text with a task instruction, as
// asymmetric retrieval models expect. Chunk vectors are produced at
// ingestion without it.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner. A blank instruction leaves text unchanged.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed embeds instruction+text. Text that already starts with the instruction is not prefixed twice.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	if strings.TrimSpace(e.instruction) != "" && !strings.HasPrefix(text, e.instruction) {
		text = e.instruction + text
	}
	result, err := e.inner.Embed(ctx, text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return result, nil
}

// HealthCheck forwards to the inner embedder when it supports checks.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // pass-through
	}
	return nil
}
