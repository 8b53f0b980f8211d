package document

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/usecase/fusion"
)

// KeywordIndex runs full-text (BM25) search over document chunks.
type KeywordIndex interface {
	SearchTerms(ctx context.Context, text string, limit int) ([]fusion.Hit, error)
}

// VectorIndex runs nearest-neighbour search over chunk embeddings.
type VectorIndex interface {
	SearchVector(ctx context.Context, vector []float32, limit int) ([]fusion.Hit, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// RerankCandidate is a document offered to the reranker.
type RerankCandidate struct {
	ID   string
	Text string
}

// Reranker reorders candidates by relevance and returns their ids, best first.
// It may omit candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]string, error)
}
