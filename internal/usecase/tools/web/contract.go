package web

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain/source"
)

// Reformulator rewrites a question into up to n search-engine phrasings.
type Reformulator interface {
	Reformulate(ctx context.Context, text string, n int) ([]string, error)
}

// Searcher queries a public web search API.
type Searcher interface {
	Search(ctx context.Context, phrase string) ([]Hit, error)
}

// Summarizer condenses deduplicated hits into answer-ready items.
type Summarizer interface {
	Organize(ctx context.Context, question string, hits []Hit) ([]source.Item, error)
}
