package synthesis

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/source"
)

// Evidence is one numbered item of the context bundle.
type Evidence struct {
	// Index is the 1-based citation number.
	Index int
	Item  source.Item
}

// Request is what the generator sees. An empty Evidence slice means a direct answer.
type Request struct {
	Question string
	History  []conversation.Turn
	Evidence []Evidence
	// Notes carry retrieval caveats the answer should mention.
	Notes []string
}

// Generation is the generator's reply. Citations are evidence indexes.
type Generation struct {
	Text      string
	Citations []int
}

// Generator drafts answer prose.
type Generator interface {
	Generate(ctx context.Context, req Request) (Generation, error)
}
