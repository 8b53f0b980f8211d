package agent

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain/answer"
	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/plan"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/selection"
	"github.com/kailas-cloud/askdex/internal/domain/toolresult"
)

// Router picks tools for a query.
type Router interface {
	Decide(ctx context.Context, q query.Query, history ...conversation.Turn) (selection.Selection, error)
}

// Orchestrator plans and runs tools.
type Orchestrator interface {
	Plan(sel selection.Selection) plan.Plan
	Run(ctx context.Context, q query.Query, p plan.Plan) []toolresult.Result
}

// Synthesizer composes the final answer.
type Synthesizer interface {
	Compose(
		ctx context.Context, q query.Query, results []toolresult.Result, history ...conversation.Turn,
	) (answer.Answer, error)
}

// HistoryStore persists conversation turns.
type HistoryStore interface {
	Load(ctx context.Context, conversationID string, limit int) ([]conversation.Turn, error)
	Append(ctx context.Context, conversationID string, turns ...conversation.Turn) error
}
