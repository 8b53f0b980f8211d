package chi

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain/answer"
	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
)

// Answerer produces answers and exposes conversation history.
type Answerer interface {
	Answer(ctx context.Context, q query.Query) (answer.Answer, error)
	History(ctx context.Context, conversationID string) ([]conversation.Turn, error)
}

// HealthChecker aggregates component checks.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
