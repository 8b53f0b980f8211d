package orchestrator

import (
	"context"

	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
)

// Tool is a retrieval capability the orchestrator can schedule.
type Tool interface {
	Descriptor() tool.Descriptor
	Invoke(ctx context.Context, q query.Query, params tool.Params) ([]source.Item, error)
}
