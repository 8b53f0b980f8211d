package router

import (
	"context"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/selection"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
)

// DecisionRequest is everything the decision service sees for one query.
type DecisionRequest struct {
	Question string
	History  []conversation.Turn
	Tools    []tool.Descriptor
	Today    time.Time
}

// DecisionService picks tools for a question. Errors wrap domain.ErrDecisionUnavailable.
type DecisionService interface {
	Classify(ctx context.Context, req DecisionRequest) ([]selection.Candidate, error)
}

// DateExtractor resolves temporal language in a question into a date range.
// A nil range with no error means the text has no usable time reference.
type DateExtractor interface {
	ExtractRange(ctx context.Context, text string, today time.Time) (*query.DateRange, error)
}
