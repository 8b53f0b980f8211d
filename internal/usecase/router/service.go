package router

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/selection"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
	"github.com/kailas-cloud/askdex/internal/logger"
)

// Options tune the router. Zero durations fall back to defaults.
type Options struct {
	DecisionTimeout time.Duration
	DateTimeout     time.Duration
	// MinConfidence drops calls below it. 0 keeps every selected tool.
	MinConfidence float64
}

// DefaultOptions returns a 20s decision budget, a 10s date budget and no confidence gate.
func DefaultOptions() Options {
	return Options{DecisionTimeout: 20 * time.Second, DateTimeout: 10 * time.Second}
}

// Service turns a query into a validated tool selection.
type Service struct {
	decider   DecisionService
	extractor DateExtractor
	tools     []tool.Descriptor
	known     map[tool.Name]struct{}
	validator *paramValidator
	opts      Options
	now       func() time.Time
}

// New creates a router over the given tool descriptors. extractor can be nil.
func New(decider DecisionService, extractor DateExtractor, tools []tool.Descriptor) (*Service, error) {
	v, err := newParamValidator(tools)
	if err != nil {
		return nil, fmt.Errorf("build param validator: %w", err)
	}
	known := make(map[tool.Name]struct{}, len(tools))
	for _, d := range tools {
		known[d.Name] = struct{}{}
	}
	return &Service{
		decider:   decider,
		extractor: extractor,
		tools:     tools,
		known:     known,
		validator: v,
		opts:      DefaultOptions(),
		now:       time.Now,
	}, nil
}

// WithOptions overrides router options.
func (s *Service) WithOptions(o Options) *Service {
	if o.DecisionTimeout <= 0 {
		o.DecisionTimeout = DefaultOptions().DecisionTimeout
	}
	if o.DateTimeout <= 0 {
		o.DateTimeout = DefaultOptions().DateTimeout
	}
	s.opts = o
	return s
}

// WithClock overrides the time source passed to the decision service.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Decide asks the decision service which tools to run.
// Any decision failure yields an empty selection (direct answer). An error is
// returned only when ctx itself is done.
func (s *Service) Decide(
	ctx context.Context, q query.Query, history ...conversation.Turn,
) (selection.Selection, error) {
	if err := ctx.Err(); err != nil {
		return selection.Selection{}, fmt.Errorf("decide: %w", err)
	}
	log := logger.FromContext(ctx)
	today := s.now().UTC()

	dctx, cancel := context.WithTimeout(ctx, s.opts.DecisionTimeout)
	candidates, err := s.decider.Classify(dctx, DecisionRequest{
		Question: q.Text(),
		History:  history,
		Tools:    s.tools,
		Today:    today,
	})
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return selection.Selection{}, fmt.Errorf("decide: %w", ctxErr)
		}
		log.Warn("Decision unavailable, answering directly", zap.Error(err))
		return selection.Empty(""), nil
	}

	calls, reasoning := s.accept(ctx, candidates)

	for i := range calls {
		if calls[i].Tool == tool.Document {
			calls[i].Params = s.attachDateRange(ctx, q, calls[i].Params, today)
		}
	}

	sel := selection.New(calls, reasoning)
	log.Info("Tools selected",
		zap.Strings("tools", callNames(calls)),
		zap.String("reasoning", reasoning),
	)
	return sel, nil
}

// accept filters raw candidates: unknown tools and duplicates are dropped,
// confidence is clamped and invalid params are reset to tool defaults.
func (s *Service) accept(ctx context.Context, candidates []selection.Candidate) ([]selection.Call, string) {
	log := logger.FromContext(ctx)
	seen := make(map[tool.Name]struct{}, len(candidates))
	calls := make([]selection.Call, 0, len(candidates))
	var reasons []string

	for _, c := range candidates {
		name := tool.Name(strings.TrimSpace(c.Tool))
		if _, ok := s.known[name]; !ok {
			log.Warn("Dropping unknown tool from decision", zap.String("tool", c.Tool))
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		conf := clampConfidence(c.Confidence)
		if s.opts.MinConfidence > 0 && conf < s.opts.MinConfidence {
			log.Info("Dropping low-confidence tool",
				zap.String("tool", string(name)),
				zap.Float64("confidence", conf),
			)
			continue
		}

		params := tool.Params(c.Params).Clone()
		if err := s.validator.Validate(name, c.Params); err != nil {
			log.Warn("Invalid tool params, using defaults",
				zap.String("tool", string(name)),
				zap.Error(err),
			)
			params = tool.Params{}
		}
		if params == nil {
			params = tool.Params{}
		}

		calls = append(calls, selection.Call{Tool: name, Confidence: conf, Params: params})
		if r := strings.TrimSpace(c.Reasoning); r != "" {
			reasons = append(reasons, r)
		}
	}
	return calls, strings.Join(reasons, " ")
}

// attachDateRange sets date_range on document params: an explicit query range
// wins, then a valid range from the decision, then extraction from temporal language.
func (s *Service) attachDateRange(
	ctx context.Context, q query.Query, params tool.Params, today time.Time,
) tool.Params {
	if r := q.DateRange(); r != nil {
		return params.WithDateRange(*r)
	}
	if r, err := params.DateRange(); err == nil && r != nil {
		return params
	} else if err != nil {
		delete(params, tool.ParamDateRange)
	}

	if s.extractor == nil || !hasTemporalLanguage(q.Text()) {
		return params
	}

	log := logger.FromContext(ctx)
	ectx, cancel := context.WithTimeout(ctx, s.opts.DateTimeout)
	defer cancel()

	r, err := s.extractor.ExtractRange(ectx, q.Text(), today)
	if err != nil {
		log.Warn("Date extraction failed, searching without date filter", zap.Error(err))
		return params
	}
	if r == nil {
		return params
	}
	valid, err := query.NewDateRange(r.Start, r.End)
	if err != nil {
		log.Warn("Extracted date range is invalid, ignoring", zap.Error(err))
		return params
	}
	log.Debug("Date range extracted", zap.String("date_range", valid.String()))
	return params.WithDateRange(valid)
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

func callNames(calls []selection.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = string(c.Tool)
	}
	return out
}
