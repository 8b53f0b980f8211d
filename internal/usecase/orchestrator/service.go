package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/plan"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/selection"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
	"github.com/kailas-cloud/askdex/internal/domain/toolresult"
	"github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/metrics"
)

// DefaultTimeout bounds a tool invocation when no per-tool deadline is configured.
const DefaultTimeout = 60 * time.Second

// Service schedules tools concurrently and gathers their results in plan order.
type Service struct {
	tools          map[tool.Name]Tool
	order          []tool.Name
	defaultTimeout time.Duration
	toolTimeouts   map[tool.Name]time.Duration
}

// New creates an orchestrator over the given tools. A later tool with the same name wins.
func New(tools ...Tool) *Service {
	s := &Service{
		tools:          make(map[tool.Name]Tool, len(tools)),
		defaultTimeout: DefaultTimeout,
		toolTimeouts:   map[tool.Name]time.Duration{},
	}
	for _, t := range tools {
		name := t.Descriptor().Name
		if _, ok := s.tools[name]; !ok {
			s.order = append(s.order, name)
		}
		s.tools[name] = t
	}
	return s
}

// WithTimeouts sets the default and per-tool deadlines. Non-positive values are ignored.
func (s *Service) WithTimeouts(def time.Duration, perTool map[tool.Name]time.Duration) *Service {
	if def > 0 {
		s.defaultTimeout = def
	}
	for name, d := range perTool {
		if d > 0 {
			s.toolTimeouts[name] = d
		}
	}
	return s
}

// Descriptors lists registered tools in registration order.
func (s *Service) Descriptors() []tool.Descriptor {
	out := make([]tool.Descriptor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].Descriptor())
	}
	return out
}

// Plan turns a selection into an execution plan, one step per call, in selection order.
func (s *Service) Plan(sel selection.Selection) plan.Plan {
	calls := sel.Calls()
	steps := make([]plan.Step, len(calls))
	for i, c := range calls {
		steps[i] = plan.Step{Tool: c.Tool, Params: c.Params, Deadline: s.timeout(c.Tool)}
	}
	return plan.New(steps)
}

func (s *Service) timeout(name tool.Name) time.Duration {
	if d, ok := s.toolTimeouts[name]; ok {
		return d
	}
	return s.defaultTimeout
}

// Run executes every step concurrently and waits for all of them.
// The result slice has one entry per step, in plan order. Run never fails:
// errors, panics and deadlines become Failed or TimedOut results.
func (s *Service) Run(ctx context.Context, q query.Query, p plan.Plan) []toolresult.Result {
	steps := p.Steps()
	results := make([]toolresult.Result, len(steps))
	if len(steps) == 0 {
		return results
	}

	// No WithContext: one tool failing must not cancel its siblings.
	var g errgroup.Group
	for i, step := range steps {
		g.Go(func() error {
			results[i] = s.runStep(ctx, q, step)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type outcome struct {
	items []source.Item
	err   error
}

func (s *Service) runStep(ctx context.Context, q query.Query, step plan.Step) toolresult.Result {
	log := logger.FromContext(ctx).With(zap.String("tool", string(step.Tool)))
	start := time.Now()

	res := s.execute(ctx, q, step, start)

	metrics.ObserveTool(string(step.Tool), string(res.Status()), res.Elapsed())
	fields := []zap.Field{
		zap.String("status", string(res.Status())),
		zap.Duration("elapsed", res.Elapsed()),
		zap.Int("items", len(res.Items())),
	}
	switch res.Status() {
	case toolresult.StatusOk:
		log.Info("Tool finished", fields...)
	case toolresult.StatusTimedOut:
		log.Warn("Tool finished", append(fields, zap.Error(domain.NewToolTimedOut(string(step.Tool))))...)
	default:
		log.Warn("Tool finished", append(fields, zap.String("error", res.Error()))...)
	}
	return res
}

func (s *Service) execute(ctx context.Context, q query.Query, step plan.Step, start time.Time) toolresult.Result {
	t, ok := s.tools[step.Tool]
	if !ok {
		return failed(step, fmt.Errorf("%w: %s", domain.ErrUnknownTool, step.Tool), time.Since(start))
	}

	deadline := step.Deadline
	if deadline <= 0 {
		deadline = s.timeout(step.Tool)
	}
	stepCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Buffered so a late tool never blocks after its result is discarded.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.FromContext(ctx).Error("Tool panicked",
					zap.String("tool", string(step.Tool)),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		items, err := t.Invoke(stepCtx, q, step.Params)
		done <- outcome{items: items, err: err}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return toolresult.TimedOut(step.Tool, elapsed)
			}
			return failed(step, out.err, elapsed)
		}
		return toolresult.Ok(step.Tool, out.items, elapsed)
	case <-stepCtx.Done():
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			return failed(step, fmt.Errorf("request cancelled: %w", ctx.Err()), elapsed)
		}
		return toolresult.TimedOut(step.Tool, elapsed)
	}
}

// failed records cause as a domain.ToolFailedError carrying the tool name.
func failed(step plan.Step, cause error, elapsed time.Duration) toolresult.Result {
	return toolresult.Failed(step.Tool, domain.NewToolFailed(string(step.Tool), cause), elapsed)
}
