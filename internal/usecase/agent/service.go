package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/answer"
	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/selection"
	"github.com/kailas-cloud/askdex/internal/domain/toolresult"
	"github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/metrics"
)

// DefaultMaxTurns is how many past turns are fed back into routing and generation.
const DefaultMaxTurns = 10

// Service answers questions: route, run tools, synthesize.
type Service struct {
	router   Router
	orch     Orchestrator
	synth    Synthesizer
	history  HistoryStore
	maxTurns int
	now      func() time.Time
}

// New creates the agent.
func New(router Router, orch Orchestrator, synth Synthesizer) *Service {
	return &Service{
		router:   router,
		orch:     orch,
		synth:    synth,
		maxTurns: DefaultMaxTurns,
		now:      time.Now,
	}
}

// WithHistory enables conversation memory. maxTurns <= 0 keeps the default.
func (s *Service) WithHistory(store HistoryStore, maxTurns int) *Service {
	s.history = store
	if maxTurns > 0 {
		s.maxTurns = maxTurns
	}
	return s
}

// Answer produces the final answer for q. A conversation id is assigned when q has none.
// Only a generation failure (domain.ErrGenerationFailed) or a cancelled ctx is an error.
func (s *Service) Answer(ctx context.Context, q query.Query) (answer.Answer, error) {
	if q.ConversationID() == "" {
		q = q.WithConversationID(uuid.NewString())
	}
	ctx, log := logger.With(ctx, zap.String("conversation_id", q.ConversationID()))
	ctx, usage := domain.NewContextWithUsage(ctx)
	start := s.now()

	history := s.loadHistory(ctx, q.ConversationID())

	sel, err := s.router.Decide(ctx, q, history...)
	if err != nil {
		return answer.Answer{}, fmt.Errorf("route: %w", err)
	}

	p := s.orch.Plan(sel)
	results := s.orch.Run(ctx, q, p)

	ans, err := s.synth.Compose(ctx, q, results, history...)
	if err != nil {
		log.Error("Answer generation failed", zap.Error(err))
		return answer.Answer{}, fmt.Errorf("compose: %w", err)
	}

	ans.ConversationID = q.ConversationID()
	ans.Reasoning = sel.Reasoning()
	ans.Tools = toolReports(sel, results)

	metrics.AnswersTotal.WithLabelValues(string(ans.Mode)).Inc()
	log.Info("Answer ready",
		zap.String("mode", string(ans.Mode)),
		zap.Int("tools", len(results)),
		zap.Strings("failed_tools", ans.FailedTools),
		zap.Int("citations", len(ans.Citations)),
		zap.Int64("embedding_tokens", usage.EmbeddingTokens()),
		zap.Int64("llm_tokens", usage.LLMTokens()),
		zap.Duration("elapsed", s.now().Sub(start)),
	)

	s.appendHistory(ctx, q, ans)
	return ans, nil
}

// History returns the stored turns of a conversation.
func (s *Service) History(ctx context.Context, conversationID string) ([]conversation.Turn, error) {
	if s.history == nil {
		return nil, domain.ErrNotFound
	}
	turns, err := s.history.Load(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(turns) == 0 {
		return nil, domain.ErrNotFound
	}
	return turns, nil
}

func (s *Service) loadHistory(ctx context.Context, id string) []conversation.Turn {
	if s.history == nil {
		return nil
	}
	turns, err := s.history.Load(ctx, id, s.maxTurns)
	if err != nil {
		logger.FromContext(ctx).Warn("History load failed, continuing without context", zap.Error(err))
		return nil
	}
	return conversation.Last(turns, s.maxTurns)
}

func (s *Service) appendHistory(ctx context.Context, q query.Query, ans answer.Answer) {
	if s.history == nil {
		return
	}
	now := s.now().UTC()
	err := s.history.Append(ctx, q.ConversationID(),
		conversation.Turn{Role: conversation.RoleUser, Content: q.Text(), At: now},
		conversation.Turn{Role: conversation.RoleAssistant, Content: ans.Text, At: now},
	)
	if err != nil {
		logger.FromContext(ctx).Warn("History append failed", zap.Error(err))
	}
}

func toolReports(sel selection.Selection, results []toolresult.Result) []answer.ToolReport {
	out := make([]answer.ToolReport, len(results))
	for i, r := range results {
		out[i] = answer.ToolReport{
			Name:       string(r.Tool()),
			Confidence: sel.Confidence(r.Tool()),
			Status:     string(r.Status()),
			Elapsed:    r.Elapsed(),
			Items:      len(r.Items()),
		}
	}
	return out
}
