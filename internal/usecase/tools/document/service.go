package document

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
	"github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/usecase/fusion"
)

// Limits for the top_k param.
const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// Options tune retrieval. Zero values fall back to defaults.
type Options struct {
	TopK        int
	Alpha       float64
	Overfetch   int
	BoostFloor  float64
	DecayWindow time.Duration
	RerankTopN  int
}

// DefaultOptions returns the standard retrieval options.
func DefaultOptions() Options {
	return Options{
		TopK:        DefaultTopK,
		Alpha:       fusion.DefaultAlpha,
		Overfetch:   3,
		BoostFloor:  fusion.DefaultBoostFloor,
		DecayWindow: fusion.DefaultDecayWindow,
		RerankTopN:  20,
	}
}

// Service searches internal documents with hybrid keyword + vector retrieval.
type Service struct {
	keyword  KeywordIndex
	vector   VectorIndex
	embed    Embedder
	reranker Reranker
	opts     Options
	now      func() time.Time
}

// New creates a document search tool.
func New(keyword KeywordIndex, vector VectorIndex, embed Embedder) *Service {
	return &Service{
		keyword: keyword,
		vector:  vector,
		embed:   embed,
		opts:    DefaultOptions(),
		now:     time.Now,
	}
}

// WithReranker enables the optional reranking stage.
func (s *Service) WithReranker(r Reranker) *Service {
	s.reranker = r
	return s
}

// WithOptions overrides retrieval options.
func (s *Service) WithOptions(o Options) *Service {
	s.opts = o
	return s
}

// WithClock overrides the time source used for recency.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Descriptor advertises the tool to the router.
func (s *Service) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name: tool.Document,
		Description: "Search internal company documents (policies, reports, handbooks, meeting notes). " +
			"Use for questions about internal knowledge. Supports an optional date_range filter.",
		ParamsSchema: paramsSchema,
	}
}

var paramsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		tool.ParamDateRange: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start": map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
				"end":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			},
			"additionalProperties": false,
		},
		tool.ParamTopK:  map[string]any{"type": "integer", "minimum": 1, "maximum": MaxTopK},
		tool.ParamAlpha: map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
	"additionalProperties": false,
}

// Invoke runs hybrid retrieval for q and returns ranked document items.
func (s *Service) Invoke(ctx context.Context, q query.Query, params tool.Params) ([]source.Item, error) {
	topK := clampInt(params.Int(tool.ParamTopK, s.defaultTopK()), 1, MaxTopK)
	alpha := params.Float(tool.ParamAlpha, s.opts.Alpha)
	if alpha < 0 || alpha > 1 {
		alpha = s.opts.Alpha
	}
	dateRange, err := params.DateRange()
	if err != nil {
		logger.FromContext(ctx).Warn("Ignoring invalid date range", zap.Error(err))
		dateRange = nil
	}
	if dateRange == nil {
		dateRange = q.DateRange()
	}

	limit := topK * max(s.opts.Overfetch, 1)
	keywordHits, vectorHits, err := s.retrieve(ctx, q.Text(), limit)
	if err != nil {
		return nil, err
	}

	candidates := fusion.Fuse(keywordHits, vectorHits, fusion.Options{
		Alpha:       alpha,
		DateRange:   dateRange,
		Now:         s.now(),
		BoostFloor:  s.opts.BoostFloor,
		DecayWindow: s.opts.DecayWindow,
	})

	candidates = s.rerank(ctx, q.Text(), candidates, topK)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	logger.FromContext(ctx).Debug("Document search completed",
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("vector_hits", len(vectorHits)),
		zap.Int("results", len(candidates)),
		zap.Float64("alpha", alpha),
		zap.String("date_range", rangeString(dateRange)),
	)

	return toItems(candidates), nil
}

// retrieve runs keyword and vector search in parallel.
func (s *Service) retrieve(ctx context.Context, text string, limit int) (kw, vec []fusion.Hit, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := s.keyword.SearchTerms(gctx, text, limit)
		if err != nil {
			return fmt.Errorf("%w: keyword search: %w", domain.ErrIndexUnreachable, err)
		}
		kw = hits
		return nil
	})

	g.Go(func() error {
		emb, err := s.embed.Embed(gctx, text)
		if err != nil {
			return fmt.Errorf("%w: embed query: %w", domain.ErrIndexUnreachable, err)
		}
		hits, err := s.vector.SearchVector(gctx, emb.Embedding, limit)
		if err != nil {
			return fmt.Errorf("%w: vector search: %w", domain.ErrIndexUnreachable, err)
		}
		vec = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err //nolint:wrapcheck // already wrapped in the goroutines
	}
	return kw, vec, nil
}

// rerank reorders the head of the boosted list. Failures keep the boosted order.
func (s *Service) rerank(ctx context.Context, text string, candidates []fusion.Candidate, topK int) []fusion.Candidate {
	if s.reranker == nil || len(candidates) < 2 {
		return candidates
	}
	n := min(max(s.opts.RerankTopN, topK), len(candidates))
	head := candidates[:n]

	req := make([]RerankCandidate, len(head))
	for i, c := range head {
		req[i] = RerankCandidate{ID: c.DocumentID, Text: c.Text}
	}

	order, err := s.reranker.Rerank(ctx, text, req)
	if err != nil {
		logger.FromContext(ctx).Warn("Rerank failed, keeping fused order", zap.Error(err))
		return candidates
	}
	return append(applyOrder(head, order), candidates[n:]...)
}

// applyOrder puts candidates named in order first, then the rest in their original order.
// Unknown and repeated ids are ignored.
func applyOrder(candidates []fusion.Candidate, order []string) []fusion.Candidate {
	index := make(map[string]int, len(candidates))
	for i, c := range candidates {
		index[c.DocumentID] = i
	}
	used := make([]bool, len(candidates))
	out := make([]fusion.Candidate, 0, len(candidates))
	for _, id := range order {
		i, ok := index[id]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, candidates[i])
	}
	for i, c := range candidates {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}

func toItems(candidates []fusion.Candidate) []source.Item {
	items := make([]source.Item, len(candidates))
	for i, c := range candidates {
		items[i] = source.Item{
			ID:        c.DocumentID,
			Text:      c.Text,
			Type:      source.Document,
			Score:     c.BoostedScore,
			Timestamp: c.Date,
			Location:  c.Path,
			Title:     c.Title,
		}
	}
	return items
}

func (s *Service) defaultTopK() int {
	if s.opts.TopK > 0 {
		return s.opts.TopK
	}
	return DefaultTopK
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func rangeString(r *query.DateRange) string {
	if r == nil {
		return "none"
	}
	return r.String()
}
