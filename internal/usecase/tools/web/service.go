package web

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
	"github.com/kailas-cloud/askdex/internal/logger"
)

// ErrAllSearchesFailed is returned when no phrasing produced a search response.
var ErrAllSearchesFailed = errors.New("all web searches failed")

// Options tune the web tool. Zero values fall back to defaults.
type Options struct {
	Reformulations int
	MaxParallel    int
	SearchTimeout  time.Duration
}

// DefaultOptions returns three phrasings searched in parallel with a 15s cap each.
func DefaultOptions() Options {
	return Options{Reformulations: 3, MaxParallel: 3, SearchTimeout: 15 * time.Second}
}

// Service answers from public web search.
type Service struct {
	reformulator Reformulator
	searcher     Searcher
	summarizer   Summarizer
	opts         Options
}

// New creates a web search tool. summarizer may be nil.
func New(reformulator Reformulator, searcher Searcher, summarizer Summarizer) *Service {
	return &Service{
		reformulator: reformulator,
		searcher:     searcher,
		summarizer:   summarizer,
		opts:         DefaultOptions(),
	}
}

// WithOptions overrides tool options.
func (s *Service) WithOptions(o Options) *Service {
	s.opts = o
	return s
}

// Descriptor advertises the tool to the router.
func (s *Service) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name: tool.Web,
		Description: "Search the public web for current events, market data, competitors, " +
			"regulations and anything not held internally.",
		ParamsSchema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
	}
}

// Invoke reformulates the question, searches every phrasing and merges the hits.
func (s *Service) Invoke(ctx context.Context, q query.Query, _ tool.Params) ([]source.Item, error) {
	log := logger.FromContext(ctx)

	phrasings := s.phrasings(ctx, q.Text())

	lists, err := s.searchAll(ctx, phrasings)
	if err != nil {
		return nil, err
	}
	hits := Dedupe(lists)

	log.Debug("Web search completed",
		zap.Int("phrasings", len(phrasings)),
		zap.Int("unique_hits", len(hits)),
	)

	if len(hits) == 0 {
		return []source.Item{}, nil
	}

	if s.summarizer != nil {
		items, err := s.summarizer.Organize(ctx, q.Text(), hits)
		if err == nil {
			for i := range items {
				items[i].Type = source.Web
			}
			return items, nil
		}
		log.Warn("Web summarizer failed, returning raw hits", zap.Error(err))
	}

	return hitsToItems(hits), nil
}

// phrasings returns distinct non-blank reformulations, or the original text.
func (s *Service) phrasings(ctx context.Context, text string) []string {
	n := s.opts.Reformulations
	if n <= 0 {
		n = DefaultOptions().Reformulations
	}

	var raw []string
	if s.reformulator != nil {
		var err error
		raw, err = s.reformulator.Reformulate(ctx, text, n)
		if err != nil {
			logger.FromContext(ctx).Warn("Reformulation failed, using original question", zap.Error(err))
			raw = nil
		}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, n)
	for _, p := range raw {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, text)
	}
	return out
}

// searchAll runs one search per phrasing. Individual failures are tolerated;
// the result keeps phrasing order.
func (s *Service) searchAll(ctx context.Context, phrasings []string) ([][]Hit, error) {
	lists := make([][]Hit, len(phrasings))
	errs := make([]error, len(phrasings))

	g := new(errgroup.Group)
	if s.opts.MaxParallel > 0 {
		g.SetLimit(s.opts.MaxParallel)
	}

	for i, phrase := range phrasings {
		g.Go(func() error {
			sctx := ctx
			if s.opts.SearchTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
				defer cancel()
			}
			hits, err := s.searcher.Search(sctx, phrase)
			if err != nil {
				errs[i] = fmt.Errorf("search %q: %w", phrase, err)
				return nil
			}
			lists[i] = hits
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			logger.FromContext(ctx).Warn("Web search failed", zap.Error(err))
		}
	}
	if failed == len(phrasings) {
		return nil, fmt.Errorf("%w: %w", ErrAllSearchesFailed, errors.Join(errs...))
	}
	return lists, nil
}

func hitsToItems(hits []Hit) []source.Item {
	items := make([]source.Item, len(hits))
	for i, h := range hits {
		items[i] = source.Item{
			ID:        NormalizeURL(h.URL),
			Text:      h.Content,
			Type:      source.Web,
			Score:     h.Score,
			Timestamp: h.PublishedAt,
			Location:  h.URL,
			Title:     h.Title,
		}
	}
	return items
}
