package synthesis

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/answer"
	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/toolresult"
	"github.com/kailas-cloud/askdex/internal/logger"
)

// DegradedText is returned when every selected tool failed.
const DegradedText = "I couldn't retrieve the information needed to answer this question: " +
	"all data sources failed or timed out. Please try again in a moment."

// degradedNote is attached to answers built from partial retrieval.
const degradedNote = "Some data sources were unavailable; this answer may be incomplete."

// Service composes the final answer from tool results.
type Service struct {
	gen Generator
}

// New creates a synthesizer.
func New(gen Generator) *Service {
	return &Service{gen: gen}
}

// Compose builds the answer for q. history is optional conversation context.
// The only error it returns wraps domain.ErrGenerationFailed.
func (s *Service) Compose(
	ctx context.Context, q query.Query, results []toolresult.Result, history ...conversation.Turn,
) (answer.Answer, error) {
	if len(results) == 0 {
		return s.direct(ctx, q, history)
	}

	failed := failedTools(results)
	if toolresult.AllFailed(results) {
		logger.FromContext(ctx).Warn("All tools failed, returning degraded answer",
			zap.Strings("failed_tools", failed))
		return answer.Answer{
			Text:        DegradedText,
			Mode:        answer.ModeDegraded,
			Citations:   []answer.Citation{},
			FailedTools: failed,
			Notes:       []string{degradedNote},
		}, nil
	}

	bundle := buildBundle(results)
	var notes []string
	if len(failed) > 0 {
		notes = append(notes, degradedNote)
	}

	gen, err := s.gen.Generate(ctx, Request{
		Question: q.Text(),
		History:  history,
		Evidence: bundle,
		Notes:    notes,
	})
	if err != nil {
		return answer.Answer{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	return answer.Answer{
		Text:        strings.TrimSpace(gen.Text),
		Mode:        answer.ModeRetrieval,
		Citations:   citations(bundle, gen.Citations),
		FailedTools: failed,
		Notes:       notes,
	}, nil
}

func (s *Service) direct(ctx context.Context, q query.Query, history []conversation.Turn) (answer.Answer, error) {
	gen, err := s.gen.Generate(ctx, Request{Question: q.Text(), History: history})
	if err != nil {
		return answer.Answer{}, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	return answer.Answer{
		Text:      strings.TrimSpace(gen.Text),
		Mode:      answer.ModeDirect,
		Citations: []answer.Citation{},
	}, nil
}

// buildBundle numbers Ok items grouped by source type. Types appear in the
// order the plan first produced them; within a type, tools keep plan order and
// items keep rank order.
func buildBundle(results []toolresult.Result) []Evidence {
	var types []source.Type
	for _, r := range results {
		if !r.IsOk() {
			continue
		}
		for _, it := range r.Items() {
			if !slices.Contains(types, it.Type) {
				types = append(types, it.Type)
			}
		}
	}

	var bundle []Evidence
	for _, typ := range types {
		for _, r := range results {
			if !r.IsOk() {
				continue
			}
			for _, it := range r.Items() {
				if it.Type == typ {
					bundle = append(bundle, Evidence{Index: len(bundle) + 1, Item: it})
				}
			}
		}
	}
	return bundle
}

// citations keeps valid, distinct indexes and returns them in bundle order.
func citations(bundle []Evidence, indexes []int) []answer.Citation {
	valid := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		if i >= 1 && i <= len(bundle) {
			valid[i] = true
		}
	}
	out := make([]answer.Citation, 0, len(valid))
	for _, ev := range bundle {
		if !valid[ev.Index] {
			continue
		}
		out = append(out, answer.Citation{
			Index:    ev.Index,
			ItemID:   ev.Item.ID,
			Type:     ev.Item.Type,
			Title:    ev.Item.Title,
			Location: ev.Item.Location,
		})
	}
	return out
}

func failedTools(results []toolresult.Result) []string {
	var out []string
	for _, r := range results {
		if !r.IsOk() {
			out = append(out, string(r.Tool()))
		}
	}
	return out
}
