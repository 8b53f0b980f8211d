package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
	"github.com/kailas-cloud/askdex/internal/logger"
)

// Service answers from the structured business database. Nothing is retried.
type Service struct {
	translator Translator
	store      QueryStore
}

// New creates a database query tool.
func New(translator Translator, store QueryStore) *Service {
	return &Service{translator: translator, store: store}
}

// Descriptor advertises the tool to the router.
func (s *Service) Descriptor() tool.Descriptor {
	return tool.Descriptor{
		Name: tool.Database,
		Description: "Query the structured business database (sales, orders, customers, inventory, finance). " +
			"Use for numbers, aggregates and lookups of specific records.",
		ParamsSchema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
	}
}

// Invoke translates the question to SQL, runs it and returns one item per row.
func (s *Service) Invoke(ctx context.Context, q query.Query, _ tool.Params) ([]source.Item, error) {
	sql, err := s.translator.Translate(ctx, q.Text())
	if err != nil {
		if errors.Is(err, domain.ErrTranslationFailed) {
			return nil, err //nolint:wrapcheck // already carries the sentinel
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrTranslationFailed, err)
	}

	rows, err := s.store.Execute(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	logger.FromContext(ctx).Debug("Database query completed",
		zap.String("sql", sql),
		zap.Int("rows", len(rows)),
	)

	items := make([]source.Item, 0, len(rows))
	for i, row := range rows {
		text, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
		items = append(items, source.Item{
			ID:       "row-" + strconv.Itoa(i+1),
			Text:     string(text),
			Type:     source.Database,
			Location: sql,
		})
	}
	return items, nil
}
