package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/db"
	"github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/usecase/fusion"
)

// Hash fields of an indexed document chunk.
const (
	FieldContent     = "content"
	FieldTitle       = "title"
	FieldPath        = "path"
	FieldPublishedAt = "published_at" // unix seconds
	FieldVector      = "vector"
)

var (
	returnFields = []string{FieldContent, FieldTitle, FieldPath, FieldPublishedAt}
	textFields   = []string{FieldContent, FieldTitle}
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Schema describes the document index.
type Schema struct {
	Index          string
	Prefix         string
	Dimensions     int
	M              int
	EFConstruction int
}

// Repo reads document chunks from the FT index.
// It serves both the keyword and the vector side of document search.
type Repo struct {
	store  store
	schema Schema
}

// New creates a search repository.
func New(s store, schema Schema) *Repo {
	return &Repo{store: s, schema: schema}
}

// Definition returns the FT index definition for the schema.
func (r *Repo) Definition() (*db.IndexDefinition, error) {
	return db.NewIndex(r.schema.Index).
		Prefix(r.schema.Prefix).
		Text(FieldContent, 1).
		Text(FieldTitle, 2).
		Tag(FieldPath).
		Numeric(FieldPublishedAt, true).
		Vector(FieldVector, db.HNSW{
			Dim:            r.schema.Dimensions,
			Distance:       db.DistanceCosine,
			M:              r.schema.M,
			EFConstruction: r.schema.EFConstruction,
		}).
		Build()
}

// EnsureIndex creates the document index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	log := logger.FromContext(ctx).With(zap.String("index", r.schema.Index))

	exists, err := r.store.IndexExists(ctx, r.schema.Index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.schema.Index, err)
	}
	if exists {
		log.Debug("Document index already present")
		return nil
	}

	def, err := r.Definition()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", r.schema.Index, err)
	}
	log.Info("Document index created", zap.Int("dimensions", r.schema.Dimensions))
	return nil
}

// SearchTerms runs BM25 keyword search over chunk content and titles.
func (r *Repo) SearchTerms(ctx context.Context, text string, limit int) ([]fusion.Hit, error) {
	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    r.schema.Index,
		Fields:       textFields,
		Query:        text,
		TopK:         limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search bm25 %s: %w", r.schema.Index, err)
	}
	return r.toHits(sr), nil
}

// SearchVector runs KNN search with similarity scores in [0,1].
func (r *Repo) SearchVector(ctx context.Context, vector []float32, limit int) ([]fusion.Hit, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.schema.Index,
		Field:        FieldVector,
		Vector:       vector,
		K:            limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.schema.Index, err)
	}
	return r.toHits(sr), nil
}

func (r *Repo) toHits(sr *db.SearchResult) []fusion.Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return []fusion.Hit{}
	}
	hits := make([]fusion.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, fusion.Hit{
			ID:    strings.TrimPrefix(e.Key, r.schema.Prefix),
			Score: e.Score,
			Date:  parsePublishedAt(e.Fields[FieldPublishedAt]),
			Text:  e.Fields[FieldContent],
			Path:  e.Fields[FieldPath],
			Title: e.Fields[FieldTitle],
		})
	}
	return hits
}

// parsePublishedAt accepts unix seconds, RFC 3339 or a bare date.
func parsePublishedAt(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		t := time.Unix(int64(secs), 0).UTC()
		return &t
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
