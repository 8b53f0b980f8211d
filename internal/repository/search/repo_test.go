package search

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/kailas-cloud/askdex/internal/db"
)

// --- SearchVector ---

func TestSearchVector_HappyPath(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.IndexName != "askdex:docs" {
			t.Errorf("unexpected index: %s", q.IndexName)
		}
		if q.K != 10 || q.Field != FieldVector {
			t.Errorf("unexpected query: %+v", q)
		}
		if !slices.Equal(q.ReturnFields, returnFields) {
			t.Errorf("unexpected return fields: %v", q.ReturnFields)
		}
		return &db.SearchResult{
			Total: 2,
			Entries: []db.SearchEntry{
				{
					Key:   "askdex:doc:handbook#3",
					Score: 0.877,
					Fields: map[string]string{
						FieldContent:     "Vacation policy",
						FieldTitle:       "Handbook",
						FieldPath:        "hr/handbook.pdf",
						FieldPublishedAt: "1735689600", // 2025-01-01
					},
				},
				{
					Key:    "askdex:doc:memo#1",
					Score:  0.544,
					Fields: map[string]string{FieldContent: "Memo"},
				},
			},
		}, nil
	}

	hits, err := repo.SearchVector(context.Background(), testVector(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	h := hits[0]
	if h.ID != "handbook#3" {
		t.Errorf("expected prefix-stripped id, got %s", h.ID)
	}
	if h.Score != 0.877 {
		t.Errorf("expected score 0.877, got %f", h.Score)
	}
	if h.Text != "Vacation policy" || h.Title != "Handbook" || h.Path != "hr/handbook.pdf" {
		t.Errorf("unexpected fields: %+v", h)
	}
	if h.Date == nil || !h.Date.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date: %v", h.Date)
	}
	if hits[1].Date != nil {
		t.Errorf("expected undated hit, got %v", hits[1].Date)
	}
}

func TestSearchVector_Empty(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{}, nil
	}

	hits, err := repo.SearchVector(context.Background(), testVector(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("expected empty non-nil hits, got %v", hits)
	}
}

func TestSearchVector_Error(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("connection refused")}
	}

	_, err := repo.SearchVector(context.Background(), testVector(), 5)
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected wrapped *db.Error, got %v", err)
	}
}

// --- SearchTerms ---

func TestSearchTerms_HappyPath(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.searchBM25Fn = func(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
		if q.Query != "vacation days" || q.TopK != 15 || !slices.Equal(q.Fields, []string{FieldContent, FieldTitle}) {
			t.Errorf("unexpected query: %+v", q)
		}
		return &db.SearchResult{
			Total: 1,
			Entries: []db.SearchEntry{{
				Key:    "askdex:doc:handbook#3",
				Score:  7.25,
				Fields: map[string]string{FieldContent: "Vacation days", FieldPublishedAt: "2024-06-30"},
			}},
		}, nil
	}

	hits, err := repo.SearchTerms(context.Background(), "vacation days", 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "handbook#3" || hits[0].Score != 7.25 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Date == nil || hits[0].Date.Format(time.DateOnly) != "2024-06-30" {
		t.Errorf("unexpected date: %v", hits[0].Date)
	}
}

func TestSearchTerms_Error(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchBM25Fn = func(context.Context, *db.TextQuery) (*db.SearchResult, error) {
		return nil, errors.New("timeout")
	}
	if _, err := repo.SearchTerms(context.Background(), "x", 5); err == nil {
		t.Fatal("expected error")
	}
}

// --- EnsureIndex ---

func TestEnsureIndex_Creates(t *testing.T) {
	repo, ms := newTestRepo(t)
	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected CreateIndex call")
	}
	if created.Name != "askdex:docs" || !slices.Equal(created.Prefixes, []string{"askdex:doc:"}) {
		t.Errorf("unexpected definition: %+v", created)
	}
	var names []string
	for _, f := range created.Fields {
		names = append(names, f.Name)
	}
	want := []string{FieldContent, FieldTitle, FieldPath, FieldPublishedAt, FieldVector}
	if !slices.Equal(names, want) {
		t.Errorf("fields = %v, want %v", names, want)
	}
}

func TestEnsureIndex_Exists(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error {
		t.Error("CreateIndex must not be called")
		return nil
	}
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_RaceIsTolerated(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists }
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureIndex_Errors(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return false, errors.New("down") }
	if err := repo.EnsureIndex(context.Background()); err == nil {
		t.Error("expected error from IndexExists")
	}

	ms.indexExistsFn = nil
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return errors.New("bad schema") }
	if err := repo.EnsureIndex(context.Background()); err == nil {
		t.Error("expected error from CreateIndex")
	}

	bad := New(ms, Schema{Index: "idx"})
	if err := bad.EnsureIndex(context.Background()); err == nil {
		t.Error("expected error for zero dimensions")
	}
}

func TestParsePublishedAt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1735689600", "2025-01-01"},
		{"1735689600.0", "2025-01-01"},
		{"2024-02-29T23:00:00Z", "2024-02-29"},
		{"2024-02-29", "2024-02-29"},
		{"", ""},
		{"yesterday", ""},
	}
	for _, tc := range tests {
		got := parsePublishedAt(tc.in)
		if tc.want == "" {
			if got != nil {
				t.Errorf("parsePublishedAt(%q) = %v, want nil", tc.in, got)
			}
			continue
		}
		if got == nil || got.Format(time.DateOnly) != tc.want {
			t.Errorf("parsePublishedAt(%q) = %v, want %s", tc.in, got, tc.want)
		}
	}
}
