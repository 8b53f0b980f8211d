package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/source"
)

type mockTranslator struct {
	sql   string
	err   error
	calls int
}

func (m *mockTranslator) Translate(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.sql, m.err
}

type mockStore struct {
	rows  []map[string]any
	err   error
	calls int
	got   string
}

func (m *mockStore) Execute(_ context.Context, sql string) ([]map[string]any, error) {
	m.calls++
	m.got = sql
	return m.rows, m.err
}

func mustQuery(t *testing.T) query.Query {
	t.Helper()
	q, err := query.New("total sales by region in 2024", "", nil)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

func TestInvoke_RowsBecomeItems(t *testing.T) {
	tr := &mockTranslator{sql: "SELECT region, sum(amount) AS total FROM sales GROUP BY region"}
	st := &mockStore{rows: []map[string]any{
		{"total": 1200.5, "region": "EMEA"},
		{"region": "APAC", "total": 800},
	}}
	svc := New(tr, st)

	items, err := svc.Invoke(context.Background(), mustQuery(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.got != tr.sql {
		t.Errorf("executed %q", st.got)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Text != `{"region":"EMEA","total":1200.5}` {
		t.Errorf("row JSON = %s", items[0].Text)
	}
	if items[1].ID != "row-2" || items[1].Type != source.Database {
		t.Errorf("item = %+v", items[1])
	}
}

func TestInvoke_EmptyResult(t *testing.T) {
	svc := New(&mockTranslator{sql: "SELECT 1 WHERE false"}, &mockStore{})

	items, err := svc.Invoke(context.Background(), mustQuery(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil items, got %v", items)
	}
}

func TestInvoke_TranslationFailure(t *testing.T) {
	tr := &mockTranslator{err: errors.New("model refused")}
	st := &mockStore{}
	svc := New(tr, st)

	_, err := svc.Invoke(context.Background(), mustQuery(t), nil)
	if !errors.Is(err, domain.ErrTranslationFailed) {
		t.Fatalf("expected ErrTranslationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "model refused") {
		t.Errorf("cause lost: %v", err)
	}
	if st.calls != 0 {
		t.Error("store must not be called after translation failure")
	}
	if tr.calls != 1 {
		t.Errorf("translation must not be retried, got %d calls", tr.calls)
	}
}

func TestInvoke_ExecutionFailure(t *testing.T) {
	st := &mockStore{err: errors.New(`relation "sales" does not exist`)}
	svc := New(&mockTranslator{sql: "SELECT * FROM sales"}, st)

	_, err := svc.Invoke(context.Background(), mustQuery(t), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrTranslationFailed) {
		t.Error("execution failure must not be reported as translation failure")
	}
	if !strings.Contains(err.Error(), `relation "sales" does not exist`) {
		t.Errorf("message lost: %v", err)
	}
	if st.calls != 1 {
		t.Errorf("execution must not be retried, got %d calls", st.calls)
	}
}
