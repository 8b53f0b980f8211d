package web

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/source"
)

// --- Mocks ---

type mockReformulator struct {
	out []string
	err error
}

func (m *mockReformulator) Reformulate(_ context.Context, _ string, _ int) ([]string, error) {
	return m.out, m.err
}

type mockSearcher struct {
	mu       sync.Mutex
	results  map[string][]Hit
	errs     map[string]error
	delay    map[string]time.Duration
	phrases  []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (m *mockSearcher) Search(ctx context.Context, phrase string) ([]Hit, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.phrases = append(m.phrases, phrase)
	d := m.delay[phrase]
	m.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.errs[phrase]; err != nil {
		return nil, err
	}
	return m.results[phrase], nil
}

type mockSummarizer struct {
	items []source.Item
	err   error
	got   []Hit
}

func (m *mockSummarizer) Organize(_ context.Context, _ string, hits []Hit) ([]source.Item, error) {
	m.got = hits
	return m.items, m.err
}

func mustQuery(t *testing.T, text string) query.Query {
	t.Helper()
	q, err := query.New(text, "", nil)
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

func hit(u string) Hit { return Hit{URL: u, Title: u, Content: "content of " + u} }

// --- Tests ---

func TestInvoke_DedupesAcrossPhrasings(t *testing.T) {
	a, b, c, d := hit("https://a.test/"), hit("https://b.test/"), hit("https://c.test/"), hit("https://d.test/")
	searcher := &mockSearcher{
		results: map[string][]Hit{
			"p1": {a, b},
			"p2": {b, c},
			"p3": {a, d},
		},
		// finish in reverse order; output must still follow phrasing order
		delay: map[string]time.Duration{"p1": 30 * time.Millisecond, "p2": 15 * time.Millisecond},
	}
	svc := New(&mockReformulator{out: []string{"p1", "p2", "p3"}}, searcher, nil)

	items, err := svc.Invoke(context.Background(), mustQuery(t, "market news"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{a.URL, b.URL, c.URL, d.URL}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, u := range want {
		if items[i].Location != u {
			t.Errorf("item %d = %s, want %s", i, items[i].Location, u)
		}
		if items[i].Type != source.Web {
			t.Errorf("item %d type = %s", i, items[i].Type)
		}
	}
}

func TestInvoke_ReformulationFailureUsesOriginal(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]Hit{
		"tesla stock price": {hit("https://x.test/tsla")},
	}}
	svc := New(&mockReformulator{err: errors.New("llm down")}, searcher, nil)

	items, err := svc.Invoke(context.Background(), mustQuery(t, "tesla stock price"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if len(searcher.phrases) != 1 || searcher.phrases[0] != "tesla stock price" {
		t.Errorf("searched %v", searcher.phrases)
	}
}

func TestInvoke_BlankAndDuplicatePhrasingsDropped(t *testing.T) {
	searcher := &mockSearcher{}
	svc := New(&mockReformulator{out: []string{" ", "A b", "a B", "c", "d"}}, searcher, nil)

	if _, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(searcher.phrases) != 3 {
		t.Fatalf("expected 3 searches, got %v", searcher.phrases)
	}
	joined := strings.Join(searcher.phrases, ",")
	for _, p := range []string{"A b", "c", "d"} {
		if !strings.Contains(joined, p) {
			t.Errorf("missing phrasing %q in %v", p, searcher.phrases)
		}
	}
}

func TestInvoke_PartialSearchFailureTolerated(t *testing.T) {
	searcher := &mockSearcher{
		results: map[string][]Hit{"p2": {hit("https://ok.test")}},
		errs:    map[string]error{"p1": errors.New("502"), "p3": errors.New("timeout")},
	}
	svc := New(&mockReformulator{out: []string{"p1", "p2", "p3"}}, searcher, nil)

	items, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestInvoke_AllSearchesFail(t *testing.T) {
	searcher := &mockSearcher{errs: map[string]error{
		"p1": errors.New("502"), "p2": errors.New("502"),
	}}
	svc := New(&mockReformulator{out: []string{"p1", "p2"}}, searcher, nil)

	_, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil)
	if !errors.Is(err, ErrAllSearchesFailed) {
		t.Fatalf("expected ErrAllSearchesFailed, got %v", err)
	}
}

func TestInvoke_SearchTimeout(t *testing.T) {
	searcher := &mockSearcher{
		results: map[string][]Hit{"fast": {hit("https://fast.test")}},
		delay:   map[string]time.Duration{"slow": time.Second},
	}
	svc := New(&mockReformulator{out: []string{"slow", "fast"}}, searcher, nil).
		WithOptions(Options{Reformulations: 3, MaxParallel: 3, SearchTimeout: 20 * time.Millisecond})

	start := time.Now()
	items, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("slow search was not bounded by the per-search timeout")
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func TestInvoke_MaxParallel(t *testing.T) {
	searcher := &mockSearcher{delay: map[string]time.Duration{
		"p1": 20 * time.Millisecond, "p2": 20 * time.Millisecond, "p3": 20 * time.Millisecond,
	}}
	svc := New(&mockReformulator{out: []string{"p1", "p2", "p3"}}, searcher, nil).
		WithOptions(Options{Reformulations: 3, MaxParallel: 1})

	if _, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.peak.Load() != 1 {
		t.Errorf("expected at most 1 concurrent search, saw %d", searcher.peak.Load())
	}
}

func TestInvoke_Summarizer(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]Hit{"p1": {hit("https://a.test")}}}
	summ := &mockSummarizer{items: []source.Item{{ID: "s1", Text: "summary", Location: "https://a.test"}}}
	svc := New(&mockReformulator{out: []string{"p1"}}, searcher, summ)

	items, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Text != "summary" || items[0].Type != source.Web {
		t.Errorf("got %+v", items)
	}
	if len(summ.got) != 1 {
		t.Errorf("summarizer received %d hits", len(summ.got))
	}
}

func TestInvoke_SummarizerFailureFallsBackToHits(t *testing.T) {
	searcher := &mockSearcher{results: map[string][]Hit{"p1": {hit("https://a.test/x")}}}
	summ := &mockSummarizer{err: errors.New("llm 500")}
	svc := New(&mockReformulator{out: []string{"p1"}}, searcher, summ)

	items, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Text != "content of https://a.test/x" {
		t.Errorf("got %+v", items)
	}
	if items[0].ID != "https://a.test/x" {
		t.Errorf("ID = %q", items[0].ID)
	}
}

func TestInvoke_NoHitsSkipsSummarizer(t *testing.T) {
	summ := &mockSummarizer{}
	svc := New(&mockReformulator{out: []string{"p1"}}, &mockSearcher{}, summ)

	items, err := svc.Invoke(context.Background(), mustQuery(t, "q"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty items, got %v", items)
	}
	if summ.got != nil {
		t.Error("summarizer should not be called without hits")
	}
}
