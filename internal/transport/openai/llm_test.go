package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/domain/tool"
	"github.com/kailas-cloud/askdex/internal/usecase/router"
	"github.com/kailas-cloud/askdex/internal/usecase/synthesis"
	"github.com/kailas-cloud/askdex/internal/usecase/tools/web"
)

// chatServer answers chat completions with the reply registered for the requested schema name.
type chatServer struct {
	t       *testing.T
	replies map[string]string
	status  map[string][]int
	calls   map[string]*atomic.Int32
}

func newChatServer(t *testing.T, replies map[string]string) *chatServer {
	t.Helper()
	return &chatServer{t: t, replies: replies, status: map[string][]int{}, calls: map[string]*atomic.Int32{}}
}

func (s *chatServer) count(name string) int {
	if c, ok := s.calls[name]; ok {
		return int(c.Load())
	}
	return 0
}

func (s *chatServer) start() *httptest.Server {
	for name := range replySchemas {
		s.calls[name] = &atomic.Int32{}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
			return
		}
		if r.URL.Path != "/chat/completions" {
			s.t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name string `json:"name"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat.Type != "json_schema" {
			s.t.Errorf("response_format.type = %q", req.ResponseFormat.Type)
		}
		name := req.ResponseFormat.JSONSchema.Name
		n := int(s.calls[name].Add(1))

		if codes := s.status[name]; n <= len(codes) && codes[n-1] != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(codes[n-1])
			_, _ = w.Write([]byte(`{"error":{"message":"upstream busy","type":"server_error"}}`))
			return
		}

		content, ok := s.replies[name]
		if !ok {
			s.t.Errorf("no reply registered for %q", name)
		}
		resp := map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	s.t.Cleanup(srv.Close)
	return srv
}

func newTestLLM(t *testing.T, url string) *LLM {
	t.Helper()
	l, err := NewLLM(&LLMConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-chat",
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		SchemaHint: "orders(id int, total numeric, created_at date)",
	})
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	return l
}

func TestNewLLM_RequiresModel(t *testing.T) {
	if _, err := NewLLM(&LLMConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestLLM_Classify(t *testing.T) {
	s := newChatServer(t, map[string]string{
		replyDecision: `{"reasoning":"needs internal docs","tools":[` +
			`{"tool":"document","confidence":0.9,"params":{"query":"vacation policy"}},` +
			`{"tool":"web","confidence":0.4,"params":{},"reasoning":"maybe public info"}]}`,
	})
	l := newTestLLM(t, s.start().URL)

	got, err := l.Classify(context.Background(), router.DecisionRequest{
		Question: "What is our vacation policy?",
		Tools:    []tool.Descriptor{{Name: "document", Description: "internal docs"}},
		Today:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Tool != "document" || got[0].Confidence != 0.9 {
		t.Errorf("unexpected first candidate: %+v", got[0])
	}
	if got[0].Params["query"] != "vacation policy" {
		t.Errorf("params not decoded: %v", got[0].Params)
	}
	if got[0].Reasoning != "needs internal docs" {
		t.Errorf("first candidate should inherit overall reasoning, got %q", got[0].Reasoning)
	}
	if got[1].Reasoning != "maybe public info" {
		t.Errorf("second reasoning = %q", got[1].Reasoning)
	}
}

func TestLLM_Classify_InvalidReply(t *testing.T) {
	s := newChatServer(t, map[string]string{
		replyDecision: `{"tools":[{"tool":"document"}]}`,
	})
	l := newTestLLM(t, s.start().URL)

	_, err := l.Classify(context.Background(), router.DecisionRequest{Question: "q"})
	if !errors.Is(err, domain.ErrDecisionUnavailable) {
		t.Fatalf("expected ErrDecisionUnavailable, got %v", err)
	}
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Errorf("expected ErrLLMProviderError in chain, got %v", err)
	}
}

func TestLLM_Classify_NotJSON(t *testing.T) {
	s := newChatServer(t, map[string]string{replyDecision: "I think you should use the web."})
	l := newTestLLM(t, s.start().URL)

	if _, err := l.Classify(context.Background(), router.DecisionRequest{Question: "q"}); !errors.Is(err, domain.ErrDecisionUnavailable) {
		t.Fatalf("expected ErrDecisionUnavailable, got %v", err)
	}
}

func TestLLM_RetriesTransientFailures(t *testing.T) {
	s := newChatServer(t, map[string]string{replyPhrasings: `{"queries":["a","b"]}`})
	s.status[replyPhrasings] = []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}
	l := newTestLLM(t, s.start().URL)

	got, err := l.Reformulate(context.Background(), "question", 3)
	if err != nil {
		t.Fatalf("Reformulate: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 phrasings, got %v", got)
	}
	if c := s.count(replyPhrasings); c != 3 {
		t.Errorf("expected 3 calls, got %d", c)
	}
}

func TestLLM_NoRetryOnClientError(t *testing.T) {
	s := newChatServer(t, map[string]string{replyPhrasings: `{"queries":["a"]}`})
	s.status[replyPhrasings] = []int{http.StatusBadRequest}
	l := newTestLLM(t, s.start().URL)

	_, err := l.Reformulate(context.Background(), "question", 3)
	if !errors.Is(err, domain.ErrLLMProviderError) {
		t.Fatalf("expected ErrLLMProviderError, got %v", err)
	}
	if c := s.count(replyPhrasings); c != 1 {
		t.Errorf("expected 1 call, got %d", c)
	}
}

func TestLLM_Reformulate_Truncates(t *testing.T) {
	s := newChatServer(t, map[string]string{replyPhrasings: "```json\n{\"queries\":[\"a\",\"b\",\"c\",\"d\"]}\n```"})
	l := newTestLLM(t, s.start().URL)

	got, err := l.Reformulate(context.Background(), "question", 2)
	if err != nil {
		t.Fatalf("Reformulate: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected phrasings: %v", got)
	}
}

func TestLLM_ExtractRange(t *testing.T) {
	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("range", func(t *testing.T) {
		s := newChatServer(t, map[string]string{
			replyDateRange: `{"has_range":true,"start":"2026-02-01","end":"2026-02-28"}`,
		})
		l := newTestLLM(t, s.start().URL)

		r, err := l.ExtractRange(context.Background(), "last month", today)
		if err != nil {
			t.Fatalf("ExtractRange: %v", err)
		}
		if r == nil {
			t.Fatal("expected a range")
		}
		if !r.Start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("start = %v", r.Start)
		}
		if !r.End.Equal(time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("end = %v", r.End)
		}
	})

	t.Run("no range", func(t *testing.T) {
		s := newChatServer(t, map[string]string{replyDateRange: `{"has_range":false}`})
		l := newTestLLM(t, s.start().URL)

		r, err := l.ExtractRange(context.Background(), "hello", today)
		if err != nil {
			t.Fatalf("ExtractRange: %v", err)
		}
		if r != nil {
			t.Errorf("expected nil range, got %+v", r)
		}
	})

	t.Run("bad date", func(t *testing.T) {
		s := newChatServer(t, map[string]string{
			replyDateRange: `{"has_range":true,"start":"February","end":""}`,
		})
		l := newTestLLM(t, s.start().URL)

		if _, err := l.ExtractRange(context.Background(), "in february", today); !errors.Is(err, domain.ErrLLMProviderError) {
			t.Fatalf("expected ErrLLMProviderError, got %v", err)
		}
	})
}

func TestLLM_Organize(t *testing.T) {
	published := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	hits := []web.Hit{
		{Title: "First", URL: "https://Example.com/a", Content: "alpha", Score: 0.8, PublishedAt: &published},
		{Title: "Second", URL: "https://example.org/b", Content: "beta", Score: 0.5},
	}
	s := newChatServer(t, map[string]string{
		replyWebSummary: `{"items":[{"source":2,"summary":" beta summary "},{"source":7,"summary":"ghost"},` +
			`{"source":1,"summary":"alpha summary"},{"source":2,"summary":"again"}]}`,
	})
	l := newTestLLM(t, s.start().URL)

	items, err := l.Organize(context.Background(), "question", hits)
	if err != nil {
		t.Fatalf("Organize: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].ID != web.NormalizeURL("https://example.org/b") || items[0].Text != "beta summary" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[0].Type != source.Web || items[0].Location != "https://example.org/b" || items[0].Title != "Second" {
		t.Errorf("unexpected first item metadata: %+v", items[0])
	}
	if items[1].Timestamp == nil || !items[1].Timestamp.Equal(published) {
		t.Errorf("timestamp not carried: %+v", items[1])
	}
	if items[1].Score != 0.8 {
		t.Errorf("score = %v", items[1].Score)
	}
}

func TestLLM_Organize_NoHits(t *testing.T) {
	s := newChatServer(t, map[string]string{})
	l := newTestLLM(t, s.start().URL)

	items, err := l.Organize(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("Organize: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %v", items)
	}
	if c := s.count(replyWebSummary); c != 0 {
		t.Errorf("expected no calls, got %d", c)
	}
}

func TestLLM_Translate(t *testing.T) {
	s := newChatServer(t, map[string]string{replySQL: `{"sql":"  SELECT count(*) FROM orders  "}`})
	l := newTestLLM(t, s.start().URL)

	got, err := l.Translate(context.Background(), "How many orders?")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "SELECT count(*) FROM orders" {
		t.Errorf("sql = %q", got)
	}
}

func TestLLM_Translate_NoRetry(t *testing.T) {
	s := newChatServer(t, map[string]string{replySQL: `{"sql":"SELECT 1"}`})
	s.status[replySQL] = []int{http.StatusServiceUnavailable}
	l := newTestLLM(t, s.start().URL)

	_, err := l.Translate(context.Background(), "How many orders?")
	if !errors.Is(err, domain.ErrTranslationFailed) {
		t.Fatalf("expected ErrTranslationFailed, got %v", err)
	}
	if c := s.count(replySQL); c != 1 {
		t.Errorf("translation must not retry, got %d calls", c)
	}
}

func TestLLM_Generate(t *testing.T) {
	s := newChatServer(t, map[string]string{
		replyAnswer: `{"answer":"Employees get 25 days [1].","citations":[1]}`,
	})
	l := newTestLLM(t, s.start().URL)

	gen, err := l.Generate(context.Background(), synthesis.Request{
		Question: "How many vacation days?",
		Evidence: []synthesis.Evidence{{Index: 1, Item: source.Item{ID: "hr/policy.md", Text: "25 days", Type: source.Document}}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(gen.Text, "25 days") {
		t.Errorf("text = %q", gen.Text)
	}
	if len(gen.Citations) != 1 || gen.Citations[0] != 1 {
		t.Errorf("citations = %v", gen.Citations)
	}
}

func TestLLM_RecordsUsage(t *testing.T) {
	s := newChatServer(t, map[string]string{replySQL: `{"sql":"SELECT 1"}`})
	l := newTestLLM(t, s.start().URL)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := l.Translate(ctx, "one"); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := usage.LLMTokens(); got != 15 {
		t.Errorf("llm tokens = %d, want 15", got)
	}
}

func TestLLM_HealthCheck(t *testing.T) {
	s := newChatServer(t, map[string]string{})
	l := newTestLLM(t, s.start().URL)

	if err := l.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  {}  ", "{}"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
