package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/domain/selection"
	"github.com/kailas-cloud/askdex/internal/domain/source"
	"github.com/kailas-cloud/askdex/internal/logger"
	"github.com/kailas-cloud/askdex/internal/metrics"
	"github.com/kailas-cloud/askdex/internal/usecase/router"
	"github.com/kailas-cloud/askdex/internal/usecase/synthesis"
	"github.com/kailas-cloud/askdex/internal/usecase/tools/web"
)

const (
	defaultMaxRetries = 2
	defaultBackoff    = 500 * time.Millisecond
)

// Operation labels for LLM metrics.
const (
	opClassify    = "classify"
	opExtractDate = "extract_date"
	opReformulate = "reformulate"
	opOrganize    = "organize"
	opTranslate   = "translate"
	opGenerate    = "generate"
)

// LLMConfig holds chat completion settings.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	// MaxRetries bounds retries of rate-limited or 5xx replies.
	MaxRetries int
	Backoff    time.Duration
	// SchemaHint describes the structured store's tables for SQL translation.
	SchemaHint string
}

// LLM serves every language-model collaborator through one chat completions client.
// Each reply is requested as JSON and validated against its schema before use.
type LLM struct {
	client      *openai.Client
	model       string
	temperature float32
	maxRetries  uint64
	backoff     time.Duration
	schemaHint  string
	schemas     map[string]compiledSchema
}

// NewLLM creates the chat completions adapter.
func NewLLM(cfg *LLMConfig) (*LLM, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	schemas, err := compileReplySchemas()
	if err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	return &LLM{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  uint64(maxRetries),
		backoff:     backoff,
		schemaHint:  cfg.SchemaHint,
		schemas:     schemas,
	}, nil
}

// Classify implements router.DecisionService.
func (l *LLM) Classify(ctx context.Context, req router.DecisionRequest) ([]selection.Candidate, error) {
	var reply struct {
		Reasoning string `json:"reasoning"`
		Tools     []struct {
			Tool       string         `json:"tool"`
			Confidence float64        `json:"confidence"`
			Params     map[string]any `json:"params"`
			Reasoning  string         `json:"reasoning"`
		} `json:"tools"`
	}
	if err := l.complete(ctx, opClassify, replyDecision, decisionMessages(req), true, &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDecisionUnavailable, err)
	}

	out := make([]selection.Candidate, 0, len(reply.Tools))
	for i, t := range reply.Tools {
		reasoning := t.Reasoning
		if reasoning == "" && i == 0 {
			reasoning = reply.Reasoning
		}
		out = append(out, selection.Candidate{
			Tool:       t.Tool,
			Confidence: t.Confidence,
			Params:     t.Params,
			Reasoning:  reasoning,
		})
	}
	return out, nil
}

// ExtractRange implements router.DateExtractor.
func (l *LLM) ExtractRange(ctx context.Context, text string, today time.Time) (*query.DateRange, error) {
	var reply struct {
		HasRange bool   `json:"has_range"`
		Start    string `json:"start"`
		End      string `json:"end"`
	}
	if err := l.complete(ctx, opExtractDate, replyDateRange, dateMessages(text, today), true, &reply); err != nil {
		return nil, err
	}
	if !reply.HasRange || (reply.Start == "" && reply.End == "") {
		return nil, nil //nolint:nilnil // no time reference is not an error
	}
	r, err := query.ParseDateRange(reply.Start, reply.End)
	if err != nil {
		return nil, fmt.Errorf("%w: date range: %w", domain.ErrLLMProviderError, err)
	}
	return &r, nil
}

// Reformulate implements web.Reformulator.
func (l *LLM) Reformulate(ctx context.Context, text string, n int) ([]string, error) {
	var reply struct {
		Queries []string `json:"queries"`
	}
	if err := l.complete(ctx, opReformulate, replyPhrasings, phrasingMessages(text, n), true, &reply); err != nil {
		return nil, err
	}
	if n > 0 && len(reply.Queries) > n {
		reply.Queries = reply.Queries[:n]
	}
	return reply.Queries, nil
}

// Organize implements web.Summarizer. Summaries that point at unknown sources are dropped.
func (l *LLM) Organize(ctx context.Context, question string, hits []web.Hit) ([]source.Item, error) {
	if len(hits) == 0 {
		return []source.Item{}, nil
	}
	var reply struct {
		Items []struct {
			Source  int    `json:"source"`
			Summary string `json:"summary"`
		} `json:"items"`
	}
	if err := l.complete(ctx, opOrganize, replyWebSummary, webMessages(question, hits), true, &reply); err != nil {
		return nil, err
	}

	items := make([]source.Item, 0, len(reply.Items))
	seen := make(map[int]struct{}, len(reply.Items))
	for _, it := range reply.Items {
		if it.Source < 1 || it.Source > len(hits) {
			continue
		}
		if _, dup := seen[it.Source]; dup {
			continue
		}
		seen[it.Source] = struct{}{}
		h := hits[it.Source-1]
		items = append(items, source.Item{
			ID:        web.NormalizeURL(h.URL),
			Text:      strings.TrimSpace(it.Summary),
			Type:      source.Web,
			Score:     h.Score,
			Timestamp: h.PublishedAt,
			Location:  h.URL,
			Title:     h.Title,
		})
	}
	return items, nil
}

// Translate implements database.Translator. Translation is not retried.
func (l *LLM) Translate(ctx context.Context, question string) (string, error) {
	var reply struct {
		SQL string `json:"sql"`
	}
	if err := l.complete(ctx, opTranslate, replySQL, sqlMessages(question, l.schemaHint), false, &reply); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTranslationFailed, err)
	}
	sql := strings.TrimSpace(reply.SQL)
	if sql == "" {
		return "", fmt.Errorf("%w: empty statement", domain.ErrTranslationFailed)
	}
	return sql, nil
}

// Generate implements synthesis.Generator.
func (l *LLM) Generate(ctx context.Context, req synthesis.Request) (synthesis.Generation, error) {
	var reply struct {
		Answer    string `json:"answer"`
		Citations []int  `json:"citations"`
	}
	if err := l.complete(ctx, opGenerate, replyAnswer, answerMessages(req), true, &reply); err != nil {
		return synthesis.Generation{}, err
	}
	return synthesis.Generation{Text: reply.Answer, Citations: reply.Citations}, nil
}

// HealthCheck verifies API availability via ListModels.
func (l *LLM) HealthCheck(ctx context.Context) error {
	if _, err := l.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// complete sends one structured chat completion and decodes the validated reply into out.
func (l *LLM) complete(
	ctx context.Context, op, schemaName string, msgs []openai.ChatCompletionMessage, retryable bool, out any,
) error {
	schema, ok := l.schemas[schemaName]
	if !ok {
		return fmt.Errorf("unknown reply schema %q", schemaName)
	}
	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    msgs,
		Temperature: l.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName,
				Schema: schema.raw,
			},
		},
	}

	log := logger.FromContext(ctx).With(zap.String("operation", op))
	start := time.Now()

	var resp openai.ChatCompletionResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = l.client.CreateChatCompletion(ctx, req)
		if err != nil && retryable && isTransient(err) {
			log.Debug("Retrying LLM request", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	}

	var err error
	if retryable && l.maxRetries > 0 {
		backoff := retry.WithMaxRetries(l.maxRetries, retry.NewExponential(l.backoff))
		err = retry.Do(ctx, backoff, call)
	} else {
		err = call(ctx)
	}
	elapsed := time.Since(start)
	metrics.LLMRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(op, "error").Inc()
		log.Warn("LLM request failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return parseAPIError("llm", err, domain.ErrLLMProviderError)
	}
	l.recordUsage(ctx, resp.Usage)

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(op, "invalid").Inc()
		return fmt.Errorf("%w: empty completion", domain.ErrLLMProviderError)
	}
	content := stripFences(resp.Choices[0].Message.Content)
	if err := schema.validate(content); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(op, "invalid").Inc()
		log.Warn("LLM reply rejected", zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrLLMProviderError, err)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(op, "invalid").Inc()
		return fmt.Errorf("%w: decode reply: %w", domain.ErrLLMProviderError, err)
	}

	metrics.LLMRequestsTotal.WithLabelValues(op, "success").Inc()
	log.Debug("LLM request finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return nil
}

func (l *LLM) recordUsage(ctx context.Context, u openai.Usage) {
	if u.TotalTokens <= 0 {
		return
	}
	metrics.LLMTokensTotal.WithLabelValues(l.model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(l.model, "completion").Add(float64(u.CompletionTokens))
	if usage := domain.UsageFromContext(ctx); usage != nil {
		usage.AddLLMTokens(u.TotalTokens)
	}
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
