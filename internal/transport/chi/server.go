package chi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/askdex/internal/domain/answer"
	"github.com/kailas-cloud/askdex/internal/domain/conversation"
	"github.com/kailas-cloud/askdex/internal/domain/query"
	"github.com/kailas-cloud/askdex/internal/metrics"
	healthuc "github.com/kailas-cloud/askdex/internal/usecase/health"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Server is the HTTP API over the agent.
type Server struct {
	agent  Answerer
	health HealthChecker
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(agent Answerer, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{agent: agent, health: health, logger: logger}
}

// Handler builds the chi router with the middleware chain.
func (s *Server) Handler(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEvent(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/answer", s.Answer)
		r.Get("/conversations/{id}", s.Conversation)
	})
	return r
}

// AnswerRequest is the body of POST /v1/answer.
type AnswerRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	DateStart      string `json:"date_start,omitempty"`
	DateEnd        string `json:"date_end,omitempty"`
}

// CitationResponse is one cited evidence item.
type CitationResponse struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Location string `json:"location,omitempty"`
}

// ToolResponse reports one tool run.
type ToolResponse struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	ElapsedMS  int64   `json:"elapsed_ms"`
	Items      int     `json:"items"`
}

// AnswerResponse is the body returned by POST /v1/answer.
type AnswerResponse struct {
	Answer         string             `json:"answer"`
	ConversationID string             `json:"conversation_id"`
	Mode           string             `json:"mode"`
	Reasoning      string             `json:"reasoning,omitempty"`
	Citations      []CitationResponse `json:"citations"`
	Tools          []ToolResponse     `json:"tools"`
	FailedTools    []string           `json:"failed_tools"`
	Notes          []string           `json:"notes,omitempty"`
}

// TurnResponse is one stored conversation turn.
type TurnResponse struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ConversationResponse is the body returned by GET /v1/conversations/{id}.
type ConversationResponse struct {
	ConversationID string         `json:"conversation_id"`
	Turns          []TurnResponse `json:"turns"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Answer handles POST /v1/answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := queryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ans, err := s.agent.Answer(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answerToResponse(ans))
}

// Conversation handles GET /v1/conversations/{id}.
func (s *Server) Conversation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "conversation id is required")
		return
	}
	turns, err := s.agent.History(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{ConversationID: id, Turns: turnsToResponse(turns)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r)
	msg := safeDomainMessage(err)
	for _, h := range errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	if r.Context().Err() != nil {
		log.Info("request cancelled", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeInternalError, "request cancelled")
		return
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if id := chiMiddleware.GetReqID(r.Context()); id != "" {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}

func queryFromRequest(req AnswerRequest) (query.Query, error) {
	var dr *query.DateRange
	if req.DateStart != "" || req.DateEnd != "" {
		parsed, err := query.ParseDateRange(strings.TrimSpace(req.DateStart), strings.TrimSpace(req.DateEnd))
		if err != nil {
			return query.Query{}, err
		}
		dr = &parsed
	}
	return query.New(req.Message, req.ConversationID, dr)
}

func answerToResponse(a answer.Answer) AnswerResponse {
	citations := make([]CitationResponse, len(a.Citations))
	for i, c := range a.Citations {
		citations[i] = CitationResponse{
			Index:    c.Index,
			ID:       c.ItemID,
			Type:     string(c.Type),
			Title:    c.Title,
			Location: c.Location,
		}
	}
	tools := make([]ToolResponse, len(a.Tools))
	for i, t := range a.Tools {
		tools[i] = ToolResponse{
			Name:       t.Name,
			Confidence: t.Confidence,
			Status:     t.Status,
			ElapsedMS:  t.Elapsed.Milliseconds(),
			Items:      t.Items,
		}
	}
	failed := a.FailedTools
	if failed == nil {
		failed = []string{}
	}
	return AnswerResponse{
		Answer:         a.Text,
		ConversationID: a.ConversationID,
		Mode:           string(a.Mode),
		Reasoning:      a.Reasoning,
		Citations:      citations,
		Tools:          tools,
		FailedTools:    failed,
		Notes:          a.Notes,
	}
}

func turnsToResponse(turns []conversation.Turn) []TurnResponse {
	out := make([]TurnResponse, len(turns))
	for i, t := range turns {
		out[i] = TurnResponse{Role: string(t.Role), Content: t.Content, At: t.At}
	}
	return out
}
