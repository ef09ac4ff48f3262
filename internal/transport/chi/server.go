package chi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	logpkg "github.com/kailas-cloud/catalograg/internal/logger"
	healthuc "github.com/kailas-cloud/catalograg/internal/usecase/health"
	usageuc "github.com/kailas-cloud/catalograg/internal/usecase/usage"
)

const maxMessageBytes = 64 << 10

// ChatService is the set of chat operations served over HTTP.
type ChatService interface {
	CreateSession(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, id, text string) (domain.QueryResponse, error)
	ListSessions(ctx context.Context) []domain.Session
	History(ctx context.Context, id string) ([]domain.ChatMessage, error)
	DeleteSession(ctx context.Context, id string) error
}

// UsageReporter builds token usage reports.
type UsageReporter interface {
	GetReport(ctx context.Context, period usageuc.Period) usageuc.Report
}

// HealthChecker reports readiness.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the chat API.
type Server struct {
	chat          ChatService
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. usage can be nil.
func NewServer(chat ChatService, usage UsageReporter, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{
		chat:          chat,
		usage:         usage,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat/session", s.CreateSession)
		r.Get("/chat/sessions", s.ListSessions)
		r.Post("/chat/{sessionId}", s.withSessionID(s.SendMessage))
		r.Get("/chat/{sessionId}/history", s.withSessionID(s.GetHistory))
		r.Delete("/chat/{sessionId}", s.withSessionID(s.DeleteSession))
		if s.usage != nil {
			r.Get("/usage", s.GetUsage)
		}
	})
}

// SendMessageRequest is the body of POST /api/chat/{sessionId}.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// CreateSessionResponse is the body of POST /api/chat/session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// HistoryResponse is the body of GET /api/chat/{sessionId}/history.
type HistoryResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// SessionListResponse is the body of GET /api/chat/sessions.
type SessionListResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

// CreateSession handles POST /api/chat/session.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.chat.CreateSession(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: id})
}

// SendMessage handles POST /api/chat/{sessionId}.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req SendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.chat.SendMessage(ctx, sessionID, req.Message)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory handles GET /api/chat/{sessionId}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request, sessionID string) {
	msgs, err := s.chat.History(r.Context(), sessionID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Messages: msgs})
}

// ListSessions handles GET /api/chat/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: s.chat.ListSessions(r.Context())})
}

// DeleteSession handles DELETE /api/chat/{sessionId}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := s.chat.DeleteSession(r.Context(), sessionID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUsage handles GET /api/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := usageuc.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.usage.GetReport(r.Context(), period))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// withSessionID binds the {sessionId} path segment before calling h.
func (s *Server) withSessionID(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		err := runtime.BindStyledParameterWithOptions("simple", "sessionId", chi.URLParam(r, "sessionId"),
			&sessionID, runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter sessionId")
			return
		}
		h(w, r, sessionID)
	}
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.TokenUsage) {
	if usage == nil {
		return
	}
	embedding, completion := usage.Totals()
	if embedding > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(embedding))
	}
	if completion > 0 {
		w.Header().Set("X-Completion-Tokens", strconv.Itoa(completion))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
