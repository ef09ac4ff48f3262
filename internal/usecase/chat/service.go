// Package chat exposes the conversation operations served over HTTP.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/logger"
	"github.com/kailas-cloud/catalograg/internal/metrics"
)

// Service ties Session Memory to the query pipeline.
type Service struct {
	sessions SessionStore
	agent    QueryProcessor
	newID    func() string
	logger   *zap.Logger
}

// New creates a chat service.
func New(sessions SessionStore, agent QueryProcessor, l *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		agent:    agent,
		newID:    func() string { return uuid.New().String() },
		logger:   l,
	}
}

// CreateSession starts an empty conversation and returns its id.
func (s *Service) CreateSession(ctx context.Context) (string, error) {
	id := s.newID()
	if _, err := s.sessions.Create(id); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	logger.FromContextOr(ctx, s.logger).Info("Session created", zap.String("session_id", id))
	return id, nil
}

// SendMessage runs the query pipeline against the session history and
// records the exchange. Rejected and failed answers are recorded too.
func (s *Service) SendMessage(ctx context.Context, id, text string) (domain.QueryResponse, error) {
	if strings.TrimSpace(text) == "" {
		return domain.QueryResponse{}, fmt.Errorf("send message: %w: empty message", domain.ErrInvalidInput)
	}

	history, err := s.sessions.Messages(id)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("send message: %w", err)
	}

	resp, err := s.agent.Process(ctx, text, history)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("send message: %w", err)
	}

	err = s.sessions.Append(id,
		domain.ChatMessage{Role: domain.RoleUser, Content: text},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: resp.Response},
	)
	if err != nil {
		// Deleted or expired while the agent was running.
		return domain.QueryResponse{}, fmt.Errorf("record exchange: %w", err)
	}
	return resp, nil
}

// ListSessions returns every live session, oldest first.
func (s *Service) ListSessions(_ context.Context) []domain.Session {
	sessions := s.sessions.List()
	metrics.ActiveSessions.Set(float64(len(sessions)))
	return sessions
}

// History returns the messages of one session in order.
func (s *Service) History(_ context.Context, id string) ([]domain.ChatMessage, error) {
	msgs, err := s.sessions.Messages(id)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return msgs, nil
}

// DeleteSession removes a session. Unknown ids are domain.ErrSessionNotFound.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.sessions.Delete(id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	metrics.ActiveSessions.Set(float64(s.sessions.Len()))
	logger.FromContextOr(ctx, s.logger).Info("Session deleted", zap.String("session_id", id))
	return nil
}
