package chat

import (
	"context"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// SessionStore is the Session Memory as seen by the chat service.
type SessionStore interface {
	Create(id string) (domain.Session, error)
	Get(id string) (domain.Session, error)
	Append(id string, msgs ...domain.ChatMessage) error
	Messages(id string) ([]domain.ChatMessage, error)
	Delete(id string) error
	List() []domain.Session
	Len() int
}

// QueryProcessor answers one query given the prior history.
type QueryProcessor interface {
	Process(ctx context.Context, query string, history []domain.ChatMessage) (domain.QueryResponse, error)
}
