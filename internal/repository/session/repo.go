// Package session keeps chat sessions in process memory with an optional
// sliding TTL. Sessions do not survive a restart.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// entry owns one session. mu serializes appends and reads of that session.
type entry struct {
	mu      sync.Mutex
	session domain.Session
	deleted bool // set under mu once removed from the cache
}

// Repo stores sessions in a go-cache instance.
type Repo struct {
	cache *gocache.Cache
	ttl   time.Duration
	now   func() time.Time

	// deleteMu makes the existence check and the removal one step.
	deleteMu sync.Mutex
}

// New creates a session repository. ttl <= 0 keeps sessions until deleted.
func New(ttl time.Duration) *Repo {
	exp := gocache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		exp = ttl
		cleanup = max(ttl/2, time.Second)
	}
	return &Repo{
		cache: gocache.New(exp, cleanup),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create registers an empty session.
func (r *Repo) Create(id string) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, fmt.Errorf("create session: %w: empty id", domain.ErrInvalidInput)
	}
	now := r.now()
	e := &entry{session: domain.Session{
		ID:           id,
		Messages:     []domain.ChatMessage{},
		CreatedAt:    now,
		LastActivity: now,
	}}
	if err := r.cache.Add(id, e, gocache.DefaultExpiration); err != nil {
		return domain.Session{}, fmt.Errorf("create session %s: %w", id, domain.ErrAlreadyExists)
	}
	return snapshot(e), nil
}

// Get returns a copy of the session.
func (r *Repo) Get(id string) (domain.Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e), nil
}

// Append adds messages in order. All of them become visible together and
// no other append to the same session interleaves. The TTL restarts.
func (r *Repo) Append(id string, msgs ...domain.ChatMessage) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	now := r.now()

	// The TTL refresh re-inserts e, so it stays under mu to never undo a Delete.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	e.session.Messages = append(e.session.Messages, msgs...)
	e.session.LastActivity = now

	if r.ttl > 0 {
		r.cache.Set(id, e, gocache.DefaultExpiration)
	}
	return nil
}

// Messages returns a copy of the session history.
func (r *Repo) Messages(id string) ([]domain.ChatMessage, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Messages, nil
}

// Delete removes the session.
func (r *Repo) Delete(id string) error {
	r.deleteMu.Lock()
	defer r.deleteMu.Unlock()
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = true
	r.cache.Delete(id)
	return nil
}

// List returns all live sessions ordered by creation time, then id.
func (r *Repo) List() []domain.Session {
	items := r.cache.Items()
	out := make([]domain.Session, 0, len(items))
	for _, it := range items {
		e, ok := it.Object.(*entry)
		if !ok {
			continue
		}
		e.mu.Lock()
		out = append(out, snapshot(e))
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of live sessions.
func (r *Repo) Len() int { return r.cache.ItemCount() }

func (r *Repo) lookup(id string) (*entry, error) {
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	e, ok := v.(*entry)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return e, nil
}

// snapshot copies the session; the caller holds e.mu or owns e exclusively.
func snapshot(e *entry) domain.Session {
	s := e.session
	s.Messages = append([]domain.ChatMessage(nil), e.session.Messages...)
	if s.Messages == nil {
		s.Messages = []domain.ChatMessage{}
	}
	return s
}
