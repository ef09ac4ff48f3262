package budget

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/catalograg/internal/db"
)

type mockStore struct {
	data    map[string]int64
	ttls    map[string]time.Duration
	getErr  error
	incrErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte(strconv.FormatInt(v, 10)), nil
}

func (m *mockStore) IncrBy(_ context.Context, key string, val int64) error {
	if m.incrErr != nil {
		return m.incrErr
	}
	m.data[key] += val
	return nil
}

func (m *mockStore) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	if _, ok := m.ttls[key]; ok && nx {
		return nil
	}
	m.ttls[key] = ttl
	return nil
}

func TestStore_IncrByAndGet(t *testing.T) {
	ms := newMockStore()
	s := New(ms, 0, 0)
	ctx := context.Background()
	key := "catalograg:budget:openai:daily:2026-03-07"

	for range 3 {
		if err := s.IncrBy(ctx, key, 10); err != nil {
			t.Fatalf("IncrBy: %v", err)
		}
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 30 {
		t.Errorf("expected 30, got %d", got)
	}
	if ms.ttls[key] != DefaultDailyTTL {
		t.Errorf("expected daily TTL, got %v", ms.ttls[key])
	}
}

func TestStore_MonthlyTTL(t *testing.T) {
	ms := newMockStore()
	s := New(ms, time.Hour, 2*time.Hour)
	key := "catalograg:budget:nebius:monthly:2026-03"

	if err := s.IncrBy(context.Background(), key, 1); err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if ms.ttls[key] != 2*time.Hour {
		t.Errorf("expected monthly TTL, got %v", ms.ttls[key])
	}
}

func TestStore_GetMissingIsZero(t *testing.T) {
	s := New(newMockStore(), 0, 0)
	got, err := s.Get(context.Background(), "missing")
	if err != nil || got != 0 {
		t.Fatalf("expected 0/nil, got %d/%v", got, err)
	}
}

func TestStore_Errors(t *testing.T) {
	ms := newMockStore()
	ms.getErr = errors.New("conn refused")
	ms.incrErr = errors.New("conn refused")
	s := New(ms, 0, 0)

	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Error("expected get error")
	}
	if err := s.IncrBy(context.Background(), "k", 1); err == nil {
		t.Error("expected incr error")
	}
}
