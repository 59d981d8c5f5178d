package store

import (
	"context"
	"sync"

	"github.com/ashureev/pacifica-bot/internal/domain"
)

// MemoryStore is a Repository kept in process memory. Records are copied on
// the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[int64]domain.UserCredential
}

var _ Repository = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{creds: make(map[int64]domain.UserCredential)}
}

func (m *MemoryStore) GetCredential(_ context.Context, telegramID int64) (*domain.UserCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[telegramID]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (m *MemoryStore) UpsertCredential(_ context.Context, cred *domain.UserCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *clone(*cred)
	if prev, ok := m.creds[cred.TelegramID]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	m.creds[cred.TelegramID] = c
	return nil
}

func (m *MemoryStore) DeleteCredential(_ context.Context, telegramID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.creds[telegramID]
	delete(m.creds, telegramID)
	return ok, nil
}

func (m *MemoryStore) CountCredentials(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.creds)), nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func clone(c domain.UserCredential) *domain.UserCredential {
	if c.AgentSecret != nil {
		s := *c.AgentSecret
		c.AgentSecret = &s
	}
	return &c
}
