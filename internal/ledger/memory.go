package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore: ExecutedSet в памяти процесса. Подходит для одного инстанса и тестов.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[common.Hash]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[common.Hash]Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Reserve(_ context.Context, e Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.ActionID]; exists {
		return false, nil
	}
	now := s.now().UTC()
	e.Status = StatusPending
	e.CreatedAt = now
	e.UpdatedAt = now
	s.entries[e.ActionID] = e
	return true, nil
}

func (s *MemoryStore) Complete(_ context.Context, id common.Hash, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotReserved
	}
	e.Status = OutcomeStatus(success)
	e.UpdatedAt = s.now().UTC()
	s.entries[id] = e
	return nil
}

func (s *MemoryStore) Has(_ context.Context, id common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, id common.Hash) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok, nil
}
