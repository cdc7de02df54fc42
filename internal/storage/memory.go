// Package storage provides list repositories.
package storage

import (
	"context"
	"sync"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// Compile-time interface check.
var _ domain.Repository = (*MemoryStore)(nil)

// MemoryStore is an in-memory repository. Safe for concurrent access.
// Lists are copied on the way in and out, so callers never share state
// with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	lists  map[string]*domain.List
	events []*domain.DomainEvent
	log    *logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		lists: make(map[string]*domain.List),
		log:   log,
	}
}

// SaveList stores a copy of list. Overwrites if it already exists.
func (s *MemoryStore) SaveList(ctx context.Context, list *domain.List) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug("saving list %s (%q, %d items, deleted=%v)", list.ID, list.Name, len(list.Items), list.Deleted)
	s.lists[list.ID] = list.Clone()
	return nil
}

// LoadList retrieves a copy of a list by ID.
func (s *MemoryStore) LoadList(ctx context.Context, id string) (*domain.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lists[id]
	if !ok {
		s.log.Debug("list not found: %s", id)
		return nil, domain.ErrNotFound
	}
	return l.Clone(), nil
}

// DeleteList removes a list and its items.
func (s *MemoryStore) DeleteList(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.lists, id)
	s.log.Debug("deleted list %s", id)
	return nil
}

// ListsByOwner returns copies of every list owned by owner, deleted ones
// included.
func (s *MemoryStore) ListsByOwner(ctx context.Context, owner string) ([]*domain.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.List
	for _, l := range s.lists {
		if l.Owner == owner {
			out = append(out, l.Clone())
		}
	}
	s.log.Debug("listing lists for %s, count=%d", owner, len(out))
	return out, nil
}

// AppendEvent records an event.
func (s *MemoryStore) AppendEvent(ctx context.Context, event *domain.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

// Events returns the events recorded for listID, oldest first.
func (s *MemoryStore) Events(ctx context.Context, listID string) ([]*domain.DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.DomainEvent
	for _, ev := range s.events {
		if ev.ListID == listID {
			out = append(out, ev)
		}
	}
	return out, nil
}
