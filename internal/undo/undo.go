// Package undo keeps bounded, expiring undo stacks per list.
package undo

import (
	"sync"
	"time"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager holds one stack per list. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	stacks   map[string][]domain.UndoEntry
	swept    map[string]bool // lists that lost entries to Sweep
	maxSteps int
	expiry   time.Duration
	now      func() time.Time
}

// New creates a Manager keeping at most maxSteps entries per list, each
// usable for expiry after it was pushed.
func New(maxSteps int, expiry time.Duration, opts ...Option) *Manager {
	if maxSteps < 1 {
		maxSteps = 1
	}
	m := &Manager{
		stacks:   make(map[string][]domain.UndoEntry),
		swept:    make(map[string]bool),
		maxSteps: maxSteps,
		expiry:   expiry,
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Push records an entry for listID, stamping its expiry. The oldest entry
// is evicted when the stack is full.
func (m *Manager) Push(listID string, event *domain.DomainEvent, inverse domain.Operation) domain.UndoEntry {
	entry := domain.UndoEntry{
		Event:     event,
		Inverse:   inverse,
		ExpiresAt: m.now().Add(m.expiry),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.push(listID, entry)
	return entry
}

// PushBack restores an entry returned by Pop, keeping its original expiry.
func (m *Manager) PushBack(listID string, entry domain.UndoEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.push(listID, entry)
}

func (m *Manager) push(listID string, entry domain.UndoEntry) {
	s := append(m.stacks[listID], entry)
	if over := len(s) - m.maxSteps; over > 0 {
		s = append(s[:0:0], s[over:]...)
	}
	m.stacks[listID] = s
}

// Pop removes and returns the most recent entry for listID. Expired
// entries are dropped as they are found; if the top was expired, or the
// stack ran out where Sweep had removed expired entries, the result is
// ExpiredUndo. Otherwise an empty stack gives NothingToUndo.
func (m *Manager) Pop(listID string) (domain.UndoEntry, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stacks[listID]
	if len(s) == 0 {
		if m.swept[listID] {
			delete(m.swept, listID)
			return domain.UndoEntry{}, domain.ErrExpiredUndo
		}
		return domain.UndoEntry{}, domain.ErrNothingToUndo
	}

	top := s[len(s)-1]
	if top.Expired(now) {
		// Entries below the top are older, so all of them are expired too.
		delete(m.stacks, listID)
		delete(m.swept, listID)
		return domain.UndoEntry{}, domain.ErrExpiredUndo
	}

	s = s[:len(s)-1]
	if len(s) == 0 {
		delete(m.stacks, listID)
	} else {
		m.stacks[listID] = s
	}
	return top, nil
}

// Len returns the number of entries held for listID, expired or not.
func (m *Manager) Len(listID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stacks[listID])
}

// Drop forgets every entry for listID.
func (m *Manager) Drop(listID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stacks, listID)
	delete(m.swept, listID)
}

// Sweep removes every entry expired at now and returns how many went.
// A list that loses entries keeps a marker, so once its remaining
// entries are used up Pop still reports ExpiredUndo, as it would have
// without the sweep.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.stacks {
		keep := s[:0]
		for _, e := range s {
			if e.Expired(now) {
				removed++
				m.swept[id] = true
				continue
			}
			keep = append(keep, e)
		}
		if len(keep) == 0 {
			delete(m.stacks, id)
		} else {
			m.stacks[id] = keep
		}
	}
	return removed
}
