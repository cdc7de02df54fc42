package domain

import "time"

// DomainEvent is the immutable record of one applied operation.
type DomainEvent struct {
	ID      string
	Op      OpKind
	ListID  string
	ItemID  string
	Before  *List // nil for create_list
	After   *List // nil when the list was purged
	At      time.Time
	Actor   string
	Undo    bool
	Reverts string // event ID reverted by this undo event
}

// UndoEntry pairs an event with the operation that reverses it.
type UndoEntry struct {
	Event     *DomainEvent
	Inverse   Operation
	ExpiresAt time.Time
}

// Expired reports whether the entry can no longer be applied at now.
func (e UndoEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Turn is one utterance in a conversation and what it resolved to.
type Turn struct {
	Utterance string
	Intent    *Intent // nil when nothing was resolved
	At        time.Time
}
