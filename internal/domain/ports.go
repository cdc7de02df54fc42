package domain

import "context"

// Repository persists lists and their event log. SaveList must be atomic
// for a single list. Implementations can be in-memory or SQLite.
type Repository interface {
	LoadList(ctx context.Context, id string) (*List, error)
	SaveList(ctx context.Context, list *List) error
	DeleteList(ctx context.Context, id string) error
	AppendEvent(ctx context.Context, event *DomainEvent) error
	ListsByOwner(ctx context.Context, owner string) ([]*List, error)
}

// Interpreter turns normalized text into an intent with one call to an
// external language service. It must not retry.
type Interpreter interface {
	Interpret(ctx context.Context, req Request) (Intent, error)
	Name() string
}

// Request is what an Interpreter receives for one utterance.
type Request struct {
	Text     string
	Turns    []Turn
	ListName string
	Language string
}

// FallbackParser produces an intent without any network call. It never
// fails.
type FallbackParser interface {
	Parse(text string, lastItem string) Intent
}
