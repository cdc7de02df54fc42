package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories for unknown IDs.
var ErrNotFound = errors.New("not found")

// ErrorKind names one member of the error taxonomy. Kinds are stable
// strings so they can be logged, persisted, and mapped to user lines.
type ErrorKind string

// Validation kinds.
const (
	KindEmptyInput              ErrorKind = "empty_input"
	KindTooLong                 ErrorKind = "too_long"
	KindInsufficientHebrewRatio ErrorKind = "insufficient_hebrew_ratio"
)

// NLU kinds. RateLimited, Timeout and Unavailable are transient.
const (
	KindRateLimited  ErrorKind = "rate_limited"
	KindTimeout      ErrorKind = "timeout"
	KindUnauthorized ErrorKind = "unauthorized"
	KindMalformed    ErrorKind = "malformed"
	KindUnavailable  ErrorKind = "unavailable"
	KindUnknownTool  ErrorKind = "unknown_tool"
)

// Domain kinds.
const (
	KindDuplicateItem     ErrorKind = "duplicate_item"
	KindQuantityOverflow  ErrorKind = "quantity_overflow"
	KindInvalidQuantity   ErrorKind = "invalid_quantity"
	KindListLimitExceeded ErrorKind = "list_limit_exceeded"
	KindUnsupportedTool   ErrorKind = "unsupported_tool"
	KindInvalidArguments  ErrorKind = "invalid_arguments"
	KindItemNotFound      ErrorKind = "item_not_found"
	KindListNotFound      ErrorKind = "list_not_found"
	KindListDeleted       ErrorKind = "list_deleted"
	KindDuplicateList     ErrorKind = "duplicate_list"
)

// Undo kinds.
const (
	KindNothingToUndo ErrorKind = "nothing_to_undo"
	KindExpiredUndo   ErrorKind = "expired_undo"
)

// Remaining kinds.
const (
	KindPersistence ErrorKind = "persistence"
	KindCanceled    ErrorKind = "canceled"
	KindInternal    ErrorKind = "internal"
)

// Kinded is implemented by every error in the taxonomy.
type Kinded interface {
	error
	ErrorKind() ErrorKind
}

// KindOf returns the taxonomy kind of err, KindCanceled for context
// cancellation, or KindInternal for anything else.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	if isCanceled(err) {
		return KindCanceled
	}
	return KindInternal
}

// ValidationError reports bad input text or arguments. Never retried.
type ValidationError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation: " + string(e.Kind)
	}
	return fmt.Sprintf("validation: %s: %s", e.Kind, e.Detail)
}

// ErrorKind implements Kinded.
func (e *ValidationError) ErrorKind() ErrorKind { return e.Kind }

// Is matches another *ValidationError with the same kind, or any
// validation error when the target kind is empty.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// NLUError is a failure of a single call to the language-understanding
// service, mapped to the closed provider taxonomy.
type NLUError struct {
	Kind ErrorKind
	Err  error
}

func (e *NLUError) Error() string {
	if e.Err == nil {
		return "nlu: " + string(e.Kind)
	}
	return fmt.Sprintf("nlu: %s: %v", e.Kind, e.Err)
}

// ErrorKind implements Kinded.
func (e *NLUError) ErrorKind() ErrorKind { return e.Kind }

func (e *NLUError) Unwrap() error { return e.Err }

// Is matches another *NLUError with the same kind (or an empty kind).
func (e *NLUError) Is(target error) bool {
	t, ok := target.(*NLUError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// Transient reports whether a retry may succeed.
func (e *NLUError) Transient() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// DomainError is a business-rule violation. Always reported, never
// silently corrected.
type DomainError struct {
	Kind   ErrorKind
	Detail string
}

func (e *DomainError) Error() string {
	if e.Detail == "" {
		return "domain: " + string(e.Kind)
	}
	return fmt.Sprintf("domain: %s: %s", e.Kind, e.Detail)
}

// ErrorKind implements Kinded.
func (e *DomainError) ErrorKind() ErrorKind { return e.Kind }

// Is matches another *DomainError with the same kind (or an empty kind).
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// UndoError reports why an undo request could not be honoured.
type UndoError struct {
	Kind ErrorKind
}

func (e *UndoError) Error() string { return "undo: " + string(e.Kind) }

// ErrorKind implements Kinded.
func (e *UndoError) ErrorKind() ErrorKind { return e.Kind }

// Is matches another *UndoError with the same kind (or an empty kind).
func (e *UndoError) Is(target error) bool {
	t, ok := target.(*UndoError)
	return ok && (t.Kind == "" || t.Kind == e.Kind)
}

// PersistenceError wraps a repository failure. The mutation that caused
// it has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

// ErrorKind implements Kinded.
func (e *PersistenceError) ErrorKind() ErrorKind { return KindPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches any *PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	_, ok := target.(*PersistenceError)
	return ok
}

// Sentinels for errors.Is checks.
var (
	ErrValidation              = &ValidationError{}
	ErrEmptyInput              = &ValidationError{Kind: KindEmptyInput}
	ErrTooLong                 = &ValidationError{Kind: KindTooLong}
	ErrInsufficientHebrewRatio = &ValidationError{Kind: KindInsufficientHebrewRatio}

	ErrNLU          = &NLUError{}
	ErrRateLimited  = &NLUError{Kind: KindRateLimited}
	ErrTimeout      = &NLUError{Kind: KindTimeout}
	ErrUnauthorized = &NLUError{Kind: KindUnauthorized}
	ErrMalformed    = &NLUError{Kind: KindMalformed}
	ErrUnavailable  = &NLUError{Kind: KindUnavailable}
	ErrUnknownTool  = &NLUError{Kind: KindUnknownTool}

	ErrDomain            = &DomainError{}
	ErrDuplicateItem     = &DomainError{Kind: KindDuplicateItem}
	ErrQuantityOverflow  = &DomainError{Kind: KindQuantityOverflow}
	ErrInvalidQuantity   = &DomainError{Kind: KindInvalidQuantity}
	ErrListLimitExceeded = &DomainError{Kind: KindListLimitExceeded}
	ErrUnsupportedTool   = &DomainError{Kind: KindUnsupportedTool}
	ErrInvalidArguments  = &DomainError{Kind: KindInvalidArguments}
	ErrItemNotFound      = &DomainError{Kind: KindItemNotFound}
	ErrListNotFound      = &DomainError{Kind: KindListNotFound}
	ErrListDeleted       = &DomainError{Kind: KindListDeleted}
	ErrDuplicateList     = &DomainError{Kind: KindDuplicateList}

	ErrNothingToUndo = &UndoError{Kind: KindNothingToUndo}
	ErrExpiredUndo   = &UndoError{Kind: KindExpiredUndo}

	ErrPersistence = &PersistenceError{}
)

// NewDomainError builds a DomainError with a formatted detail.
func NewDomainError(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
