// Package engine applies operations to shopping lists under their
// invariants and records an undoable event for every mutation.
package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
	"github.com/hammamikhairi/baskit/internal/textnorm"
	"github.com/hammamikhairi/baskit/internal/undo"
)

// OverflowPolicy decides what a merge does when the summed quantity
// passes the maximum.
type OverflowPolicy int

const (
	OverflowClamp OverflowPolicy = iota
	OverflowReject
)

// Option configures the engine.
type Option func(*Engine)

// WithMaxQuantity sets the per-item quantity cap.
func WithMaxQuantity(n int) Option {
	return func(e *Engine) { e.maxQuantity = n }
}

// WithMerging controls what happens when an added item is similar to an
// existing one: merge quantities, or keep a separate duplicate.
func WithMerging(autoMerge, allowDuplicates bool) Option {
	return func(e *Engine) {
		e.autoMerge = autoMerge
		e.allowDuplicates = allowDuplicates
	}
}

// WithOverflowPolicy sets the merge overflow policy.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(e *Engine) { e.overflow = p }
}

// WithSoftDelete keeps deleted lists as tombstones instead of purging.
func WithSoftDelete(on bool) Option {
	return func(e *Engine) { e.softDelete = on }
}

// WithMaxLists caps the active lists per owner.
func WithMaxLists(n int) Option {
	return func(e *Engine) { e.maxLists = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDs replaces the ID generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine owns list mutation. Operations on one list are serialized;
// different lists proceed independently.
type Engine struct {
	repo  domain.Repository
	undo  *undo.Manager
	log   *logger.Logger
	fold  func(string) string
	now   func() time.Time
	newID func() string

	listLocks  keyedLocks
	ownerLocks keyedLocks

	maxQuantity     int
	maxLists        int
	autoMerge       bool
	allowDuplicates bool
	overflow        OverflowPolicy
	softDelete      bool
}

// New creates an engine over repo, recording undo entries in stacks.
func New(repo domain.Repository, stacks *undo.Manager, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:        repo,
		undo:        stacks,
		log:         log,
		fold:        textnorm.Fold,
		now:         time.Now,
		newID:       uuid.NewString,
		maxQuantity: 99,
		maxLists:    10,
		autoMerge:   true,
		softDelete:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs op against listID and returns the event describing it.
// create_list ignores listID; switch_list and show_list read only and
// record neither an event nor an undo entry. Inverse kinds are rejected: they are reachable only via Undo.
func (e *Engine) Apply(ctx context.Context, listID string, op domain.Operation) (*domain.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if op.Kind == domain.OpUnknown || op.Kind.Inverse() {
		return nil, domain.NewDomainError(domain.KindUnsupportedTool, "%s", op.Kind)
	}

	switch op.Kind {
	case domain.OpCreateList:
		return e.createList(ctx, op)
	case domain.OpSwitchList:
		return e.switchList(ctx, op)
	case domain.OpShowList:
		return e.showList(ctx, listID, op)
	case domain.OpUpdateQuantity:
		if op.Quantity == 0 {
			op.Kind = domain.OpRemoveItem
		}
	}

	release, err := e.listLocks.acquire(ctx, listID)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.applyLocked(ctx, listID, op, nil)
}

// Undo reverts the most recent mutation of listID by applying its stored
// inverse. The result is a new event flagged as an undo. If the inverse
// cannot be applied the entry goes back on the stack. A non-empty owner
// must own the list, as with Apply.
func (e *Engine) Undo(ctx context.Context, owner, listID string) (*domain.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	release, err := e.listLocks.acquire(ctx, listID)
	if err != nil {
		return nil, err
	}
	defer release()

	if owner != "" {
		l, err := e.load(ctx, listID)
		switch {
		case err == nil:
			if l.Owner != owner {
				return nil, domain.NewDomainError(domain.KindListNotFound, "%s", listID)
			}
		case errors.Is(err, domain.ErrListNotFound):
			// Purged; the restore snapshot is checked in applyLocked.
		default:
			return nil, err
		}
	}

	entry, err := e.undo.Pop(listID)
	if err != nil {
		return nil, err
	}

	inverse := entry.Inverse
	inverse.Owner = owner
	ev, err := e.applyLocked(ctx, listID, inverse, entry.Event)
	if err != nil {
		e.undo.PushBack(listID, entry)
		return nil, err
	}
	e.log.Info("undid %s on list %s (event %s)", entry.Event.Op, listID, entry.Event.ID)
	return ev, nil
}

// UndoDepth returns how many undo entries listID holds.
func (e *Engine) UndoDepth(listID string) int {
	return e.undo.Len(listID)
}

// applyLocked mutates a copy of the stored list, persists it and records
// the event. reverts is the event being undone, nil for forward ops.
// The caller holds the list lock.
func (e *Engine) applyLocked(ctx context.Context, listID string, op domain.Operation, reverts *domain.DomainEvent) (*domain.DomainEvent, error) {
	before, err := e.load(ctx, listID)
	switch {
	case err == nil:
	case op.Kind == domain.OpRestoreList && errors.Is(err, domain.ErrListNotFound):
		// Undo of a purge: the list is gone and comes back from the snapshot.
	default:
		return nil, err
	}

	if before != nil {
		if op.Owner != "" && before.Owner != op.Owner {
			return nil, domain.NewDomainError(domain.KindListNotFound, "%s", listID)
		}
		if before.Deleted && op.Kind != domain.OpRestoreList {
			return nil, domain.NewDomainError(domain.KindListDeleted, "%q", before.Name)
		}
	}

	if op.Kind == domain.OpRestoreList {
		if op.List == nil {
			return nil, domain.NewDomainError(domain.KindInvalidArguments, "restore without snapshot")
		}
		if op.Owner != "" && op.List.Owner != op.Owner {
			return nil, domain.NewDomainError(domain.KindListNotFound, "%s", listID)
		}
		release, err := e.ownerLocks.acquire(ctx, op.List.Owner)
		if err != nil {
			return nil, err
		}
		defer release()
		if before == nil || before.Deleted {
			if err := e.checkRestore(ctx, op.List); err != nil {
				return nil, err
			}
		}
	}

	next := before.Clone()
	if next == nil {
		next = &domain.List{ID: listID, Items: make(map[string]*domain.Item)}
	}

	now := e.now()
	ch, err := e.mutate(next, op, now)
	if err != nil {
		return nil, err
	}

	var after *domain.List
	if !ch.purge {
		next.UpdatedAt = now
		after = next
	}

	ev := &domain.DomainEvent{
		ID:     e.newID(),
		Op:     op.Kind,
		ListID: listID,
		ItemID: ch.itemID,
		Before: before,
		After:  after.Clone(),
		At:     now,
		Actor:  actor(op, before, reverts),
	}
	if reverts != nil {
		ev.Undo = true
		ev.Reverts = reverts.ID
	}

	if err := e.commit(ctx, before, after, listID, ev); err != nil {
		return nil, err
	}

	switch {
	case reverts == nil:
		e.undo.Push(listID, ev, ch.inverse)
	case ch.purge:
		e.undo.Drop(listID)
	}

	e.log.Debug("applied %s to list %s (item=%s undo=%v)", op.Kind, listID, ch.itemID, ev.Undo)
	return ev, nil
}

func actor(op domain.Operation, before *domain.List, reverts *domain.DomainEvent) string {
	switch {
	case op.Owner != "":
		return op.Owner
	case reverts != nil && reverts.Actor != "":
		return reverts.Actor
	case before != nil:
		return before.Owner
	case op.List != nil:
		return op.List.Owner
	default:
		return ""
	}
}

// commit stores after (or deletes the list when after is nil) and
// appends the event. If the event cannot be recorded the stored list is
// put back to before.
func (e *Engine) commit(ctx context.Context, before, after *domain.List, listID string, ev *domain.DomainEvent) error {
	var err error
	if after == nil {
		err = e.repo.DeleteList(ctx, listID)
	} else {
		err = e.repo.SaveList(ctx, after)
	}
	if err != nil {
		return &domain.PersistenceError{Op: "save list", Err: err}
	}

	if err := e.repo.AppendEvent(ctx, ev); err != nil {
		e.rollback(ctx, before, listID)
		return &domain.PersistenceError{Op: "append event", Err: err}
	}
	return nil
}

func (e *Engine) rollback(ctx context.Context, before *domain.List, listID string) {
	rctx := context.WithoutCancel(ctx)
	var err error
	if before == nil {
		err = e.repo.DeleteList(rctx, listID)
	} else {
		err = e.repo.SaveList(rctx, before)
	}
	if err != nil {
		e.log.Error("rollback of list %s failed: %v", listID, err)
		return
	}
	e.log.Warn("rolled back list %s", listID)
}

func (e *Engine) load(ctx context.Context, id string) (*domain.List, error) {
	l, err := e.repo.LoadList(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewDomainError(domain.KindListNotFound, "%s", id)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load list", Err: err}
	}
	return l, nil
}

func (e *Engine) ownerLists(ctx context.Context, owner string) ([]*domain.List, error) {
	lists, err := e.repo.ListsByOwner(ctx, owner)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list lists", Err: err}
	}
	return lists, nil
}

// checkRestore applies the create_list rules to a list coming back from
// a snapshot: its name must be free and the owner under the cap.
func (e *Engine) checkRestore(ctx context.Context, l *domain.List) error {
	lists, err := e.ownerLists(ctx, l.Owner)
	if err != nil {
		return err
	}
	for _, other := range lists {
		if other.ID != l.ID && other.Active() && other.Key == l.Key {
			return domain.NewDomainError(domain.KindDuplicateList, "%q", other.Name)
		}
	}
	return e.checkListCap(ctx, l.Owner)
}

func (e *Engine) checkListCap(ctx context.Context, owner string) error {
	lists, err := e.ownerLists(ctx, owner)
	if err != nil {
		return err
	}
	active := 0
	for _, l := range lists {
		if l.Active() {
			active++
		}
	}
	if active >= e.maxLists {
		return domain.NewDomainError(domain.KindListLimitExceeded, "%d lists", active)
	}
	return nil
}

func (e *Engine) createList(ctx context.Context, op domain.Operation) (*domain.DomainEvent, error) {
	name := strings.TrimSpace(op.ListName)
	key := e.fold(name)
	if key == "" {
		return nil, domain.NewDomainError(domain.KindInvalidArguments, "empty list name")
	}

	release, err := e.ownerLocks.acquire(ctx, op.Owner)
	if err != nil {
		return nil, err
	}
	defer release()

	lists, err := e.ownerLists(ctx, op.Owner)
	if err != nil {
		return nil, err
	}
	for _, l := range lists {
		if l.Active() && l.Key == key {
			return nil, domain.NewDomainError(domain.KindDuplicateList, "%q", l.Name)
		}
	}
	if err := e.checkListCap(ctx, op.Owner); err != nil {
		return nil, err
	}

	now := e.now()
	l := &domain.List{
		ID:        e.newID(),
		Name:      name,
		Key:       key,
		Owner:     op.Owner,
		Items:     make(map[string]*domain.Item),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev := &domain.DomainEvent{
		ID:     e.newID(),
		Op:     domain.OpCreateList,
		ListID: l.ID,
		After:  l.Clone(),
		At:     now,
		Actor:  op.Owner,
	}
	if err := e.commit(ctx, nil, l, l.ID, ev); err != nil {
		return nil, err
	}
	e.undo.Push(l.ID, ev, domain.Operation{Kind: domain.OpPurgeList})

	e.log.Info("created list %q (%s) for %s", name, l.ID, op.Owner)
	return ev, nil
}

func (e *Engine) switchList(ctx context.Context, op domain.Operation) (*domain.DomainEvent, error) {
	l, err := e.FindList(ctx, op.Owner, op.ListName)
	if err != nil {
		return nil, err
	}
	return &domain.DomainEvent{
		ID:     e.newID(),
		Op:     domain.OpSwitchList,
		ListID: l.ID,
		Before: l,
		After:  l.Clone(),
		At:     e.now(),
		Actor:  op.Owner,
	}, nil
}

// showList reads listID, or owner's list named op.ListName when listID
// is empty.
func (e *Engine) showList(ctx context.Context, listID string, op domain.Operation) (*domain.DomainEvent, error) {
	var (
		l   *domain.List
		err error
	)
	if listID == "" {
		l, err = e.FindList(ctx, op.Owner, op.ListName)
	} else {
		l, err = e.load(ctx, listID)
	}
	if err != nil {
		return nil, err
	}
	if op.Owner != "" && l.Owner != op.Owner {
		return nil, domain.NewDomainError(domain.KindListNotFound, "%s", l.ID)
	}
	if l.Deleted {
		return nil, domain.NewDomainError(domain.KindListDeleted, "%q", l.Name)
	}
	return &domain.DomainEvent{
		ID:     e.newID(),
		Op:     domain.OpShowList,
		ListID: l.ID,
		Before: l,
		After:  l.Clone(),
		At:     e.now(),
		Actor:  op.Owner,
	}, nil
}

// FindList returns owner's active list whose folded name matches name.
func (e *Engine) FindList(ctx context.Context, owner, name string) (*domain.List, error) {
	key := e.fold(name)
	if key == "" {
		return nil, domain.NewDomainError(domain.KindInvalidArguments, "empty list name")
	}
	lists, err := e.ownerLists(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, l := range lists {
		if l.Active() && l.Key == key {
			return l, nil
		}
	}
	return nil, domain.NewDomainError(domain.KindListNotFound, "%q", name)
}

// Lists returns owner's active lists, oldest first.
func (e *Engine) Lists(ctx context.Context, owner string) ([]*domain.List, error) {
	lists, err := e.ownerLists(ctx, owner)
	if err != nil {
		return nil, err
	}
	active := slices.DeleteFunc(lists, func(l *domain.List) bool { return !l.Active() })
	slices.SortFunc(active, func(a, b *domain.List) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return active, nil
}

// List returns a list by ID, deleted or not.
func (e *Engine) List(ctx context.Context, id string) (*domain.List, error) {
	return e.load(ctx, id)
}
