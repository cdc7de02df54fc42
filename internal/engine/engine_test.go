package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
	"github.com/hammamikhairi/baskit/internal/storage"
	"github.com/hammamikhairi/baskit/internal/undo"
)

const owner = "dana"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyRepo fails AppendEvent or SaveList on demand.
type flakyRepo struct {
	*storage.MemoryStore
	failAppend bool
	failSave   bool
	appends    atomic.Int32
}

func (r *flakyRepo) SaveList(ctx context.Context, l *domain.List) error {
	if r.failSave {
		return errors.New("disk full")
	}
	return r.MemoryStore.SaveList(ctx, l)
}

func (r *flakyRepo) AppendEvent(ctx context.Context, ev *domain.DomainEvent) error {
	if r.failAppend {
		return errors.New("event log unavailable")
	}
	r.appends.Add(1)
	return r.MemoryStore.AppendEvent(ctx, ev)
}

type fixture struct {
	eng    *Engine
	repo   *flakyRepo
	stacks *undo.Manager
	clock  *clock
	ctx    context.Context
}

func setupEngine(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	c := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo := &flakyRepo{MemoryStore: storage.NewMemoryStore(log)}
	stacks := undo.New(5, 7*24*time.Hour, undo.WithClock(c.Now))
	var seq atomic.Int64
	ids := func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }
	eng := New(repo, stacks, log, append([]Option{WithClock(c.Now), WithIDs(ids)}, opts...)...)
	return &fixture{eng: eng, repo: repo, stacks: stacks, clock: c, ctx: context.Background()}
}

func (f *fixture) createList(t *testing.T, name string) string {
	t.Helper()
	ev, err := f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpCreateList, Owner: owner, ListName: name})
	if err != nil {
		t.Fatalf("create list %q: %v", name, err)
	}
	return ev.ListID
}

func (f *fixture) apply(t *testing.T, listID string, op domain.Operation) *domain.DomainEvent {
	t.Helper()
	op.Owner = owner
	ev, err := f.eng.Apply(f.ctx, listID, op)
	if err != nil {
		t.Fatalf("apply %s: %v", op.Kind, err)
	}
	return ev
}

func (f *fixture) load(t *testing.T, listID string) *domain.List {
	t.Helper()
	l, err := f.eng.List(f.ctx, listID)
	if err != nil {
		t.Fatalf("load %s: %v", listID, err)
	}
	return l
}

func add(name string, qty int) domain.Operation {
	return domain.Operation{Kind: domain.OpAddItem, ItemName: name, Quantity: qty, Unit: "יחידה"}
}

func TestAddSameItemTwiceMerges(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "רשימת קניות")

	f.apply(t, id, add("חלב", 1))
	f.apply(t, id, add("חלב", 1))

	items := f.load(t, id).ActiveItems()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Name != "חלב" || items[0].Quantity != 2 {
		t.Fatalf("expected חלב x2, got %s x%d", items[0].Name, items[0].Quantity)
	}
}

func TestAddMergesSimilarNames(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "בית")

	f.apply(t, id, add("עגבניה", 2))
	ev := f.apply(t, id, add("עגבניות", 3))

	items := f.load(t, id).ActiveItems()
	if len(items) != 1 || items[0].Quantity != 5 {
		t.Fatalf("expected one merged item with 5, got %+v", items)
	}
	if ev.ItemID != items[0].ID {
		t.Fatalf("event item %s, want %s", ev.ItemID, items[0].ID)
	}
}

func TestMergeOverflow(t *testing.T) {
	tests := []struct {
		name    string
		policy  OverflowPolicy
		adds    []int
		want    int
		wantErr error
	}{
		{"sum under cap", OverflowClamp, []int{4, 5}, 9, nil},
		{"exactly cap", OverflowClamp, []int{5, 5}, 10, nil},
		{"clamped", OverflowClamp, []int{8, 8}, 10, nil},
		{"rejected", OverflowReject, []int{8, 8}, 8, domain.ErrQuantityOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupEngine(t, WithMaxQuantity(10), WithOverflowPolicy(tt.policy))
			id := f.createList(t, "l")

			var err error
			for _, q := range tt.adds {
				_, err = f.eng.Apply(f.ctx, id, add("rice", q))
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			items := f.load(t, id).ActiveItems()
			if len(items) != 1 || items[0].Quantity != tt.want {
				t.Fatalf("expected one item with %d, got %+v", tt.want, items)
			}
		})
	}
}

func TestDuplicatesWithoutMerge(t *testing.T) {
	f := setupEngine(t, WithMerging(false, false))
	id := f.createList(t, "l")
	f.apply(t, id, add("milk", 1))

	_, err := f.eng.Apply(f.ctx, id, add("Milk", 1))
	if !errors.Is(err, domain.ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}

	f = setupEngine(t, WithMerging(false, true))
	id = f.createList(t, "l")
	f.apply(t, id, add("milk", 1))
	f.apply(t, id, add("milk", 1))
	if n := len(f.load(t, id).ActiveItems()); n != 2 {
		t.Fatalf("expected 2 separate items, got %d", n)
	}
}

func TestQuantityBounds(t *testing.T) {
	f := setupEngine(t, WithMaxQuantity(99))
	id := f.createList(t, "l")
	f.apply(t, id, add("eggs", 1))

	tests := []struct {
		name string
		op   domain.Operation
		want error
	}{
		{"add zero", add("bread", 0), domain.ErrInvalidQuantity},
		{"add negative", add("bread", -2), domain.ErrInvalidQuantity},
		{"add above max", add("bread", 100), domain.ErrInvalidQuantity},
		{"update above max", domain.Operation{Kind: domain.OpUpdateQuantity, ItemName: "eggs", Quantity: 100}, domain.ErrInvalidQuantity},
		{"update negative", domain.Operation{Kind: domain.OpUpdateQuantity, ItemName: "eggs", Quantity: -1}, domain.ErrInvalidQuantity},
		{"update missing", domain.Operation{Kind: domain.OpUpdateQuantity, ItemName: "cheese", Quantity: 3}, domain.ErrItemNotFound},
		{"remove missing", domain.Operation{Kind: domain.OpRemoveItem, ItemName: "cheese"}, domain.ErrItemNotFound},
		{"bought missing", domain.Operation{Kind: domain.OpMarkBought, ItemName: "cheese"}, domain.ErrItemNotFound},
		{"reduce by zero", domain.Operation{Kind: domain.OpReduceQuantity, ItemName: "eggs", Quantity: 0}, domain.ErrInvalidQuantity},
		{"reduce negative", domain.Operation{Kind: domain.OpReduceQuantity, ItemName: "eggs", Quantity: -3}, domain.ErrInvalidQuantity},
		{"reduce missing", domain.Operation{Kind: domain.OpReduceQuantity, ItemName: "cheese", Quantity: 1}, domain.ErrItemNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Apply(f.ctx, id, tt.op)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if got := f.load(t, id).ActiveItems()[0].Quantity; got != 1 {
		t.Fatalf("failed ops changed quantity to %d", got)
	}
}

func TestUpdateToZeroRemoves(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("eggs", 6))

	ev := f.apply(t, id, domain.Operation{Kind: domain.OpUpdateQuantity, ItemName: "eggs", Quantity: 0})
	if ev.Op != domain.OpRemoveItem {
		t.Fatalf("expected remove_item event, got %s", ev.Op)
	}
	if n := len(f.load(t, id).ActiveItems()); n != 0 {
		t.Fatalf("expected no active items, got %d", n)
	}
}

func TestReduceQuantity(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("עגבניות", 5))

	ev := f.apply(t, id, domain.Operation{Kind: domain.OpReduceQuantity, ItemName: "עגבניה", Quantity: 2})
	if ev.Op != domain.OpReduceQuantity {
		t.Fatalf("expected reduce_quantity event, got %s", ev.Op)
	}
	items := f.load(t, id).ActiveItems()
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("expected one item with 3, got %+v", items)
	}

	f.apply(t, id, domain.Operation{Kind: domain.OpReduceQuantity, ItemName: "עגבניות", Quantity: 3})
	if n := len(f.load(t, id).ActiveItems()); n != 0 {
		t.Fatalf("reducing to zero should remove the item, %d left", n)
	}
	it := f.load(t, id).Items[ev.ItemID]
	if !it.Deleted || it.Quantity != 3 {
		t.Fatalf("removed item should keep its last quantity, got %+v", it)
	}
}

func TestShowListReadsOnly(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "בית")
	f.apply(t, id, add("חלב", 2))
	depth := f.eng.UndoDepth(id)
	events, _ := f.repo.Events(f.ctx, id)

	ev, err := f.eng.Apply(f.ctx, id, domain.Operation{Kind: domain.OpShowList, Owner: owner})
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if ev.ListID != id || len(ev.After.ActiveItems()) != 1 {
		t.Fatalf("unexpected show event %+v", ev)
	}
	byName, err := f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpShowList, Owner: owner, ListName: "בית"})
	if err != nil || byName.ListID != id {
		t.Fatalf("show by name: %v %+v", err, byName)
	}
	if _, err := f.eng.Apply(f.ctx, id, domain.Operation{Kind: domain.OpShowList, Owner: "mallory"}); !errors.Is(err, domain.ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound for another owner, got %v", err)
	}

	after, _ := f.repo.Events(f.ctx, id)
	if f.eng.UndoDepth(id) != depth || len(after) != len(events) {
		t.Fatalf("show recorded an undo entry or event")
	}
}

func TestMarkBought(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("apples", 3))
	f.apply(t, id, domain.Operation{Kind: domain.OpMarkBought, ItemName: "apple"})

	it := f.load(t, id).ActiveItems()[0]
	if !it.Bought || it.BoughtAt.IsZero() {
		t.Fatalf("expected bought with timestamp, got %+v", it)
	}
}

// ignoreListStamp drops the list-level UpdatedAt, which every applied
// operation (undo included) refreshes.
var ignoreListStamp = cmpopts.IgnoreFields(domain.List{}, "UpdatedAt")

func TestUndoRestoresPreviousState(t *testing.T) {
	tests := []struct {
		name string
		op   domain.Operation
	}{
		{"add new item", add("bread", 2)},
		{"add merged item", add("milk", 3)},
		{"remove item", domain.Operation{Kind: domain.OpRemoveItem, ItemName: "milk"}},
		{"update quantity", domain.Operation{Kind: domain.OpUpdateQuantity, ItemName: "milk", Quantity: 7, Unit: "ליטר"}},
		{"update to zero", domain.Operation{Kind: domain.OpUpdateQuantity, ItemName: "milk", Quantity: 0}},
		{"mark bought", domain.Operation{Kind: domain.OpMarkBought, ItemName: "milk"}},
		{"reduce partly", domain.Operation{Kind: domain.OpReduceQuantity, ItemName: "milk", Quantity: 2}},
		{"reduce to nothing", domain.Operation{Kind: domain.OpReduceQuantity, ItemName: "milk", Quantity: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupEngine(t)
			id := f.createList(t, "l")
			f.apply(t, id, add("milk", 4))
			before := f.load(t, id)

			fwd := f.apply(t, id, tt.op)
			ev, err := f.eng.Undo(f.ctx, owner, id)
			if err != nil {
				t.Fatalf("undo: %v", err)
			}
			if !ev.Undo || ev.Reverts != fwd.ID {
				t.Fatalf("expected undo event reverting %s, got %+v", fwd.ID, ev)
			}

			if diff := cmp.Diff(before, f.load(t, id), ignoreListStamp); diff != "" {
				t.Errorf("list after undo differs (-before +after):\n%s", diff)
			}
		})
	}
}

func TestUndoCreateList(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "party")

	if _, err := f.eng.Undo(f.ctx, owner, id); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if _, err := f.eng.List(f.ctx, id); !errors.Is(err, domain.ErrListNotFound) {
		t.Fatalf("expected list gone, got %v", err)
	}
	if _, err := f.eng.Undo(f.ctx, owner, id); !errors.Is(err, domain.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestDeleteListCascadesAndUndoRestoresActiveItems(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("milk", 1))
	f.apply(t, id, add("bread", 1))
	f.apply(t, id, domain.Operation{Kind: domain.OpRemoveItem, ItemName: "bread"})
	before := f.load(t, id)

	f.apply(t, id, domain.Operation{Kind: domain.OpDeleteList})
	deleted := f.load(t, id)
	if !deleted.Deleted || len(deleted.ActiveItems()) != 0 {
		t.Fatalf("expected deleted list without active items, got %+v", deleted)
	}
	if _, err := f.eng.Apply(f.ctx, id, add("eggs", 1)); !errors.Is(err, domain.ErrListDeleted) {
		t.Fatalf("expected ErrListDeleted, got %v", err)
	}

	if _, err := f.eng.Undo(f.ctx, owner, id); err != nil {
		t.Fatalf("undo: %v", err)
	}
	restored := f.load(t, id)
	if diff := cmp.Diff(before, restored, ignoreListStamp); diff != "" {
		t.Errorf("restored list differs (-before +after):\n%s", diff)
	}
	active := restored.ActiveItems()
	if len(active) != 1 || active[0].Name != "milk" {
		t.Fatalf("expected only milk active, got %+v", active)
	}
}

func TestHardDeleteAndUndo(t *testing.T) {
	f := setupEngine(t, WithSoftDelete(false))
	id := f.createList(t, "l")
	f.apply(t, id, add("milk", 2))
	before := f.load(t, id)

	ev := f.apply(t, id, domain.Operation{Kind: domain.OpDeleteList})
	if ev.After != nil {
		t.Fatalf("purge event should have no after snapshot")
	}
	if _, err := f.eng.List(f.ctx, id); !errors.Is(err, domain.ErrListNotFound) {
		t.Fatalf("expected list purged, got %v", err)
	}

	if _, err := f.eng.Undo(f.ctx, owner, id); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if diff := cmp.Diff(before, f.load(t, id), ignoreListStamp); diff != "" {
		t.Errorf("restored list differs:\n%s", diff)
	}
}

func TestListLimit(t *testing.T) {
	f := setupEngine(t, WithMaxLists(2))
	f.createList(t, "a")
	f.createList(t, "b")

	_, err := f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpCreateList, Owner: owner, ListName: "c"})
	if !errors.Is(err, domain.ErrListLimitExceeded) {
		t.Fatalf("expected ErrListLimitExceeded, got %v", err)
	}
	lists, _ := f.eng.Lists(f.ctx, owner)
	if len(lists) != 2 {
		t.Fatalf("expected 2 lists, got %d", len(lists))
	}

	// Another owner is unaffected.
	if _, err := f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpCreateList, Owner: "yoni", ListName: "c"}); err != nil {
		t.Fatalf("other owner: %v", err)
	}
}

func TestUndoDeleteRespectsListLimit(t *testing.T) {
	f := setupEngine(t, WithMaxLists(1))
	a := f.createList(t, "a")
	f.apply(t, a, domain.Operation{Kind: domain.OpDeleteList})
	f.createList(t, "b")

	if _, err := f.eng.Undo(f.ctx, owner, a); !errors.Is(err, domain.ErrListLimitExceeded) {
		t.Fatalf("expected ErrListLimitExceeded, got %v", err)
	}
	if got := f.eng.UndoDepth(a); got != 2 {
		t.Fatalf("failed undo must keep its entry, depth=%d", got)
	}
}

func TestDuplicateListName(t *testing.T) {
	f := setupEngine(t)
	f.createList(t, "Party")

	_, err := f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpCreateList, Owner: owner, ListName: "party"})
	if !errors.Is(err, domain.ErrDuplicateList) {
		t.Fatalf("expected ErrDuplicateList, got %v", err)
	}
}

func TestSwitchListRecordsNoUndo(t *testing.T) {
	f := setupEngine(t)
	f.createList(t, "home")
	work := f.createList(t, "work")
	depth := f.eng.UndoDepth(work)

	ev, err := f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpSwitchList, Owner: owner, ListName: "WORK"})
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if ev.ListID != work {
		t.Fatalf("switched to %s, want %s", ev.ListID, work)
	}
	if f.eng.UndoDepth(work) != depth {
		t.Fatalf("switch pushed an undo entry")
	}

	_, err = f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpSwitchList, Owner: owner, ListName: "nowhere"})
	if !errors.Is(err, domain.ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound, got %v", err)
	}
}

func TestUndoStackCapAndExpiry(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	for i := range 8 {
		f.apply(t, id, add(fmt.Sprintf("item%d", i), 1))
	}
	if got := f.eng.UndoDepth(id); got != 5 {
		t.Fatalf("expected depth capped at 5, got %d", got)
	}

	f.clock.Advance(7 * 24 * time.Hour)
	if _, err := f.eng.Undo(f.ctx, owner, id); !errors.Is(err, domain.ErrExpiredUndo) {
		t.Fatalf("expected ErrExpiredUndo, got %v", err)
	}
	if _, err := f.eng.Undo(f.ctx, owner, id); !errors.Is(err, domain.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestSweptUndoReportsExpired(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("milk", 1))

	f.clock.Advance(8 * 24 * time.Hour)
	if n := f.stacks.Sweep(f.clock.Now()); n == 0 {
		t.Fatalf("sweep removed nothing")
	}
	if _, err := f.eng.Undo(f.ctx, owner, id); !errors.Is(err, domain.ErrExpiredUndo) {
		t.Fatalf("expected ErrExpiredUndo after sweep, got %v", err)
	}
	if _, err := f.eng.Undo(f.ctx, owner, id); !errors.Is(err, domain.ErrNothingToUndo) {
		t.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestForeignOwnerCannotUndo(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("milk", 1))
	depth := f.eng.UndoDepth(id)

	if _, err := f.eng.Undo(f.ctx, "mallory", id); !errors.Is(err, domain.ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound, got %v", err)
	}
	if got := f.eng.UndoDepth(id); got != depth {
		t.Fatalf("foreign undo consumed an entry, depth %d want %d", got, depth)
	}
	if n := len(f.load(t, id).ActiveItems()); n != 1 {
		t.Fatalf("foreign undo changed the list, %d items", n)
	}

	if _, err := f.eng.Undo(f.ctx, owner, id); err != nil {
		t.Fatalf("owner undo: %v", err)
	}
}

func TestUndoDeleteRefusesTakenName(t *testing.T) {
	f := setupEngine(t)
	old := f.createList(t, "בית")
	f.apply(t, old, domain.Operation{Kind: domain.OpDeleteList})
	fresh := f.createList(t, "בית")
	depth := f.eng.UndoDepth(old)

	if _, err := f.eng.Undo(f.ctx, owner, old); !errors.Is(err, domain.ErrDuplicateList) {
		t.Fatalf("expected ErrDuplicateList, got %v", err)
	}
	if got := f.eng.UndoDepth(old); got != depth {
		t.Fatalf("failed undo must keep its entry, depth %d want %d", got, depth)
	}

	lists, err := f.eng.Lists(f.ctx, owner)
	if err != nil {
		t.Fatalf("lists: %v", err)
	}
	if len(lists) != 1 || lists[0].ID != fresh {
		t.Fatalf("expected only the new list active, got %+v", lists)
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("milk", 1))
	before := f.load(t, id)
	depth := f.eng.UndoDepth(id)
	appends := f.repo.appends.Load()

	f.repo.failAppend = true
	_, err := f.eng.Apply(f.ctx, id, add("milk", 4))
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	f.repo.failAppend = false

	if diff := cmp.Diff(before, f.load(t, id)); diff != "" {
		t.Errorf("stored list not rolled back:\n%s", diff)
	}
	if f.eng.UndoDepth(id) != depth || f.repo.appends.Load() != appends {
		t.Fatalf("failed mutation left an undo entry or event")
	}

	f.repo.failSave = true
	if _, err := f.eng.Apply(f.ctx, id, add("bread", 1)); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence on save, got %v", err)
	}
	f.repo.failSave = false

	f.repo.failAppend = true
	_, err = f.eng.Apply(f.ctx, "", domain.Operation{Kind: domain.OpCreateList, Owner: owner, ListName: "ghost"})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence on create, got %v", err)
	}
	f.repo.failAppend = false
	if _, err := f.eng.FindList(f.ctx, owner, "ghost"); !errors.Is(err, domain.ErrListNotFound) {
		t.Fatalf("failed create left a list behind: %v", err)
	}
}

func TestEveryMutationAppendsOneEvent(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	f.apply(t, id, add("milk", 1))
	f.apply(t, id, add("milk", 1))
	f.apply(t, id, domain.Operation{Kind: domain.OpRemoveItem, ItemName: "milk"})
	if _, err := f.eng.Undo(f.ctx, owner, id); err != nil {
		t.Fatalf("undo: %v", err)
	}

	events, _ := f.repo.Events(f.ctx, id)
	want := []domain.OpKind{domain.OpCreateList, domain.OpAddItem, domain.OpAddItem, domain.OpRemoveItem, domain.OpRestoreItem}
	var got []domain.OpKind
	for _, ev := range events {
		got = append(got, ev.Op)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event log (-want +got):\n%s", diff)
	}
}

func TestInverseKindsAreInternal(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	for _, k := range []domain.OpKind{domain.OpUnknown, domain.OpRestoreItem, domain.OpPurgeItem, domain.OpRestoreList, domain.OpPurgeList} {
		if _, err := f.eng.Apply(f.ctx, id, domain.Operation{Kind: k}); !errors.Is(err, domain.ErrUnsupportedTool) {
			t.Fatalf("%s: expected ErrUnsupportedTool, got %v", k, err)
		}
	}
}

func TestForeignOwnerCannotMutate(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")

	_, err := f.eng.Apply(f.ctx, id, domain.Operation{Kind: domain.OpAddItem, Owner: "mallory", ItemName: "x", Quantity: 1})
	if !errors.Is(err, domain.ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound, got %v", err)
	}
}

func TestConcurrentAddsAreSerialized(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")
	other := f.createList(t, "other")

	var g errgroup.Group
	for i := range 40 {
		target := id
		if i%2 == 1 {
			target = other
		}
		g.Go(func() error {
			_, err := f.eng.Apply(f.ctx, target, domain.Operation{Kind: domain.OpAddItem, Owner: owner, ItemName: "ביצים", Quantity: 1})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent add: %v", err)
	}

	for _, lid := range []string{id, other} {
		items := f.load(t, lid).ActiveItems()
		if len(items) != 1 || items[0].Quantity != 20 {
			t.Fatalf("list %s: expected one item with 20, got %+v", lid, items)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	f := setupEngine(t)
	id := f.createList(t, "l")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.eng.Apply(ctx, id, add("milk", 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := len(f.load(t, id).ActiveItems()); n != 0 {
		t.Fatalf("canceled apply mutated the list")
	}
}
