package engine

import (
	"time"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// change is what a pure mutation did to a cloned list.
type change struct {
	itemID  string
	inverse domain.Operation
	purge   bool // the list must be removed from the repository
}

// mutate applies op to l, which the caller owns. It performs no I/O.
func (e *Engine) mutate(l *domain.List, op domain.Operation, now time.Time) (change, error) {
	switch op.Kind {
	case domain.OpAddItem:
		return e.addItem(l, op, now)
	case domain.OpRemoveItem:
		return e.removeItem(l, op, now)
	case domain.OpUpdateQuantity:
		return e.updateQuantity(l, op, now)
	case domain.OpMarkBought:
		return e.markBought(l, op, now)
	case domain.OpReduceQuantity:
		return e.reduceQuantity(l, op, now)
	case domain.OpDeleteList:
		return e.deleteList(l, now)
	case domain.OpRestoreItem:
		return restoreItem(l, op)
	case domain.OpPurgeItem:
		return purgeItem(l, op)
	case domain.OpRestoreList:
		return restoreList(l, op)
	case domain.OpPurgeList:
		return change{purge: true}, nil
	default:
		return change{}, domain.NewDomainError(domain.KindUnsupportedTool, "%s", op.Kind)
	}
}

func (e *Engine) checkQuantity(q int) error {
	if q < 1 || q > e.maxQuantity {
		return domain.NewDomainError(domain.KindInvalidQuantity, "%d not in [1, %d]", q, e.maxQuantity)
	}
	return nil
}

func (e *Engine) similar(l *domain.List, name string) (*domain.Item, error) {
	key := e.fold(name)
	if key == "" {
		return nil, domain.NewDomainError(domain.KindInvalidArguments, "empty item name")
	}
	it := l.FindSimilar(key)
	if it == nil {
		return nil, domain.NewDomainError(domain.KindItemNotFound, "%q", name)
	}
	return it, nil
}

func snapshot(it *domain.Item) *domain.Item {
	cp := *it
	return &cp
}

func restoreOf(it *domain.Item) domain.Operation {
	return domain.Operation{Kind: domain.OpRestoreItem, ItemID: it.ID, Item: snapshot(it)}
}

func (e *Engine) addItem(l *domain.List, op domain.Operation, now time.Time) (change, error) {
	if err := e.checkQuantity(op.Quantity); err != nil {
		return change{}, err
	}
	key := e.fold(op.ItemName)
	if key == "" {
		return change{}, domain.NewDomainError(domain.KindInvalidArguments, "empty item name")
	}

	if existing := l.FindSimilar(key); existing != nil {
		switch {
		case e.autoMerge:
			inv := restoreOf(existing)
			sum := existing.Quantity + op.Quantity
			if sum > e.maxQuantity {
				if e.overflow == OverflowReject {
					return change{}, domain.NewDomainError(domain.KindQuantityOverflow,
						"%s: %d + %d exceeds %d", existing.Name, existing.Quantity, op.Quantity, e.maxQuantity)
				}
				sum = e.maxQuantity
			}
			existing.Quantity = sum
			existing.UpdatedAt = now
			return change{itemID: existing.ID, inverse: inv}, nil
		case !e.allowDuplicates:
			return change{}, domain.NewDomainError(domain.KindDuplicateItem, "%q", existing.Name)
		}
	}

	it := &domain.Item{
		ID:        e.newID(),
		ListID:    l.ID,
		Name:      op.ItemName,
		Key:       key,
		Quantity:  op.Quantity,
		Unit:      op.Unit,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.Items[it.ID] = it
	return change{itemID: it.ID, inverse: domain.Operation{Kind: domain.OpPurgeItem, ItemID: it.ID}}, nil
}

func (e *Engine) removeItem(l *domain.List, op domain.Operation, now time.Time) (change, error) {
	it, err := e.similar(l, op.ItemName)
	if err != nil {
		return change{}, err
	}
	inv := restoreOf(it)
	it.Deleted = true
	it.UpdatedAt = now
	return change{itemID: it.ID, inverse: inv}, nil
}

func (e *Engine) updateQuantity(l *domain.List, op domain.Operation, now time.Time) (change, error) {
	if err := e.checkQuantity(op.Quantity); err != nil {
		return change{}, err
	}
	it, err := e.similar(l, op.ItemName)
	if err != nil {
		return change{}, err
	}
	inv := restoreOf(it)
	it.Quantity = op.Quantity
	if op.Unit != "" {
		it.Unit = op.Unit
	}
	it.UpdatedAt = now
	return change{itemID: it.ID, inverse: inv}, nil
}

// reduceQuantity takes op.Quantity units off an item. Reaching zero
// removes the item and leaves its last quantity in place.
func (e *Engine) reduceQuantity(l *domain.List, op domain.Operation, now time.Time) (change, error) {
	if err := e.checkQuantity(op.Quantity); err != nil {
		return change{}, err
	}
	it, err := e.similar(l, op.ItemName)
	if err != nil {
		return change{}, err
	}
	inv := restoreOf(it)
	if left := it.Quantity - op.Quantity; left > 0 {
		it.Quantity = left
	} else {
		it.Deleted = true
	}
	it.UpdatedAt = now
	return change{itemID: it.ID, inverse: inv}, nil
}

func (e *Engine) markBought(l *domain.List, op domain.Operation, now time.Time) (change, error) {
	it, err := e.similar(l, op.ItemName)
	if err != nil {
		return change{}, err
	}
	inv := restoreOf(it)
	it.Bought = true
	it.BoughtAt = now
	it.UpdatedAt = now
	return change{itemID: it.ID, inverse: inv}, nil
}

// deleteList soft-deletes the list and cascades to its active items, or
// marks it for purging when soft delete is off. The inverse carries the
// whole pre-delete list, so undo brings back exactly the items that were
// active before.
func (e *Engine) deleteList(l *domain.List, now time.Time) (change, error) {
	inv := domain.Operation{Kind: domain.OpRestoreList, List: l.Clone()}
	if !e.softDelete {
		return change{inverse: inv, purge: true}, nil
	}
	l.Deleted = true
	l.UpdatedAt = now
	for _, it := range l.Items {
		if !it.Deleted {
			it.Deleted = true
			it.UpdatedAt = now
		}
	}
	return change{inverse: inv}, nil
}

func restoreItem(l *domain.List, op domain.Operation) (change, error) {
	if op.Item == nil {
		return change{}, domain.NewDomainError(domain.KindInvalidArguments, "restore without snapshot")
	}
	l.Items[op.Item.ID] = snapshot(op.Item)
	return change{itemID: op.Item.ID}, nil
}

func purgeItem(l *domain.List, op domain.Operation) (change, error) {
	if _, ok := l.Items[op.ItemID]; !ok {
		return change{}, domain.NewDomainError(domain.KindItemNotFound, "id %s", op.ItemID)
	}
	delete(l.Items, op.ItemID)
	return change{itemID: op.ItemID}, nil
}

func restoreList(l *domain.List, op domain.Operation) (change, error) {
	if op.List == nil {
		return change{}, domain.NewDomainError(domain.KindInvalidArguments, "restore without snapshot")
	}
	*l = *op.List.Clone()
	return change{}, nil
}
