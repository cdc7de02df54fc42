package domain

import "time"

// List is a named shopping list owned by one user. A list exclusively
// owns its items.
type List struct {
	ID        string
	Name      string
	Key       string // folded name used for duplicate checks
	Owner     string
	Items     map[string]*Item
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is one line on a list.
type Item struct {
	ID        string
	ListID    string
	Name      string
	Key       string // folded name used for similarity
	Quantity  int
	Unit      string
	Deleted   bool
	Bought    bool
	BoughtAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the list, safe to mutate.
func (l *List) Clone() *List {
	if l == nil {
		return nil
	}
	cp := *l
	cp.Items = make(map[string]*Item, len(l.Items))
	for id, it := range l.Items {
		c := *it
		cp.Items[id] = &c
	}
	return &cp
}

// ActiveItems returns the non-deleted items. Order is unspecified.
func (l *List) ActiveItems() []*Item {
	out := make([]*Item, 0, len(l.Items))
	for _, it := range l.Items {
		if !it.Deleted {
			out = append(out, it)
		}
	}
	return out
}

// FindSimilar returns the first non-deleted item whose folded key equals
// key, or nil.
func (l *List) FindSimilar(key string) *Item {
	for _, it := range l.Items {
		if !it.Deleted && it.Key == key {
			return it
		}
	}
	return nil
}

// Active reports whether the list accepts mutations.
func (l *List) Active() bool { return !l.Deleted }
