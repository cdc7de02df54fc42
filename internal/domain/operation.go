package domain

// OpKind identifies what an Operation does to a list.
type OpKind int

const (
	OpUnknown OpKind = iota
	OpAddItem
	OpRemoveItem
	OpUpdateQuantity
	OpCreateList
	OpSwitchList
	OpDeleteList
	OpMarkBought
	OpReduceQuantity
	OpShowList

	// Inverse kinds, only produced by the engine for undo.
	OpRestoreItem
	OpPurgeItem
	OpRestoreList
	OpPurgeList
)

// String returns a snake_case name.
func (k OpKind) String() string {
	switch k {
	case OpAddItem:
		return "add_item"
	case OpRemoveItem:
		return "remove_item"
	case OpUpdateQuantity:
		return "update_quantity"
	case OpCreateList:
		return "create_list"
	case OpSwitchList:
		return "switch_list"
	case OpDeleteList:
		return "delete_list"
	case OpMarkBought:
		return "mark_bought"
	case OpReduceQuantity:
		return "reduce_quantity"
	case OpShowList:
		return "show_list"
	case OpRestoreItem:
		return "restore_item"
	case OpPurgeItem:
		return "purge_item"
	case OpRestoreList:
		return "restore_list"
	case OpPurgeList:
		return "purge_list"
	default:
		return "unknown"
	}
}

// opNames maps names back to kinds, used when decoding stored events.
var opNames = map[string]OpKind{
	"add_item":        OpAddItem,
	"remove_item":     OpRemoveItem,
	"update_quantity": OpUpdateQuantity,
	"create_list":     OpCreateList,
	"switch_list":     OpSwitchList,
	"delete_list":     OpDeleteList,
	"mark_bought":     OpMarkBought,
	"reduce_quantity": OpReduceQuantity,
	"show_list":       OpShowList,
	"restore_item":    OpRestoreItem,
	"purge_item":      OpPurgeItem,
	"restore_list":    OpRestoreList,
	"purge_list":      OpPurgeList,
}

// OpKindFromString converts a name to an OpKind, OpUnknown if unrecognized.
func OpKindFromString(name string) OpKind {
	return opNames[name]
}

// Inverse reports whether the kind is only reachable through undo.
func (k OpKind) Inverse() bool {
	return k >= OpRestoreItem
}

// Operation is a validated instruction for the engine.
type Operation struct {
	Kind     OpKind
	Owner    string
	ItemName string
	Quantity int
	Unit     string
	ListName string

	// Snapshots carried by inverse operations.
	ItemID string
	Item   *Item
	List   *List
}
