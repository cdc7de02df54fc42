package domain

// Tool is one member of the closed set of operations the interpreter may
// select.
type Tool int

const (
	ToolUnknown Tool = iota
	ToolAddItem
	ToolRemoveItem
	ToolUpdateQuantity
	ToolCreateList
	ToolSwitchList
	ToolDeleteList
	ToolMarkBought
	ToolReduceQuantity
	ToolShowList
	ToolClarify // ask the user to rephrase, never executed
)

// String returns the snake_case wire name of the tool.
func (t Tool) String() string {
	switch t {
	case ToolAddItem:
		return "add_item"
	case ToolRemoveItem:
		return "remove_item"
	case ToolUpdateQuantity:
		return "update_quantity"
	case ToolCreateList:
		return "create_list"
	case ToolSwitchList:
		return "switch_list"
	case ToolDeleteList:
		return "delete_list"
	case ToolMarkBought:
		return "mark_bought"
	case ToolReduceQuantity:
		return "reduce_quantity"
	case ToolShowList:
		return "show_list"
	case ToolClarify:
		return "clarify"
	default:
		return "unknown"
	}
}

// toolNames maps wire names to Tool values.
var toolNames = map[string]Tool{
	"add_item":        ToolAddItem,
	"remove_item":     ToolRemoveItem,
	"update_quantity": ToolUpdateQuantity,
	"create_list":     ToolCreateList,
	"switch_list":     ToolSwitchList,
	"delete_list":     ToolDeleteList,
	"mark_bought":     ToolMarkBought,
	"reduce_quantity": ToolReduceQuantity,
	"show_list":       ToolShowList,
	"clarify":         ToolClarify,
}

// ToolFromString converts a wire name to a Tool. The second result is
// false for names outside the closed set.
func ToolFromString(name string) (Tool, bool) {
	t, ok := toolNames[name]
	return t, ok
}

// Tools returns every known tool in declaration order.
func Tools() []Tool {
	return []Tool{
		ToolAddItem,
		ToolRemoveItem,
		ToolUpdateQuantity,
		ToolCreateList,
		ToolSwitchList,
		ToolDeleteList,
		ToolMarkBought,
		ToolReduceQuantity,
		ToolShowList,
		ToolClarify,
	}
}

// Args holds the structured arguments of an intent. Unused fields stay
// zero; Quantity is nil when the user did not say one.
type Args struct {
	ItemName string
	Quantity *int
	Unit     string
	ListName string
	Question string
}

// Intent is the structured interpretation of one utterance.
type Intent struct {
	Tool       Tool
	Args       Args
	Confidence float64
	Utterance  string
	Degraded   bool   // produced by the rule parser, not the NLU service
	Source     string // provider name or "fallback"
}

// SourceFallback marks intents produced by the rule parser.
const SourceFallback = "fallback"

// Qty returns a pointer to n, for building Args literals.
func Qty(n int) *int { return &n }
