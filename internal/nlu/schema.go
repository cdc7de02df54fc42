package nlu

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// SchemaVersion identifies the tool schema sent to providers. Bump it
// whenever a tool or argument changes.
const SchemaVersion = "baskit-tools/3"

// Parameter types, named as in JSON Schema.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
)

// ParamSpec describes one tool argument.
type ParamSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Tool        domain.Tool
	Description string
	Params      []ParamSpec
}

var (
	pItem     = ParamSpec{"item_name", TypeString, "Item name, singular, in the user's language (e.g. עגבניה)", true}
	pItemOpt  = ParamSpec{"item_name", TypeString, "Item name in the user's language", false}
	pQty      = ParamSpec{"quantity", TypeInteger, "Number of units, 1 to 99", false}
	pQtyReq   = ParamSpec{"quantity", TypeInteger, "New quantity, 0 removes the item", true}
	pQtyLess  = ParamSpec{"quantity", TypeInteger, "Units to take off, default 1; reaching 0 removes the item", false}
	pUnit     = ParamSpec{"unit", TypeString, "Unit of measure (e.g. יחידה, ק\"ג, ליטר)", false}
	pList     = ParamSpec{"list_name", TypeString, "List name", true}
	pListOpt  = ParamSpec{"list_name", TypeString, "Target list, when not the current one", false}
	pQuestion = ParamSpec{"question", TypeString, "Short question asking the user to clarify", true}
	pConf     = ParamSpec{"confidence", TypeNumber, "Your confidence in this interpretation, 0 to 1", true}
)

var schema = []ToolSpec{
	{domain.ToolAddItem, "Add an item to the shopping list", []ParamSpec{pItem, pQty, pUnit, pListOpt, pConf}},
	{domain.ToolRemoveItem, "Remove an item from the shopping list", []ParamSpec{pItem, pListOpt, pConf}},
	{domain.ToolUpdateQuantity, "Set the quantity of an item already on the list", []ParamSpec{pItem, pQtyReq, pListOpt, pConf}},
	{domain.ToolCreateList, "Create a new shopping list", []ParamSpec{pList, pConf}},
	{domain.ToolSwitchList, "Make another list the current one", []ParamSpec{pList, pConf}},
	{domain.ToolDeleteList, "Delete a shopping list", []ParamSpec{pList, pConf}},
	{domain.ToolMarkBought, "Mark an item as bought", []ParamSpec{pItem, pListOpt, pConf}},
	{domain.ToolReduceQuantity, "Take some units of an item off the list without removing all of it", []ParamSpec{pItem, pQtyLess, pListOpt, pConf}},
	{domain.ToolShowList, "Show what is on the list", []ParamSpec{pListOpt, pConf}},
	{domain.ToolClarify, "Ask the user to clarify when the request is ambiguous or not about shopping", []ParamSpec{pQuestion, pItemOpt, pConf}},
}

// Schema returns the tool specs, one per tool in domain.Tools.
func Schema() []ToolSpec {
	out := make([]ToolSpec, len(schema))
	copy(out, schema)
	return out
}

// jsonSchema renders the parameters as a JSON Schema object.
func (t ToolSpec) jsonSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	var required []string
	for _, p := range t.Params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		switch p.Name {
		case "quantity":
			prop["minimum"] = 0
		case "confidence":
			prop["minimum"] = 0
			prop["maximum"] = 1
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// decodedCall is a tool call whose arguments passed validation.
type decodedCall struct {
	tool       domain.Tool
	args       domain.Args
	confidence *float64
}

// decodeCall validates a provider tool call against the schema. Unknown
// names give UnknownTool; bad argument types give Malformed.
func decodeCall(name string, raw map[string]any) (decodedCall, error) {
	tool, ok := domain.ToolFromString(name)
	if !ok {
		return decodedCall{}, &domain.NLUError{Kind: domain.KindUnknownTool, Err: fmt.Errorf("tool %q", name)}
	}

	// Some models send "name" for the item.
	if _, ok := raw["item_name"]; !ok {
		if v, ok := raw["name"]; ok {
			raw["item_name"] = v
		}
	}

	var dc decodedCall
	dc.tool = tool
	var err error

	if dc.args.ItemName, err = stringArg(raw, "item_name"); err != nil {
		return dc, err
	}
	if dc.args.Unit, err = stringArg(raw, "unit"); err != nil {
		return dc, err
	}
	if dc.args.ListName, err = stringArg(raw, "list_name"); err != nil {
		return dc, err
	}
	if dc.args.Question, err = stringArg(raw, "question"); err != nil {
		return dc, err
	}
	if v, ok := raw["quantity"]; ok && v != nil {
		q, err := intValue(v)
		if err != nil {
			return dc, malformed("quantity: %v", err)
		}
		dc.args.Quantity = &q
	}
	if v, ok := raw["confidence"]; ok && v != nil {
		c, err := floatValue(v)
		if err != nil {
			return dc, malformed("confidence: %v", err)
		}
		c = math.Max(0, math.Min(1, c))
		dc.confidence = &c
	}
	return dc, nil
}

// decodeJSONCall parses a JSON-encoded argument string first.
func decodeJSONCall(name, arguments string) (decodedCall, error) {
	raw := map[string]any{}
	if s := strings.TrimSpace(arguments); s != "" {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return decodedCall{}, malformed("arguments for %s: %v", name, err)
		}
	}
	return decodeCall(name, raw)
}

func malformed(format string, args ...any) error {
	return &domain.NLUError{Kind: domain.KindMalformed, Err: fmt.Errorf(format, args...)}
}

func stringArg(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed("%s: want string, got %T", key, v)
	}
	return strings.TrimSpace(s), nil
}

func intValue(v any) (int, error) {
	f, err := floatValue(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", f)
	}
	if math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("out of range: %v", f)
	}
	return int(f), nil
}

func floatValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}

// temperatureConfidence is used when the model omits a confidence.
func temperatureConfidence(temperature float64) float64 {
	return math.Max(0, math.Min(1, 1-0.5*temperature))
}
