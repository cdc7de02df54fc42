package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// ErrClarify is returned for clarify intents. They are never executed.
var ErrClarify = errors.New("dispatch: clarification requested")

// Target says whose list an intent applies to.
type Target struct {
	ListID string
	Owner  string
}

// Handler validates one tool's arguments and builds its operation.
type Handler func(ctx context.Context, in domain.Intent, t Target) (domain.Operation, error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each handler.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithDefaultUnit sets the unit for items that name none.
func WithDefaultUnit(unit string) Option {
	return func(d *Dispatcher) { d.defaultUnit = unit }
}

// WithHandler replaces the handler for one tool. The tool must already
// have a built-in handler.
func WithHandler(tool domain.Tool, h Handler) Option {
	return func(d *Dispatcher) { d.overrides = append(d.overrides, registration{tool, h}) }
}

type registration struct {
	tool    domain.Tool
	handler Handler
}

// Dispatcher maps each tool to exactly one handler.
type Dispatcher struct {
	handlers    map[domain.Tool]Handler
	overrides   []registration
	timeout     time.Duration
	defaultUnit string
	log         *logger.Logger
}

// New builds the handler table. It panics if a tool has no handler or
// more than one, since that is a programming error.
func New(log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		timeout:     5 * time.Second,
		defaultUnit: "יחידה",
		log:         log,
	}
	for _, o := range opts {
		o(d)
	}

	regs := []registration{
		{domain.ToolAddItem, d.addItem},
		{domain.ToolRemoveItem, d.removeItem},
		{domain.ToolUpdateQuantity, d.updateQuantity},
		{domain.ToolCreateList, d.createList},
		{domain.ToolSwitchList, d.switchList},
		{domain.ToolDeleteList, d.deleteList},
		{domain.ToolMarkBought, d.markBought},
		{domain.ToolReduceQuantity, d.reduceQuantity},
		{domain.ToolShowList, showList},
		{domain.ToolClarify, clarify},
	}
	d.handlers = buildTable(regs)
	for _, o := range d.overrides {
		if _, ok := d.handlers[o.tool]; !ok {
			panic(fmt.Sprintf("dispatch: override for unregistered tool %s", o.tool))
		}
		d.handlers[o.tool] = o.handler
	}
	d.overrides = nil
	return d
}

func buildTable(regs []registration) map[domain.Tool]Handler {
	table := make(map[domain.Tool]Handler, len(regs))
	for _, r := range regs {
		if _, dup := table[r.tool]; dup {
			panic(fmt.Sprintf("dispatch: tool %s registered twice", r.tool))
		}
		table[r.tool] = r.handler
	}
	for _, tool := range domain.Tools() {
		if _, ok := table[tool]; !ok {
			panic(fmt.Sprintf("dispatch: no handler for tool %s", tool))
		}
	}
	return table
}

// Dispatch validates in and returns the operation for the engine.
func (d *Dispatcher) Dispatch(ctx context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	h, ok := d.handlers[in.Tool]
	if !ok {
		return domain.Operation{}, domain.NewDomainError(domain.KindUnsupportedTool, "%s", in.Tool)
	}

	hctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	op, err := h(hctx, in, t)
	if err != nil {
		return domain.Operation{}, err
	}
	if err := hctx.Err(); err != nil {
		return domain.Operation{}, fmt.Errorf("dispatch %s: %w", in.Tool, err)
	}
	if op.Owner == "" {
		op.Owner = t.Owner
	}
	d.log.Debug("dispatch: %s -> %s", in.Tool, op.Kind)
	return op, nil
}

func invalid(tool domain.Tool, format string, args ...any) error {
	return domain.NewDomainError(domain.KindInvalidArguments, "%s: %s", tool, fmt.Sprintf(format, args...))
}

func (d *Dispatcher) itemName(in domain.Intent) (string, error) {
	name := strings.TrimSpace(in.Args.ItemName)
	if name == "" {
		return "", invalid(in.Tool, "item name required")
	}
	return name, nil
}

func (d *Dispatcher) unit(in domain.Intent) string {
	if u := strings.TrimSpace(in.Args.Unit); u != "" {
		return u
	}
	return d.defaultUnit
}

func (d *Dispatcher) addItem(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	name, err := d.itemName(in)
	if err != nil {
		return domain.Operation{}, err
	}
	qty := 1
	if in.Args.Quantity != nil {
		qty = *in.Args.Quantity
	}
	return domain.Operation{
		Kind:     domain.OpAddItem,
		Owner:    t.Owner,
		ItemName: name,
		Quantity: qty,
		Unit:     d.unit(in),
		ListName: in.Args.ListName,
	}, nil
}

func (d *Dispatcher) removeItem(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	name, err := d.itemName(in)
	if err != nil {
		return domain.Operation{}, err
	}
	return domain.Operation{Kind: domain.OpRemoveItem, Owner: t.Owner, ItemName: name, ListName: in.Args.ListName}, nil
}

func (d *Dispatcher) updateQuantity(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	name, err := d.itemName(in)
	if err != nil {
		return domain.Operation{}, err
	}
	if in.Args.Quantity == nil {
		return domain.Operation{}, invalid(in.Tool, "quantity required")
	}
	return domain.Operation{
		Kind:     domain.OpUpdateQuantity,
		Owner:    t.Owner,
		ItemName: name,
		Quantity: *in.Args.Quantity,
		Unit:     strings.TrimSpace(in.Args.Unit),
		ListName: in.Args.ListName,
	}, nil
}

func (d *Dispatcher) markBought(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	name, err := d.itemName(in)
	if err != nil {
		return domain.Operation{}, err
	}
	return domain.Operation{Kind: domain.OpMarkBought, Owner: t.Owner, ItemName: name, ListName: in.Args.ListName}, nil
}

// reduceQuantity takes one unit off when no quantity is given.
func (d *Dispatcher) reduceQuantity(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	name, err := d.itemName(in)
	if err != nil {
		return domain.Operation{}, err
	}
	qty := 1
	if in.Args.Quantity != nil {
		qty = *in.Args.Quantity
	}
	return domain.Operation{Kind: domain.OpReduceQuantity, Owner: t.Owner, ItemName: name, Quantity: qty, ListName: in.Args.ListName}, nil
}

func showList(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	if t.ListID == "" && strings.TrimSpace(in.Args.ListName) == "" {
		return domain.Operation{}, invalid(in.Tool, "no list to show")
	}
	return domain.Operation{Kind: domain.OpShowList, Owner: t.Owner, ListName: strings.TrimSpace(in.Args.ListName)}, nil
}

func (d *Dispatcher) listOp(kind domain.OpKind, in domain.Intent, t Target) (domain.Operation, error) {
	name := strings.TrimSpace(in.Args.ListName)
	if name == "" {
		return domain.Operation{}, invalid(in.Tool, "list name required")
	}
	return domain.Operation{Kind: kind, Owner: t.Owner, ListName: name}, nil
}

func (d *Dispatcher) createList(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	return d.listOp(domain.OpCreateList, in, t)
}

func (d *Dispatcher) switchList(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	return d.listOp(domain.OpSwitchList, in, t)
}

// deleteList defaults to the target list when no name is given.
func (d *Dispatcher) deleteList(_ context.Context, in domain.Intent, t Target) (domain.Operation, error) {
	name := strings.TrimSpace(in.Args.ListName)
	if name == "" && t.ListID == "" {
		return domain.Operation{}, invalid(in.Tool, "list name required")
	}
	return domain.Operation{Kind: domain.OpDeleteList, Owner: t.Owner, ListName: name}, nil
}

func clarify(context.Context, domain.Intent, Target) (domain.Operation, error) {
	return domain.Operation{}, ErrClarify
}
