// Package assistant is the single entry point for utterances: it runs
// text through normalization, interpretation, gating, dispatch and the
// list engine, and turns every result into an Outcome with a message.
package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/hammamikhairi/baskit/internal/conversation"
	"github.com/hammamikhairi/baskit/internal/dispatch"
	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/engine"
	"github.com/hammamikhairi/baskit/internal/lines"
	"github.com/hammamikhairi/baskit/internal/logger"
	"github.com/hammamikhairi/baskit/internal/resolve"
	"github.com/hammamikhairi/baskit/internal/textnorm"
)

// OutcomeKind says how an utterance ended.
type OutcomeKind int

const (
	Mutated OutcomeKind = iota
	NeedsClarification
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case Mutated:
		return "mutated"
	case NeedsClarification:
		return "needs_clarification"
	default:
		return "rejected"
	}
}

// Outcome is the result of one utterance. Event is set for Mutated,
// which also covers the read-only switch_list and show_list;
// Intent holds the best guess whenever one exists; ErrKind is set for
// Rejected.
type Outcome struct {
	Kind     OutcomeKind
	Event    *domain.DomainEvent
	Intent   *domain.Intent
	ErrKind  domain.ErrorKind
	Err      error
	Degraded bool
	Message  string
}

// Option configures the assistant.
type Option func(*Assistant)

// WithConfidenceThreshold sets the gate threshold.
func WithConfidenceThreshold(t float64) Option {
	return func(a *Assistant) { a.threshold = t }
}

// WithDefaultListName names the list created on first use.
func WithDefaultListName(name string) Option {
	return func(a *Assistant) { a.defaultList = name }
}

// WithContextTurns sets how many turns are sent with each request.
func WithContextTurns(n int) Option {
	return func(a *Assistant) { a.contextTurns = n }
}

// Assistant wires the pipeline together. Safe for concurrent use.
type Assistant struct {
	normalizer *textnorm.Normalizer
	resolver   *resolve.Resolver
	dispatcher *dispatch.Dispatcher
	engine     *engine.Engine
	sessions   *conversation.Sessions
	log        *logger.Logger

	threshold    float64
	defaultList  string
	contextTurns int
}

// New creates an assistant from its parts.
func New(
	normalizer *textnorm.Normalizer,
	resolver *resolve.Resolver,
	dispatcher *dispatch.Dispatcher,
	eng *engine.Engine,
	sessions *conversation.Sessions,
	log *logger.Logger,
	opts ...Option,
) *Assistant {
	a := &Assistant{
		normalizer:   normalizer,
		resolver:     resolver,
		dispatcher:   dispatcher,
		engine:       eng,
		sessions:     sessions,
		log:          log,
		threshold:    0.6,
		defaultList:  "רשימת קניות",
		contextTurns: 10,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open registers a session for owner. Sessions used without Open are
// owned by their own ID.
func (a *Assistant) Open(sessionID, owner string) *conversation.Session {
	return a.sessions.GetOrCreate(sessionID, owner)
}

func (a *Assistant) session(sessionID string) *conversation.Session {
	if s, ok := a.sessions.Get(sessionID); ok {
		return s
	}
	return a.sessions.GetOrCreate(sessionID, sessionID)
}

// HandleUtterance runs text for sessionID against listID, or against the
// session's active list when listID is empty. It never returns an error:
// every failure is a Rejected outcome.
func (a *Assistant) HandleUtterance(ctx context.Context, listID, text, sessionID string) Outcome {
	sess := a.session(sessionID)
	lang := lines.ParseLang(sess.Language())

	norm, err := a.normalizer.Normalize(text)
	if err != nil {
		a.log.Debug("assistant: rejected input %q: %v", text, err)
		return a.reject(lang, err, nil)
	}
	lang = lines.ParseLang(norm.Language)
	sess.SetLanguage(norm.Language)

	if listID == "" {
		l, err := a.activeList(ctx, sess)
		if err != nil {
			return a.reject(lang, err, nil)
		}
		listID = l.ID
	}

	req := domain.Request{
		Text:     norm.Value,
		Turns:    sess.Context.Turns(a.contextTurns),
		Language: norm.Language,
	}
	if l, err := a.engine.List(ctx, listID); err == nil {
		req.ListName = l.Name
	}

	res, err := a.resolver.Resolve(ctx, req, sess.Context.LastItem())
	if err != nil {
		sess.Context.Record(domain.Turn{Utterance: norm.Value, At: time.Now()})
		return a.reject(lang, err, nil)
	}

	in := res.Intent
	sess.Context.Record(domain.Turn{Utterance: norm.Value, Intent: &in, At: time.Now()})
	a.log.Info("assistant: %q -> %s (confidence %.2f, attempts %d, degraded %v)",
		norm.Value, in.Tool, in.Confidence, res.Attempts, res.Degraded)

	out := a.execute(ctx, sess, lang, listID, in)
	out.Degraded = res.Degraded
	if res.Degraded && out.Kind == Mutated {
		out.Message += " " + lines.Degraded(lang)
	}
	return out
}

// execute gates, dispatches and applies an intent.
func (a *Assistant) execute(ctx context.Context, sess *conversation.Session, lang lines.Lang, listID string, in domain.Intent) Outcome {
	if v := dispatch.Gate(in, a.threshold); v.NeedsClarification() {
		return a.clarify(lang, v.Intent)
	}

	target := listID
	if in.Args.ListName != "" && targetsNamedList(in.Tool) {
		l, err := a.engine.FindList(ctx, sess.Owner, in.Args.ListName)
		if err != nil {
			return a.reject(lang, err, &in)
		}
		target = l.ID
	}

	op, err := a.dispatcher.Dispatch(ctx, in, dispatch.Target{ListID: target, Owner: sess.Owner})
	if errors.Is(err, dispatch.ErrClarify) {
		return a.clarify(lang, in)
	}
	if err != nil {
		return a.reject(lang, err, &in)
	}

	ev, err := a.engine.Apply(ctx, target, op)
	if err != nil {
		return a.reject(lang, err, &in)
	}

	switch ev.Op {
	case domain.OpCreateList, domain.OpSwitchList:
		sess.SetActiveList(ev.ListID)
	case domain.OpDeleteList:
		if sess.ActiveList() == ev.ListID {
			sess.SetActiveList("")
		}
	}

	return Outcome{Kind: Mutated, Event: ev, Intent: &in, Message: lines.Mutated(lang, ev)}
}

// targetsNamedList reports whether a list name in the arguments selects
// the list the tool runs against.
func targetsNamedList(t domain.Tool) bool {
	switch t {
	case domain.ToolAddItem, domain.ToolRemoveItem, domain.ToolUpdateQuantity,
		domain.ToolReduceQuantity, domain.ToolMarkBought, domain.ToolDeleteList,
		domain.ToolShowList:
		return true
	default:
		return false
	}
}

func (a *Assistant) clarify(lang lines.Lang, in domain.Intent) Outcome {
	return Outcome{Kind: NeedsClarification, Intent: &in, Message: lines.Clarify(lang, in)}
}

func (a *Assistant) reject(lang lines.Lang, err error, guess *domain.Intent) Outcome {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		a.log.Error("assistant: %v", err)
	}
	return Outcome{
		Kind:    Rejected,
		Intent:  guess,
		ErrKind: kind,
		Err:     err,
		Message: lines.Rejected(lang, kind, guess),
	}
}

// Undo reverts the last mutation of listID, or of the session's active
// list when listID is empty.
func (a *Assistant) Undo(ctx context.Context, sessionID, listID string) Outcome {
	sess := a.session(sessionID)
	lang := lines.ParseLang(sess.Language())

	if listID == "" {
		listID = sess.ActiveList()
	}
	if listID == "" {
		return a.reject(lang, domain.ErrNothingToUndo, nil)
	}

	ev, err := a.engine.Undo(ctx, sess.Owner, listID)
	if err != nil {
		return a.reject(lang, err, nil)
	}
	if ev.After == nil || ev.After.Deleted {
		if sess.ActiveList() == listID {
			sess.SetActiveList("")
		}
	}
	return Outcome{Kind: Mutated, Event: ev, Message: lines.Mutated(lang, ev)}
}

// CreateList creates a list for the session owner and makes it active.
func (a *Assistant) CreateList(ctx context.Context, sessionID, name string) Outcome {
	sess := a.session(sessionID)
	lang := lines.ParseLang(sess.Language())

	ev, err := a.engine.Apply(ctx, "", domain.Operation{Kind: domain.OpCreateList, Owner: sess.Owner, ListName: name})
	if err != nil {
		return a.reject(lang, err, nil)
	}
	sess.SetActiveList(ev.ListID)
	return Outcome{Kind: Mutated, Event: ev, Message: lines.Mutated(lang, ev)}
}

// Lists returns the session owner's active lists.
func (a *Assistant) Lists(ctx context.Context, sessionID string) ([]*domain.List, error) {
	return a.engine.Lists(ctx, a.session(sessionID).Owner)
}

// ActiveList returns the session's active list, creating the default
// list when the owner has none.
func (a *Assistant) ActiveList(ctx context.Context, sessionID string) (*domain.List, error) {
	return a.activeList(ctx, a.session(sessionID))
}

// Language returns the language replies for sessionID use.
func (a *Assistant) Language(sessionID string) lines.Lang {
	return lines.ParseLang(a.session(sessionID).Language())
}

func (a *Assistant) activeList(ctx context.Context, sess *conversation.Session) (*domain.List, error) {
	if id := sess.ActiveList(); id != "" {
		l, err := a.engine.List(ctx, id)
		if err == nil && l.Active() {
			return l, nil
		}
		if err != nil && !errors.Is(err, domain.ErrListNotFound) {
			return nil, err
		}
	}

	lists, err := a.engine.Lists(ctx, sess.Owner)
	if err != nil {
		return nil, err
	}
	if len(lists) > 0 {
		sess.SetActiveList(lists[0].ID)
		return lists[0], nil
	}

	ev, err := a.engine.Apply(ctx, "", domain.Operation{Kind: domain.OpCreateList, Owner: sess.Owner, ListName: a.defaultList})
	if errors.Is(err, domain.ErrDuplicateList) {
		// Lost a race with another caller creating it.
		l, err := a.engine.FindList(ctx, sess.Owner, a.defaultList)
		if err != nil {
			return nil, err
		}
		sess.SetActiveList(l.ID)
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	a.log.Info("assistant: created default list %q for %s", a.defaultList, sess.Owner)
	sess.SetActiveList(ev.ListID)
	return ev.After, nil
}
