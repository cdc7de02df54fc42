package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hammamikhairi/baskit/internal/assistant"
	"github.com/hammamikhairi/baskit/internal/display"
	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/janitor"
	"github.com/hammamikhairi/baskit/internal/lines"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// runREPL owns the terminal until the user quits.
func runREPL(ctx context.Context, opts options) error {
	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Create the default list up front so the status bar and the first
	// utterance never race to create it.
	if _, err := a.assistant.ActiveList(ctx, a.session); err != nil {
		return fmt.Errorf("opening active list: %w", err)
	}

	sweeper := janitor.New(a.stacks, a.log.With("component", "janitor"),
		janitor.WithInterval(a.cfg.JanitorInterval))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	ui := display.NewUI(&statusSource{assistant: a.assistant, session: a.session, offline: a.offline})
	r := &repl{
		assistant: a.assistant,
		session:   a.session,
		offline:   a.offline,
		log:       a.log,
		ui:        ui,
	}

	fmt.Println(display.RenderBanner())
	fmt.Println(display.BannerStyle.Render("  " + lines.Help(lines.English)))
	fmt.Println()

	go func() {
		ui.WaitReady()
		r.run(ctx)
		ui.Quit()
	}()

	if err := ui.Run(); err != nil {
		a.log.Error("display: %v", err)
	}
	cancel()
	return nil
}

type repl struct {
	assistant *assistant.Assistant
	session   string
	offline   bool
	log       *logger.Logger
	ui        *display.UI
}

func (r *repl) lang() lines.Lang { return r.assistant.Language(r.session) }

func (r *repl) run(ctx context.Context) {
	r.ui.PrintChat(lines.Welcome(r.lang()))
	if r.offline {
		r.ui.PrintHint(lines.AIDisabled(r.lang()))
	}

	input := r.ui.InputChan()
	for {
		var text string
		select {
		case <-ctx.Done():
			return
		case t, ok := <-input:
			if !ok {
				return
			}
			text = strings.TrimSpace(t)
		}
		if text == "" {
			continue
		}
		if !r.handle(ctx, text) {
			r.ui.PrintChat(lines.Bye(r.lang()))
			return
		}
	}
}

// handle runs one line. It reports false when the user asked to quit.
func (r *repl) handle(ctx context.Context, text string) bool {
	switch strings.ToLower(text) {
	case "quit", "exit", "q", "יציאה", "צא":
		return false
	case "help", "?", "עזרה":
		r.ui.PrintHint(lines.Help(r.lang()))
		return true
	case "undo", "בטל":
		r.show(r.assistant.Undo(ctx, r.session, ""))
		return true
	case "list", "רשימה":
		r.showActive(ctx)
		return true
	case "lists", "רשימות":
		r.showAll(ctx)
		return true
	}

	r.show(r.assistant.HandleUtterance(ctx, "", text, r.session))
	return true
}

func (r *repl) show(out assistant.Outcome) {
	switch out.Kind {
	case assistant.Mutated:
		if out.Event != nil && out.Event.Op == domain.OpShowList {
			r.ui.PrintList(out.Message)
			break
		}
		r.ui.PrintChat(out.Message)
	case assistant.NeedsClarification:
		r.ui.PrintQuestion(out.Message)
	default:
		r.ui.PrintUrgent(out.Message)
	}
	r.log.Debug("outcome: %s (err=%v)", out.Kind, out.Err)
}

func (r *repl) showActive(ctx context.Context) {
	l, err := r.assistant.ActiveList(ctx, r.session)
	if err != nil {
		r.log.Error("active list: %v", err)
		r.ui.PrintUrgent(err.Error())
		return
	}
	r.ui.PrintList(lines.ListSummary(r.lang(), l))
}

func (r *repl) showAll(ctx context.Context) {
	lists, err := r.assistant.Lists(ctx, r.session)
	if err != nil {
		r.log.Error("lists: %v", err)
		r.ui.PrintUrgent(err.Error())
		return
	}
	if len(lists) == 0 {
		r.ui.PrintHint(lines.NoLists(r.lang()))
		return
	}
	for _, l := range lists {
		r.ui.PrintList(lines.ListSummary(r.lang(), l))
	}
}

// statusSource feeds the display status bar.
type statusSource struct {
	assistant *assistant.Assistant
	session   string
	offline   bool
}

func (s *statusSource) Status(ctx context.Context) (display.Status, error) {
	l, err := s.assistant.ActiveList(ctx, s.session)
	if err != nil {
		return display.Status{}, err
	}
	st := display.Status{List: l.Name, Offline: s.offline}
	for _, it := range l.ActiveItems() {
		st.Items++
		if it.Bought {
			st.Bought++
		}
	}
	return st, nil
}
