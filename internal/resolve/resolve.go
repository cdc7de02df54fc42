// Package resolve turns text into an intent, calling the language service
// under a bounded retry policy and falling back to the rule parser when
// the service keeps failing.
package resolve

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

// Phase is the resolver state.
type Phase int

const (
	PhaseAttempt Phase = iota
	PhaseFallback
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseAttempt:
		return "attempt"
	case PhaseFallback:
		return "fallback"
	default:
		return "done"
	}
}

// State is a point in the retry state machine. N counts attempts from 1.
type State struct {
	Phase Phase
	N     int
}

// Result classifies what happened in the current state.
type Result int

const (
	ResultOK Result = iota
	ResultTransient
	ResultFatal
)

// Next is the transition table. It is pure: the resolver performs the
// side effects each state implies.
//
//	Attempt(n) + ok                   -> Done
//	Attempt(n) + transient, n < max   -> Attempt(n+1)
//	Attempt(n) + transient, n == max  -> Fallback
//	Attempt(n) + fatal                -> Done
//	Fallback   + any                  -> Done
func Next(s State, r Result, maxAttempts int) State {
	switch s.Phase {
	case PhaseAttempt:
		switch r {
		case ResultTransient:
			if s.N < maxAttempts {
				return State{Phase: PhaseAttempt, N: s.N + 1}
			}
			return State{Phase: PhaseFallback, N: s.N}
		default:
			return State{Phase: PhaseDone, N: s.N}
		}
	default:
		return State{Phase: PhaseDone, N: s.N}
	}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Intent   domain.Intent
	Attempts int   // calls made to the language service
	Degraded bool  // the intent came from the rule parser
	LastErr  error // last service error, nil on a clean success
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxAttempts bounds calls to the service.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) { r.maxAttempts = n }
}

// WithAttemptTimeout bounds each call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.attemptTimeout = d }
}

// WithBackoff sets the delay between attempts. Exponential doubles the
// delay per retry up to maxDelay and adds up to 25% jitter.
func WithBackoff(delay, maxDelay time.Duration, exponential bool) Option {
	return func(r *Resolver) {
		r.delay = delay
		r.maxDelay = maxDelay
		r.exponential = exponential
	}
}

// WithSleep replaces the wait between attempts, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Resolver) { r.sleep = sleep }
}

// Resolver runs the retry state machine.
type Resolver struct {
	gateway        domain.Interpreter // nil disables the service
	fallback       domain.FallbackParser
	log            *logger.Logger
	maxAttempts    int
	attemptTimeout time.Duration
	delay          time.Duration
	maxDelay       time.Duration
	exponential    bool
	sleep          func(ctx context.Context, d time.Duration) error
}

// New creates a Resolver. gateway may be nil, in which case every
// utterance goes straight to the fallback parser.
func New(gateway domain.Interpreter, fallback domain.FallbackParser, log *logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		gateway:        gateway,
		fallback:       fallback,
		log:            log,
		maxAttempts:    3,
		attemptTimeout: 10 * time.Second,
		delay:          time.Second,
		maxDelay:       8 * time.Second,
		exponential:    true,
		sleep:          sleepCtx,
	}
	for _, o := range opts {
		o(r)
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	return r
}

// Resolve interprets req.Text. It always yields an intent unless the
// service reports a fatal error (Unauthorized, Malformed, UnknownTool) or
// ctx is canceled. lastItem feeds pronoun resolution in the fallback.
func (r *Resolver) Resolve(ctx context.Context, req domain.Request, lastItem string) (Resolution, error) {
	var res Resolution

	state := State{Phase: PhaseAttempt, N: 1}
	if r.gateway == nil {
		state = State{Phase: PhaseFallback}
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch state.Phase {
		case PhaseAttempt:
			in, err := r.attempt(ctx, req)
			res.Attempts = state.N
			result := r.classify(err)

			switch result {
			case ResultOK:
				res.Intent = in
				res.LastErr = nil
			case ResultTransient:
				res.LastErr = err
				r.log.Warn("resolve: attempt %d/%d failed: %v", state.N, r.maxAttempts, err)
			case ResultFatal:
				if ctxErr := ctx.Err(); ctxErr != nil {
					return res, ctxErr
				}
				r.log.Error("resolve: fatal service error: %v", err)
				return res, err
			}

			next := Next(state, result, r.maxAttempts)
			if next.Phase == PhaseAttempt {
				if err := r.sleep(ctx, r.backoff(state.N)); err != nil {
					return res, err
				}
			}
			state = next

		case PhaseFallback:
			res.Intent = r.fallback.Parse(req.Text, lastItem)
			res.Degraded = true
			if r.gateway != nil {
				r.log.Info("resolve: falling back to rule parser after %d attempts", res.Attempts)
			}
			state = Next(state, ResultOK, r.maxAttempts)

		case PhaseDone:
			return res, nil
		}
	}
}

func (r *Resolver) attempt(ctx context.Context, req domain.Request) (domain.Intent, error) {
	actx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	in, err := r.gateway.Interpret(actx, req)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		var nluErr *domain.NLUError
		if !errors.As(err, &nluErr) {
			err = &domain.NLUError{Kind: domain.KindTimeout, Err: err}
		}
	}
	return in, err
}

// classify maps a gateway error to a transition input. Anything outside
// the NLU taxonomy is treated as unavailable.
func (r *Resolver) classify(err error) Result {
	if err == nil {
		return ResultOK
	}
	if errors.Is(err, context.Canceled) {
		return ResultFatal
	}
	var nluErr *domain.NLUError
	if errors.As(err, &nluErr) {
		if nluErr.Transient() {
			return ResultTransient
		}
		return ResultFatal
	}
	return ResultTransient
}

// backoff returns the wait after attempt n.
func (r *Resolver) backoff(n int) time.Duration {
	if r.delay <= 0 {
		return 0
	}
	if !r.exponential {
		return r.delay
	}
	d := r.delay << uint(n-1)
	if d <= 0 || (r.maxDelay > 0 && d > r.maxDelay) {
		d = r.maxDelay
	}
	if q := int64(d / 4); q > 0 {
		d += time.Duration(rand.Int64N(q))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
