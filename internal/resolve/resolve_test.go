package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hammamikhairi/baskit/internal/conversation"
	"github.com/hammamikhairi/baskit/internal/domain"
	"github.com/hammamikhairi/baskit/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedInterpreter returns errs[i] on call i, then the intent.
type scriptedInterpreter struct {
	mu     sync.Mutex
	errs   []error
	intent domain.Intent
	calls  int
	block  bool
}

func (s *scriptedInterpreter) Name() string { return "scripted" }

func (s *scriptedInterpreter) Interpret(ctx context.Context, req domain.Request) (domain.Intent, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return domain.Intent{}, ctx.Err()
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return domain.Intent{}, s.errs[i]
	}
	return s.intent, nil
}

func nluErr(kind domain.ErrorKind) error {
	return &domain.NLUError{Kind: kind, Err: errors.New(string(kind))}
}

func newResolver(gw domain.Interpreter, sleeps *[]time.Duration, opts ...Option) *Resolver {
	log := logger.New(logger.LevelOff, nil)
	base := []Option{
		WithMaxAttempts(3),
		WithBackoff(100*time.Millisecond, 250*time.Millisecond, false),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return ctx.Err()
		}),
	}
	return New(gw, conversation.NewRuleParser(log), log, append(base, opts...)...)
}

func TestNextTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		in   Result
		want State
	}{
		{"ok ends", State{PhaseAttempt, 1}, ResultOK, State{PhaseDone, 1}},
		{"transient retries", State{PhaseAttempt, 1}, ResultTransient, State{PhaseAttempt, 2}},
		{"transient at max falls back", State{PhaseAttempt, 3}, ResultTransient, State{PhaseFallback, 3}},
		{"fatal ends", State{PhaseAttempt, 2}, ResultFatal, State{PhaseDone, 2}},
		{"fallback ends", State{PhaseFallback, 3}, ResultOK, State{PhaseDone, 3}},
		{"done stays done", State{PhaseDone, 1}, ResultTransient, State{PhaseDone, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.from, tt.in, 3))
		})
	}
}

func TestResolveSuccessFirstTry(t *testing.T) {
	want := domain.Intent{Tool: domain.ToolAddItem, Args: domain.Args{ItemName: "חלב"}, Confidence: 0.9}
	gw := &scriptedInterpreter{intent: want}
	var sleeps []time.Duration

	res, err := newResolver(gw, &sleeps).Resolve(context.Background(), domain.Request{Text: "תוסיף חלב"}, "")
	require.NoError(t, err)
	assert.Equal(t, want, res.Intent)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Degraded)
	assert.Nil(t, res.LastErr)
	assert.Empty(t, sleeps)
}

func TestResolveRetriesThenSucceeds(t *testing.T) {
	gw := &scriptedInterpreter{
		errs:   []error{nluErr(domain.KindRateLimited), nluErr(domain.KindUnavailable)},
		intent: domain.Intent{Tool: domain.ToolRemoveItem, Args: domain.Args{ItemName: "לחם"}, Confidence: 0.8},
	}
	var sleeps []time.Duration

	res, err := newResolver(gw, &sleeps).Resolve(context.Background(), domain.Request{Text: "תוריד לחם"}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ToolRemoveItem, res.Intent.Tool)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Degraded)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, sleeps)
}

func TestResolveTimeoutsFallBack(t *testing.T) {
	timeout := nluErr(domain.KindTimeout)
	gw := &scriptedInterpreter{errs: []error{timeout, timeout, timeout}}

	res, err := newResolver(gw, nil).Resolve(context.Background(), domain.Request{Text: "תוסיף חלב"}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, gw.calls)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Degraded)
	assert.True(t, res.Intent.Degraded)
	assert.Equal(t, domain.ToolAddItem, res.Intent.Tool)
	assert.Equal(t, "חלב", res.Intent.Args.ItemName)
	assert.ErrorIs(t, res.LastErr, domain.ErrTimeout)
}

func TestResolveAttemptTimeout(t *testing.T) {
	gw := &scriptedInterpreter{block: true}

	res, err := newResolver(gw, nil, WithMaxAttempts(2), WithAttemptTimeout(10*time.Millisecond)).
		Resolve(context.Background(), domain.Request{Text: "תוסיף ביצים"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.Degraded)
	assert.ErrorIs(t, res.LastErr, domain.ErrTimeout)
}

func TestResolveFatalErrorsSurface(t *testing.T) {
	for _, kind := range []domain.ErrorKind{domain.KindUnauthorized, domain.KindMalformed, domain.KindUnknownTool} {
		t.Run(string(kind), func(t *testing.T) {
			gw := &scriptedInterpreter{errs: []error{nluErr(kind)}}

			res, err := newResolver(gw, nil).Resolve(context.Background(), domain.Request{Text: "x"}, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, &domain.NLUError{Kind: kind})
			assert.Equal(t, 1, gw.calls)
			assert.False(t, res.Degraded)
		})
	}
}

func TestResolveNilGatewayUsesFallback(t *testing.T) {
	res, err := newResolver(nil, nil).Resolve(context.Background(), domain.Request{Text: "תוריד אותו"}, "עגבניה")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempts)
	assert.True(t, res.Degraded)
	assert.Equal(t, domain.ToolRemoveItem, res.Intent.Tool)
	assert.Equal(t, "עגבניה", res.Intent.Args.ItemName)
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := &scriptedInterpreter{}
	_, err := newResolver(gw, nil).Resolve(ctx, domain.Request{Text: "x"}, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, gw.calls)
}

func TestResolveCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := &scriptedInterpreter{errs: []error{nluErr(domain.KindRateLimited)}}
	r := newResolver(gw, nil, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := r.Resolve(ctx, domain.Request{Text: "x"}, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gw.calls)
}

func TestBackoff(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)

	fixed := New(nil, nil, log, WithBackoff(time.Second, 8*time.Second, false))
	assert.Equal(t, time.Second, fixed.backoff(1))
	assert.Equal(t, time.Second, fixed.backoff(5))

	exp := New(nil, nil, log, WithBackoff(time.Second, 8*time.Second, true))
	tests := []struct {
		n        int
		min, max time.Duration
	}{
		{1, time.Second, 1250 * time.Millisecond},
		{2, 2 * time.Second, 2500 * time.Millisecond},
		{3, 4 * time.Second, 5 * time.Second},
		{4, 8 * time.Second, 10 * time.Second},
		{10, 8 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		d := exp.backoff(tt.n)
		assert.GreaterOrEqual(t, d, tt.min, "attempt %d", tt.n)
		assert.Less(t, d, tt.max, "attempt %d", tt.n)
	}

	none := New(nil, nil, log, WithBackoff(0, 0, true))
	assert.Zero(t, none.backoff(3))
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
