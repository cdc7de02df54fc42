// Package janitor runs background housekeeping: it periodically evicts
// expired undo entries so idle lists do not hold memory until their
// next undo request.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/baskit/internal/logger"
)

// Sweeper drops entries that expired at now and reports how many.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Option configures the janitor.
type Option func(*Janitor)

// WithInterval sets how often the janitor sweeps.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) {
		j.interval = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// Janitor sweeps on a ticker until stopped.
type Janitor struct {
	sweeper  Sweeper
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	swept   int
}

// New creates a janitor over sweeper.
func New(sweeper Sweeper, log *logger.Logger, opts ...Option) *Janitor {
	j := &Janitor{
		sweeper:  sweeper,
		log:      log,
		interval: time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start begins the background loop. Non-blocking.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		j.log.Warn("janitor already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true

	go j.loop(childCtx, j.done)

	j.log.Info("janitor started (interval=%s)", j.interval)
}

// Stop shuts the loop down and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.cancel()
	j.running = false
	done := j.done
	j.mu.Unlock()

	<-done
	j.log.Info("janitor stopped")
}

// Swept returns the total number of entries removed so far.
func (j *Janitor) Swept() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.swept
}

func (j *Janitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

// tick runs one sweep.
func (j *Janitor) tick() {
	n := j.sweeper.Sweep(j.now())

	j.mu.Lock()
	j.swept += n
	j.mu.Unlock()

	if n > 0 {
		j.log.Debug("janitor: evicted %d expired undo entries", n)
	}
}
