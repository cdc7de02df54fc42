package engine

import (
	"context"
	"sync"
)

// keyLock is a per-key mutex built on a one-slot channel so acquisition
// can be abandoned when the context ends.
type keyLock struct {
	ch chan struct{}
}

func newKeyLock() *keyLock {
	l := &keyLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// keyedLocks hands out one keyLock per key. Locks are never freed; the
// key space is the set of list IDs and owners seen by this process.
type keyedLocks struct {
	locks sync.Map // key -> *keyLock
}

// acquire blocks until key is free or ctx ends. The returned func
// releases the lock.
func (k *keyedLocks) acquire(ctx context.Context, key string) (func(), error) {
	val, _ := k.locks.LoadOrStore(key, newKeyLock())
	l := val.(*keyLock)
	select {
	case <-l.ch:
		return func() { l.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
