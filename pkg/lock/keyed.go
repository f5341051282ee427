// Package lock provides a context-aware mutex keyed by string, used as the
// per-session critical section around bidding and playback transitions.
package lock

import (
	"context"
	"sync"
)

type Keyed struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewKeyed() *Keyed {
	return &Keyed{
		locks: make(map[string]chan struct{}),
	}
}

// Acquire blocks until the key's lock is held or ctx is done. On success it
// returns a release func that must be called exactly once.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	ch := k.channel(key)

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the lock only if it is immediately free.
func (k *Keyed) TryAcquire(key string) (func(), bool) {
	ch := k.channel(key)

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, true
	default:
		return nil, false
	}
}

func (k *Keyed) channel(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()

	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}
