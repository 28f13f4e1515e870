package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// KeyedLock serializes work per conversation key. At most one holder per
// key; additional acquirers wait up to the configured timeout and then
// fail with ErrConcurrency so the queue can redeliver.
type KeyedLock struct {
	mu      sync.Mutex
	held    map[string]chan struct{}
	timeout time.Duration
}

// NewKeyedLock builds a lock table. A non-positive timeout falls back to
// ten seconds.
func NewKeyedLock(timeout time.Duration) *KeyedLock {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KeyedLock{
		held:    make(map[string]chan struct{}),
		timeout: timeout,
	}
}

// Acquire blocks until the key is free, the timeout elapses, or ctx is
// done. The returned release func must be called exactly once.
func (l *KeyedLock) Acquire(ctx context.Context, key string) (release func(), err error) {
	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()

	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
			// Holder released; retry.
		case <-deadline.C:
			return nil, fmt.Errorf("engine: lock %q: %w", key, ErrConcurrency)
		case <-ctx.Done():
			return nil, fmt.Errorf("engine: lock %q: %w", key, ctx.Err())
		}
	}
}
