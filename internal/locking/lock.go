// Package locking provides named, context-aware exclusive locks.
package locking

import (
	"context"
	"fmt"
	"sync"
)

// UnlockFunc releases a lock obtained by Lock.
type UnlockFunc func()

var (
	locksMu sync.Mutex
	locks   = map[string]*entry{}
)

type entry struct {
	ch      chan struct{}
	holders int // holders and waiters
}

// Lock acquires the exclusive lock called name, waiting until it is free or
// ctx is done. The returned function must be called exactly once.
func Lock(ctx context.Context, name string) (UnlockFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}

	locksMu.Lock()
	e, ok := locks[name]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		locks[name] = e
	}
	e.holders++
	locksMu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		release(name, e)
		return nil, fmt.Errorf("failed to acquire lock %q: %w", name, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			release(name, e)
		})
	}, nil
}

func release(name string, e *entry) {
	locksMu.Lock()
	defer locksMu.Unlock()

	e.holders--
	if e.holders == 0 {
		delete(locks, name)
	}
}
