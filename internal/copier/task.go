package copier

import (
	"context"
	"sync"
)

// Task is a long-running operation the caller can await or cancel.
type Task struct {
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// Start runs fn with a context derived from ctx and returns immediately.
func Start(ctx context.Context, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(t.done)
		defer cancel()

		err := fn(ctx)

		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
	}()

	return t
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel asks the task to stop. Wait still has to be called to observe the result.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
