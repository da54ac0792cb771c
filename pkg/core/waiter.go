package core

import (
	"context"
	"sync"
)

// Waiter is a one-shot completion with an error result:
// - Done can be called many times, only the first call counts
// - Wait can be called from many places and after Done
type Waiter struct {
	once sync.Once
	mu   sync.Mutex
	ch   chan struct{}
	err  error
}

func (w *Waiter) done() chan struct{} {
	w.mu.Lock()
	if w.ch == nil {
		w.ch = make(chan struct{})
	}
	ch := w.ch
	w.mu.Unlock()
	return ch
}

func (w *Waiter) Done(err error) {
	ch := w.done()
	w.once.Do(func() {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		close(ch)
	})
}

func (w *Waiter) Wait() error {
	<-w.done()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// WaitContext returns ctx.Err() if context finished before Done
func (w *Waiter) WaitContext(ctx context.Context) error {
	select {
	case <-w.done():
		return w.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finished reports whether Done was called
func (w *Waiter) Finished() bool {
	select {
	case <-w.done():
		return true
	default:
		return false
	}
}
