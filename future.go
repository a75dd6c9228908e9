package taskq

import (
	"sync"

	"github.com/google/uuid"
)

// Future is the receipt for a submitted task. It settles exactly once,
// either with the task's result or with an error.
//
// A future whose task is removed by Clear never settles; see
// Queue.Clear for that contract.
type Future[T any] struct {
	id   uuid.UUID
	done chan struct{}
	once sync.Once

	result T
	err    error
}

func newFuture[T any](id uuid.UUID) *Future[T] {
	return &Future[T]{id: id, done: make(chan struct{})}
}

// ID returns the identifier of the task this future belongs to.
func (f *Future[T]) ID() uuid.UUID { return f.id }

// Done returns a channel that is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Result blocks until the future settles and returns the outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.result, f.err
}

// Peek reports the outcome without blocking. ok is false while the
// future is still pending.
func (f *Future[T]) Peek() (result T, err error, ok bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// settle resolves the future. Only the first call wins.
func (f *Future[T]) settle(result T, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
	})
}
