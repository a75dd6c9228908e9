package taskq

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Options configure a Queue.
//
// The zero value is a valid configuration: unlimited concurrency, no
// timeout, dispatch enabled, no-op logging and metrics. All zero fields
// are replaced with their defaults in FillDefaults.
type Options struct {
	// Concurrency caps how many tasks run at the same time.
	// Zero means unlimited. Negative values are rejected by New.
	Concurrency int

	// Timeout bounds how long the queue waits for a task's result.
	// When it elapses the task's future is rejected with a TimeoutError
	// and the concurrency slot is freed, but the task itself keeps
	// running; its late result is discarded. Zero disables the
	// deadline. Negative values are rejected by New.
	Timeout time.Duration

	// StrictTimeout is reserved for treating an elapsed Timeout as
	// fatal to the whole queue instead of the single task. Dispatch
	// does not consult it yet.
	StrictTimeout bool

	// StartPaused creates the queue with dispatch suspended, as if
	// Pause had been called before the first Submit. Call Start to
	// begin dispatching.
	StartPaused bool

	// Logger receives dispatch-level events. Defaults to zap.NewNop.
	Logger *zap.Logger

	// Metrics receives queue activity. Defaults to NoopMetrics.
	Metrics Metrics

	// Extensions are registered before the queue starts. More can be
	// added later with Queue.Use.
	Extensions []Extension
}

// FillDefaults replaces zero values with their documented defaults.
func (o *Options) FillDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = &NoopMetrics{}
	}
}

func (o *Options) validate() error {
	if o.Concurrency < 0 {
		return ErrNegativeConcurrency
	}
	if o.Timeout < 0 {
		return ErrNegativeTimeout
	}
	return nil
}

// SubmitOption adjusts a single Submit call.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	priority int
	ctx      context.Context
}

// WithPriority sets the task's priority. Lower values dispatch earlier;
// the default is 0. Tasks with equal priority run in submission order.
func WithPriority(p int) SubmitOption {
	return func(o *submitOptions) { o.priority = p }
}

// WithContext sets the context passed to the task function. A context
// already cancelled when the task would start makes the queue skip the
// run and reject the future with the context's error. Cancellation does
// not remove a waiting task from the queue early, and never interrupts
// a task that is already running.
func WithContext(ctx context.Context) SubmitOption {
	return func(o *submitOptions) { o.ctx = ctx }
}
