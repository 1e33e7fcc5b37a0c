// Package task defines the unit of deferred work shared by the background
// pool and the fiber scheduler, and the blocking FIFO queue both pools pull
// from.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
)

// Func is the body of a Task. The returned value becomes the task result.
type Func func(ctx context.Context) (any, error)

// Mode selects which pool a Task belongs to.
type Mode int

const (
	// ModeBackground tasks never touch engine state and run on the background pool.
	ModeBackground Mode = iota
	// ModeFiber tasks run inside a fiber holding exclusive engine access.
	ModeFiber
)

func (m Mode) String() string {
	switch m {
	case ModeBackground:
		return "background"
	case ModeFiber:
		return "fiber"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// State is the lifecycle stage of a Task.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Task is a unit of at-most-once work. It is enqueued once, dequeued by
// exactly one worker and invoked once; any number of parties may wait for it.
type Task struct {
	id   string
	name string
	mode Mode
	fn   Func
	ctx  context.Context

	// next links the task into a Queue. Owned by the queue while enqueued.
	next     *Task
	enqueued atomic.Bool

	state atomic.Int32
	done  chan struct{}

	result   any
	err      error
	started  time.Time
	finished time.Time
}

// Option configures a Task at creation.
type Option func(*Task)

// WithName sets a human-readable name used in logs and traces.
func WithName(name string) Option {
	return func(t *Task) { t.name = name }
}

// WithMode sets the pool the task is routed to.
func WithMode(mode Mode) Option {
	return func(t *Task) { t.mode = mode }
}

// WithContext sets the context the body is invoked with. The fiber scheduler
// derives the execution context from it, so ambient values attached here are
// visible to the body.
func WithContext(ctx context.Context) Option {
	return func(t *Task) {
		if ctx != nil {
			t.ctx = ctx
		}
	}
}

// New creates a pending task around fn.
func New(fn Func, opts ...Option) *Task {
	t := &Task{
		id:   ulid.Make().String(),
		mode: ModeBackground,
		fn:   fn,
		ctx:  context.Background(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Background creates a task for the background pool.
func Background(fn Func, opts ...Option) *Task {
	return New(fn, append(opts, WithMode(ModeBackground))...)
}

// Fiber creates a task for the fiber scheduler.
func Fiber(fn Func, opts ...Option) *Task {
	return New(fn, append(opts, WithMode(ModeFiber))...)
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// Name returns the task name, or its ID when unnamed.
func (t *Task) Name() string {
	if t.name == "" {
		return t.id
	}
	return t.name
}

// Mode returns the pool the task belongs to.
func (t *Task) Mode() Mode { return t.mode }

// Context returns the context the task was created with.
func (t *Task) Context() context.Context { return t.ctx }

// State returns the current lifecycle stage.
func (t *Task) State() State { return State(t.state.Load()) }

// Done returns a channel closed once the task has completed.
func (t *Task) Done() <-chan struct{} { return t.done }

// IsDone reports whether the task has completed.
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result returns the result and error of a completed task. Before completion
// it returns (nil, nil).
func (t *Task) Result() (any, error) {
	if !t.IsDone() {
		return nil, nil
	}
	return t.result, t.err
}

// Err returns the error of a completed task.
func (t *Task) Err() error {
	_, err := t.Result()
	return err
}

// Duration returns how long the body ran. Zero until completion.
func (t *Task) Duration() time.Duration {
	if !t.IsDone() {
		return 0
	}
	return t.finished.Sub(t.started)
}

// Invoke runs the body with ctx, records its result and signals completion.
// Only the first call runs the body; later calls return false immediately.
// A panic in the body is recovered into a *errors.PanicError and never
// escapes to the calling worker.
func (t *Task) Invoke(ctx context.Context) bool {
	return t.InvokeWith(ctx, nil)
}

// InvokeWith is Invoke with wrap applied to a non-nil error before the task
// completes, so waiters only ever see the wrapped error.
func (t *Task) InvokeWith(ctx context.Context, wrap func(error) error) bool {
	if !t.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return false
	}
	if ctx == nil {
		ctx = t.ctx
	}

	t.started = time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.result = nil
			t.err = &gferrors.PanicError{Value: r, Stack: debug.Stack()}
		}
		if t.err != nil && wrap != nil {
			t.err = wrap(t.err)
		}
		t.finished = time.Now()
		t.state.Store(int32(StateDone))
		close(t.done)
	}()

	if t.fn == nil {
		t.err = gferrors.ErrInvalidCall
		return true
	}
	t.result, t.err = t.fn(ctx)
	return true
}

// Wait blocks the calling goroutine until the task completes or ctx is done.
// Waiting never cancels the task itself.
func (t *Task) Wait(ctx context.Context) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("task %s (%s, %s)", t.Name(), t.mode, t.State())
}
