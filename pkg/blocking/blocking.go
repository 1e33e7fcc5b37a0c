// Package blocking holds clients whose calls block on I/O.
//
// Each client hands its blocking work to a Caller, normally a
// hybrid.Runtime. From a fiber the call suspends only that fiber and releases
// the engine until the background pool has finished.
package blocking

import (
	"context"

	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

// Caller runs fn to completion on a background worker and returns its result.
type Caller interface {
	Call(ctx context.Context, fn task.Func, opts ...task.Option) (any, error)
}

// Run executes fn through c and converts the result back to T.
func Run[T any](ctx context.Context, c Caller, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Call(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, task.WithName(name))
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	return v.(T), nil
}

// Direct is a Caller that runs fn on the calling goroutine. It suits code
// that never runs on a fiber, such as setup and tests.
type Direct struct{}

// Call runs fn immediately.
func (Direct) Call(ctx context.Context, fn task.Func, _ ...task.Option) (any, error) {
	return fn(ctx)
}
