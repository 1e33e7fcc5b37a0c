package fiber

import (
	"context"
	"runtime"
	"time"

	gfcontext "github.com/vnykmshr/fibercore/pkg/common/context"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

// Join waits for t to finish and returns its outcome. Called on a fiber it
// releases engine access for the duration of the wait, so the awaited work,
// or anything else queued, can make progress. Called elsewhere it is a plain
// blocking wait.
//
// A task that already finished returns immediately. A fiber joining its own
// task fails with ErrInvalidCall.
func Join(ctx context.Context, t *task.Task) (any, error) {
	if t == nil {
		return nil, gferrors.ErrInvalidCall
	}
	if t.IsDone() {
		return t.Result()
	}

	c := Current(ctx)
	if c.Detached() {
		return t.Wait(ctx)
	}
	if c.task == t {
		return nil, gferrors.ErrInvalidCall
	}

	c.suspend()
	defer c.resume()
	return t.Wait(ctx)
}

// Sleep pauses the calling fiber for d, releasing engine access meanwhile.
// A non-positive d yields once. It returns the context error if ctx ends
// first.
func Sleep(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if gfcontext.IsCanceled(ctx) {
		return ctx.Err()
	}
	c := Current(ctx)
	if !c.Detached() {
		c.suspend()
		defer c.resume()
	}
	return pause(ctx, d)
}

// Yield lets other fibers take engine access before the caller continues.
func Yield(ctx context.Context) error {
	return Sleep(ctx, 0)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
