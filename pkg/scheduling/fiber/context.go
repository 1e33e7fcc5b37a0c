package fiber

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	gfcontext "github.com/vnykmshr/fibercore/pkg/common/context"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

type contextKey struct{}

// Null is the execution context reported when no fiber is running. Join on
// it returns immediately, its trace is empty and it has no caller.
var Null = &Context{null: true}

// Context is the execution context of one task running on a fiber: its
// caller link, ambient properties, engine thread id and trace snapshot.
// It detaches when the task finishes; a detached context answers every
// query the way Null does.
type Context struct {
	sched  *Scheduler
	task   *task.Task
	worker *worker
	null   bool

	mu       sync.Mutex
	caller   *Context
	props    gfcontext.Props
	trace    string
	detached bool

	thread atomic.Int64
}

// Current returns the execution context carried by ctx, or Null.
func Current(ctx context.Context) *Context {
	if ctx == nil {
		return Null
	}
	if c, ok := ctx.Value(contextKey{}).(*Context); ok && c != nil {
		return c
	}
	return Null
}

// Detach returns a context for work leaving the current fiber, such as a
// background task. It keeps the fiber's ambient properties and values but
// Current on it returns Null, so waits inside it never touch the fiber.
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	c := Current(ctx)
	if c.IsNull() {
		return ctx
	}
	if props := c.Props(); props != nil {
		ctx = gfcontext.WithProps(ctx, props)
	}
	return context.WithValue(ctx, contextKey{}, Null)
}

func callerOf(ctx context.Context) *Context {
	if c := Current(ctx); !c.IsNull() {
		return c
	}
	return nil
}

// IsNull reports whether c is the Null sentinel.
func (c *Context) IsNull() bool {
	return c == nil || c.null
}

// Detached reports whether the task behind c has finished.
func (c *Context) Detached() bool {
	if c.IsNull() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

// Task returns the task being executed, nil for Null.
func (c *Context) Task() *task.Task {
	if c.IsNull() {
		return nil
	}
	return c.task
}

// Name returns the task name, empty for Null.
func (c *Context) Name() string {
	if c.IsNull() {
		return ""
	}
	return c.task.Name()
}

// FiberID returns the id of the fiber running the task, 0 for Null.
func (c *Context) FiberID() int64 {
	if c.IsNull() {
		return 0
	}
	return c.worker.id
}

// ThreadID returns the engine thread id recorded at the latest Enter.
func (c *Context) ThreadID() int64 {
	if c.IsNull() {
		return 0
	}
	return c.thread.Load()
}

// Caller returns the context that started this one. It fails with
// ErrNoCaller for top-level work, for Null and after detach.
func (c *Context) Caller() (*Context, error) {
	if c.IsNull() {
		return nil, gferrors.ErrNoCaller
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached || c.caller == nil {
		return nil, gferrors.ErrNoCaller
	}
	return c.caller, nil
}

// Props returns a copy of the ambient properties.
func (c *Context) Props() gfcontext.Props {
	if c.IsNull() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return nil
	}
	return maps.Clone(c.props)
}

// Prop returns one ambient property.
func (c *Context) Prop(key string) (any, bool) {
	if c.IsNull() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.props[key]
	return v, ok
}

// SetProp sets an ambient property. Nested calls started afterwards inherit
// it. It fails with ErrInvalidCall on Null and after detach.
func (c *Context) SetProp(key string, v any) error {
	if c.IsNull() {
		return gferrors.ErrInvalidCall
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return gferrors.ErrInvalidCall
	}
	c.props = c.props.With(key, v)
	return nil
}

// Join waits for the task behind c. On Null it returns immediately.
func (c *Context) Join(ctx context.Context) (any, error) {
	if c.IsNull() {
		return nil, nil
	}
	return Join(ctx, c.task)
}

// TraceInfo describes the call stack of the task. Asked from the task's own
// fiber (ctx carries c) it captures the live stack, limited to depth frames;
// otherwise it returns the snapshot taken at the latest suspension. A
// non-positive depth uses the scheduler's TraceDepth.
func (c *Context) TraceInfo(ctx context.Context, depth int) string {
	if c.IsNull() {
		return ""
	}
	c.mu.Lock()
	detached, snap := c.detached, c.trace
	c.mu.Unlock()
	if detached {
		return ""
	}
	if Current(ctx) == c {
		return c.capture(2, depth)
	}
	return snap
}

func (c *Context) String() string {
	if c.IsNull() {
		return "fiber(null)"
	}
	return fmt.Sprintf("fiber#%d %s", c.worker.id, c.task.Name())
}

// capture formats the calling stack, skipping skip frames above capture.
func (c *Context) capture(skip, depth int) string {
	if depth <= 0 {
		depth = c.sched.cfg.TraceDepth
	}
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip+1, pcs)

	var b strings.Builder
	fmt.Fprintf(&b, "%s thread %d:\n", c, c.thread.Load())
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "    at %s (%s:%d)\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

func (c *Context) snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trace
}

// suspend gives up engine access on the task's fiber. The trace snapshot
// is taken first so others can inspect the suspended stack.
func (c *Context) suspend() {
	trace := c.capture(3, 0)
	c.mu.Lock()
	c.trace = trace
	c.mu.Unlock()

	s := c.sched
	s.engine.Leave()
	s.release(c.worker)
	s.maybeGrow()
}

// resume reacquires engine access after suspend.
func (c *Context) resume() {
	s := c.sched
	s.acquire(c.worker)
	s.engine.Enter()
	c.thread.Store(s.engine.CurrentThreadID())
}

// detach drops the caller link and engine-side state once the task is done.
func (c *Context) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
	c.caller = nil
	c.props = nil
	c.trace = ""
}
