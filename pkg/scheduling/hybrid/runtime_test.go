package hybrid

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/fibercore/internal/testutil"
	gfcontext "github.com/vnykmshr/fibercore/pkg/common/context"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/engine"
	"github.com/vnykmshr/fibercore/pkg/metrics"
	"github.com/vnykmshr/fibercore/pkg/scheduling/fiber"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

func newTestRuntime(t *testing.T) (*Runtime, *engine.Isolate) {
	t.Helper()
	iso := engine.NewIsolate()
	cfg := DefaultConfig(iso)
	cfg.Preemptive = true
	cfg.Watchdog.Interval = 10 * time.Millisecond
	cfg.Metrics = metrics.NewRegistry(prometheus.NewRegistry())
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		select {
		case <-r.Shutdown():
		case <-time.After(testutil.TestTimeout):
			t.Error("runtime did not shut down")
		}
	})
	return r, iso
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, gferrors.IsValidationError(err))

	r, err := New(Config{Engine: engine.NewIsolate()})
	require.NoError(t, err)
	assert.Nil(t, r.Watchdog(), "zero config is not preemptive")
	<-r.Shutdown()

	cfg := DefaultConfig(engine.NewIsolate())
	assert.False(t, cfg.Preemptive)
	r, err = New(cfg)
	require.NoError(t, err)
	assert.Nil(t, r.Watchdog(), "default config is not preemptive")
	assert.Zero(t, r.Stats().Interrupts)
	<-r.Shutdown()
}

func TestSubmitRoutesByMode(t *testing.T) {
	r, _ := newTestRuntime(t)
	require.NotNil(t, r.Watchdog())
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	onFiber := func(ctx context.Context) (any, error) { return !fiber.Current(ctx).IsNull(), nil }

	ft := task.Fiber(onFiber, task.WithContext(ctx))
	bt := task.Background(onFiber, task.WithContext(ctx))
	require.NoError(t, r.Submit(ft))
	require.NoError(t, r.Submit(bt))

	v, err := r.Join(ctx, ft)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = r.Join(ctx, bt)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	err = r.Submit(task.New(onFiber, task.WithMode(task.Mode(9))))
	assert.ErrorIs(t, err, gferrors.ErrInvalidCall)
	assert.ErrorIs(t, r.Submit(nil), gferrors.ErrInvalidCall)
}

func TestCallReleasesEngine(t *testing.T) {
	r, iso := newTestRuntime(t)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	release := make(chan struct{})

	caller, err := r.Go(ctx, func(ctx context.Context) (any, error) {
		// blocks until another fiber gets engine access and opens release
		return r.Call(ctx, func(ctx context.Context) (any, error) {
			select {
			case <-release:
				return "io done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	})
	require.NoError(t, err)

	opener, err := r.Go(ctx, func(ctx context.Context) (any, error) {
		close(release)
		return nil, nil
	})
	require.NoError(t, err)

	v, err := r.Join(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, "io done", v)
	_, err = r.Join(ctx, opener)
	require.NoError(t, err)
	assert.Equal(t, 1, iso.MaxHolders())
}

func TestCallKeepsAmbientProps(t *testing.T) {
	r, _ := newTestRuntime(t)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	tk, err := r.Go(ctx, func(ctx context.Context) (any, error) {
		if err := fiber.Current(ctx).SetProp("trace_id", "t-42"); err != nil {
			return nil, err
		}
		return r.Call(ctx, func(ctx context.Context) (any, error) {
			v, _ := gfcontext.Prop(ctx, "trace_id")
			return v, nil
		})
	})
	require.NoError(t, err)

	v, err := r.Join(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, "t-42", v)
}

func TestManyFibersWithBlockingCalls(t *testing.T) {
	r, iso := newTestRuntime(t)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	const n = 100
	var calls int32
	var tasks []*task.Task
	for i := 0; i < n; i++ {
		tk, err := r.Go(ctx, func(ctx context.Context) (any, error) {
			return r.Call(ctx, func(ctx context.Context) (any, error) {
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&calls, 1)
				return nil, nil
			})
		})
		require.NoError(t, err)
		tasks = append(tasks, tk)
	}
	for _, tk := range tasks {
		_, err := r.Join(ctx, tk)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(n), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, iso.MaxHolders())

	testutil.AssertEventually(t, func() bool {
		st := r.Stats()
		return st.Fiber.Executed == n && st.Background.Executed == n
	})
	assert.LessOrEqual(t, r.Stats().Fiber.Peak, n)
}

func TestShutdownRejectsWork(t *testing.T) {
	r, _ := newTestRuntime(t)

	select {
	case <-r.Shutdown():
	case <-time.After(testutil.TestTimeout):
		t.Fatal("shutdown did not complete")
	}
	assert.False(t, r.Watchdog().Running())

	_, err := r.Go(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, gferrors.ErrClosed)
	_, err = r.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, gferrors.ErrClosed)
}
