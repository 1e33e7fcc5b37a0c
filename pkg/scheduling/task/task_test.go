package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/fibercore/internal/testutil"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
)

func TestNewDefaults(t *testing.T) {
	tk := New(func(ctx context.Context) (any, error) { return nil, nil })

	assert.NotEmpty(t, tk.ID())
	assert.Equal(t, tk.ID(), tk.Name())
	assert.Equal(t, ModeBackground, tk.Mode())
	assert.Equal(t, StatePending, tk.State())
	assert.False(t, tk.IsDone())
	assert.NotNil(t, tk.Context())
}

func TestOptions(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	tk := Fiber(func(ctx context.Context) (any, error) { return nil, nil },
		WithName("render"), WithContext(ctx))

	assert.Equal(t, "render", tk.Name())
	assert.Equal(t, ModeFiber, tk.Mode())
	assert.Equal(t, "v", tk.Context().Value(key{}))
	assert.Contains(t, tk.String(), "render")
	assert.Contains(t, tk.String(), "fiber")

	bg := Background(func(ctx context.Context) (any, error) { return nil, nil }, WithMode(ModeFiber))
	assert.Equal(t, ModeBackground, bg.Mode(), "constructor mode wins over options")
}

func TestInvokeRecordsResult(t *testing.T) {
	tk := New(func(ctx context.Context) (any, error) { return 42, nil })

	require.True(t, tk.Invoke(context.Background()))

	v, err := tk.Result()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StateDone, tk.State())
	assert.True(t, tk.IsDone())
	assert.GreaterOrEqual(t, tk.Duration(), time.Duration(0))
}

func TestInvokeRecordsError(t *testing.T) {
	want := errors.New("query failed")
	tk := New(func(ctx context.Context) (any, error) { return nil, want })

	tk.Invoke(nil)

	assert.ErrorIs(t, tk.Err(), want)
}

func TestInvokeRecoversPanic(t *testing.T) {
	tk := New(func(ctx context.Context) (any, error) { panic("boom") })

	assert.NotPanics(t, func() { tk.Invoke(context.Background()) })

	var perr *gferrors.PanicError
	require.ErrorAs(t, tk.Err(), &perr)
	assert.Equal(t, "boom", perr.Value)
	assert.NotEmpty(t, perr.Stack)
}

func TestInvokeWithWrapsErrorsOnly(t *testing.T) {
	wrap := func(err error) error { return errors.Join(gferrors.ErrTimeout, err) }

	failing := New(func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded })
	assert.True(t, failing.InvokeWith(context.Background(), wrap))
	assert.ErrorIs(t, failing.Err(), gferrors.ErrTimeout)
	assert.ErrorIs(t, failing.Err(), context.DeadlineExceeded)

	fine := New(func(ctx context.Context) (any, error) { return "ok", nil })
	fine.InvokeWith(context.Background(), wrap)
	v, err := fine.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	assert.False(t, fine.InvokeWith(context.Background(), wrap), "runs at most once")
}

func TestInvokeNilBody(t *testing.T) {
	tk := New(nil)
	tk.Invoke(context.Background())
	assert.ErrorIs(t, tk.Err(), gferrors.ErrInvalidCall)
}

func TestInvokeAtMostOnce(t *testing.T) {
	var calls int32
	tk := New(func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(time.Millisecond)
		return nil, nil
	})

	var wg sync.WaitGroup
	var ran int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tk.Invoke(context.Background()) {
				atomic.AddInt32(&ran, 1)
			}
		}()
	}
	wg.Wait()

	testutil.AssertEqual(t, atomic.LoadInt32(&calls), int32(1))
	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(1))
}

func TestResultBeforeCompletion(t *testing.T) {
	tk := New(func(ctx context.Context) (any, error) { return 1, nil })

	v, err := tk.Result()
	assert.Nil(t, v)
	assert.NoError(t, err)
	assert.Zero(t, tk.Duration())
}

func TestWait(t *testing.T) {
	tk := New(func(ctx context.Context) (any, error) { return "ok", nil })

	go func() {
		time.Sleep(10 * time.Millisecond)
		tk.Invoke(context.Background())
	}()

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	v, err := tk.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	// waiting again on a completed task returns immediately
	v, err = tk.Wait(nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWaitCanceled(t *testing.T) {
	tk := New(func(ctx context.Context) (any, error) { return nil, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tk.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatePending, tk.State(), "waiting never cancels the task")
}

func TestModeAndStateStrings(t *testing.T) {
	assert.Equal(t, "background", ModeBackground.String())
	assert.Equal(t, "fiber", ModeFiber.String())
	assert.Equal(t, "mode(7)", Mode(7).String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "state(9)", State(9).String())
}
