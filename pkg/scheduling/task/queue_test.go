package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/fibercore/internal/testutil"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
)

func noop(ctx context.Context) (any, error) { return nil, nil }

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()

	tasks := make([]*Task, 100)
	for i := range tasks {
		tasks[i] = New(noop)
		require.NoError(t, q.Push(tasks[i]))
	}
	testutil.AssertEqual(t, q.Len(), 100)

	for i := range tasks {
		got, ok := q.TryPop()
		require.True(t, ok)
		require.Same(t, tasks[i], got, "pop %d out of order", i)
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.True(t, q.Empty())
}

func TestQueuePushTwice(t *testing.T) {
	q := NewQueue()
	tk := New(noop)

	require.NoError(t, q.Push(tk))
	assert.ErrorIs(t, q.Push(tk), gferrors.ErrInvalidCall)

	other := NewQueue()
	assert.ErrorIs(t, other.Push(tk), gferrors.ErrInvalidCall, "a task is singly owned")
	assert.ErrorIs(t, q.Push(nil), gferrors.ErrInvalidCall)
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	tk := New(noop)

	got := make(chan *Task, 1)
	go func() {
		p, _ := q.Pop()
		got <- p
	}()

	testutil.Eventually(t, func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)

	select {
	case <-got:
		t.Fatal("Pop returned before Push")
	default:
	}

	require.NoError(t, q.Push(tk))

	select {
	case p := <-got:
		assert.Same(t, tk, p)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueueCloseWakesPoppers(t *testing.T) {
	q := NewQueue()

	const poppers = 4
	var woke int32
	var wg sync.WaitGroup
	for i := 0; i < poppers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Pop(); !ok {
				atomic.AddInt32(&woke, 1)
			}
		}()
	}

	testutil.Eventually(t, func() bool { return q.Waiting() == poppers }, time.Second, time.Millisecond)
	q.Close()
	wg.Wait()

	testutil.AssertEqual(t, atomic.LoadInt32(&woke), int32(poppers))
	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Push(New(noop)), gferrors.ErrClosed)
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue()
	tk := New(noop)
	require.NoError(t, q.Push(tk))
	q.Close()

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Same(t, tk, got)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueuePopTimeout(t *testing.T) {
	q := NewQueue()

	start := time.Now()
	_, ok := q.PopTimeout(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	tk := New(noop)
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = q.Push(tk)
	}()

	got, ok := q.PopTimeout(time.Second)
	require.True(t, ok)
	assert.Same(t, tk, got)
}

func TestQueuePopTimeoutNonPositive(t *testing.T) {
	q := NewQueue()
	tk := New(noop)
	require.NoError(t, q.Push(tk))

	got, ok := q.PopTimeout(0)
	require.True(t, ok)
	assert.Same(t, tk, got)
}

func TestQueueConcurrentDeliverOnce(t *testing.T) {
	q := NewQueue()

	const producers = 8
	const perProducer = 500
	const consumers = 8

	seen := make([]int32, producers*perProducer)
	var wg sync.WaitGroup
	var consumed int32

	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				tk, ok := q.Pop()
				if !ok {
					return
				}
				tk.Invoke(context.Background())
				idx, _ := tk.Result()
				atomic.AddInt32(&seen[idx.(int)], 1)
				atomic.AddInt32(&consumed, 1)
			}
		}()
	}

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := 0; i < perProducer; i++ {
				idx := p*perProducer + i
				_ = q.Push(New(func(ctx context.Context) (any, error) { return idx, nil }))
			}
		}(p)
	}
	pwg.Wait()

	testutil.WaitForInt32(t, &consumed, producers*perProducer, 5*time.Second)
	q.Close()
	wg.Wait()

	for i, n := range seen {
		if n != 1 {
			t.Fatalf("task %d delivered %d times", i, n)
		}
	}
}

func BenchmarkQueuePushPop(b *testing.B) {
	q := NewQueue()
	for i := 0; i < b.N; i++ {
		_ = q.Push(New(noop))
		q.TryPop()
	}
}
