package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventuallyPolls(t *testing.T) {
	var polls atomic.Int32
	Eventually(t, func() bool { return polls.Add(1) >= 3 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))

	var flipped atomic.Bool
	time.AfterFunc(5*time.Millisecond, func() { flipped.Store(true) })
	AssertEventually(t, flipped.Load)
}

func TestEventuallyWithContextStopsOnCondition(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	defer cancel()

	var n atomic.Int64
	go func() {
		for i := 0; i < 5; i++ {
			n.Add(1)
			time.Sleep(time.Millisecond)
		}
	}()
	EventuallyWithContext(t, ctx, func() bool { return n.Load() == 5 }, time.Millisecond)
	require.NoError(t, ctx.Err())
}

func TestWaitForCounters(t *testing.T) {
	var small int32
	var large int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt32(&small, 1)
			atomic.AddInt64(&large, 1<<40)
		}()
	}

	WaitForInt32(t, &small, 8, time.Second)
	WaitForInt64(t, &large, 8<<40, time.Second)
	wg.Wait()
}

func TestCallbackTrackerFromGoroutines(t *testing.T) {
	tracker := NewCallbackTracker()
	tracker.AssertNotCalled(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.Mark(i)
		}(i)
	}
	wg.Wait()

	tracker.AssertCalled(t)
	tracker.AssertCallCount(t, 10)
	assert.IsType(t, 0, tracker.Value())

	tracker.Mark()
	tracker.AssertCallCount(t, 11)
	assert.NotNil(t, tracker.Value(), "Mark without a value keeps the last one")

	tracker.Reset()
	tracker.AssertNotCalled(t)
	assert.Nil(t, tracker.Value())
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())

	later := start.Add(time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())

	assert.False(t, NewMockClock(time.Time{}).Now().IsZero())
}

func TestMockWriterCapturesLogEntries(t *testing.T) {
	out := NewMockWriter()
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			log.WithField("fiber", i).Info("fiber started")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, out.WriteCount())
	assert.Positive(t, out.Len())
	lines := out.Lines()
	require.Len(t, lines, 4)
	for _, l := range lines {
		assert.Contains(t, l, `"msg":"fiber started"`)
	}
}

func TestWithTimeoutHasDeadline(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(TestTimeout), deadline, time.Second)

	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestPlainAssertions(t *testing.T) {
	AssertNoError(t, nil)
	AssertError(t, context.DeadlineExceeded)
	AssertEqual(t, "fiber", "fiber")
	AssertNotEqual(t, int64(1), int64(2))
}
