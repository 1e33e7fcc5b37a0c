package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/fibercore/internal/testutil"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/engine"
	"github.com/vnykmshr/fibercore/pkg/scheduling/fiber"
)

func newMockLimiter(t *testing.T, rate Limit, burst int) (*Limiter, *testutil.MockClock) {
	t.Helper()
	clock := testutil.NewMockClock(time.Unix(0, 0))
	l, err := NewWithConfig(Config{Rate: rate, Burst: burst, Now: clock.Now})
	require.NoError(t, err)
	return l, clock
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		rate    Limit
		burst   int
		wantErr bool
	}{
		{"valid parameters", 10, 5, false},
		{"zero rate", 0, 5, false},
		{"infinite rate", Inf, 5, false},
		{"negative rate", -1, 5, true},
		{"zero burst", 10, 0, true},
		{"negative burst", 10, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.rate, tt.burst)
			if tt.wantErr {
				assert.True(t, gferrors.IsValidationError(err), "got %v", err)
				assert.Nil(t, l)
				return
			}
			require.NoError(t, err)
			testutil.AssertEqual(t, l.Limit(), tt.rate)
			testutil.AssertEqual(t, l.Burst(), tt.burst)
			testutil.AssertEqual(t, l.Tokens(), float64(tt.burst))
		})
	}
}

func TestEvery(t *testing.T) {
	testutil.AssertEqual(t, Every(100*time.Millisecond), Limit(10))
	testutil.AssertEqual(t, Every(0), Inf)
}

func TestAllowRefills(t *testing.T) {
	l, clock := newMockLimiter(t, 10, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "burst token %d", i)
	}
	assert.False(t, l.Allow())

	clock.Advance(100 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	clock.Advance(time.Hour)
	assert.InDelta(t, 3, l.Tokens(), 1e-9, "refill stops at burst")
	assert.False(t, l.AllowN(4))
}

func TestZeroAndInfiniteRate(t *testing.T) {
	zero, clock := newMockLimiter(t, 0, 2)
	assert.True(t, zero.AllowN(2))
	clock.Advance(time.Hour)
	assert.False(t, zero.Allow())
	assert.ErrorIs(t, zero.Wait(context.Background()), gferrors.ErrCapacityExceeded)

	inf, _ := newMockLimiter(t, Inf, 1)
	for i := 0; i < 100; i++ {
		require.True(t, inf.Allow())
	}
}

func TestSetLimitAndBurst(t *testing.T) {
	l, clock := newMockLimiter(t, 1, 10)
	require.True(t, l.AllowN(10))

	l.SetLimit(100)
	clock.Advance(50 * time.Millisecond)
	assert.InDelta(t, 5, l.Tokens(), 1e-9)

	l.SetBurst(2)
	testutil.AssertEqual(t, l.Burst(), 2)
	assert.InDelta(t, 2, l.Tokens(), 1e-9)

	l.SetBurst(0)
	testutil.AssertEqual(t, l.Burst(), 2)
}

func TestWaitN(t *testing.T) {
	l, err := New(Every(10*time.Millisecond), 1)
	require.NoError(t, err)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	require.NoError(t, l.Wait(ctx))
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	assert.NoError(t, l.WaitN(ctx, 0))
	assert.ErrorIs(t, l.WaitN(ctx, 2), gferrors.ErrCapacityExceeded)
}

func TestWaitCanceledRestoresTokens(t *testing.T) {
	l, err := New(Every(time.Hour), 1)
	require.NoError(t, err)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
	assert.Greater(t, l.Tokens(), -0.5, "canceled wait gave its token back")

	done, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, l.Wait(done), context.Canceled)
}

func TestMaxLag(t *testing.T) {
	l, err := NewWithConfig(Config{Rate: Every(time.Second), Burst: 1, MaxLag: 10 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, l.Allow())
	assert.ErrorIs(t, l.Wait(context.Background()), gferrors.ErrCapacityExceeded)
}

func TestThrottledFiberReleasesEngine(t *testing.T) {
	iso := engine.NewIsolate()
	s, err := fiber.New(fiber.DefaultConfig(iso))
	require.NoError(t, err)
	defer func() { <-s.Shutdown() }()

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	l, err := New(Every(50*time.Millisecond), 1)
	require.NoError(t, err)
	require.True(t, l.Allow())

	throttled, err := s.Go(ctx, func(ctx context.Context) (any, error) {
		return nil, l.Wait(ctx)
	})
	require.NoError(t, err)

	// a second fiber gets the engine while the first one waits for a token
	other, err := s.Go(ctx, func(ctx context.Context) (any, error) {
		return throttled.IsDone(), nil
	})
	require.NoError(t, err)

	v, err := fiber.Join(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	_, err = fiber.Join(ctx, throttled)
	require.NoError(t, err)
	assert.LessOrEqual(t, iso.MaxHolders(), 1)
}
