// Package bucket is a token bucket limiter for fiber code.
//
// Waiting suspends the calling fiber with fiber.Sleep, so a throttled fiber
// does not hold the engine. Outside a fiber Wait is a plain timed wait.
package bucket

import (
	"math"
	"sync"
	"time"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/common/validation"
)

// Limit is the refill rate in tokens per second. Inf allows everything.
type Limit float64

// Inf is the infinite rate limit.
var Inf = Limit(math.Inf(1))

// Every converts a minimum interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Config configures a Limiter.
type Config struct {
	Rate   Limit
	Burst  int
	Now    func() time.Time // default time.Now
	MaxLag time.Duration    // longest Wait accepted; zero means unbounded
}

// Limiter admits events at Rate with bursts of up to Burst.
type Limiter struct {
	mu     sync.Mutex
	rate   Limit
	burst  int
	tokens float64
	last   time.Time
	now    func() time.Time
	maxLag time.Duration
}

// New creates a full bucket.
func New(rate Limit, burst int) (*Limiter, error) {
	return NewWithConfig(Config{Rate: rate, Burst: burst})
}

// NewWithConfig creates a full bucket from cfg.
func NewWithConfig(cfg Config) (*Limiter, error) {
	if err := validation.ValidatePositive("bucket", "burst", cfg.Burst); err != nil {
		return nil, err
	}
	if cfg.Rate < 0 {
		return nil, gferrors.NewValidationError("bucket", "rate", cfg.Rate, "cannot be negative")
	}
	if err := validation.ValidateNonNegativeDuration("bucket", "max_lag", cfg.MaxLag); err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		rate:   cfg.Rate,
		burst:  cfg.Burst,
		tokens: float64(cfg.Burst),
		last:   now(),
		now:    now,
		maxLag: cfg.MaxLag,
	}, nil
}
