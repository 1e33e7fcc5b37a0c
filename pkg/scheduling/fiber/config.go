package fiber

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/fibercore/pkg/common/validation"
	"github.com/vnykmshr/fibercore/pkg/engine"
	"github.com/vnykmshr/fibercore/pkg/metrics"
)

const (
	// DefaultMaxFibers is the hard ceiling on live fibers.
	DefaultMaxFibers = 10000
	// DefaultSpareFibers is the number of idle fibers kept parked.
	DefaultSpareFibers = 256
	// NoSpareFibers as Config.SpareFibers keeps no idle fiber: each fiber
	// exits once the queue is empty.
	NoSpareFibers = -1
	// DefaultStackSize is the stack budget accounted per fiber, in bytes.
	DefaultStackSize = 256 * 1024
	// MinStackSize is the smallest accepted StackSize.
	MinStackSize = 16 * 1024
	// DefaultTraceDepth is the frame limit of live trace captures.
	DefaultTraceDepth = 300
	// DefaultIdleRecheck is how often a parked fiber re-checks the spare ceiling.
	DefaultIdleRecheck = time.Second
)

// Config holds configuration options for creating a fiber Scheduler.
type Config struct {
	// Name labels the scheduler in logs and metrics. Defaults to "main".
	Name string

	// Engine is the scripting engine whose exclusive access fibers share.
	Engine engine.Engine

	// MaxFibers is the hard ceiling on live fibers. When it is reached new
	// work waits in the queue for a fiber to free up.
	MaxFibers int

	// SpareFibers is the initial ceiling on simultaneously idle fibers.
	// Zero selects DefaultSpareFibers and NoSpareFibers selects a ceiling of
	// zero. Adjustable at runtime with SetSpare.
	SpareFibers int

	// StackSize is the stack budget of one fiber in bytes. Goroutine stacks
	// grow on demand; the value bounds the accounted standing memory
	// (see Stats.StackBytes).
	StackSize int

	// TraceDepth limits the number of frames in live trace captures.
	TraceDepth int

	// IdleRecheck is how often a parked fiber wakes to re-check the spare
	// ceiling, so lowering it with SetSpare takes effect without new work.
	IdleRecheck time.Duration

	// OnError is the diagnostic reporter for task failures. It runs on the
	// failing fiber, with engine access held, before the context detaches.
	// If nil, failures are logged at error level with the trace snapshot.
	OnError func(c *Context, err error)

	// Logger receives lifecycle events. If nil, logging is discarded.
	Logger logrus.FieldLogger

	// Metrics records scheduler metrics. If nil, metrics are disabled.
	Metrics *metrics.Registry
}

// DefaultConfig returns the default scheduler configuration for eng.
func DefaultConfig(eng engine.Engine) Config {
	return Config{
		Name:        "main",
		Engine:      eng,
		MaxFibers:   DefaultMaxFibers,
		SpareFibers: DefaultSpareFibers,
		StackSize:   DefaultStackSize,
		TraceDepth:  DefaultTraceDepth,
		IdleRecheck: DefaultIdleRecheck,
	}
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "main"
	}
	if c.MaxFibers == 0 {
		c.MaxFibers = DefaultMaxFibers
	}
	switch c.SpareFibers {
	case 0:
		c.SpareFibers = DefaultSpareFibers
	case NoSpareFibers:
		c.SpareFibers = 0
	}
	if c.StackSize == 0 {
		c.StackSize = DefaultStackSize
	}
	if c.TraceDepth == 0 {
		c.TraceDepth = DefaultTraceDepth
	}
	if c.IdleRecheck == 0 {
		c.IdleRecheck = DefaultIdleRecheck
	}
	if c.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if c.Engine == nil {
		return validation.ValidateNotNil("fiber", "engine", nil)
	}
	if err := validation.ValidatePositive("fiber", "max_fibers", c.MaxFibers); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("fiber", "spare_fibers", c.SpareFibers); err != nil {
		return err
	}
	if err := validation.ValidateAtLeast("fiber", "stack_size", c.StackSize, MinStackSize); err != nil {
		return err
	}
	if err := validation.ValidatePositive("fiber", "trace_depth", c.TraceDepth); err != nil {
		return err
	}
	return validation.ValidatePositiveDuration("fiber", "idle_recheck", c.IdleRecheck)
}
