package workerpool

import (
	"context"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/fibercore/pkg/common/validation"
	"github.com/vnykmshr/fibercore/pkg/metrics"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

const (
	// DefaultMinParallelism is the floor applied to Parallelism and the
	// number of workers kept alive through idle timeouts.
	DefaultMinParallelism = 3
	// DefaultMultiplier scales the parallelism into the worker ceiling.
	DefaultMultiplier = 3
	// DefaultShrinkFactor bounds idle workers at ceiling * ShrinkFactor.
	DefaultShrinkFactor = 3
	// DefaultIdleTimeout is how long DefaultConfig lets a worker sit idle.
	// Short enough that a pool grown by a burst of 50ms calls is back at
	// MinParallelism a few hundred milliseconds after the burst.
	DefaultIdleTimeout = 100 * time.Millisecond
)

// Result describes one finished task.
type Result struct {
	// Task is the task that was executed
	Task *task.Task

	// Error is the task's error, including recovered panics
	Error error

	// Duration is how long the task took to execute
	Duration time.Duration

	// WorkerID identifies which worker executed the task
	WorkerID int
}

// Stats is a point-in-time view of pool counters.
type Stats struct {
	Alive    int
	Idle     int
	Active   int
	Peak     int
	Queued   int
	Spawned  int64
	Exited   int64
	Executed int64
	Failed   int64
}

// Pool runs blocking tasks on an elastic set of worker goroutines.
type Pool interface {
	// Submit queues a task. It never blocks and returns ErrClosed once the
	// pool is shut down.
	Submit(t *task.Task) error

	// SubmitFunc wraps fn in a background task bound to ctx and submits it.
	SubmitFunc(ctx context.Context, fn task.Func, opts ...task.Option) (*task.Task, error)

	// Shutdown stops accepting tasks and lets workers drain the queue.
	// Returns a channel that closes when every worker has exited.
	Shutdown() <-chan struct{}

	// ShutdownWithTimeout shuts down the pool and cancels the contexts of
	// tasks still running or queued once timeout elapses.
	ShutdownWithTimeout(timeout time.Duration) <-chan struct{}

	// Size returns the number of live workers.
	Size() int

	// Idle returns the number of workers waiting for work.
	Idle() int

	// QueueSize returns the current number of queued tasks.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing tasks.
	ActiveWorkers() int

	// TotalSubmitted returns the total number of tasks submitted to the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of tasks completed by the pool.
	TotalCompleted() int64

	// Stats returns a snapshot of the pool counters.
	Stats() Stats
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Name labels the pool in logs. Defaults to "background".
	Name string

	// Parallelism is the hardware parallelism the pool sizes against.
	// Defaults to runtime.NumCPU().
	Parallelism int

	// MinParallelism floors Parallelism and is the number of workers that
	// survive idle timeouts.
	MinParallelism int

	// Multiplier turns the effective parallelism into the worker ceiling.
	Multiplier int

	// ShrinkFactor: a worker exits when more than ceiling * ShrinkFactor
	// workers would be idle.
	ShrinkFactor int

	// MaxWorkers caps live workers. Zero means ceiling * ShrinkFactor.
	MaxWorkers int

	// IdleTimeout is how long a worker waits for work before retiring, as
	// long as more than MinParallelism workers are alive. Zero means
	// workers wait indefinitely, so a pool built from a literal Config only
	// shrinks through the idle ceiling; DefaultConfig sets DefaultIdleTimeout.
	IdleTimeout time.Duration

	// TaskTimeout is the default timeout for individual task execution.
	// Zero means no timeout.
	TaskTimeout time.Duration

	// OnError is called on the worker after a task fails or panics.
	OnError func(t *task.Task, err error)

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, t *task.Task)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(workerID int, result Result)

	// Logger receives lifecycle events. If nil, logging is discarded.
	Logger logrus.FieldLogger

	// Metrics records pool metrics. If nil, metrics are disabled.
	Metrics *metrics.Registry
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return Config{
		Name:           metrics.PoolBackground,
		Parallelism:    runtime.NumCPU(),
		MinParallelism: DefaultMinParallelism,
		Multiplier:     DefaultMultiplier,
		ShrinkFactor:   DefaultShrinkFactor,
		IdleTimeout:    DefaultIdleTimeout,
	}
}

// Ceiling is the target worker count: max(Parallelism, MinParallelism) * Multiplier.
func (c Config) Ceiling() int {
	p := c.Parallelism
	if p < c.MinParallelism {
		p = c.MinParallelism
	}
	return p * c.Multiplier
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = metrics.PoolBackground
	}
	if c.Parallelism == 0 {
		c.Parallelism = runtime.NumCPU()
	}
	if c.MinParallelism == 0 {
		c.MinParallelism = DefaultMinParallelism
	}
	if c.Multiplier == 0 {
		c.Multiplier = DefaultMultiplier
	}
	if c.ShrinkFactor == 0 {
		c.ShrinkFactor = DefaultShrinkFactor
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = c.Ceiling() * c.ShrinkFactor
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
	checks := []error{
		validation.ValidatePositive("workerpool", "parallelism", c.Parallelism),
		validation.ValidatePositive("workerpool", "min_parallelism", c.MinParallelism),
		validation.ValidatePositive("workerpool", "multiplier", c.Multiplier),
		validation.ValidatePositive("workerpool", "shrink_factor", c.ShrinkFactor),
		validation.ValidatePositive("workerpool", "max_workers", c.MaxWorkers),
		validation.ValidateNonNegativeDuration("workerpool", "idle_timeout", c.IdleTimeout),
		validation.ValidateNonNegativeDuration("workerpool", "task_timeout", c.TaskTimeout),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// workerPool implements the Pool interface.
type workerPool struct {
	config  Config
	idleCap int32
	queue   *task.Queue
	log     logrus.FieldLogger
	metrics *metrics.Registry

	// abort is canceled by ShutdownWithTimeout once the grace period ends
	abort  context.Context
	cancel context.CancelFunc

	alive  atomic.Int32
	idle   atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
	nextID atomic.Int32

	spawned        atomic.Int64
	exited         atomic.Int64
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64

	spawnMu      sync.Mutex
	workerWg     sync.WaitGroup
	shutdownOnce sync.Once
	done         chan struct{}
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *workerPool
}

// New creates a pool for the given hardware parallelism with default
// settings. It panics if parallelism is negative.
func New(parallelism int) Pool {
	cfg := DefaultConfig()
	cfg.Parallelism = parallelism
	pool, err := NewWithConfig(cfg)
	if err != nil {
		panic(err)
	}
	return pool
}

// NewWithConfig creates a pool and starts its first worker.
func NewWithConfig(config Config) (Pool, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	abort, cancel := context.WithCancel(context.Background())
	pool := &workerPool{
		config:  config,
		idleCap: int32(config.Ceiling() * config.ShrinkFactor),
		queue:   task.NewQueue(),
		log:     config.Logger.WithFields(logrus.Fields{"component": "workerpool", "pool": config.Name}),
		metrics: config.Metrics,
		abort:   abort,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	pool.log.WithFields(logrus.Fields{
		"ceiling":     config.Ceiling(),
		"max_workers": config.MaxWorkers,
	}).Debug("worker pool started")

	pool.spawnMu.Lock()
	pool.spawn()
	pool.spawnMu.Unlock()

	return pool, nil
}
