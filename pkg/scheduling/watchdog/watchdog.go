// Package watchdog detects a fiber that keeps exclusive engine access
// while others wait, and asks the scheduler to preempt it.
package watchdog

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/fibercore/pkg/common/validation"
	"github.com/vnykmshr/fibercore/pkg/metrics"
)

const (
	// DefaultInterval is the poll period.
	DefaultInterval = 100 * time.Millisecond
	// DefaultStallPolls is the number of consecutive stalled polls that
	// trigger an interrupt.
	DefaultStallPolls = 2
)

// Target is what the watchdog observes. fiber.Scheduler implements it.
type Target interface {
	// Switches is a counter that advances on every engine hand-off.
	Switches() int64
	// Pending is the number of fibers waiting for engine access.
	Pending() int
	// Preempt asks the engine holder to yield at its next interrupt point.
	Preempt()
}

// Config holds watchdog configuration.
type Config struct {
	Name       string        // label in logs and metrics (default: "main")
	Interval   time.Duration // poll period (default: 100ms)
	StallPolls int           // stalled polls before an interrupt (default: 2)
	Logger     logrus.FieldLogger
	Metrics    *metrics.Registry
}

// Watchdog polls a Target and preempts it when no hand-off happened for
// StallPolls polls while work was pending.
type Watchdog struct {
	target   Target
	name     string
	interval time.Duration
	stallMax int
	log      logrus.FieldLogger
	metrics  *metrics.Registry

	// poll state, owned by the polling goroutine
	stall int
	last  int64

	polls      atomic.Int64
	stalls     atomic.Int64
	interrupts atomic.Int64

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// New creates a stopped watchdog for target.
func New(target Target, cfg Config) (*Watchdog, error) {
	if target == nil {
		return nil, validation.ValidateNotNil("watchdog", "target", nil)
	}
	if cfg.Name == "" {
		cfg.Name = "main"
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StallPolls == 0 {
		cfg.StallPolls = DefaultStallPolls
	}
	if err := validation.ValidatePositiveDuration("watchdog", "interval", cfg.Interval); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("watchdog", "stall_polls", cfg.StallPolls); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}

	return &Watchdog{
		target:   target,
		name:     cfg.Name,
		interval: cfg.Interval,
		stallMax: cfg.StallPolls,
		log:      cfg.Logger.WithFields(logrus.Fields{"component": "watchdog", "scheduler": cfg.Name}),
		metrics:  cfg.Metrics,
	}, nil
}

// Start launches the polling goroutine.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watchdog %q already running, call Stop() first", w.name)
	}
	w.running = true
	w.done = make(chan struct{})
	w.stopped = make(chan struct{})

	go w.run(w.done, w.stopped)
	w.log.WithField("interval", w.interval).Debug("watchdog started")
	return nil
}

// Stop ends polling. The returned channel closes once the goroutine exited.
func (w *Watchdog) Stop() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		stopped := make(chan struct{})
		close(stopped)
		return stopped
	}
	w.running = false
	close(w.done)
	return w.stopped
}

// Running reports whether the watchdog is polling.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Polls returns the number of polls performed.
func (w *Watchdog) Polls() int64 { return w.polls.Load() }

// Stalls returns the number of polls that observed no progress.
func (w *Watchdog) Stalls() int64 { return w.stalls.Load() }

// Interrupts returns the number of preemptions requested.
func (w *Watchdog) Interrupts() int64 { return w.interrupts.Load() }

func (w *Watchdog) run(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll runs one observation and reports whether it requested a preemption.
func (w *Watchdog) poll() bool {
	w.polls.Add(1)

	if w.target.Pending() == 0 {
		w.stall = 0
		w.metrics.WatchdogPolled(w.name, false, false)
		return false
	}

	if s := w.target.Switches(); s != w.last {
		w.stall = 0
		w.last = s
		w.metrics.WatchdogPolled(w.name, false, false)
		return false
	}

	w.stalls.Add(1)
	w.stall++
	if w.stall < w.stallMax {
		w.metrics.WatchdogPolled(w.name, true, false)
		return false
	}

	w.stall = 0
	w.interrupts.Add(1)
	w.metrics.WatchdogPolled(w.name, true, true)
	w.log.WithField("pending", w.target.Pending()).Debug("engine holder stalled, requesting preemption")
	w.target.Preempt()
	return true
}
