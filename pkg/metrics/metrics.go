// Package metrics provides Prometheus instrumentation for fibercore components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool labels used by the scheduling components.
const (
	PoolFiber      = "fiber"
	PoolBackground = "background"
)

// Registry holds all metric instances for fibercore components.
// A nil *Registry is valid and records nothing.
type Registry struct {
	// Worker metrics, labeled by pool
	WorkersAlive   *prometheus.GaugeVec
	WorkersIdle    *prometheus.GaugeVec
	WorkersPeak    *prometheus.GaugeVec
	WorkersSpawned *prometheus.CounterVec
	WorkersExited  *prometheus.CounterVec

	// Task metrics, labeled by pool
	TasksSubmitted        *prometheus.CounterVec
	TasksExecuted         *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	QueueDepth            *prometheus.GaugeVec

	// Engine access metrics
	ContextSwitches *prometheus.CounterVec
	EngineWaiting   *prometheus.GaugeVec
	EngineWait      *prometheus.HistogramVec

	// Watchdog metrics
	WatchdogPolls      *prometheus.CounterVec
	WatchdogStalls     *prometheus.CounterVec
	WatchdogInterrupts *prometheus.CounterVec

	// Timer metrics
	TimersScheduled *prometheus.CounterVec
	TimersFired     *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Enabled: true, Registry: reg})
}

// NewRegistryWithConfig creates a registry honoring the namespace and constant
// labels of cfg. It returns nil when cfg is disabled.
func NewRegistryWithConfig(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)

	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			Buckets:     prometheus.DefBuckets,
			ConstLabels: cfg.Labels,
		}, labels)
	}

	return &Registry{
		WorkersAlive:   gauge("workers", "alive", "Number of live workers", "pool"),
		WorkersIdle:    gauge("workers", "idle", "Number of idle workers", "pool"),
		WorkersPeak:    gauge("workers", "peak", "Highest number of live workers observed", "pool"),
		WorkersSpawned: counter("workers", "spawned_total", "Total number of workers started", "pool"),
		WorkersExited:  counter("workers", "exited_total", "Total number of workers that exited", "pool"),

		TasksSubmitted:        counter("tasks", "submitted_total", "Total number of tasks submitted", "pool"),
		TasksExecuted:         counter("tasks", "executed_total", "Total number of tasks executed", "pool"),
		TasksFailed:           counter("tasks", "failed_total", "Total number of tasks that returned an error or panicked", "pool"),
		TaskExecutionDuration: histogram("tasks", "duration_seconds", "Time spent executing tasks", "pool"),
		QueueDepth:            gauge("tasks", "queued", "Number of queued tasks", "pool"),

		ContextSwitches: counter("engine", "switches_total", "Total number of engine access hand-offs between fibers", "scheduler"),
		EngineWaiting:   gauge("engine", "waiting", "Number of fibers waiting to resume with engine access", "scheduler"),
		EngineWait:      histogram("engine", "wait_duration_seconds", "Time fibers spent waiting for engine access", "scheduler"),

		WatchdogPolls:      counter("watchdog", "polls_total", "Total number of watchdog polls", "watchdog"),
		WatchdogStalls:     counter("watchdog", "stalls_total", "Total number of polls that observed no progress under pressure", "watchdog"),
		WatchdogInterrupts: counter("watchdog", "interrupts_total", "Total number of interrupts requested", "watchdog"),

		TimersScheduled: counter("timers", "scheduled_total", "Total number of timers scheduled", "scheduler"),
		TimersFired:     counter("timers", "fired_total", "Total number of timer callbacks submitted", "scheduler"),
	}
}

// WorkerSpawned records a new worker in pool and the resulting live count.
func (r *Registry) WorkerSpawned(pool string, alive, peak int) {
	if r == nil {
		return
	}
	r.WorkersSpawned.WithLabelValues(pool).Inc()
	r.WorkersAlive.WithLabelValues(pool).Set(float64(alive))
	r.WorkersPeak.WithLabelValues(pool).Set(float64(peak))
}

// WorkerExited records a worker leaving pool and the resulting live count.
func (r *Registry) WorkerExited(pool string, alive int) {
	if r == nil {
		return
	}
	r.WorkersExited.WithLabelValues(pool).Inc()
	r.WorkersAlive.WithLabelValues(pool).Set(float64(alive))
}

// SetIdle records the idle worker count of pool.
func (r *Registry) SetIdle(pool string, idle int) {
	if r == nil {
		return
	}
	r.WorkersIdle.WithLabelValues(pool).Set(float64(idle))
}

// TaskSubmitted records a submission to pool and the resulting queue depth.
func (r *Registry) TaskSubmitted(pool string, queued int) {
	if r == nil {
		return
	}
	r.TasksSubmitted.WithLabelValues(pool).Inc()
	r.QueueDepth.WithLabelValues(pool).Set(float64(queued))
}

// TaskDone records one task execution in pool.
func (r *Registry) TaskDone(pool string, d time.Duration, err error, queued int) {
	if r == nil {
		return
	}
	r.TasksExecuted.WithLabelValues(pool).Inc()
	if err != nil {
		r.TasksFailed.WithLabelValues(pool).Inc()
	}
	r.TaskExecutionDuration.WithLabelValues(pool).Observe(d.Seconds())
	r.QueueDepth.WithLabelValues(pool).Set(float64(queued))
}

// EngineAcquired records a completed wait for engine access.
func (r *Registry) EngineAcquired(scheduler string, waited time.Duration, waiting int) {
	if r == nil {
		return
	}
	r.ContextSwitches.WithLabelValues(scheduler).Inc()
	r.EngineWait.WithLabelValues(scheduler).Observe(waited.Seconds())
	r.EngineWaiting.WithLabelValues(scheduler).Set(float64(waiting))
}

// WatchdogPolled records one watchdog poll.
func (r *Registry) WatchdogPolled(name string, stalled, interrupted bool) {
	if r == nil {
		return
	}
	r.WatchdogPolls.WithLabelValues(name).Inc()
	if stalled {
		r.WatchdogStalls.WithLabelValues(name).Inc()
	}
	if interrupted {
		r.WatchdogInterrupts.WithLabelValues(name).Inc()
	}
}

// TimerScheduled records a new timer.
func (r *Registry) TimerScheduled(scheduler string) {
	if r == nil {
		return
	}
	r.TimersScheduled.WithLabelValues(scheduler).Inc()
}

// TimerFired records a timer callback handed to the fiber scheduler.
func (r *Registry) TimerFired(scheduler string) {
	if r == nil {
		return
	}
	r.TimersFired.WithLabelValues(scheduler).Inc()
}
