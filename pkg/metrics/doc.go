// Package metrics provides Prometheus instrumentation for fibercore components.
//
// Every scheduling component accepts an optional *Registry. A nil registry
// disables collection, so components call the recording helpers
// unconditionally.
//
// # Quick Start
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	rt, _ := hybrid.New(hybrid.Config{Engine: eng, Metrics: reg})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
// Worker pools (label "pool" is "fiber" or "background"):
//
//   - fibercore_workers_alive, fibercore_workers_idle, fibercore_workers_peak
//   - fibercore_workers_spawned_total, fibercore_workers_exited_total
//
// Tasks (label "pool"):
//
//   - fibercore_tasks_submitted_total, fibercore_tasks_executed_total
//   - fibercore_tasks_failed_total, fibercore_tasks_duration_seconds
//   - fibercore_tasks_queued
//
// Engine access (label "scheduler"):
//
//   - fibercore_engine_switches_total: hand-offs of exclusive engine access
//   - fibercore_engine_waiting: fibers waiting to resume
//   - fibercore_engine_wait_duration_seconds
//
// Watchdog (label "watchdog"):
//
//   - fibercore_watchdog_polls_total, fibercore_watchdog_stalls_total
//   - fibercore_watchdog_interrupts_total
//
// Timers (label "scheduler"):
//
//   - fibercore_timers_scheduled_total, fibercore_timers_fired_total
package metrics
