/*
Package fibercore runs engine-bound work on fibers and blocking work on an
elastic background pool.

A fiber is a goroutine that holds exclusive access to a single-threaded
engine while it runs and hands that access to the next fiber whenever it
waits. Blocking calls are moved to background workers so waiting never
holds the engine.

Scheduling (pkg/scheduling):
  - task: Tasks, results and the blocking job queue
  - fiber: Fiber scheduler, fiber contexts, Join, Sleep and Yield
  - workerpool: Elastic background pool
  - watchdog: Preemption of fibers that hold the engine too long
  - hybrid: One runtime wiring the three together
  - scheduler: Timers and cron jobs fired as fiber tasks

Blocking clients (pkg/blocking):
  - kv: Redis commands on the background pool
  - db: SQL statements on the background pool

Support:
  - engine: The engine access contract and the Isolate lock
  - ratelimit/bucket: Token bucket whose waits suspend the fiber
  - config: Environment settings and the JSON logger
  - metrics: Prometheus instrumentation

Example usage:

	import (
		"github.com/vnykmshr/fibercore/pkg/engine"
		"github.com/vnykmshr/fibercore/pkg/scheduling/hybrid"
	)

	rt := hybrid.MustNew(hybrid.DefaultConfig(engine.NewIsolate()))
	defer func() { <-rt.Shutdown() }()

	t, _ := rt.Go(ctx, func(ctx context.Context) (any, error) {
		return rt.Call(ctx, fetch) // the engine is free while fetch runs
	})
	v, err := rt.Join(ctx, t)
*/
package fibercore
