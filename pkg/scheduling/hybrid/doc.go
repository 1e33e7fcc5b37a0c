/*
Package hybrid is the entry point for embedding the scheduler.

A Runtime owns one fiber scheduler bound to the engine, one elastic
background pool and, when preemptive, a watchdog that preempts a fiber
holding the engine while others wait. There are no process-wide
singletons: create one Runtime per engine.

	iso := engine.NewIsolate()
	rt := hybrid.MustNew(hybrid.DefaultConfig(iso))
	defer func() { <-rt.Shutdown() }()

	t, _ := rt.Go(ctx, func(ctx context.Context) (any, error) {
		// looks blocking, but only this fiber waits; the engine is free
		return rt.Call(ctx, func(ctx context.Context) (any, error) {
			return os.ReadFile("config.json")
		})
	})
	data, err := rt.Join(ctx, t)

Submit routes a prepared task by its mode: task.Fiber tasks run with engine
access, task.Background tasks run on the pool.
*/
package hybrid
