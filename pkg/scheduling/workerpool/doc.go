/*
Package workerpool provides the elastic background pool that runs blocking
work off the engine.

Workers are goroutines sharing one unbounded task queue. The pool sizes
itself against the hardware parallelism:

	ceiling = max(Parallelism, MinParallelism) * Multiplier

One worker starts eagerly. Whenever a worker takes a task and no other
worker is left idle, one more worker is spawned (up to MaxWorkers), so a
burst of blocking calls never starves later submissions. A worker exits
when more than ceiling * ShrinkFactor workers would be idle, and, with an
IdleTimeout, when it has waited that long while more than MinParallelism
workers are alive.

Basic usage:

	pool := workerpool.New(runtime.NumCPU())
	defer func() { <-pool.Shutdown() }()

	t, err := pool.SubmitFunc(ctx, func(ctx context.Context) (any, error) {
		return os.ReadFile(path)
	})
	if err != nil {
		return err
	}
	data, err := t.Wait(ctx)

Errors and panics:

A task's error, or its recovered panic as *errors.PanicError, is stored on
the task and handed to Config.OnError. The worker keeps serving.

Configuration:

	config := workerpool.DefaultConfig()
	config.IdleTimeout = 30 * time.Second
	config.TaskTimeout = time.Minute
	config.OnTaskComplete = func(workerID int, r workerpool.Result) {
		log.Printf("worker %d finished %s in %v", workerID, r.Task.Name(), r.Duration)
	}
	pool, err := workerpool.NewWithConfig(config)

Shutdown:

Shutdown rejects further submissions with ErrClosed, lets workers drain
what is already queued and closes the returned channel when they are gone.
ShutdownWithTimeout additionally cancels task contexts once the grace
period elapses.
*/
package workerpool
