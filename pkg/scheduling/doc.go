/*
Package scheduling groups the execution primitives of fibercore.

  - task: Task values, their modes and the FIFO job queue both pools pop from
  - fiber: Fibers sharing one engine, with cooperative hand-off
  - workerpool: Elastic pool for blocking work
  - watchdog: Interrupts a fiber that keeps the engine while others wait
  - hybrid: Runtime routing tasks to fibers or the background pool
  - scheduler: Timers fired as tasks through a Submitter

Fiber Scheduler:

Fibers are started on demand and parked when idle, up to a spare ceiling:

	s := fiber.MustNew(fiber.DefaultConfig(engine.NewIsolate()))
	defer func() { <-s.Shutdown() }()

	t, _ := s.Go(ctx, func(ctx context.Context) (any, error) {
		if err := fiber.Sleep(ctx, time.Millisecond); err != nil { // hands the engine over
			return nil, err
		}
		return fiber.Current(ctx).FiberID(), nil
	})
	id, err := fiber.Join(ctx, t)

Background Pool:

The pool keeps one idle worker in reserve and shrinks back after bursts:

	pool := workerpool.New(runtime.NumCPU())
	defer func() { <-pool.Shutdown() }()

	t, _ := pool.SubmitFunc(ctx, readFile)
	data, err := t.Wait(ctx)

Hybrid Runtime:

	rt := hybrid.MustNew(hybrid.DefaultConfig(engine.NewIsolate()))
	t, _ := rt.Go(ctx, func(ctx context.Context) (any, error) {
		return rt.Call(ctx, readFile)
	})

Timers:

	timers, _ := scheduler.New(rt)
	timers.ScheduleCron("nightly", "0 0 3 * * *", compact)
	timers.Start()
*/
package scheduling
