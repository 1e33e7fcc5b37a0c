/*
Package fiber runs engine-bound tasks on an elastic set of fibers that share
exclusive access to a single scripting engine.

A fiber is a goroutine that pulls tasks from the scheduler's queue. Before
running a task it acquires the engine lock and enters the engine; when the
task finishes, or when it blocks in Join or Sleep, it leaves and releases the
lock so another fiber can proceed. At most one fiber holds the engine at any
instant.

The set of fibers grows when work is queued and no fiber is idle, up to
MaxFibers, and shrinks when more than the spare ceiling would sit idle:

	iso := engine.NewIsolate()
	s := fiber.MustNew(fiber.DefaultConfig(iso))
	defer func() { <-s.Shutdown() }()

	t, _ := s.Go(ctx, func(ctx context.Context) (any, error) {
		child, _ := s.Go(ctx, lookup)
		return fiber.Join(ctx, child) // releases the engine while waiting
	})
	v, err := fiber.Join(ctx, t)

Each running task gets an execution Context, reachable from its ctx with
Current. It records the caller that started the task, the ambient
properties inherited from that caller and a trace snapshot taken at the
latest suspension:

	c := fiber.Current(ctx)
	if caller, err := c.Caller(); err == nil {
		log.Println("started by", caller)
	}
	log.Println(c.TraceInfo(ctx, 0))

Outside a running task Current returns Null, whose queries are all benign.

The scheduler also exposes Switches, Pending and Preempt, which the
watchdog package uses to recover from a fiber that runs without yielding.
*/
package fiber
