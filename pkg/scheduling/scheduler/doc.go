/*
Package scheduler fires timers as tasks.

Timers are registered by ID and checked on a fixed tick. When one is due its
callback is handed to a Submitter, normally a fiber.Scheduler or a
hybrid.Runtime, so the callback runs with engine access like any other fiber.

Basic Usage:

	timers, err := scheduler.New(rt)
	if err != nil {
		return err
	}
	if err := timers.Start(); err != nil {
		return err
	}
	defer func() { <-timers.Stop() }()

	timers.ScheduleAfter("warmup", warm, time.Second)
	timers.ScheduleRepeating("flush", flush, 30*time.Second, scheduler.WithSkipIfRunning())
	timers.ScheduleCron("nightly", "0 0 3 * * *", compact, scheduler.WithMaxRuns(7))

One-time timers are removed once fired. Repeating timers are rescheduled
relative to the firing time, cron timers to the next matching instant in
Config.Location. Cron expressions accept an optional seconds field and the
usual descriptors such as @hourly.

Callbacks receive a context that is canceled when the scheduler stops.
*/
package scheduler
