package fiber

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	gfcontext "github.com/vnykmshr/fibercore/pkg/common/context"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/engine"
	"github.com/vnykmshr/fibercore/pkg/metrics"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

// Stats is a point-in-time view of scheduler counters.
type Stats struct {
	Alive      int
	Idle       int
	Peak       int
	Spare      int
	Queued     int
	Pending    int
	Spawned    int64
	Exited     int64
	Executed   int64
	Failed     int64
	Switches   int64
	Preempts   int64
	StackBytes int64
}

// Scheduler runs engine-bound tasks on a growing and shrinking set of fibers.
// At most one fiber holds exclusive engine access at any instant.
type Scheduler struct {
	cfg     Config
	engine  engine.Engine
	jobs    *task.Queue
	log     logrus.FieldLogger
	metrics *metrics.Registry

	growMu sync.Mutex
	alive  atomic.Int32
	idle   atomic.Int32
	peak   atomic.Int32
	spare  atomic.Int32
	nextID atomic.Int64

	spawned  atomic.Int64
	exited   atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
	switches atomic.Int64
	preempts atomic.Int64
	pending  atomic.Int32

	// running is the fiber currently holding engine access.
	running atomic.Pointer[worker]
	live    sync.Map // task id -> *Context

	closed       atomic.Bool
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	done         chan struct{}
}

// worker is one fiber: a goroutine that loops pulling tasks.
type worker struct {
	id      int64
	current atomic.Pointer[Context]
}

// New creates a scheduler. No fiber is started until work arrives.
func New(cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:     cfg,
		engine:  cfg.Engine,
		jobs:    task.NewQueue(),
		log:     cfg.Logger.WithFields(logrus.Fields{"component": "fiber", "scheduler": cfg.Name}),
		metrics: cfg.Metrics,
		done:    make(chan struct{}),
	}
	s.spare.Store(int32(cfg.SpareFibers))
	return s, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(cfg Config) *Scheduler {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the scheduler's label.
func (s *Scheduler) Name() string { return s.cfg.Name }

// Engine returns the engine the scheduler serialises access to.
func (s *Scheduler) Engine() engine.Engine { return s.engine }

// Submit queues t for execution on a fiber. It never blocks on execution;
// it returns ErrClosed after Shutdown.
func (s *Scheduler) Submit(t *task.Task) error {
	if t == nil {
		return gferrors.ErrInvalidCall
	}
	if err := s.jobs.Push(t); err != nil {
		return err
	}
	s.metrics.TaskSubmitted(metrics.PoolFiber, s.jobs.Len())
	s.maybeGrow()
	return nil
}

// Go starts fn as a nested fiber call. When ctx belongs to a running fiber,
// the new call records it as caller and inherits its ambient properties.
func (s *Scheduler) Go(ctx context.Context, fn task.Func, opts ...task.Option) (*task.Task, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if parent := Current(ctx); !parent.IsNull() {
		ctx = gfcontext.WithProps(ctx, parent.Props())
	}
	t := task.Fiber(fn, append(opts, task.WithContext(ctx))...)
	if err := s.Submit(t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetSpare adjusts the ceiling on idle fibers. Parked fibers above a lowered
// ceiling exit within one IdleRecheck period.
func (s *Scheduler) SetSpare(n int) {
	if n < 0 {
		n = 0
	}
	s.spare.Store(int32(n))
	s.metrics.SetIdle(metrics.PoolFiber, int(s.idle.Load()))
}

// Spare returns the current idle ceiling.
func (s *Scheduler) Spare() int { return int(s.spare.Load()) }

// Switches returns the number of engine access hand-offs so far. It grows
// every time a fiber acquires the engine, including after a yield.
func (s *Scheduler) Switches() int64 { return s.switches.Load() }

// Pending returns the number of fibers waiting to resume with engine access.
func (s *Scheduler) Pending() int { return int(s.pending.Load()) }

// Preempt asks the engine to make the fiber currently running a script call
// yield at its next interrupt point.
func (s *Scheduler) Preempt() {
	s.preempts.Add(1)
	s.engine.RequestInterrupt(s.yieldRunning)
}

// yieldRunning is the interrupt callback. It runs on the engine-holding
// fiber and performs a zero-duration voluntary suspension.
func (s *Scheduler) yieldRunning() {
	w := s.running.Load()
	if w == nil {
		return
	}
	c := w.current.Load()
	if c == nil {
		return
	}
	c.suspend()
	runtime.Gosched()
	c.resume()
}

// Lookup returns the execution context of a running task, or Null.
func (s *Scheduler) Lookup(t *task.Task) *Context {
	if t == nil {
		return Null
	}
	if c, ok := s.live.Load(t.ID()); ok {
		return c.(*Context)
	}
	return Null
}

// Running returns the execution contexts of all tasks currently on a fiber.
func (s *Scheduler) Running() []*Context {
	var out []*Context
	s.live.Range(func(_, v any) bool {
		out = append(out, v.(*Context))
		return true
	})
	return out
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	alive := int(s.alive.Load())
	return Stats{
		Alive:      alive,
		Idle:       int(s.idle.Load()),
		Peak:       int(s.peak.Load()),
		Spare:      int(s.spare.Load()),
		Queued:     s.jobs.Len(),
		Pending:    int(s.pending.Load()),
		Spawned:    s.spawned.Load(),
		Exited:     s.exited.Load(),
		Executed:   s.executed.Load(),
		Failed:     s.failed.Load(),
		Switches:   s.switches.Load(),
		Preempts:   s.preempts.Load(),
		StackBytes: int64(alive) * int64(s.cfg.StackSize),
	}
}

// Shutdown stops accepting work. Queued tasks still run; idle fibers exit.
// The returned channel closes once every fiber has exited.
func (s *Scheduler) Shutdown() <-chan struct{} {
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)
		s.jobs.Close()

		go func() {
			s.wg.Wait()
			s.log.Debug("fiber scheduler stopped")
			close(s.done)
		}()
	})
	return s.done
}

// maybeGrow spawns one fiber when work is queued, no fiber is idle and the
// hard ceiling allows it. The new fiber starts with the queue head.
func (s *Scheduler) maybeGrow() {
	if s.idle.Load() > 0 || s.jobs.Empty() {
		return
	}

	s.growMu.Lock()
	defer s.growMu.Unlock()

	if s.idle.Load() > 0 || int(s.alive.Load()) >= s.cfg.MaxFibers {
		return
	}
	t, ok := s.jobs.TryPop()
	if !ok {
		return
	}
	s.spawn(t)
}

// spawn starts a fiber with first as its initial task. Caller holds growMu.
func (s *Scheduler) spawn(first *task.Task) {
	w := &worker{id: s.nextID.Add(1)}
	alive := s.alive.Add(1)
	for {
		p := s.peak.Load()
		if alive <= p || s.peak.CompareAndSwap(p, alive) {
			break
		}
	}
	s.spawned.Add(1)
	s.metrics.WorkerSpawned(metrics.PoolFiber, int(alive), int(s.peak.Load()))
	s.log.WithFields(logrus.Fields{"fiber": w.id, "stack_size": s.cfg.StackSize}).Debug("fiber started")

	s.wg.Add(1)
	go s.loop(w, first)
}

// loop is the body of a fiber.
func (s *Scheduler) loop(w *worker, t *task.Task) {
	defer s.wg.Done()
	defer func() {
		alive := s.alive.Add(-1)
		s.exited.Add(1)
		s.metrics.WorkerExited(metrics.PoolFiber, int(alive))
		s.log.WithField("fiber", w.id).Debug("fiber exited")
		// submitters that saw this fiber counted as idle did not grow
		s.maybeGrow()
	}()

	for {
		if t == nil {
			var ok bool
			if t, ok = s.jobs.TryPop(); !ok {
				if t, ok = s.park(); !ok {
					return
				}
			}
		}
		s.maybeGrow()
		s.run(w, t)
		t = nil
	}
}

// park waits for work as an idle fiber. It returns false when the fiber
// should exit: the spare ceiling is exceeded or the scheduler is closed.
func (s *Scheduler) park() (*task.Task, bool) {
	if s.idle.Add(1) > s.spare.Load() {
		s.idle.Add(-1)
		return nil, false
	}
	s.metrics.SetIdle(metrics.PoolFiber, int(s.idle.Load()))
	defer func() {
		s.metrics.SetIdle(metrics.PoolFiber, int(s.idle.Load()))
	}()

	for {
		t, ok := s.jobs.PopTimeout(s.cfg.IdleRecheck)
		if ok {
			s.idle.Add(-1)
			return t, true
		}
		if s.jobs.Closed() {
			s.idle.Add(-1)
			return nil, false
		}
		// timed out: leave if the ceiling was lowered underneath us
		for {
			n := s.idle.Load()
			if n <= s.spare.Load() {
				break
			}
			if s.idle.CompareAndSwap(n, n-1) {
				return nil, false
			}
		}
	}
}

// run executes one task on fiber w with exclusive engine access.
func (s *Scheduler) run(w *worker, t *task.Task) {
	base := t.Context()
	c := &Context{
		sched:  s,
		task:   t,
		worker: w,
		caller: callerOf(base),
		props:  gfcontext.PropsFrom(base),
	}
	ctx := context.WithValue(base, contextKey{}, c)
	s.live.Store(t.ID(), c)

	s.acquire(w)
	s.engine.Enter()
	c.thread.Store(s.engine.CurrentThreadID())
	w.current.Store(c)

	if !t.Invoke(ctx) {
		s.log.WithField("task", t.ID()).Warn("task already invoked, skipping")
	}
	_, err := t.Result()
	s.executed.Add(1)
	if err != nil {
		s.failed.Add(1)
		s.report(c, err)
	}
	s.metrics.TaskDone(metrics.PoolFiber, t.Duration(), err, s.jobs.Len())

	c.detach()
	s.live.Delete(t.ID())
	w.current.Store(nil)
	s.engine.Leave()
	s.release(w)
}

func (s *Scheduler) report(c *Context, err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(c, err)
		return
	}
	entry := s.log.WithFields(logrus.Fields{
		"fiber":  c.FiberID(),
		"task":   c.task.Name(),
		"thread": c.ThreadID(),
	}).WithError(err)
	if trace := c.snapshot(); trace != "" {
		entry = entry.WithField("trace", trace)
	}
	entry.Error("fiber task failed")
}

// acquire takes exclusive engine access for w, counting it in the resume
// wait list while blocked.
func (s *Scheduler) acquire(w *worker) {
	start := time.Now()
	s.pending.Add(1)
	s.engine.Lock()
	waiting := s.pending.Add(-1)
	s.switches.Add(1)
	s.running.Store(w)
	s.metrics.EngineAcquired(s.cfg.Name, time.Since(start), int(waiting))
}

func (s *Scheduler) release(w *worker) {
	s.running.CompareAndSwap(w, nil)
	s.engine.Unlock()
}
