package workerpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	gfcontext "github.com/vnykmshr/fibercore/pkg/common/context"
	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/metrics"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

// Submit adds a task to the pool for execution.
// The task runs with its own context; see task.WithContext.
func (p *workerPool) Submit(t *task.Task) error {
	if t == nil {
		return gferrors.ErrInvalidCall
	}
	if err := p.queue.Push(t); err != nil {
		return err
	}
	p.totalSubmitted.Add(1)
	p.metrics.TaskSubmitted(metrics.PoolBackground, p.queue.Len())
	return nil
}

// SubmitFunc wraps fn in a background task bound to ctx and submits it.
func (p *workerPool) SubmitFunc(ctx context.Context, fn task.Func, opts ...task.Option) (*task.Task, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	t := task.Background(fn, append(opts, task.WithContext(ctx))...)
	if err := p.Submit(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Shutdown initiates a graceful shutdown of the pool.
func (p *workerPool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.queue.Close()

		// Wait for all workers to finish in a separate goroutine
		go func() {
			p.workerWg.Wait()
			p.cancel()
			p.log.WithField("executed", p.totalCompleted.Load()).Debug("worker pool stopped")
			close(p.done)
		}()
	})

	return p.done
}

// ShutdownWithTimeout shuts down the pool; tasks still running or queued
// after timeout see their contexts canceled.
func (p *workerPool) ShutdownWithTimeout(timeout time.Duration) <-chan struct{} {
	done := p.Shutdown()

	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			p.log.WithField("timeout", timeout).Warn("shutdown grace period elapsed, canceling tasks")
			p.cancel()
		}
	}()

	return done
}

// Size returns the number of live workers.
func (p *workerPool) Size() int {
	return int(p.alive.Load())
}

// Idle returns the number of workers waiting for work.
func (p *workerPool) Idle() int {
	return int(p.idle.Load())
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *workerPool) QueueSize() int {
	return p.queue.Len()
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *workerPool) ActiveWorkers() int {
	return int(p.active.Load())
}

// TotalSubmitted returns the total number of tasks submitted to the pool.
func (p *workerPool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of tasks completed by the pool.
func (p *workerPool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// Stats returns a snapshot of the pool counters.
func (p *workerPool) Stats() Stats {
	return Stats{
		Alive:    int(p.alive.Load()),
		Idle:     int(p.idle.Load()),
		Active:   int(p.active.Load()),
		Peak:     int(p.peak.Load()),
		Queued:   p.queue.Len(),
		Spawned:  p.spawned.Load(),
		Exited:   p.exited.Load(),
		Executed: p.totalCompleted.Load(),
		Failed:   p.totalFailed.Load(),
	}
}

// spawn starts one worker. Caller holds spawnMu.
func (p *workerPool) spawn() {
	w := &worker{id: int(p.nextID.Add(1)), pool: p}
	alive := p.alive.Add(1)
	for {
		peak := p.peak.Load()
		if alive <= peak || p.peak.CompareAndSwap(peak, alive) {
			break
		}
	}
	p.spawned.Add(1)
	p.metrics.WorkerSpawned(metrics.PoolBackground, int(alive), int(p.peak.Load()))

	p.workerWg.Add(1)
	go w.run()
}

// grow adds a worker when the last idle one just took a task.
func (p *workerPool) grow() {
	p.spawnMu.Lock()
	defer p.spawnMu.Unlock()

	if int(p.alive.Load()) >= p.config.MaxWorkers {
		return
	}
	p.spawn()
}

// retire lets an idle worker exit while more than MinParallelism remain.
func (p *workerPool) retire() bool {
	floor := int32(p.config.MinParallelism)
	for {
		n := p.alive.Load()
		if n <= floor {
			return false
		}
		if p.alive.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	retired := false
	defer p.workerWg.Done()
	defer func() { w.stop(retired) }()

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}

	for {
		if p.idle.Add(1) > p.idleCap {
			p.idle.Add(-1)
			return
		}
		p.metrics.SetIdle(metrics.PoolBackground, int(p.idle.Load()))

		t, ok := p.queue.PopTimeout(p.config.IdleTimeout)
		idle := p.idle.Add(-1)
		p.metrics.SetIdle(metrics.PoolBackground, int(idle))

		if !ok {
			if p.queue.Closed() {
				return
			}
			if retired = p.retire(); retired {
				return
			}
			continue
		}

		// the last idle worker is now busy: keep one in reserve
		if idle == 0 {
			p.grow()
		}
		w.execute(t)
	}
}

func (w *worker) stop(retired bool) {
	p := w.pool
	alive := p.alive.Load()
	if !retired {
		alive = p.alive.Add(-1)
	}
	p.exited.Add(1)
	p.metrics.WorkerExited(metrics.PoolBackground, int(alive))
	p.log.WithFields(logrus.Fields{"worker": w.id, "alive": alive}).Debug("worker exited")

	if p.config.OnWorkerStop != nil {
		p.config.OnWorkerStop(w.id)
	}
}

// execute runs a single task on the worker.
func (w *worker) execute(t *task.Task) {
	p := w.pool
	p.active.Add(1)
	defer p.active.Add(-1)

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(w.id, t)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	stop := context.AfterFunc(p.abort, cancel)
	defer stop()

	// The effective timeout is the minimum of the context deadline and TaskTimeout
	var wrap func(error) error
	if p.config.TaskTimeout > 0 {
		parent := ctx
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = gfcontext.WithTimeoutOrCancel(ctx, p.config.TaskTimeout)
		defer cancelTimeout()
		wrap = func(err error) error {
			if errors.Is(err, context.DeadlineExceeded) && !gfcontext.IsCanceled(parent) {
				return fmt.Errorf("%w after %v: %w", gferrors.ErrTimeout, p.config.TaskTimeout, err)
			}
			return err
		}
	}

	t.InvokeWith(ctx, wrap)

	_, err := t.Result()
	result := Result{
		Task:     t,
		Error:    err,
		Duration: t.Duration(),
		WorkerID: w.id,
	}

	p.totalCompleted.Add(1)
	if err != nil {
		p.totalFailed.Add(1)
		if p.config.OnError != nil {
			p.config.OnError(t, err)
		} else {
			p.log.WithFields(logrus.Fields{"worker": w.id, "task": t.Name()}).WithError(err).Warn("background task failed")
		}
	}
	p.metrics.TaskDone(metrics.PoolBackground, result.Duration, err, p.queue.Len())

	if p.config.OnTaskComplete != nil {
		p.config.OnTaskComplete(w.id, result)
	}
}
