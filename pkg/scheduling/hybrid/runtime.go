package hybrid

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/scheduling/fiber"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
	"github.com/vnykmshr/fibercore/pkg/scheduling/watchdog"
	"github.com/vnykmshr/fibercore/pkg/scheduling/workerpool"
)

// Stats is a snapshot of every pool the runtime owns.
type Stats struct {
	Fiber      fiber.Stats      `json:"fiber"`
	Background workerpool.Stats `json:"background"`
	Interrupts int64            `json:"interrupts"`
}

// Runtime owns one fiber scheduler, one background pool and, when
// preemptive, one watchdog.
type Runtime struct {
	fibers   *fiber.Scheduler
	pool     workerpool.Pool
	watchdog *watchdog.Watchdog
	log      logrus.FieldLogger

	shutdownOnce sync.Once
	done         chan struct{}
}

// New builds and starts a runtime.
func New(cfg Config) (*Runtime, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	fibers, err := fiber.New(cfg.Fiber)
	if err != nil {
		return nil, fmt.Errorf("fiber scheduler: %w", err)
	}
	pool, err := workerpool.NewWithConfig(cfg.Background)
	if err != nil {
		return nil, fmt.Errorf("background pool: %w", err)
	}

	r := &Runtime{
		fibers:   fibers,
		pool:     pool,
		log:      log.WithField("component", "hybrid"),
		done:     make(chan struct{}),
	}

	if cfg.Preemptive {
		wd, err := watchdog.New(fibers, cfg.Watchdog)
		if err == nil {
			err = wd.Start()
		}
		if err != nil {
			<-pool.Shutdown()
			<-fibers.Shutdown()
			return nil, fmt.Errorf("watchdog: %w", err)
		}
		r.watchdog = wd
	}

	r.log.WithField("preemptive", cfg.Preemptive).Info("runtime started")
	return r, nil
}

// MustNew is like New but panics on error.
func MustNew(cfg Config) *Runtime {
	r, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// Fibers returns the fiber scheduler.
func (r *Runtime) Fibers() *fiber.Scheduler { return r.fibers }

// Pool returns the background pool.
func (r *Runtime) Pool() workerpool.Pool { return r.pool }

// Watchdog returns the watchdog, nil when the runtime is not preemptive.
func (r *Runtime) Watchdog() *watchdog.Watchdog { return r.watchdog }

// Submit routes t by its mode.
func (r *Runtime) Submit(t *task.Task) error {
	if t == nil {
		return gferrors.ErrInvalidCall
	}
	switch t.Mode() {
	case task.ModeFiber:
		return r.SubmitFiber(t)
	case task.ModeBackground:
		return r.SubmitBackground(t)
	default:
		return gferrors.NewOperationError("hybrid", "submit", gferrors.ErrInvalidCall).
			WithContext(t.Mode().String())
	}
}

// SubmitFiber queues t on the fiber scheduler.
func (r *Runtime) SubmitFiber(t *task.Task) error {
	return r.fibers.Submit(t)
}

// SubmitBackground queues t on the background pool.
func (r *Runtime) SubmitBackground(t *task.Task) error {
	return r.pool.Submit(t)
}

// Go starts fn on a fiber; see fiber.Scheduler.Go.
func (r *Runtime) Go(ctx context.Context, fn task.Func, opts ...task.Option) (*task.Task, error) {
	return r.fibers.Go(ctx, fn, opts...)
}

// Background starts fn on the background pool. The task keeps the ambient
// properties of the calling fiber but runs outside it.
func (r *Runtime) Background(ctx context.Context, fn task.Func, opts ...task.Option) (*task.Task, error) {
	return r.pool.SubmitFunc(fiber.Detach(ctx), fn, opts...)
}

// Call runs fn on the background pool and waits for it. Called from a fiber
// the engine is released for the duration of the call.
func (r *Runtime) Call(ctx context.Context, fn task.Func, opts ...task.Option) (any, error) {
	t, err := r.Background(ctx, fn, opts...)
	if err != nil {
		return nil, err
	}
	return fiber.Join(ctx, t)
}

// Join waits for t; see fiber.Join.
func (r *Runtime) Join(ctx context.Context, t *task.Task) (any, error) {
	return fiber.Join(ctx, t)
}

// Sleep pauses the calling fiber; see fiber.Sleep.
func (r *Runtime) Sleep(ctx context.Context, d time.Duration) error {
	return fiber.Sleep(ctx, d)
}

// Stats returns a snapshot of all pools.
func (r *Runtime) Stats() Stats {
	st := Stats{
		Fiber:      r.fibers.Stats(),
		Background: r.pool.Stats(),
	}
	if r.watchdog != nil {
		st.Interrupts = r.watchdog.Interrupts()
	}
	return st
}

// Shutdown stops the watchdog, drains the fibers and then the background
// pool, which fibers may still be calling into.
func (r *Runtime) Shutdown() <-chan struct{} {
	r.shutdownOnce.Do(func() {
		go func() {
			if r.watchdog != nil {
				<-r.watchdog.Stop()
			}
			<-r.fibers.Shutdown()
			<-r.pool.Shutdown()
			r.log.Info("runtime stopped")
			close(r.done)
		}()
	})
	return r.done
}
