package scheduler

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	gferrors "github.com/vnykmshr/fibercore/pkg/common/errors"
	"github.com/vnykmshr/fibercore/pkg/common/validation"
	"github.com/vnykmshr/fibercore/pkg/metrics"
	"github.com/vnykmshr/fibercore/pkg/scheduling/task"
)

const (
	// DefaultTickInterval is how often due timers are checked.
	DefaultTickInterval = 50 * time.Millisecond
	// DefaultMaxTasks bounds the number of registered timers.
	DefaultMaxTasks = 10000

	maxIDLength = 255
)

// Submitter starts a callback as a task. fiber.Scheduler and hybrid.Runtime
// implement it, so timer callbacks run with engine access.
type Submitter interface {
	Go(ctx context.Context, fn task.Func, opts ...task.Option) (*task.Task, error)
}

// Task describes a registered timer.
type Task struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // Zero for one-time and cron timers
	Cron     string
	Runs     int
	Created  time.Time
}

// Scheduler registers timers and fires them as tasks.
type Scheduler interface {
	// Basic scheduling
	Schedule(id string, fn task.Func, runAt time.Time) error
	ScheduleAfter(id string, fn task.Func, delay time.Duration) error
	ScheduleRepeating(id string, fn task.Func, interval time.Duration, opts ...Option) error

	// Cron scheduling
	ScheduleCron(id string, cronExpr string, fn task.Func, opts ...Option) error

	// Task management
	Cancel(id string) bool
	CancelAll()
	List() []Task

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// Option tunes a repeating or cron timer.
type Option func(*scheduledTask)

// WithMaxRuns removes the timer after n firings. Zero means unlimited.
func WithMaxRuns(n int) Option {
	return func(st *scheduledTask) { st.maxRuns = n }
}

// WithSkipIfRunning skips a firing while the previous one has not finished.
func WithSkipIfRunning() Option {
	return func(st *scheduledTask) { st.skipIfRunning = true }
}

// Config holds scheduler configuration.
type Config struct {
	Submitter    Submitter
	Name         string           // label in logs and metrics (default: "main")
	Location     *time.Location   // For cron scheduling
	TickInterval time.Duration    // How often to check for ready timers (default: 50ms)
	MaxTasks     int              // Maximum number of registered timers (default: 10000)
	Now          func() time.Time // Clock (default: time.Now)
	Logger       logrus.FieldLogger
	Metrics      *metrics.Registry
}

type scheduledTask struct {
	id            string
	fn            task.Func
	runAt         time.Time
	interval      time.Duration
	cronExpr      string
	cronSchedule  cron.Schedule
	created       time.Time
	runs          int
	maxRuns       int
	skipIfRunning bool
	last          *task.Task
}

type scheduler struct {
	submitter    Submitter
	name         string
	location     *time.Location
	tickInterval time.Duration
	maxTasks     int
	now          func() time.Time
	cronParser   cron.Parser
	log          logrus.FieldLogger
	metrics      *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	tasks   map[string]*scheduledTask
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// New creates a scheduler firing timers through submitter.
func New(submitter Submitter) (Scheduler, error) {
	return NewWithConfig(Config{Submitter: submitter})
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) (Scheduler, error) {
	if cfg.Submitter == nil {
		return nil, validation.ValidateNotNil("scheduler", "submitter", nil)
	}

	name := cfg.Name
	if name == "" {
		name = "main"
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &scheduler{
		submitter:    cfg.Submitter,
		name:         name,
		location:     location,
		tickInterval: tickInterval,
		maxTasks:     maxTasks,
		now:          now,
		cronParser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		log:          log.WithFields(logrus.Fields{"component": "timers", "scheduler": name}),
		metrics:      cfg.Metrics,
		ctx:          ctx,
		cancel:       cancel,
		tasks:        make(map[string]*scheduledTask),
	}, nil
}

func validateID(id string) error {
	if err := validation.ValidateNotEmpty("scheduler", "id", id); err != nil {
		return err
	}
	if len(id) > maxIDLength {
		return gferrors.NewValidationError("scheduler", "id", len(id), "too long").
			WithHint(fmt.Sprintf("use at most %d characters", maxIDLength))
	}
	return nil
}

func (s *scheduler) add(st *scheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[st.id]; exists {
		return gferrors.NewOperationError("scheduler", "schedule", gferrors.ErrInvalidCall).
			WithContext(fmt.Sprintf("timer %q already exists", st.id))
	}
	if len(s.tasks) >= s.maxTasks {
		return gferrors.NewOperationError("scheduler", "schedule", gferrors.ErrCapacityExceeded).
			WithContext(fmt.Sprintf("maximum number of timers (%d) reached", s.maxTasks))
	}

	st.created = s.now()
	s.tasks[st.id] = st
	s.metrics.TimerScheduled(s.name)
	return nil
}

func (s *scheduler) Schedule(id string, fn task.Func, runAt time.Time) error {
	if err := validateID(id); err != nil {
		return err
	}
	if fn == nil {
		return validation.ValidateNotNil("scheduler", "callback", nil)
	}
	if runAt.IsZero() {
		return gferrors.NewValidationError("scheduler", "run_at", runAt, "cannot be zero")
	}

	return s.add(&scheduledTask{id: id, fn: fn, runAt: runAt})
}

func (s *scheduler) ScheduleAfter(id string, fn task.Func, delay time.Duration) error {
	return s.Schedule(id, fn, s.now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, fn task.Func, interval time.Duration, opts ...Option) error {
	if err := validateID(id); err != nil {
		return err
	}
	if fn == nil {
		return validation.ValidateNotNil("scheduler", "callback", nil)
	}
	if err := validation.ValidatePositiveDuration("scheduler", "interval", interval); err != nil {
		return err
	}

	st := &scheduledTask{id: id, fn: fn, runAt: s.now().Add(interval), interval: interval}
	for _, opt := range opts {
		opt(st)
	}
	return s.add(st)
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, fn task.Func, opts ...Option) error {
	if err := validateID(id); err != nil {
		return err
	}
	if fn == nil {
		return validation.ValidateNotNil("scheduler", "callback", nil)
	}
	if err := validation.ValidateNotEmpty("scheduler", "cron", cronExpr); err != nil {
		return err
	}

	schedule, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		return gferrors.NewValidationError("scheduler", "cron", cronExpr, err.Error())
	}

	st := &scheduledTask{
		id:           id,
		fn:           fn,
		runAt:        schedule.Next(s.now().In(s.location)),
		cronExpr:     cronExpr,
		cronSchedule: schedule,
	}
	for _, opt := range opts {
		opt(st)
	}
	return s.add(st)
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		delete(s.tasks, id)
		return true
	}
	return false
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]*scheduledTask)
}

func (s *scheduler) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, Task{
			ID:       t.id,
			RunAt:    t.runAt,
			Interval: t.interval,
			Cron:     t.cronExpr,
			Runs:     t.runs,
			Created:  t.created,
		})
	}

	// Sort by run time
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].RunAt.Before(tasks[j].RunAt)
	})

	return tasks
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running, call Stop() first")
	}
	if s.ctx.Err() != nil {
		return gferrors.ErrClosed
	}

	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	go s.run(s.done, s.stopped)
	return nil
}

// Stop halts the ticker and cancels the context of callbacks still running.
func (s *scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if !s.running {
		stopped := make(chan struct{})
		close(stopped)
		return stopped
	}
	s.running = false
	close(s.done)
	return s.stopped
}

func (s *scheduler) run(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.processReadyTasks()
		}
	}
}

func (s *scheduler) processReadyTasks() int {
	now := s.now()

	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return 0 // Quick exit if no timers
	}

	ready := make([]*scheduledTask, 0, len(s.tasks))
	for id, st := range s.tasks {
		if now.Before(st.runAt) {
			continue
		}

		// Handle rescheduling
		switch {
		case st.interval > 0:
			st.runAt = now.Add(st.interval)
		case st.cronSchedule != nil:
			st.runAt = st.cronSchedule.Next(now.In(s.location))
		default:
			delete(s.tasks, id)
		}

		if st.skipIfRunning && st.last != nil && !st.last.IsDone() {
			s.log.WithField("timer", id).Debug("previous run still in progress, skipping")
			continue
		}

		st.runs++
		if st.maxRuns > 0 && st.runs >= st.maxRuns {
			delete(s.tasks, id)
		}
		ready = append(ready, st)
	}
	s.mu.Unlock()

	fired := 0
	for _, st := range ready {
		t, err := s.submitter.Go(s.ctx, st.fn, task.WithName("timer:"+st.id))
		if err != nil {
			// Submission failed, but continue processing other timers
			s.log.WithField("timer", st.id).WithError(err).Warn("timer submission failed")
			continue
		}
		s.mu.Lock()
		st.last = t
		s.mu.Unlock()
		s.metrics.TimerFired(s.name)
		fired++
	}
	return fired
}
