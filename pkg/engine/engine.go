// Package engine describes the scripting engine as seen by the schedulers and
// provides Isolate, an in-process engine with a fair exclusive-access lock
// and checkable interrupt points.
package engine

import (
	"sync"
	"sync/atomic"
)

// Engine is the collaborator interface the fiber scheduler consumes.
//
// Lock and Unlock guard the engine's single-owner state: at most one logical
// thread of control may hold the lock at a time. Enter and Leave bracket a
// logical execution context and are only called while the lock is held.
// RequestInterrupt asks the engine to run cb on the thread of control that is
// currently executing a script call, at its next interrupt point.
type Engine interface {
	Lock()
	Unlock()
	Enter()
	Leave()
	RequestInterrupt(cb func())
	CurrentThreadID() int64
}

// Isolate is a reference Engine. Its lock hands ownership to the longest
// waiting locker on Unlock, so a yielding holder cannot immediately win the
// lock back while others wait.
type Isolate struct {
	slot chan struct{}

	holders    atomic.Int32
	maxHolders atomic.Int32
	locks      atomic.Int64

	depth    atomic.Int32
	thread   atomic.Int64
	nextID   atomic.Int64
	pendings atomic.Int32

	mu         sync.Mutex
	interrupts []func()
	served     atomic.Int64
}

var _ Engine = (*Isolate)(nil)

// NewIsolate creates an unlocked isolate.
func NewIsolate() *Isolate {
	return &Isolate{slot: make(chan struct{}, 1)}
}

// Lock acquires exclusive access, blocking behind earlier lockers.
func (i *Isolate) Lock() {
	i.slot <- struct{}{}
	i.acquired()
}

// TryLock acquires exclusive access only if it is free.
func (i *Isolate) TryLock() bool {
	select {
	case i.slot <- struct{}{}:
		i.acquired()
		return true
	default:
		return false
	}
}

func (i *Isolate) acquired() {
	i.locks.Add(1)
	n := i.holders.Add(1)
	for {
		m := i.maxHolders.Load()
		if n <= m || i.maxHolders.CompareAndSwap(m, n) {
			return
		}
	}
}

// Unlock releases exclusive access. It panics when the isolate is not locked.
func (i *Isolate) Unlock() {
	if i.holders.Add(-1) < 0 {
		panic("engine: unlock of unlocked isolate")
	}
	<-i.slot
}

// Enter opens a logical execution context and assigns it a thread id.
func (i *Isolate) Enter() {
	i.depth.Add(1)
	i.thread.Store(i.nextID.Add(1))
}

// Leave closes the innermost logical execution context.
func (i *Isolate) Leave() {
	if i.depth.Add(-1) < 0 {
		panic("engine: leave without enter")
	}
	i.thread.Store(0)
}

// CurrentThreadID returns the id of the logical thread currently inside the
// isolate, or 0 when none is.
func (i *Isolate) CurrentThreadID() int64 {
	return i.thread.Load()
}

// RequestInterrupt queues cb to run at the next CheckInterrupt.
func (i *Isolate) RequestInterrupt(cb func()) {
	if cb == nil {
		return
	}
	i.mu.Lock()
	i.interrupts = append(i.interrupts, cb)
	i.mu.Unlock()
	i.pendings.Add(1)
}

// CheckInterrupt is an interrupt point. Script code running under the lock
// calls it periodically; pending interrupt callbacks run on the caller.
// It returns the number of callbacks run.
func (i *Isolate) CheckInterrupt() int {
	if i.pendings.Load() == 0 {
		return 0
	}

	i.mu.Lock()
	cbs := i.interrupts
	i.interrupts = nil
	i.mu.Unlock()
	i.pendings.Add(-int32(len(cbs)))

	for _, cb := range cbs {
		cb()
	}
	i.served.Add(int64(len(cbs)))
	return len(cbs)
}

// PendingInterrupts returns the number of requested, not yet served interrupts.
func (i *Isolate) PendingInterrupts() int {
	return int(i.pendings.Load())
}

// Interrupts returns the number of interrupt callbacks served so far.
func (i *Isolate) Interrupts() int64 {
	return i.served.Load()
}

// Holders returns how many parties hold the lock right now (0 or 1).
func (i *Isolate) Holders() int {
	return int(i.holders.Load())
}

// MaxHolders returns the highest simultaneous holder count ever observed.
// Anything above 1 means mutual exclusion was violated.
func (i *Isolate) MaxHolders() int {
	return int(i.maxHolders.Load())
}

// Locks returns the total number of successful acquisitions.
func (i *Isolate) Locks() int64 {
	return i.locks.Load()
}

// Depth returns the current logical context nesting depth.
func (i *Isolate) Depth() int {
	return int(i.depth.Load())
}
