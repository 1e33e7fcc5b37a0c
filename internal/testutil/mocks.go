package testutil

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// MockClock is a manually advanced time source. Timer scheduler tests pass
// its Now method as the scheduler clock.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a clock reading start, or time.Now() when start is zero.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set jumps the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// MockWriter captures log output written from fibers and pool workers.
type MockWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
}

// NewMockWriter creates an empty writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write appends p to the buffer.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writes++
	return mw.buf.Write(p)
}

// String returns everything written so far.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Len returns the number of bytes written so far.
func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writes
}

// Lines returns the non-empty lines written so far, one per log entry.
func (mw *MockWriter) Lines() []string {
	var out []string
	for _, l := range strings.Split(mw.String(), "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
