// Package timeutil abstracts wall-clock access so the recording flow
// can be driven by a fake clock in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides the time operations the recorder needs: the session
// start/end stamps and the streaming-duration limit.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer mirrors time.Timer behind an interface so deadlines can be
// fired manually in tests.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (rt *realTimer) C() <-chan time.Time { return rt.t.C }
func (rt *realTimer) Stop() bool          { return rt.t.Stop() }

// MockClock is a manually advanced clock. Time only moves when a test
// calls Advance, which fires any timers whose deadlines are reached.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// NewMockClock returns a mock clock frozen at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) NewTimer(d time.Duration) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{
		ch:       make(chan time.Time, 1),
		deadline: m.now.Add(d),
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every pending timer
// whose deadline has been reached.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	var due []*mockTimer
	remaining := m.timers[:0]
	for _, t := range m.timers {
		if t.deadline.After(now) {
			remaining = append(remaining, t)
		} else {
			due = append(due, t)
		}
	}
	m.timers = remaining
	m.mu.Unlock()

	for _, t := range due {
		t.fire(now)
	}
}

type mockTimer struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	done     bool
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.done
	t.done = true
	return active
}

func (t *mockTimer) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.ch <- now
}
