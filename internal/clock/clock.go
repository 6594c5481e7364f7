// Package clock abstracts time for the auction engine so that scheduled
// work (vehicle advancement) can be driven deterministically in tests
// instead of relying on wall-clock sleeps.
package clock

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc cancels a scheduled callback. It reports whether the
// cancellation prevented the callback from running; cancelling an
// already-fired or already-cancelled timer is a no-op.
type CancelFunc func() bool

// Clock supplies the current time and one-shot scheduled callbacks.
type Clock interface {
	Now() time.Time
	After(d time.Duration, fn func()) CancelFunc
}

// Real is a Clock backed by the runtime timer wheel.
type Real struct{}

// New returns the wall-clock implementation used in production.
func New() Real { return Real{} }

func (Real) Now() time.Time { return time.Now().UTC() }

func (Real) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

type manualTimer struct {
	seq      int
	deadline time.Time
	fn       func()
	stopped  bool
}

// Manual is a test Clock whose time only moves when Advance is called.
// Callbacks fire synchronously inside Advance, in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{seq: m.seq, deadline: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, t)

	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Advance moves the clock forward by d, firing every pending timer whose
// deadline falls within the window. Timers fire in deadline order
// (insertion order breaks ties) outside the clock's lock, with now stepped
// to each fired timer's deadline before its callback runs, so callbacks
// observe their own fire time and may schedule or cancel timers that are
// themselves due within the same Advance. The clock settles on the full
// target once every due timer has fired.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// popDue removes and returns the earliest unstopped timer due at or before
// target, advancing now to its deadline, or nil when none remain.
func (m *Manual) popDue(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})

	for i, t := range m.timers {
		if t.stopped {
			continue
		}
		if t.deadline.After(target) {
			break
		}
		t.stopped = true
		m.timers = append(m.timers[:i], m.timers[i+1:]...)
		if t.deadline.After(m.now) {
			m.now = t.deadline
		}
		return t
	}

	// Drop stopped timers so the slice does not grow unbounded.
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	return nil
}

// Pending returns the number of scheduled, unfired, uncancelled timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
