// Package clock provides the simulated timer: a monotonic tick counter,
// the preemption quantum countdown and pacers that map ticks onto wall time.
package clock

import "sync/atomic"

// DefaultQuantum is the number of ticks a task may run before a yield is requested.
const DefaultQuantum = 40

// Timer counts ticks and decides when a quantum has expired.
// Tick is called only from the CPU (one goroutine at a time); Now may be
// read from anywhere.
type Timer struct {
	now       atomic.Uint64
	quantum   int
	remaining int
}

// NewTimer creates a Timer with the countdown armed at quantum.
// Non-positive values fall back to DefaultQuantum.
func NewTimer(quantum int) *Timer {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	return &Timer{quantum: quantum, remaining: quantum}
}

// Tick advances the counter by one and decrements the countdown. When the
// countdown reaches zero it is re-armed and expired is true.
func (t *Timer) Tick() (now uint64, expired bool) {
	now = t.now.Add(1)
	t.remaining--
	if t.remaining <= 0 {
		t.remaining = t.quantum
		return now, true
	}
	return now, false
}

// Now returns the current tick.
func (t *Timer) Now() uint64 {
	return t.now.Load()
}

// Quantum returns the configured quantum length.
func (t *Timer) Quantum() int {
	return t.quantum
}

// Remaining returns the ticks left in the current quantum.
func (t *Timer) Remaining() int {
	return t.remaining
}
