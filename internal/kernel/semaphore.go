package kernel

import "runtime"

// Semaphore is a counting semaphore whose waiters are kernel tasks.
// Raise never blocks and may be called from interrupt handlers; Wait
// suspends the calling task. Waiters are released in FIFO order and
// each Raise releases at most one of them.
type Semaphore struct {
	k       *Kernel
	name    string
	count   int
	waiters []*proc
}

// NewSemaphore creates a semaphore with the given initial count.
func (k *Kernel) NewSemaphore(name string, initial int) *Semaphore {
	if initial < 0 {
		initial = 0
	}
	return &Semaphore{k: k, name: name, count: initial}
}

// Raise wakes the oldest waiter, or increments the count if nobody waits.
func (s *Semaphore) Raise() {
	if len(s.waiters) > 0 {
		p := s.waiters[0]
		s.waiters[0] = nil
		s.waiters = s.waiters[1:]
		s.k.resume(p)
		return
	}
	s.count++
}

// Wait returns once the count is positive, consuming one unit.
func (s *Semaphore) Wait(ctx *Context) {
	if s.count > 0 {
		s.count--
		return
	}
	s.waiters = append(s.waiters, ctx.p)
	if !s.k.block(ctx.p) {
		runtime.Goexit()
	}
}

// Count returns the current count.
func (s *Semaphore) Count() int {
	return s.count
}

// Waiting returns the number of blocked tasks.
func (s *Semaphore) Waiting() int {
	return len(s.waiters)
}

// Name returns the semaphore's name.
func (s *Semaphore) Name() string {
	return s.name
}
