package kernel

import (
	"runtime"

	"github.com/me/kernsim/pkg/model"
)

// Context is a task's handle on the kernel. It is only valid on the task's
// own goroutine while the task holds the CPU.
type Context struct {
	k *Kernel
	p *proc
}

// Task returns the calling task.
func (c *Context) Task() *model.Task {
	return c.p.task
}

// Kernel returns the kernel the task runs on.
func (c *Context) Kernel() *Kernel {
	return c.k
}

// Now returns the current tick.
func (c *Context) Now() uint64 {
	return c.k.timer.Now()
}

// Yield gives the CPU back to the dispatcher; the task stays ready.
func (c *Context) Yield() {
	if !c.k.yield(c.p) {
		runtime.Goexit()
	}
}

// Compute burns ticks of CPU time. After every tick the timer interrupt
// may have requested a yield; the task honours it here.
func (c *Context) Compute(ticks int) {
	for i := 0; i < ticks; i++ {
		if err := c.k.tick(); err != nil {
			c.k.fail(err)
			c.k.abort()
			runtime.Goexit()
		}
		if c.k.yieldDue {
			c.k.yieldDue = false
			c.Yield()
		}
	}
}

// Suspend blocks the calling task until another task or an interrupt
// handler calls Resume on it.
func (c *Context) Suspend() {
	if !c.k.block(c.p) {
		runtime.Goexit()
	}
}

// Resume makes a suspended task ready. Safe from interrupt handlers.
func (c *Context) Resume(t *model.Task) {
	c.k.resume(c.k.procs[t.ID])
}

// Join blocks until t has exited.
func (c *Context) Join(t *model.Task) {
	p := c.k.procs[t.ID]
	if p.task.State == model.TaskStateTerminated {
		return
	}
	p.joiners = append(p.joiners, c.p)
	c.Suspend()
}

// Spawn creates a new ready task from inside a running task.
func (c *Context) Spawn(name string, prio int, body Body) *model.Task {
	return c.k.Spawn(name, prio, body)
}
