// Package kernel is a small simulated multitasking kernel. Every task runs
// on its own goroutine but only the holder of the CPU permit executes, so
// the system behaves as a single processor with cooperative switching and
// timer-driven preemption points.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/me/kernsim/internal/clock"
	"github.com/me/kernsim/internal/scheduler"
	"github.com/me/kernsim/pkg/model"
)

// Body is the code of a task. It returns when the task exits.
type Body func(ctx *Context)

// proc is the kernel-side state of a task.
type proc struct {
	task    *model.Task
	body    Body
	ctx     *Context
	permit  chan struct{}
	joiners []*proc
}

// Config holds kernel configuration. Timer, if set, overrides Quantum so
// callers can share the tick source (for example with a log handler).
type Config struct {
	Quantum int
	Pacer   clock.Pacer
	Timer   *clock.Timer
}

// DefaultConfig returns a virtual-time kernel with the default quantum.
func DefaultConfig() Config {
	return Config{Quantum: clock.DefaultQuantum, Pacer: clock.Virtual{}}
}

// Kernel owns the tasks, the ready ring, the timer and the interrupt lines.
type Kernel struct {
	logger *slog.Logger
	timer  *clock.Timer
	pacer  clock.Pacer
	ready  *scheduler.Ring

	procs      []*proc
	disp       *proc
	current    *proc
	userTasks  int
	yieldDue   bool
	lastSwitch uint64

	lines  []line
	events chan int

	runCtx   context.Context
	quit     chan struct{}
	quitOnce sync.Once

	errMu sync.Mutex
	err   error
}

// New creates a kernel whose dispatcher is the goroutine that calls Run.
func New(cfg Config, logger *slog.Logger) *Kernel {
	if cfg.Pacer == nil {
		cfg.Pacer = clock.Virtual{}
	}
	if cfg.Timer == nil {
		cfg.Timer = clock.NewTimer(cfg.Quantum)
	}
	k := &Kernel{
		logger: logger.With("component", "kernel"),
		timer:  cfg.Timer,
		pacer:  cfg.Pacer,
		ready:  scheduler.NewRing(),
		events: make(chan int, 64),
		runCtx: context.Background(),
		quit:   make(chan struct{}),
	}
	k.disp = &proc{
		task: &model.Task{
			ID:         0,
			Name:       "dispatcher",
			State:      model.TaskStateRunning,
			Dispatcher: true,
		},
		permit: make(chan struct{}, 1),
	}
	k.disp.ctx = &Context{k: k, p: k.disp}
	k.procs = append(k.procs, k.disp)
	k.current = k.disp
	return k
}

// Timer exposes the kernel's tick source.
func (k *Kernel) Timer() *clock.Timer {
	return k.timer
}

// Now returns the current tick.
func (k *Kernel) Now() uint64 {
	return k.timer.Now()
}

// Current returns the task holding the CPU.
func (k *Kernel) Current() *model.Task {
	return k.current.task
}

// Dispatcher returns the dispatcher task.
func (k *Kernel) Dispatcher() *model.Task {
	return k.disp.task
}

// Spawn creates a ready task. It may be called before Run or by a running task.
func (k *Kernel) Spawn(name string, prio int, body Body) *model.Task {
	prio = model.ClampPriority(prio)
	p := &proc{
		task: &model.Task{
			ID:          len(k.procs),
			Name:        name,
			StaticPrio:  prio,
			DynamicPrio: prio,
			State:       model.TaskStateReady,
			CreatedTick: k.timer.Now(),
		},
		body:   body,
		permit: make(chan struct{}, 1),
	}
	p.ctx = &Context{k: k, p: p}
	k.procs = append(k.procs, p)
	k.userTasks++
	k.ready.Add(p.task)
	k.logger.Debug("task created", "task_id", p.task.ID, "name", name, "priority", prio)

	go k.start(p)
	return p.task
}

// SetPriority changes the static priority of a task, clamped to the range.
func (k *Kernel) SetPriority(t *model.Task, prio int) {
	scheduler.SetPriority(t, prio)
}

// Stats returns the metrics of every task, dispatcher included, by ID.
func (k *Kernel) Stats() []model.TaskStats {
	out := make([]model.TaskStats, 0, len(k.procs))
	for _, p := range k.procs {
		out = append(out, p.task.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run dispatches tasks until every spawned task has exited, the context is
// cancelled, a task panics, or no task can ever run again.
func (k *Kernel) Run(ctx context.Context) error {
	k.runCtx = ctx
	k.lastSwitch = k.timer.Now()
	k.disp.task.Activations++
	k.logger.Info("dispatcher started", "tasks", k.userTasks, "quantum", k.timer.Quantum())

	for k.userTasks > 0 {
		if err := k.failure(); err != nil {
			k.abort()
			return err
		}
		if err := ctx.Err(); err != nil {
			k.abort()
			return err
		}

		if k.ready.Len() == 0 {
			if !k.pendingIO() {
				k.abort()
				return fmt.Errorf("%w: %d task(s) blocked at tick %d", model.ErrDeadlock, k.userTasks, k.timer.Now())
			}
			// Idle: let time pass so devices can complete.
			if err := k.tick(); err != nil {
				k.abort()
				return err
			}
			continue
		}

		next := scheduler.SelectNext(k.ready)
		k.ready.Remove(next)
		if !k.switchTo(k.procs[next.ID]) {
			if err := k.failure(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}

	k.disp.task.ProcessorTicks += k.timer.Now() - k.lastSwitch
	k.disp.task.ExecTicks = k.timer.Now() - k.disp.task.CreatedTick
	k.logger.Info("dispatcher finished", "ticks", k.timer.Now())
	return k.failure()
}

// start is the goroutine of a task: wait for the first dispatch, run the
// body, hand the CPU back.
func (k *Kernel) start(p *proc) {
	if !k.park(p) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			k.fail(fmt.Errorf("task %d (%s) panicked: %v", p.task.ID, p.task.Name, r))
		}
		if k.stopping() {
			return
		}
		k.exit(p)
	}()
	p.body(p.ctx)
}

// exit terminates p, wakes its joiners and passes the CPU to the dispatcher.
func (k *Kernel) exit(p *proc) {
	now := k.timer.Now()
	k.transition(p, model.TaskStateTerminated)
	p.task.ExecTicks = now - p.task.CreatedTick
	k.userTasks--
	for _, j := range p.joiners {
		k.resume(j)
	}
	p.joiners = nil

	k.logger.Info("task exit",
		"task_id", p.task.ID,
		"name", p.task.Name,
		"exec_ticks", p.task.ExecTicks,
		"processor_ticks", p.task.ProcessorTicks+(now-k.lastSwitch),
		"activations", p.task.Activations,
	)
	k.handoff(p, k.disp)
}

// handoff accounts the switch from prev to next and grants next the CPU.
// The caller must not touch kernel state afterwards.
func (k *Kernel) handoff(prev, next *proc) {
	now := k.timer.Now()
	prev.task.ProcessorTicks += now - k.lastSwitch
	next.task.Activations++
	k.lastSwitch = now
	k.yieldDue = false
	k.current = next
	if !next.task.Dispatcher {
		k.transition(next, model.TaskStateRunning)
	}
	next.permit <- struct{}{}
}

// switchTo hands the CPU to next and parks the caller until it is
// dispatched again. Returns false if the kernel is stopping.
func (k *Kernel) switchTo(next *proc) bool {
	prev := k.current
	k.handoff(prev, next)
	return k.park(prev)
}

// park blocks p until it holds the CPU. Returns false if the kernel stops first.
func (k *Kernel) park(p *proc) bool {
	select {
	case <-p.permit:
		return true
	case <-k.quit:
		return false
	}
}

// yield puts the running task back in the ready ring and switches to the dispatcher.
func (k *Kernel) yield(p *proc) bool {
	k.transition(p, model.TaskStateReady)
	k.ready.Add(p.task)
	return k.switchTo(k.disp)
}

// block suspends the running task outside the ready ring until resume.
func (k *Kernel) block(p *proc) bool {
	k.transition(p, model.TaskStateSuspended)
	return k.switchTo(k.disp)
}

// resume makes a suspended task ready again.
func (k *Kernel) resume(p *proc) {
	if p.task.State != model.TaskStateSuspended {
		k.logger.Warn("resume of non-suspended task", "task_id", p.task.ID, "state", p.task.State)
		return
	}
	k.transition(p, model.TaskStateReady)
	k.ready.Add(p.task)
}

// transition moves p to next. An illegal move is a kernel bug and fails the run.
func (k *Kernel) transition(p *proc, next model.TaskState) {
	if !p.task.State.CanTransitionTo(next) {
		k.fail(&model.InvalidTransitionError{TaskID: p.task.ID, From: p.task.State, To: next})
	}
	p.task.State = next
}

func (k *Kernel) fail(err error) {
	k.errMu.Lock()
	defer k.errMu.Unlock()
	if k.err == nil {
		k.err = err
		k.logger.Error("kernel failure", "error", err)
	}
}

func (k *Kernel) failure() error {
	k.errMu.Lock()
	defer k.errMu.Unlock()
	return k.err
}

// abort releases every parked task goroutine.
func (k *Kernel) abort() {
	k.quitOnce.Do(func() { close(k.quit) })
}

func (k *Kernel) stopping() bool {
	select {
	case <-k.quit:
		return true
	default:
		return false
	}
}
