package kernel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/kernsim/pkg/model"
)

func testKernel(t *testing.T, quantum int) *Kernel {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := DefaultConfig()
	cfg.Quantum = quantum
	return New(cfg, logger)
}

// TestRun_QuantumPreemption runs two equal-priority CPU-bound tasks and
// checks that the timer interleaves them and accounts their CPU time.
func TestRun_QuantumPreemption(t *testing.T) {
	k := testKernel(t, 10)

	a := k.Spawn("a", 0, func(ctx *Context) { ctx.Compute(30) })
	b := k.Spawn("b", 0, func(ctx *Context) { ctx.Compute(30) })

	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if k.Now() != 60 {
		t.Errorf("Now() = %d, want 60", k.Now())
	}
	for _, task := range []*model.Task{a, b} {
		if task.State != model.TaskStateTerminated {
			t.Errorf("task %s state = %s, want TERMINATED", task.Name, task.State)
		}
		if task.ProcessorTicks != 30 {
			t.Errorf("task %s ProcessorTicks = %d, want 30", task.Name, task.ProcessorTicks)
		}
		if task.Activations < 3 {
			t.Errorf("task %s Activations = %d, want >= 3", task.Name, task.Activations)
		}
	}
	if b.ExecTicks != 60 {
		t.Errorf("b.ExecTicks = %d, want 60", b.ExecTicks)
	}
}

func TestRun_PriorityOrder(t *testing.T) {
	k := testKernel(t, 40)

	var order []string
	body := func(name string) Body {
		return func(ctx *Context) {
			order = append(order, name)
			ctx.Compute(1)
		}
	}
	k.Spawn("low", 10, body("low"))
	k.Spawn("high", -10, body("high"))
	k.Spawn("mid", 0, body("mid"))

	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("run order = %v, want %v", order, want)
		}
	}
}

func TestSemaphore_Alternation(t *testing.T) {
	k := testKernel(t, 40)
	ping := k.NewSemaphore("ping", 0)
	pong := k.NewSemaphore("pong", 0)

	var trace []string
	k.Spawn("pinger", 0, func(ctx *Context) {
		for i := 0; i < 3; i++ {
			trace = append(trace, "ping")
			ping.Raise()
			pong.Wait(ctx)
		}
	})
	k.Spawn("ponger", 0, func(ctx *Context) {
		for i := 0; i < 3; i++ {
			ping.Wait(ctx)
			trace = append(trace, "pong")
			pong.Raise()
		}
	})

	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"ping", "pong", "ping", "pong", "ping", "pong"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
	if ping.Count() != 0 || pong.Count() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", ping.Count(), pong.Count())
	}
}

func TestSemaphore_FIFORelease(t *testing.T) {
	k := testKernel(t, 40)
	sem := k.NewSemaphore("gate", 0)

	var woke []int
	for i := 1; i <= 3; i++ {
		i := i
		k.Spawn("waiter", 0, func(ctx *Context) {
			sem.Wait(ctx)
			woke = append(woke, i)
		})
	}
	k.Spawn("releaser", 5, func(ctx *Context) {
		for sem.Waiting() < 3 {
			ctx.Yield()
		}
		sem.Raise()
		sem.Raise()
		sem.Raise()
	})

	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(woke) != 3 || woke[0] != 1 || woke[1] != 2 || woke[2] != 3 {
		t.Errorf("wake order = %v, want [1 2 3]", woke)
	}
}

func TestRun_Deadlock(t *testing.T) {
	k := testKernel(t, 40)
	sem := k.NewSemaphore("never", 0)
	k.Spawn("stuck", 0, func(ctx *Context) { sem.Wait(ctx) })

	err := k.Run(context.Background())
	if !errors.Is(err, model.ErrDeadlock) {
		t.Errorf("Run() = %v, want ErrDeadlock", err)
	}
}

func TestRun_PanicReported(t *testing.T) {
	k := testKernel(t, 40)
	k.Spawn("bad", 0, func(ctx *Context) { panic("boom") })
	k.Spawn("good", 1, func(ctx *Context) { ctx.Compute(5) })

	err := k.Run(context.Background())
	if err == nil {
		t.Fatal("Run() = nil, want panic error")
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	k := testKernel(t, 40)
	k.Spawn("spin", 0, func(ctx *Context) { ctx.Compute(1 << 40) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := k.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want context.DeadlineExceeded", err)
	}
}

func TestInterrupt_WakesBlockedTask(t *testing.T) {
	k := testKernel(t, 40)
	done := k.NewSemaphore("done", 0)
	d := &fakeDevice{k: k}
	d.line = k.AttachDevice(d, func() { done.Raise() })

	var wokeAt uint64
	k.Spawn("io", 0, func(ctx *Context) {
		d.start(ctx.Now() + 25)
		done.Wait(ctx)
		wokeAt = ctx.Now()
	})

	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if wokeAt != 25 {
		t.Errorf("task woke at tick %d, want 25", wokeAt)
	}
}

func TestJoin(t *testing.T) {
	k := testKernel(t, 40)
	var joinedAt uint64
	k.Spawn("main", 0, func(ctx *Context) {
		child := ctx.Spawn("child", 5, func(ctx *Context) { ctx.Compute(12) })
		ctx.Join(child)
		joinedAt = ctx.Now()
	})

	if err := k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if joinedAt != 12 {
		t.Errorf("joined at tick %d, want 12", joinedAt)
	}
	stats := k.Stats()
	if len(stats) != 3 || stats[0].Name != "dispatcher" {
		t.Errorf("Stats() = %+v, want dispatcher + 2 tasks", stats)
	}
}

type fakeDevice struct {
	k      *Kernel
	line   int
	busy   bool
	doneAt uint64
}

func (d *fakeDevice) start(doneAt uint64) {
	d.busy = true
	d.doneAt = doneAt
}

func (d *fakeDevice) Tick(now uint64) {
	if d.busy && now >= d.doneAt {
		d.busy = false
		d.k.Raise(d.line)
	}
}

func (d *fakeDevice) Pending() bool {
	return d.busy
}
