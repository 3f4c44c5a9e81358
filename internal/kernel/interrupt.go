package kernel

// Device is hardware attached to an interrupt line. Tick is called once per
// timer tick so the device can finish work; Pending reports whether an
// interrupt can still arrive.
type Device interface {
	Tick(now uint64)
	Pending() bool
}

type line struct {
	dev     Device
	handler func()
}

// AttachDevice wires dev to a new interrupt line served by handler and
// returns the line number to pass to Raise.
func (k *Kernel) AttachDevice(dev Device, handler func()) int {
	k.lines = append(k.lines, line{dev: dev, handler: handler})
	return len(k.lines) - 1
}

// Raise records an interrupt on the given line and returns. The handler
// runs on the CPU after the current tick, before the running task resumes.
func (k *Kernel) Raise(n int) {
	select {
	case k.events <- n:
	default:
		k.logger.Error("interrupt queue full, event dropped", "line", n)
	}
}

// tick is the timer interrupt: advance time, decide on preemption, let
// devices progress and deliver their interrupts.
func (k *Kernel) tick() error {
	if err := k.pacer.Wait(k.runCtx); err != nil {
		return err
	}
	now, expired := k.timer.Tick()
	if expired && !k.current.task.Dispatcher {
		k.yieldDue = true
	}
	for _, l := range k.lines {
		l.dev.Tick(now)
	}
	k.deliver()
	return nil
}

// deliver runs the handler of every recorded interrupt.
func (k *Kernel) deliver() {
	for {
		select {
		case n := <-k.events:
			if n >= 0 && n < len(k.lines) {
				k.lines[n].handler()
			}
		default:
			return
		}
	}
}

// pendingIO reports whether any interrupt is queued or can still arrive.
func (k *Kernel) pendingIO() bool {
	if len(k.events) > 0 {
		return true
	}
	for _, l := range k.lines {
		if l.dev.Pending() {
			return true
		}
	}
	return false
}
