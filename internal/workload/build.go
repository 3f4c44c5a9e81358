package workload

import (
	"fmt"

	"github.com/me/kernsim/internal/blockexpr"
	"github.com/me/kernsim/internal/kernel"
)

// Disk is the block interface a workload drives.
type Disk interface {
	ReadBlock(ctx *kernel.Context, block int, buf []byte) error
	WriteBlock(ctx *kernel.Context, block int, buf []byte) error
}

// Program is a ready-to-spawn task.
type Program struct {
	Name     string
	Priority int
	Body     kernel.Body
}

// ErrorFunc is told about every failed step. It runs on the CPU.
type ErrorFunc func(task string, err error)

// Build turns w into task programs. Tasks of a TaskSpec with Count > 1 get an
// index suffix; task is the global index used in block expressions.
func Build(w *Workload, disk Disk, blocks, blockSize int, onErr ErrorFunc) []Program {
	if onErr == nil {
		onErr = func(string, error) {}
	}
	var progs []Program
	index := 0
	for _, ts := range w.Tasks {
		for c := 0; c < ts.Count; c++ {
			name := ts.Name
			if ts.Count > 1 {
				name = fmt.Sprintf("%s-%d", ts.Name, c)
			}
			r := &runner{
				name:      name,
				index:     index,
				ops:       ts.Ops,
				disk:      disk,
				blocks:    blocks,
				blockSize: blockSize,
				onErr:     onErr,
			}
			progs = append(progs, Program{Name: name, Priority: ts.Priority, Body: r.run})
			index++
		}
	}
	return progs
}

type runner struct {
	name      string
	index     int
	ops       []Op
	disk      Disk
	blocks    int
	blockSize int
	onErr     ErrorFunc
}

func (r *runner) run(ctx *kernel.Context) {
	buf := make([]byte, r.blockSize)
	for _, op := range r.ops {
		for i := 0; i < op.Repeat; i++ {
			if err := r.step(ctx, op, i, buf); err != nil {
				r.onErr(r.name, err)
			}
		}
	}
}

func (r *runner) step(ctx *kernel.Context, op Op, i int, buf []byte) error {
	switch op.Op {
	case OpCompute:
		ctx.Compute(op.Ticks)
		return nil
	case OpYield:
		ctx.Yield()
		return nil
	}

	expr := op.expr
	if expr == nil {
		var err error
		if expr, err = blockexpr.Compile(op.Block); err != nil {
			return err
		}
	}
	block, err := expr.Eval(blockexpr.Env{I: i, Task: r.index, Blocks: r.blocks})
	if err != nil {
		return err
	}
	if op.Op == OpWrite {
		fill(buf, r.index, block)
		return r.disk.WriteBlock(ctx, block, buf)
	}
	return r.disk.ReadBlock(ctx, block, buf)
}

// fill writes a recognizable pattern for task and block into buf.
func fill(buf []byte, task, block int) {
	for i := range buf {
		buf[i] = byte(task*31 + block + i)
	}
}
