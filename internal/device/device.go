// Package device simulates the block device behind the disk manager. An
// operation is accepted by Issue, takes a seek-dependent number of ticks,
// and on completion the data moves between the caller's buffer and the
// backing Image and the completion callback fires.
package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/kernsim/pkg/model"
)

// Status is the device state reported to the disk manager.
type Status int

const (
	StatusIdle Status = iota
	StatusBusy
)

func (s Status) String() string {
	if s == StatusBusy {
		return "busy"
	}
	return "idle"
}

// Config describes the geometry and timing of the device.
type Config struct {
	Blocks    int
	BlockSize int
	DelayMin  int
	DelayMax  int
}

// DefaultConfig returns the default geometry: 256 blocks of 64 bytes,
// 10 to 30 ticks per operation.
func DefaultConfig() Config {
	return Config{
		Blocks:    256,
		BlockSize: 64,
		DelayMin:  10,
		DelayMax:  30,
	}
}

// Disk is a simulated single-head block device.
type Disk struct {
	mu     sync.Mutex
	cfg    Config
	image  Image
	logger *slog.Logger

	initialized bool
	status      Status
	now         uint64
	last        int

	op     model.DiskOp
	block  int
	buf    []byte
	doneAt uint64
	result error

	onComplete func()
}

// New creates an uninitialized device over image.
func New(cfg Config, image Image, logger *slog.Logger) *Disk {
	return &Disk{
		cfg:    cfg,
		image:  image,
		logger: logger.With("component", "device"),
	}
}

// OnComplete registers the function called when an operation finishes.
// It runs inside Tick and must not block.
func (d *Disk) OnComplete(fn func()) {
	d.mu.Lock()
	d.onComplete = fn
	d.mu.Unlock()
}

// Init brings the device up. It fails if the geometry is unusable or
// there is no image.
func (d *Disk) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.image == nil {
		return fmt.Errorf("device init: no image")
	}
	if d.cfg.Blocks <= 0 || d.cfg.BlockSize <= 0 {
		return fmt.Errorf("device init: invalid geometry %dx%d", d.cfg.Blocks, d.cfg.BlockSize)
	}
	if d.cfg.DelayMin < 0 || d.cfg.DelayMax < d.cfg.DelayMin {
		return fmt.Errorf("device init: invalid delay range %d..%d", d.cfg.DelayMin, d.cfg.DelayMax)
	}
	d.initialized = true
	d.status = StatusIdle
	d.last = 0
	d.logger.Debug("device initialized", "blocks", d.cfg.Blocks, "block_size", d.cfg.BlockSize)
	return nil
}

// Size returns the number of blocks.
func (d *Disk) Size() int {
	return d.cfg.Blocks
}

// BlockSize returns the size of one block in bytes.
func (d *Disk) BlockSize() int {
	return d.cfg.BlockSize
}

// Status returns whether an operation is in flight.
func (d *Disk) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Result returns the outcome of the last completed operation.
func (d *Disk) Result() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Issue starts op on block. The buffer is used when the operation
// completes, so the caller must keep it alive until then.
func (d *Disk) Issue(op model.DiskOp, block int, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return fmt.Errorf("issue %s: %w", op, model.ErrNotInitialized)
	}
	if d.status == StatusBusy {
		return model.ErrDeviceBusy
	}
	if block < 0 || block >= d.cfg.Blocks {
		return fmt.Errorf("%w: block %d out of range [0,%d)", model.ErrIssueFailure, block, d.cfg.Blocks)
	}
	if len(buf) < d.cfg.BlockSize {
		return fmt.Errorf("%w: buffer of %d bytes, need %d", model.ErrIssueFailure, len(buf), d.cfg.BlockSize)
	}

	d.op = op
	d.block = block
	d.buf = buf
	d.result = nil
	d.status = StatusBusy
	d.doneAt = d.now + d.serviceTime(block)
	d.logger.Debug("issue", "op", op, "block", block, "done_at", d.doneAt)
	return nil
}

// serviceTime is delayMin plus a share of the delay range proportional to
// the seek distance.
func (d *Disk) serviceTime(block int) uint64 {
	dist := block - d.last
	if dist < 0 {
		dist = -dist
	}
	t := d.cfg.DelayMin + dist*(d.cfg.DelayMax-d.cfg.DelayMin)/d.cfg.Blocks
	if t < 1 {
		t = 1
	}
	return uint64(t)
}

// Tick advances the device to now and completes the in-flight operation
// when its time has come.
func (d *Disk) Tick(now uint64) {
	d.mu.Lock()
	d.now = now
	if d.status != StatusBusy || now < d.doneAt {
		d.mu.Unlock()
		return
	}

	var err error
	switch d.op {
	case model.DiskOpRead:
		err = d.image.ReadBlock(d.block, d.buf[:d.cfg.BlockSize])
	case model.DiskOpWrite:
		err = d.image.WriteBlock(d.block, d.buf[:d.cfg.BlockSize])
	}
	if err != nil {
		d.logger.Error("transfer failed", "op", d.op, "block", d.block, "error", err)
		err = &model.DiskError{Op: d.op, Block: d.block, Err: err}
	}
	d.result = err
	d.status = StatusIdle
	d.last = d.block
	d.buf = nil
	notify := d.onComplete
	d.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Pending reports whether an operation is in flight.
func (d *Disk) Pending() bool {
	return d.Status() == StatusBusy
}

// Close releases the image.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initialized = false
	return d.image.Close()
}
