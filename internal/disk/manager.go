// Package disk is the disk manager: a request queue ordered by a pluggable
// seek policy, a server task that feeds the device one request at a time,
// and the completion interrupt handler that releases requesters.
package disk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/me/kernsim/internal/device"
	"github.com/me/kernsim/internal/kernel"
	"github.com/me/kernsim/pkg/model"
)

// Device is the hardware the manager drives.
type Device interface {
	kernel.Device
	Init() error
	Issue(op model.DiskOp, block int, buf []byte) error
	Status() device.Status
	Size() int
	BlockSize() int
	Result() error
	OnComplete(fn func())
}

// Observer receives a record for every request the manager finishes,
// successfully or not. It is called on the CPU and must not block.
type Observer interface {
	OnServiced(rec model.ServiceRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(model.ServiceRecord)

func (f ObserverFunc) OnServiced(rec model.ServiceRecord) { f(rec) }

// Config holds disk manager configuration.
type Config struct {
	Policy         model.Policy
	ServerPriority int
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		Policy:         model.DefaultPolicy,
		ServerPriority: 10,
	}
}

// Manager owns the device state: head position, queue and metrics.
// Head and the in-flight request are touched only by the server task and
// the completion handler, which never run at the same time.
type Manager struct {
	k      *kernel.Kernel
	dev    Device
	cfg    Config
	logger *slog.Logger
	queue  *Queue

	mu          sync.Mutex
	policy      model.Policy
	pick        Picker
	initialized bool
	state       model.DiskServerState
	observer    Observer

	requestAvail *kernel.Semaphore
	deviceIdle   *kernel.Semaphore
	server       *model.Task
	inflight     *Request
	seq          int

	// completions counts requesters released but not yet returned.
	completions int

	head         atomic.Int64
	headMovement atomic.Int64
	busyTicks    atomic.Uint64
	served       atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
}

// NewManager creates a manager for dev on kernel k. Call Init before use.
func NewManager(k *kernel.Kernel, dev Device, cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Policy == "" {
		cfg.Policy = model.DefaultPolicy
	}
	pick, err := PickerFor(cfg.Policy)
	if err != nil {
		return nil, err
	}
	return &Manager{
		k:            k,
		dev:          dev,
		cfg:          cfg,
		logger:       logger.With("component", "disk"),
		queue:        NewQueue(),
		policy:       cfg.Policy,
		pick:         pick,
		state:        model.DiskServerWaiting,
		requestAvail: k.NewSemaphore("disk-request", 0),
		deviceIdle:   k.NewSemaphore("disk-idle", 1),
	}, nil
}

// Init initializes the device, attaches its interrupt line and starts the
// server task. It returns the device geometry.
func (m *Manager) Init() (numBlocks, blockSize int, err error) {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return m.dev.Size(), m.dev.BlockSize(), nil
	}
	m.mu.Unlock()

	if err := m.dev.Init(); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", model.ErrInitialization, err)
	}
	numBlocks, blockSize = m.dev.Size(), m.dev.BlockSize()
	if numBlocks <= 0 || blockSize <= 0 {
		return 0, 0, fmt.Errorf("%w: device reports %d blocks of %d bytes", model.ErrInitialization, numBlocks, blockSize)
	}

	line := m.k.AttachDevice(m.dev, m.onComplete)
	m.dev.OnComplete(func() { m.k.Raise(line) })

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()

	m.server = m.k.Spawn("disk-server", m.cfg.ServerPriority, m.serve)
	m.logger.Info("disk manager initialized",
		"blocks", numBlocks,
		"block_size", blockSize,
		"policy", m.Policy(),
		"server_task", m.server.ID,
	)
	return numBlocks, blockSize, nil
}

// SetPolicy switches the scheduling policy. It applies from the next pick.
func (m *Manager) SetPolicy(p model.Policy) error {
	pick, err := PickerFor(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.policy, m.pick = p, pick
	m.mu.Unlock()
	m.logger.Info("disk policy changed", "policy", p)
	return nil
}

// Policy returns the active scheduling policy.
func (m *Manager) Policy() model.Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// Observe registers o to receive service records.
func (m *Manager) Observe(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// State returns the server task's loop state.
func (m *Manager) State() model.DiskServerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Server returns the server task, or nil before Init.
func (m *Manager) Server() *model.Task {
	return m.server
}

// Pending returns the number of queued requests.
func (m *Manager) Pending() int {
	return m.queue.Len()
}

// ReadBlock reads block into buf, blocking the calling task until the
// device has finished.
func (m *Manager) ReadBlock(ctx *kernel.Context, block int, buf []byte) error {
	return m.submit(ctx, model.DiskOpRead, block, buf)
}

// WriteBlock writes buf to block, blocking the calling task until the
// device has finished.
func (m *Manager) WriteBlock(ctx *kernel.Context, block int, buf []byte) error {
	return m.submit(ctx, model.DiskOpWrite, block, buf)
}

func (m *Manager) submit(ctx *kernel.Context, op model.DiskOp, block int, buf []byte) error {
	if !m.isInitialized() {
		return &model.DiskError{Op: op, Block: block, Err: model.ErrNotInitialized}
	}
	if block < 0 || block >= m.dev.Size() {
		return &model.DiskError{Op: op, Block: block,
			Err: fmt.Errorf("%w: block out of range [0,%d)", model.ErrInvalidBlock, m.dev.Size())}
	}
	if len(buf) < m.dev.BlockSize() {
		return &model.DiskError{Op: op, Block: block,
			Err: fmt.Errorf("%w: buffer of %d bytes, block size is %d", model.ErrInvalidBlock, len(buf), m.dev.BlockSize())}
	}

	req := &Request{
		Op:          op,
		Block:       block,
		Buf:         buf,
		Task:        ctx.Task(),
		EnqueueTick: ctx.Now(),
		done:        m.k.NewSemaphore("disk-done", 0),
	}
	m.queue.PushBack(req)
	m.logger.Debug("request queued", "op", op, "block", block, "task_id", req.Task.ID, "pending", m.queue.Len())
	m.requestAvail.Raise()

	req.done.Wait(ctx)
	m.completions--
	return req.err
}

// serve is the body of the server task.
func (m *Manager) serve(ctx *kernel.Context) {
	for {
		m.setState(model.DiskServerWaiting)
		m.requestAvail.Wait(ctx)
		if !m.isInitialized() {
			break
		}

		// One operation at a time: wait for the previous one to complete.
		m.deviceIdle.Wait(ctx)
		if !m.isInitialized() {
			m.deviceIdle.Raise()
			break
		}

		m.setState(model.DiskServerServicing)
		m.service()
	}
	m.setState(model.DiskServerShutdown)
	m.logger.Info("disk server stopped", "served", m.served.Load())
}

// service takes one request off the queue and issues it. The caller holds
// the device-idle token; it is handed back unless a completion is owed.
func (m *Manager) service() {
	m.mu.Lock()
	pick, policy := m.pick, m.policy
	m.mu.Unlock()

	head := int(m.head.Load())
	h, ok := pick(m.queue, head)
	if !ok {
		m.deviceIdle.Raise()
		return
	}
	req, err := m.queue.Remove(h)
	if err != nil || req == nil {
		m.logger.Error("request vanished from queue", "error", err)
		m.deviceIdle.Raise()
		return
	}

	m.seq++
	req.seq = m.seq
	req.headBefore = head
	req.startTick = m.k.Now()

	if st := m.dev.Status(); st != device.StatusIdle {
		m.logger.Error("device not idle at issue", "status", st, "block", req.Block)
		m.release(req, model.ErrDeviceBusy, policy)
		// An owed completion hands the idle token back through onComplete.
		if !m.dev.Pending() {
			m.deviceIdle.Raise()
		}
		return
	}

	seek := distance(req.Block, head)
	m.headMovement.Add(int64(seek))
	m.head.Store(int64(req.Block))
	m.served.Add(1)

	m.inflight = req
	if err := m.dev.Issue(req.Op, req.Block, req.Buf); err != nil {
		m.inflight = nil
		if !errors.Is(err, model.ErrIssueFailure) {
			err = fmt.Errorf("%w: %w", model.ErrIssueFailure, err)
		}
		m.logger.Error("issue failed", "op", req.Op, "block", req.Block, "error", err)
		m.release(req, err, policy)
		m.deviceIdle.Raise()
		return
	}
	m.logger.Debug("request issued",
		"op", req.Op,
		"block", req.Block,
		"head_before", head,
		"seek", seek,
		"policy", policy,
	)
}

// onComplete is the device interrupt handler. It runs on the CPU and
// only releases tasks.
func (m *Manager) onComplete() {
	req := m.inflight
	m.inflight = nil
	if req == nil {
		m.logger.Warn("completion with no request in flight")
		m.deviceIdle.Raise()
		return
	}

	now := m.k.Now()
	req.doneTick = now
	m.busyTicks.Add(now - req.startTick)
	m.completed.Add(1)
	if err := m.dev.Result(); err != nil {
		req.err = err
		m.failed.Add(1)
	}
	m.completions++
	m.notify(req)
	req.done.Raise()
	m.deviceIdle.Raise()
}

// release finishes req without a device completion.
func (m *Manager) release(req *Request, err error, policy model.Policy) {
	req.err = &model.DiskError{Op: req.Op, Block: req.Block, Err: err}
	req.doneTick = m.k.Now()
	m.failed.Add(1)
	m.completions++
	m.notifyWith(req, policy)
	req.done.Raise()
}

func (m *Manager) notify(req *Request) {
	m.notifyWith(req, m.Policy())
}

func (m *Manager) notifyWith(req *Request, policy model.Policy) {
	m.mu.Lock()
	o := m.observer
	m.mu.Unlock()
	if o != nil {
		o.OnServiced(req.record(policy))
	}
}

// Shutdown drains the queue, releasing every waiting requester with
// ErrShutdown, and lets the server task terminate. It returns the final
// metrics.
func (m *Manager) Shutdown() model.DiskMetrics {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return m.Snapshot()
	}
	m.initialized = false
	m.mu.Unlock()

	drained := m.queue.Drain()
	for _, req := range drained {
		m.release(req, model.ErrShutdown, m.Policy())
	}
	m.requestAvail.Raise()

	metrics := m.Snapshot()
	m.logger.Info("disk manager shut down",
		"drained", len(drained),
		"total_head_movement", metrics.TotalHeadMovement,
		"total_busy_ticks", metrics.TotalBusyTicks,
	)
	return metrics
}

// Snapshot returns the current metrics. Safe from any goroutine.
func (m *Manager) Snapshot() model.DiskMetrics {
	return model.DiskMetrics{
		TotalHeadMovement: m.headMovement.Load(),
		TotalBusyTicks:    m.busyTicks.Load(),
		Served:            int(m.served.Load()),
		Completed:         int(m.completed.Load()),
		Failed:            int(m.failed.Load()),
		Head:              int(m.head.Load()),
	}
}

func (m *Manager) isInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

func (m *Manager) setState(s model.DiskServerState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
