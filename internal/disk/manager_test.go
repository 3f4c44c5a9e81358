package disk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/me/kernsim/internal/device"
	"github.com/me/kernsim/internal/kernel"
	"github.com/me/kernsim/pkg/model"
)

type testRig struct {
	k       *kernel.Kernel
	dev     *device.Disk
	m       *Manager
	records []model.ServiceRecord
}

func newRig(t *testing.T, policy model.Policy) *testRig {
	t.Helper()
	return newRigWith(t, policy, nil)
}

// newRigWith is newRig with the manager driving wrap(dev) instead of dev.
func newRigWith(t *testing.T, policy model.Policy, wrap func(*device.Disk) Device) *testRig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	k := kernel.New(kernel.DefaultConfig(), logger)
	devCfg := device.DefaultConfig()
	dev := device.New(devCfg, device.NewMemImage(devCfg.Blocks, devCfg.BlockSize), logger)

	var driven Device = dev
	if wrap != nil {
		driven = wrap(dev)
	}

	cfg := DefaultConfig()
	cfg.Policy = policy
	m, err := NewManager(k, driven, cfg, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	rig := &testRig{k: k, dev: dev, m: m}
	m.Observe(ObserverFunc(func(rec model.ServiceRecord) {
		rig.records = append(rig.records, rec)
	}))

	blocks, size, err := m.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if blocks != devCfg.Blocks || size != devCfg.BlockSize {
		t.Fatalf("Init() = %d, %d; want %d, %d", blocks, size, devCfg.Blocks, devCfg.BlockSize)
	}
	return rig
}

// run executes body as the main task, shuts the manager down when body
// returns and runs the kernel to completion.
func (r *testRig) run(t *testing.T, body kernel.Body) model.DiskMetrics {
	t.Helper()
	var metrics model.DiskMetrics
	r.k.Spawn("main", 0, func(ctx *kernel.Context) {
		body(ctx)
		metrics = r.m.Shutdown()
	})
	if err := r.k.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st := r.m.State(); st != model.DiskServerShutdown {
		t.Errorf("server state = %s, want SHUTDOWN", st)
	}
	if r.m.completions != 0 {
		t.Errorf("unconsumed completions = %d, want 0", r.m.completions)
	}
	return metrics
}

func TestManager_WriteBlockEndToEnd(t *testing.T) {
	rig := newRig(t, model.PolicyCSCAN)
	bs := rig.dev.BlockSize()

	out := bytes.Repeat([]byte{0xAB}, bs)
	in := make([]byte, bs)
	var afterWrite model.DiskMetrics
	var returnedAt uint64

	final := rig.run(t, func(ctx *kernel.Context) {
		before := rig.m.Snapshot()
		if err := rig.m.WriteBlock(ctx, 5, out); err != nil {
			t.Errorf("WriteBlock: %v", err)
			return
		}
		returnedAt = ctx.Now()
		afterWrite = rig.m.Snapshot()

		if got := afterWrite.TotalHeadMovement - before.TotalHeadMovement; got != int64(5-before.Head) {
			t.Errorf("head movement grew by %d, want %d", got, 5-before.Head)
		}
		if afterWrite.TotalBusyTicks < before.TotalBusyTicks {
			t.Errorf("busy ticks went down: %d -> %d", before.TotalBusyTicks, afterWrite.TotalBusyTicks)
		}

		if err := rig.m.ReadBlock(ctx, 5, in); err != nil {
			t.Errorf("ReadBlock: %v", err)
		}
	})

	// 10 ticks minimum plus 5 blocks of seek over 256 blocks rounds down to 10.
	if returnedAt < 10 {
		t.Errorf("WriteBlock returned at tick %d, before the device finished", returnedAt)
	}
	if afterWrite.Completed != 1 || afterWrite.Head != 5 {
		t.Errorf("after write: %+v, want Completed 1, Head 5", afterWrite)
	}
	if afterWrite.TotalBusyTicks != 10 {
		t.Errorf("busy ticks = %d, want 10", afterWrite.TotalBusyTicks)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("read back %x, want %x", in, out)
	}
	if final.TotalHeadMovement != 5 || final.Served != 2 || final.Completed != 2 || final.Failed != 0 {
		t.Errorf("final metrics = %+v", final)
	}
	if len(rig.records) != 2 || rig.records[0].Op != model.DiskOpWrite || rig.records[1].Seek != 0 {
		t.Errorf("records = %+v", rig.records)
	}
}

func TestManager_ServiceOrderByPolicy(t *testing.T) {
	tests := []struct {
		policy model.Policy
		want   []int
	}{
		{model.PolicyFCFS, []int{50, 10, 90, 70}},
		{model.PolicySSTF, []int{50, 70, 90, 10}},
		{model.PolicyCSCAN, []int{70, 90, 10, 50}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			rig := newRig(t, tt.policy)
			bs := rig.dev.BlockSize()

			rig.run(t, func(ctx *kernel.Context) {
				// Park the head at 60.
				if err := rig.m.WriteBlock(ctx, 60, make([]byte, bs)); err != nil {
					t.Errorf("WriteBlock(60): %v", err)
				}
				var tasks []*model.Task
				for _, b := range []int{50, 10, 90, 70} {
					b := b
					tasks = append(tasks, ctx.Spawn("requester", 0, func(ctx *kernel.Context) {
						if err := rig.m.ReadBlock(ctx, b, make([]byte, bs)); err != nil {
							t.Errorf("ReadBlock(%d): %v", b, err)
						}
					}))
				}
				for _, task := range tasks {
					ctx.Join(task)
				}
			})

			var got []int
			for _, rec := range rig.records[1:] {
				got = append(got, rec.Block)
			}
			if !equalInts(got, tt.want) {
				t.Errorf("service order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManager_ShutdownReleasesRequesters(t *testing.T) {
	rig := newRig(t, model.PolicyFCFS)
	bs := rig.dev.BlockSize()

	errs := make([]error, 3)
	final := rig.run(t, func(ctx *kernel.Context) {
		var tasks []*model.Task
		for i := range errs {
			i := i
			tasks = append(tasks, ctx.Spawn("requester", 0, func(ctx *kernel.Context) {
				errs[i] = rig.m.WriteBlock(ctx, i+1, make([]byte, bs))
			}))
		}
		for rig.m.Pending() < len(errs) {
			ctx.Yield()
		}
		rig.m.Shutdown()
		for _, task := range tasks {
			ctx.Join(task)
		}
	})

	for i, err := range errs {
		if !errors.Is(err, model.ErrShutdown) {
			t.Errorf("requester %d: err = %v, want ErrShutdown", i, err)
		}
		var de *model.DiskError
		if !errors.As(err, &de) || de.Block != i+1 {
			t.Errorf("requester %d: err = %v, want DiskError for block %d", i, err, i+1)
		}
	}
	if final.Served != 0 || final.Failed != 3 {
		t.Errorf("final metrics = %+v, want Served 0, Failed 3", final)
	}
}

func TestManager_InvalidRequests(t *testing.T) {
	rig := newRig(t, model.PolicyCSCAN)
	bs := rig.dev.BlockSize()

	rig.run(t, func(ctx *kernel.Context) {
		if err := rig.m.ReadBlock(ctx, -1, make([]byte, bs)); !errors.Is(err, model.ErrInvalidBlock) {
			t.Errorf("ReadBlock(-1) = %v, want ErrInvalidBlock", err)
		}
		if err := rig.m.ReadBlock(ctx, rig.dev.Size(), make([]byte, bs)); !errors.Is(err, model.ErrInvalidBlock) {
			t.Errorf("ReadBlock(size) = %v, want ErrInvalidBlock", err)
		}
		if err := rig.m.WriteBlock(ctx, 0, make([]byte, bs-1)); !errors.Is(err, model.ErrInvalidBlock) {
			t.Errorf("WriteBlock(short) = %v, want ErrInvalidBlock", err)
		}
	})

	if snap := rig.m.Snapshot(); snap.Served != 0 {
		t.Errorf("Served = %d, want 0", snap.Served)
	}
}

func TestManager_AfterShutdown(t *testing.T) {
	rig := newRig(t, model.PolicyCSCAN)
	bs := rig.dev.BlockSize()

	var err error
	rig.run(t, func(ctx *kernel.Context) {
		rig.m.Shutdown()
		err = rig.m.WriteBlock(ctx, 1, make([]byte, bs))
	})
	if !errors.Is(err, model.ErrNotInitialized) {
		t.Errorf("WriteBlock after shutdown = %v, want ErrNotInitialized", err)
	}
}

func TestManager_SetPolicy(t *testing.T) {
	rig := newRig(t, model.PolicyCSCAN)
	if err := rig.m.SetPolicy(model.PolicySSTF); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	if rig.m.Policy() != model.PolicySSTF {
		t.Errorf("Policy() = %s, want sstf", rig.m.Policy())
	}
	if err := rig.m.SetPolicy("look"); err == nil {
		t.Error("SetPolicy(look) = nil, want error")
	}
	if rig.m.Policy() != model.PolicySSTF {
		t.Errorf("Policy() changed on error: %s", rig.m.Policy())
	}
	rig.run(t, func(ctx *kernel.Context) {})
}

func TestManager_InitFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	k := kernel.New(kernel.DefaultConfig(), logger)
	dev := device.New(device.Config{Blocks: 0, BlockSize: 64}, device.NewMemImage(1, 64), logger)

	m, err := NewManager(k, dev, DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, _, err := m.Init(); !errors.Is(err, model.ErrInitialization) {
		t.Errorf("Init() = %v, want ErrInitialization", err)
	}
	if m.Server() != nil {
		t.Error("server task spawned after failed Init")
	}
}

func TestNewManager_UnknownPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	k := kernel.New(kernel.DefaultConfig(), logger)
	dev := device.New(device.DefaultConfig(), device.NewMemImage(1, 1), logger)
	if _, err := NewManager(k, dev, Config{Policy: "look"}, logger); err == nil {
		t.Error("NewManager(look) = nil error, want error")
	}
}

// busyStatus reports busy for its first n status reads without owing any
// completion, like a stuck status line.
type busyStatus struct {
	*device.Disk
	n int
}

func (d *busyStatus) Status() device.Status {
	if d.n != 0 {
		if d.n > 0 {
			d.n--
		}
		return device.StatusBusy
	}
	return d.Disk.Status()
}

// rejectBlock fails every Issue for one block.
type rejectBlock struct {
	*device.Disk
	block int
}

func (d *rejectBlock) Issue(op model.DiskOp, block int, buf []byte) error {
	if block == d.block {
		return errors.New("controller fault")
	}
	return d.Disk.Issue(op, block, buf)
}

func TestManager_DeviceBusyReleasesRequester(t *testing.T) {
	rig := newRigWith(t, model.PolicyFCFS, func(d *device.Disk) Device {
		return &busyStatus{Disk: d, n: 1}
	})
	buf := make([]byte, rig.dev.BlockSize())
	var first, second error

	final := rig.run(t, func(ctx *kernel.Context) {
		first = rig.m.WriteBlock(ctx, 3, buf)
		second = rig.m.WriteBlock(ctx, 8, buf)
	})

	if !errors.Is(first, model.ErrDeviceBusy) {
		t.Errorf("first WriteBlock = %v, want ErrDeviceBusy", first)
	}
	var de *model.DiskError
	if !errors.As(first, &de) || de.Block != 3 {
		t.Errorf("first error = %#v, want DiskError for block 3", first)
	}
	if second != nil {
		t.Errorf("second WriteBlock = %v, want nil", second)
	}
	if final.Served != 1 || final.Completed != 1 || final.Failed != 1 || final.Head != 8 {
		t.Errorf("final metrics = %+v, want served 1, completed 1, failed 1, head 8", final)
	}
	if len(rig.records) != 2 || rig.records[0].Error == "" || rig.records[1].Error != "" {
		t.Errorf("records = %+v", rig.records)
	}
}

func TestManager_DeviceStuckBusyNeverDeadlocks(t *testing.T) {
	rig := newRigWith(t, model.PolicyCSCAN, func(d *device.Disk) Device {
		return &busyStatus{Disk: d, n: -1}
	})
	buf := make([]byte, rig.dev.BlockSize())
	var errs []error

	final := rig.run(t, func(ctx *kernel.Context) {
		for _, b := range []int{1, 2, 3} {
			errs = append(errs, rig.m.WriteBlock(ctx, b, buf))
		}
	})

	for i, err := range errs {
		if !errors.Is(err, model.ErrDeviceBusy) {
			t.Errorf("WriteBlock #%d = %v, want ErrDeviceBusy", i, err)
		}
	}
	if final.Served != 0 || final.Failed != 3 {
		t.Errorf("final metrics = %+v, want served 0, failed 3", final)
	}
}

func TestManager_IssueFailureReleasesRequester(t *testing.T) {
	rig := newRigWith(t, model.PolicyFCFS, func(d *device.Disk) Device {
		return &rejectBlock{Disk: d, block: 7}
	})
	buf := make([]byte, rig.dev.BlockSize())
	var failed, ok error

	final := rig.run(t, func(ctx *kernel.Context) {
		failed = rig.m.WriteBlock(ctx, 7, buf)
		ok = rig.m.ReadBlock(ctx, 9, buf)
	})

	if !errors.Is(failed, model.ErrIssueFailure) {
		t.Errorf("WriteBlock(7) = %v, want ErrIssueFailure", failed)
	}
	if ok != nil {
		t.Errorf("ReadBlock(9) = %v, want nil", ok)
	}
	if final.Served != 2 || final.Completed != 1 || final.Failed != 1 {
		t.Errorf("final metrics = %+v, want served 2, completed 1, failed 1", final)
	}
}
