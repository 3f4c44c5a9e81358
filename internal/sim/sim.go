// Package sim wires clock, kernel, device and disk manager together and
// runs one workload to completion.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/kernsim/internal/clock"
	"github.com/me/kernsim/internal/config"
	"github.com/me/kernsim/internal/device"
	"github.com/me/kernsim/internal/disk"
	"github.com/me/kernsim/internal/kernel"
	"github.com/me/kernsim/internal/logging"
	"github.com/me/kernsim/internal/workload"
	"github.com/me/kernsim/pkg/model"
)

// EffectivePolicy picks the policy of a run: an explicit override wins,
// then the workload's own policy, then the configured one.
func EffectivePolicy(cfg config.SimConfig, w *workload.Workload, override model.Policy) model.Policy {
	switch {
	case override != "":
		return override
	case w != nil && w.Policy != "":
		return w.Policy
	default:
		return cfg.Policy
	}
}

// Run executes w under cfg and returns the run report.
func Run(ctx context.Context, cfg config.SimConfig, w *workload.Workload, logger *slog.Logger) (*model.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if w == nil {
		return nil, fmt.Errorf("no workload")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	policy, err := model.ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}

	runID := "run_" + uuid.New().String()
	started := time.Now()

	timer := clock.NewTimer(cfg.Quantum)
	pacer, err := clock.NewPacer(cfg.Pacing, cfg.TickPeriod)
	if err != nil {
		return nil, err
	}
	defer pacer.Stop()

	logger = slog.New(logging.WithTicks(logger.Handler(), timer)).With("run_id", runID)
	logger.Info("run starting",
		"workload", w.Name,
		"policy", policy,
		"quantum", cfg.Quantum,
		"pacing", cfg.Pacing,
		"image", cfg.Disk.Image,
	)

	image, err := device.OpenImage(cfg.Disk.Image, cfg.Disk.ImagePath, cfg.Disk.Blocks, cfg.Disk.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("open disk image: %w", err)
	}
	dev := device.New(cfg.Device(), image, logger)
	defer closeLogged(dev, logger, "close disk image", "image", cfg.Disk.Image, "path", cfg.Disk.ImagePath)

	k := kernel.New(kernel.Config{Quantum: cfg.Quantum, Pacer: pacer, Timer: timer}, logger)
	mgr, err := disk.NewManager(k, dev, disk.Config{Policy: policy, ServerPriority: cfg.ServerPriority}, logger)
	if err != nil {
		return nil, err
	}

	var records []model.ServiceRecord
	if cfg.Trace {
		mgr.Observe(disk.ObserverFunc(func(rec model.ServiceRecord) {
			records = append(records, rec)
		}))
	}

	blocks, blockSize, err := mgr.Init()
	if err != nil {
		return nil, err
	}

	stepErrors := 0
	progs := workload.Build(w, mgr, blocks, blockSize, func(task string, err error) {
		stepErrors++
		logger.Warn("workload step failed", "task", task, "error", err)
	})

	k.Spawn("main", 0, func(ctx *kernel.Context) {
		tasks := make([]*model.Task, 0, len(progs))
		for _, p := range progs {
			tasks = append(tasks, ctx.Spawn(p.Name, p.Priority, p.Body))
		}
		for _, t := range tasks {
			ctx.Join(t)
		}
		mgr.Shutdown()
	})

	if err := k.Run(ctx); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	report := &model.Report{
		ID:         runID,
		Workload:   w.Name,
		Policy:     policy,
		Quantum:    timer.Quantum(),
		Blocks:     blocks,
		BlockSize:  blockSize,
		Ticks:      k.Now(),
		Disk:       mgr.Snapshot(),
		Tasks:      k.Stats(),
		Requests:   records,
		StepErrors: stepErrors,
		StartedAt:  started.UTC(),
		Duration:   time.Since(started),
	}
	logger.Info("run finished",
		"ticks", report.Ticks,
		"served", report.Disk.Served,
		"total_head_movement", report.Disk.TotalHeadMovement,
		"total_busy_ticks", report.Disk.TotalBusyTicks,
		"duration", report.Duration,
	)
	return report, nil
}

// closeLogged closes c and logs a failure, which for file and SQLite images
// means the last writes may not have reached storage.
func closeLogged(c io.Closer, logger *slog.Logger, msg string, args ...any) {
	if err := c.Close(); err != nil {
		logger.Error(msg, append(args, "error", err)...)
	}
}
