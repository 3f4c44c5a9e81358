// Package config holds the simulator and server configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/kernsim/internal/clock"
	"github.com/me/kernsim/internal/device"
	"github.com/me/kernsim/internal/logging"
	"github.com/me/kernsim/pkg/model"
)

// DiskConfig describes the simulated device and its backing image.
type DiskConfig struct {
	Blocks    int    `yaml:"blocks"`
	BlockSize int    `yaml:"block_size"`
	DelayMin  int    `yaml:"delay_min"` // ticks
	DelayMax  int    `yaml:"delay_max"` // ticks
	Image     string `yaml:"image"`     // memory, file, sqlite
	ImagePath string `yaml:"image_path"`
}

// SimConfig holds the settings of one simulation run.
type SimConfig struct {
	Quantum        int           `yaml:"quantum"`     // ticks per time slice
	TickPeriod     time.Duration `yaml:"tick_period"` // wall time per tick when pacing is realtime
	Pacing         string        `yaml:"pacing"`      // virtual or realtime
	Policy         model.Policy  `yaml:"policy"`
	ServerPriority int           `yaml:"server_priority"`
	Trace          bool          `yaml:"trace"` // keep per-request records in the report
	Disk           DiskConfig    `yaml:"disk"`
}

// ServerConfig holds configuration for the kernsim HTTP server.
type ServerConfig struct {
	Addr      string    `yaml:"addr"`       // listen address (default ":8080")
	LogLevel  string    `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string    `yaml:"log_format"` // text, json
	DBPath    string    `yaml:"db_path"`    // SQLite run store, ":memory:" for testing
	Sim       SimConfig `yaml:"sim"`
}

// DefaultSimConfig returns the defaults: 40-tick quantum, virtual time,
// C-SCAN, a 256x64 in-memory disk with 10..30 tick operations.
func DefaultSimConfig() SimConfig {
	dev := device.DefaultConfig()
	return SimConfig{
		Quantum:        clock.DefaultQuantum,
		TickPeriod:     clock.DefaultPeriod,
		Pacing:         clock.PacingVirtual,
		Policy:         model.DefaultPolicy,
		ServerPriority: 10,
		Trace:          true,
		Disk: DiskConfig{
			Blocks:    dev.Blocks,
			BlockSize: dev.BlockSize,
			DelayMin:  dev.DelayMin,
			DelayMax:  dev.DelayMax,
			Image:     device.ImageMemory,
		},
	}
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Sim:       DefaultSimConfig(),
	}
}

// Device returns the device geometry of c.
func (c SimConfig) Device() device.Config {
	return device.Config{
		Blocks:    c.Disk.Blocks,
		BlockSize: c.Disk.BlockSize,
		DelayMin:  c.Disk.DelayMin,
		DelayMax:  c.Disk.DelayMax,
	}
}

// Validate checks ranges and names.
func (c SimConfig) Validate() error {
	var errs []error
	if c.Quantum <= 0 {
		errs = append(errs, fmt.Errorf("quantum must be positive, got %d", c.Quantum))
	}
	if c.Pacing != clock.PacingVirtual && c.Pacing != clock.PacingRealtime {
		errs = append(errs, fmt.Errorf("pacing must be %s or %s, got %q", clock.PacingVirtual, clock.PacingRealtime, c.Pacing))
	}
	if c.Pacing == clock.PacingRealtime && c.TickPeriod <= 0 {
		errs = append(errs, fmt.Errorf("tick_period must be positive for realtime pacing"))
	}
	if _, err := model.ParsePolicy(string(c.Policy)); err != nil {
		errs = append(errs, err)
	}
	if c.ServerPriority < model.MinPriority || c.ServerPriority > model.MaxPriority {
		errs = append(errs, fmt.Errorf("server_priority %d outside [%d,%d]", c.ServerPriority, model.MinPriority, model.MaxPriority))
	}
	if c.Disk.Blocks <= 0 || c.Disk.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("disk geometry %dx%d must be positive", c.Disk.Blocks, c.Disk.BlockSize))
	}
	if c.Disk.DelayMin < 0 || c.Disk.DelayMax < c.Disk.DelayMin {
		errs = append(errs, fmt.Errorf("disk delays %d..%d are not a valid range", c.Disk.DelayMin, c.Disk.DelayMax))
	}
	switch c.Disk.Image {
	case "", device.ImageMemory:
	case device.ImageFile, device.ImageSQLite:
		if c.Disk.ImagePath == "" {
			errs = append(errs, fmt.Errorf("disk image %s needs image_path", c.Disk.Image))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown disk image %q", c.Disk.Image))
	}
	return errors.Join(errs...)
}

// Validate checks the server settings and the embedded simulation defaults.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, fmt.Errorf("addr is required"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !logging.ValidFormat(c.LogFormat) {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if err := c.Sim.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadSim reads a YAML simulation config from path over the defaults.
func LoadSim(path string) (SimConfig, error) {
	cfg := DefaultSimConfig()
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	if p, err := model.ParsePolicy(string(cfg.Policy)); err == nil {
		cfg.Policy = p
	}
	return cfg, cfg.Validate()
}

// LoadServer reads a YAML server config from path over the defaults.
func LoadServer(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	if p, err := model.ParsePolicy(string(cfg.Sim.Policy)); err == nil {
		cfg.Sim.Policy = p
	}
	return cfg, cfg.Validate()
}

func loadInto(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
