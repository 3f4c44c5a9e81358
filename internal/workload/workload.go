// Package workload reads YAML workload descriptions and turns them into
// kernel task bodies that drive the disk manager.
package workload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/kernsim/internal/blockexpr"
	"github.com/me/kernsim/pkg/model"
)

// Operation kinds.
const (
	OpRead    = "read"
	OpWrite   = "write"
	OpCompute = "compute"
	OpYield   = "yield"
)

// Op is one step of a task. Repeat runs it several times with i = 0..Repeat-1.
type Op struct {
	Op     string `yaml:"op" json:"op"`
	Block  string `yaml:"block,omitempty" json:"block,omitempty"`
	Ticks  int    `yaml:"ticks,omitempty" json:"ticks,omitempty"`
	Repeat int    `yaml:"repeat,omitempty" json:"repeat,omitempty"`

	expr *blockexpr.Expr
}

// TaskSpec describes one task. Count > 1 spawns that many identical tasks
// named name-0, name-1, ...
type TaskSpec struct {
	Name     string `yaml:"name" json:"name"`
	Priority int    `yaml:"priority" json:"priority"`
	Count    int    `yaml:"count,omitempty" json:"count,omitempty"`
	Ops      []Op   `yaml:"ops" json:"ops"`
}

// Workload is a named set of tasks.
type Workload struct {
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Policy      model.Policy `yaml:"policy,omitempty" json:"policy,omitempty"`
	Tasks       []TaskSpec   `yaml:"tasks" json:"tasks"`
}

// Parse decodes and validates a workload. Unknown fields are rejected.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse workload: empty document")
		}
		return nil, fmt.Errorf("parse workload: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Load reads and parses the workload file at path.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload %s: %w", path, err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Validate checks the workload, fills defaults and compiles block expressions.
func (w *Workload) Validate() error {
	if w.Name == "" {
		w.Name = "workload"
	}
	if w.Policy != "" {
		p, err := model.ParsePolicy(string(w.Policy))
		if err != nil {
			return err
		}
		w.Policy = p
	}
	if len(w.Tasks) == 0 {
		return fmt.Errorf("workload %s: no tasks", w.Name)
	}

	var errs []string
	for ti := range w.Tasks {
		ts := &w.Tasks[ti]
		if ts.Name == "" {
			ts.Name = fmt.Sprintf("task%d", ti)
		}
		if ts.Count <= 0 {
			ts.Count = 1
		}
		if ts.Priority < model.MinPriority || ts.Priority > model.MaxPriority {
			errs = append(errs, fmt.Sprintf("task %s: priority %d outside [%d,%d]",
				ts.Name, ts.Priority, model.MinPriority, model.MaxPriority))
		}
		for oi := range ts.Ops {
			if err := ts.Ops[oi].validate(); err != nil {
				errs = append(errs, fmt.Sprintf("task %s op %d: %v", ts.Name, oi, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("workload %s: %s", w.Name, strings.Join(errs, "; "))
	}
	return nil
}

func (op *Op) validate() error {
	op.Op = strings.ToLower(strings.TrimSpace(op.Op))
	if op.Repeat < 0 {
		return fmt.Errorf("negative repeat %d", op.Repeat)
	}
	if op.Repeat == 0 {
		op.Repeat = 1
	}
	switch op.Op {
	case OpRead, OpWrite:
		e, err := blockexpr.Compile(op.Block)
		if err != nil {
			return err
		}
		op.expr = e
	case OpCompute:
		if op.Ticks <= 0 {
			return fmt.Errorf("compute needs ticks > 0")
		}
	case OpYield:
	default:
		return fmt.Errorf("unknown op %q (want read, write, compute or yield)", op.Op)
	}
	return nil
}

// Requests returns the number of disk requests the workload issues.
func (w *Workload) Requests() int {
	n := 0
	for _, ts := range w.Tasks {
		for _, op := range ts.Ops {
			if op.Op == OpRead || op.Op == OpWrite {
				n += op.Repeat * ts.Count
			}
		}
	}
	return n
}

// Builtin returns the named built-in workload.
func Builtin(name string) (*Workload, error) {
	src, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown built-in workload %q (have %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return Parse([]byte(src))
}

// BuiltinNames lists the built-in workloads.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtins = map[string]string{
	"mixed": `
name: mixed
description: writers and readers scattered over the disk, plus a CPU-bound task
tasks:
  - name: writer
    priority: 0
    count: 3
    ops:
      - {op: write, block: "(task * 61 + 7) % blocks"}
      - {op: compute, ticks: 30}
      - {op: write, block: "(i * 37 + task * 11) % blocks", repeat: 6}
  - name: reader
    priority: 2
    count: 2
    ops:
      - {op: read, block: "(blocks - 1 - i * 13 - task) % blocks", repeat: 8}
      - {op: yield}
  - name: cruncher
    priority: 5
    ops:
      - {op: compute, ticks: 400}
`,
	"sweep": `
name: sweep
description: one task reading the disk front to back while another reads back to front
tasks:
  - name: forward
    priority: 0
    ops:
      - {op: read, block: "i * 8", repeat: 16}
  - name: backward
    priority: 0
    ops:
      - {op: read, block: "blocks - 1 - i * 8", repeat: 16}
`,
}
