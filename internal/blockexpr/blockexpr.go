// Package blockexpr evaluates the block-number expressions of workload
// files. An expression is an integer literal or a JavaScript expression
// over i (repeat index), task (task index) and blocks (device size).
package blockexpr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// Timeout bounds the evaluation of a single expression.
const Timeout = 100 * time.Millisecond

// Env is the set of variables visible to an expression.
type Env struct {
	I      int
	Task   int
	Blocks int
}

// Expr is a compiled block expression.
type Expr struct {
	src     string
	literal bool
	value   int
	prog    *goja.Program
}

// Compile parses src. Plain integers are not handed to the JavaScript runtime.
func Compile(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty block expression")
	}
	if n, err := strconv.Atoi(src); err == nil {
		return &Expr{src: src, literal: true, value: n}, nil
	}
	prog, err := goja.Compile("block", src, true)
	if err != nil {
		return nil, fmt.Errorf("compile block expression %q: %w", src, err)
	}
	return &Expr{src: src, prog: prog}, nil
}

// MustCompile is Compile that panics on error. For tests and constants.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source text.
func (e *Expr) String() string {
	return e.src
}

// IsLiteral reports whether the expression is a plain integer.
func (e *Expr) IsLiteral() bool {
	return e.literal
}

// Eval computes the block number for env. The result must be an integral
// number; range checks are left to the disk manager.
func (e *Expr) Eval(env Env) (int, error) {
	if e.literal {
		return e.value, nil
	}

	vm := goja.New()
	if err := vm.Set("i", env.I); err != nil {
		return 0, fmt.Errorf("set i: %w", err)
	}
	if err := vm.Set("task", env.Task); err != nil {
		return 0, fmt.Errorf("set task: %w", err)
	}
	if err := vm.Set("blocks", env.Blocks); err != nil {
		return 0, fmt.Errorf("set blocks: %w", err)
	}

	timer := time.AfterFunc(Timeout, func() {
		vm.Interrupt("block expression timed out")
	})
	defer timer.Stop()

	v, err := vm.RunProgram(e.prog)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", e.src, err)
	}
	return toBlock(e.src, v.Export())
}

func toBlock(src string, v any) (int, error) {
	switch x := v.(type) {
	case int64:
		return int(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, fmt.Errorf("evaluate %q: %v is not an integer", src, x)
		}
		return int(x), nil
	default:
		return 0, fmt.Errorf("evaluate %q: result %v (%T) is not a number", src, v, v)
	}
}
