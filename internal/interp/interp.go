// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package interp executes functions of a module directly. The passes are
// tested differentially: run a function, rewrite the module, run it again and
// compare results and visited blocks.
package interp

import (
	"fmt"

	"github.com/mirageobf/mirage/pkg/ir"
)

// Options bound an execution.
type Options struct {
	// Steps is the total instruction budget across all frames.
	// Zero means DefaultSteps.
	Steps int
	// MaxDepth is the call depth limit. Zero means DefaultMaxDepth.
	MaxDepth int
}

const (
	DefaultSteps    = 1 << 16
	DefaultMaxDepth = 64
)

// Result is the outcome of a completed execution.
type Result struct {
	// Ret is the returned value, sign extended to 64 bits. Zero for void
	// functions.
	Ret int64
	// Trace lists the labels of the entry function's blocks in execution
	// order. Blocks of callees are not recorded.
	Trace []string
}

// Run executes f with the given integer arguments. Execution fails on budget
// exhaustion, calls to declarations, loads or stores through anything but an
// alloca cell, and unreachable.
func Run(f *ir.Function, args []int64, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	st := &state{
		steps: opts.Steps,
		depth: opts.MaxDepth,
	}
	if st.steps == 0 {
		st.steps = DefaultSteps
	}
	if st.depth == 0 {
		st.depth = DefaultMaxDepth
	}
	res := &Result{}
	ret, err := st.call(f, args, true, res)
	if err != nil {
		return nil, err
	}
	res.Ret = ret
	return res, nil
}

type state struct {
	steps int
	depth int
}

// cell is one unit of alloca storage.
type cell struct {
	v int64
}

// value is a runtime value: an integer, a cell address, or a function.
type value struct {
	i    int64
	cell *cell
	fn   *ir.Function
}

type frame struct {
	vals map[ir.Value]value
}

func (st *state) call(f *ir.Function, args []int64, top bool, res *Result) (int64, error) {
	if f.IsDecl() {
		return 0, fmt.Errorf("interp: call to declaration @%s", f.Name())
	}
	if len(args) != len(f.Params) {
		return 0, fmt.Errorf("interp: @%s takes %d arguments, got %d", f.Name(), len(f.Params), len(args))
	}
	if st.depth == 0 {
		return 0, fmt.Errorf("interp: call depth limit reached in @%s", f.Name())
	}
	st.depth--
	defer func() { st.depth++ }()

	fr := &frame{vals: make(map[ir.Value]value)}
	for i, p := range f.Params {
		fr.vals[p] = value{i: norm(p.Type(), args[i])}
	}

	b := f.Entry()
	for {
		if top {
			res.Trace = append(res.Trace, b.Label)
		}
		next, ret, done, err := st.block(f, fr, b, res)
		if err != nil {
			return 0, err
		}
		if done {
			return ret, nil
		}
		b = next
	}
}

// block executes b to its terminator. It returns either the next block or,
// via done, the function's return value.
func (st *state) block(f *ir.Function, fr *frame, b *ir.Block, res *Result) (next *ir.Block, ret int64, done bool, err error) {
	for _, in := range b.Instrs {
		if st.steps == 0 {
			return nil, 0, false, fmt.Errorf("interp: step budget exhausted in @%s at %%%s", f.Name(), b.Label)
		}
		st.steps--

		switch in := in.(type) {
		case *ir.Alloca:
			fr.vals[in] = value{cell: &cell{}}

		case *ir.Load:
			ptr, err := fr.eval(in.Ptr)
			if err != nil {
				return nil, 0, false, err
			}
			if ptr.cell == nil {
				return nil, 0, false, fmt.Errorf("interp: @%s: load through non-cell pointer", f.Name())
			}
			fr.vals[in] = value{i: norm(in.Elem, ptr.cell.v)}

		case *ir.Store:
			val, err := fr.eval(in.Val)
			if err != nil {
				return nil, 0, false, err
			}
			ptr, err := fr.eval(in.Ptr)
			if err != nil {
				return nil, 0, false, err
			}
			if ptr.cell == nil {
				return nil, 0, false, fmt.Errorf("interp: @%s: store through non-cell pointer", f.Name())
			}
			ptr.cell.v = norm(in.Val.Type(), val.i)

		case *ir.BinOp:
			x, err := fr.eval(in.X)
			if err != nil {
				return nil, 0, false, err
			}
			y, err := fr.eval(in.Y)
			if err != nil {
				return nil, 0, false, err
			}
			r, err := binop(f, in, x.i, y.i)
			if err != nil {
				return nil, 0, false, err
			}
			fr.vals[in] = value{i: norm(in.Typ, r)}

		case *ir.ICmp:
			x, err := fr.eval(in.X)
			if err != nil {
				return nil, 0, false, err
			}
			y, err := fr.eval(in.Y)
			if err != nil {
				return nil, 0, false, err
			}
			fr.vals[in] = value{i: boolInt(compare(in.Pred, in.X.Type(), x.i, y.i))}

		case *ir.Call:
			callee, err := fr.eval(in.Callee)
			if err != nil {
				return nil, 0, false, err
			}
			if callee.fn == nil {
				return nil, 0, false, fmt.Errorf("interp: @%s: call through non-function value", f.Name())
			}
			args := make([]int64, len(in.Args))
			for i, a := range in.Args {
				av, err := fr.eval(a)
				if err != nil {
					return nil, 0, false, err
				}
				args[i] = av.i
			}
			r, err := st.call(callee.fn, args, false, res)
			if err != nil {
				return nil, 0, false, err
			}
			if !ir.Same(in.Ret, ir.Void) {
				fr.vals[in] = value{i: norm(in.Ret, r)}
			}

		case *ir.Br:
			return in.Target, 0, false, nil

		case *ir.CondBr:
			cond, err := fr.eval(in.Cond)
			if err != nil {
				return nil, 0, false, err
			}
			if cond.i != 0 {
				return in.Then, 0, false, nil
			}
			return in.Else, 0, false, nil

		case *ir.Switch:
			x, err := fr.eval(in.X)
			if err != nil {
				return nil, 0, false, err
			}
			next := in.Default
			for _, c := range in.Cases {
				if norm(in.X.Type(), c.Val.Val) == x.i {
					next = c.Target
					break
				}
			}
			return next, 0, false, nil

		case *ir.Ret:
			if in.X == nil {
				return nil, 0, true, nil
			}
			x, err := fr.eval(in.X)
			if err != nil {
				return nil, 0, false, err
			}
			return nil, x.i, true, nil

		case *ir.Unreachable:
			return nil, 0, false, fmt.Errorf("interp: @%s: unreachable executed in %%%s", f.Name(), b.Label)

		default:
			return nil, 0, false, fmt.Errorf("interp: @%s: cannot execute %T", f.Name(), in)
		}
	}
	return nil, 0, false, fmt.Errorf("interp: @%s: block %%%s fell through", f.Name(), b.Label)
}

func (fr *frame) eval(v ir.Value) (value, error) {
	switch v := v.(type) {
	case *ir.Const:
		return value{i: norm(v.Typ, v.Val)}, nil
	case *ir.Function:
		return value{fn: v}, nil
	case *ir.Global:
		return value{}, fmt.Errorf("interp: global @%s is not modeled", v.Name())
	default:
		val, ok := fr.vals[v]
		if !ok {
			return value{}, fmt.Errorf("interp: value used before definition")
		}
		return val, nil
	}
}

func binop(f *ir.Function, in *ir.BinOp, x, y int64) (int64, error) {
	switch in.Kind {
	case ir.Add:
		return x + y, nil
	case ir.Sub:
		return x - y, nil
	case ir.Mul:
		return x * y, nil
	case ir.And:
		return x & y, nil
	case ir.Or:
		return x | y, nil
	case ir.Xor:
		return x ^ y, nil
	case ir.Shl:
		bits := width(in.Typ)
		if y < 0 || y >= int64(bits) {
			return 0, fmt.Errorf("interp: @%s: shift by %d out of range for %s", f.Name(), y, in.Typ)
		}
		return x << uint(y), nil
	default:
		return 0, fmt.Errorf("interp: @%s: unknown binary op %v", f.Name(), in.Kind)
	}
}

func compare(pred ir.Pred, typ ir.Type, x, y int64) bool {
	if pred.Signed() || pred == ir.Eq || pred == ir.Ne {
		switch pred {
		case ir.Eq:
			return x == y
		case ir.Ne:
			return x != y
		case ir.SLT:
			return x < y
		case ir.SLE:
			return x <= y
		case ir.SGT:
			return x > y
		case ir.SGE:
			return x >= y
		}
	}
	ux, uy := zext(typ, x), zext(typ, y)
	switch pred {
	case ir.ULT:
		return ux < uy
	case ir.ULE:
		return ux <= uy
	case ir.UGT:
		return ux > uy
	case ir.UGE:
		return ux >= uy
	}
	return false
}

func width(t ir.Type) int {
	if it, ok := t.(ir.IntType); ok {
		return it.Bits
	}
	return 64
}

// norm truncates x to the width of t and sign extends back to 64 bits, the
// canonical in-memory form. i1 stays 0 or 1.
func norm(t ir.Type, x int64) int64 {
	b := width(t)
	switch {
	case b == 1:
		return x & 1
	case b >= 64:
		return x
	}
	m := x & (1<<uint(b) - 1)
	if m&(1<<uint(b-1)) != 0 {
		m -= 1 << uint(b)
	}
	return m
}

// zext reinterprets the canonical form of x as an unsigned value of t's width.
func zext(t ir.Type, x int64) uint64 {
	b := width(t)
	if b >= 64 {
		return uint64(x)
	}
	return uint64(x) & (1<<uint(b) - 1)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
