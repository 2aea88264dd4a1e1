// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package subst replaces single integer additions with an equivalent
// multi-step sequence routed through a volatile scratch cell. Every inserted
// instruction carries the obf marker so cooperating optimizers keep their
// hands off; a sufficiently aggressive one can still fold the chain back,
// which is the accepted limit of the technique.
package subst

import (
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	pass.Register(func() pass.Module { return pass.Lift(New()) })
}

// Pass is the addition substitution pass.
type Pass struct{}

// New returns the pass.
func New() *Pass { return &Pass{} }

func (p *Pass) Name() string { return "subst" }

// Run rewrites every integer add in f. All targets are collected before the
// first replacement so the adds inserted by the rewrite are never themselves
// rewritten within one run.
func (p *Pass) Run(ctx *pass.Context, f *ir.Function) (bool, error) {
	var targets []*ir.BinOp
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if op, ok := in.(*ir.BinOp); ok && op.Kind == ir.Add {
				targets = append(targets, op)
			}
		}
	}

	for _, op := range targets {
		p.rewrite(ctx, f, op)
	}
	if len(targets) > 0 {
		ctx.Logger().Debugf("substituted %d adds in @%s", len(targets), f.Name())
	}
	return len(targets) > 0, nil
}

// rewrite replaces op with the expansion
//
//	cell  = alloca T
//	        store volatile T 0, cell
//	zero  = load volatile T, cell
//	up    = add T zero, K
//	down  = sub T up, K
//	left  = add T x, down
//	sum   = add T left, y
//
// where K is a small constant drawn from the pass RNG. down always equals
// zero, and zero always reads back the stored 0, so sum equals x+y bit for
// bit, wraparound included.
func (p *Pass) rewrite(ctx *pass.Context, f *ir.Function, op *ir.BinOp) {
	k := int64(42)
	if ctx.Rand != nil {
		k = 1 + int64(ctx.Rand.Intn(126))
	}

	cell := ir.NewAlloca(ir.UniqueName(f, "obf.cell"), op.Typ)
	st := ir.NewStore(ir.ConstInt(op.Typ, 0), cell, true)
	zero := ir.NewLoad(ir.UniqueName(f, "obf.zero"), op.Typ, cell, true)
	up := ir.NewBinOp(ir.UniqueName(f, "obf.up"), ir.Add, op.Typ, zero, ir.ConstInt(op.Typ, k))
	down := ir.NewBinOp(ir.UniqueName(f, "obf.down"), ir.Sub, op.Typ, up, ir.ConstInt(op.Typ, k))
	left := ir.NewBinOp(ir.UniqueName(f, "obf.left"), ir.Add, op.Typ, op.X, down)
	sum := ir.NewBinOp(ir.UniqueName(f, "obf.sum"), ir.Add, op.Typ, left, op.Y)
	seq := []ir.Instruction{cell, st, zero, up, down, left, sum}
	for _, in := range seq {
		in.SetMeta("obf", "1")
	}

	b := op.Parent()
	b.Insert(b.IndexOf(op), seq...)
	ir.ReplaceAllUsesIn(f, op, sum)
	b.Remove(op)
}
