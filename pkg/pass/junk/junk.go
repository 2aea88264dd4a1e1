// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package junk prepends a tagged, self-cancelling dummy computation to every
// function body. The sequence produces no used value and touches only its own
// scratch cell, so behavior is unchanged; the volatile accesses and the obf
// markers keep cooperating optimizers from deleting it.
package junk

import (
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	pass.Register(func() pass.Module { return pass.Lift(New()) })
}

// Pass is the junk insertion pass.
type Pass struct{}

// New returns the pass.
func New() *Pass { return &Pass{} }

func (p *Pass) Name() string { return "junk" }

// Run inserts the dummy sequence at the top of f's entry block.
func (p *Pass) Run(ctx *pass.Context, f *ir.Function) (bool, error) {
	cell := ir.NewAlloca(ir.UniqueName(f, "dummy.cell"), ir.I32)
	st := ir.NewStore(ir.ConstInt(ir.I32, 0), cell, true)
	v := ir.NewLoad(ir.UniqueName(f, "dummy.val"), ir.I32, cell, true)
	up := ir.NewBinOp(ir.UniqueName(f, "dummy.up"), ir.Add, ir.I32, v, ir.ConstInt(ir.I32, 1))
	down := ir.NewBinOp(ir.UniqueName(f, "dummy.down"), ir.Sub, ir.I32, up, ir.ConstInt(ir.I32, 1))
	back := ir.NewStore(down, cell, true)
	seq := []ir.Instruction{cell, st, v, up, down, back}
	for _, in := range seq {
		in.SetMeta("obf", "1")
	}
	f.Entry().Insert(0, seq...)
	ctx.Logger().Debugf("inserted dummy sequence in @%s", f.Name())
	return true, nil
}
