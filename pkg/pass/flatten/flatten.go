// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package flatten rewrites direct successor edges into transfers through a
// single dispatcher block keyed by a per-function state variable.
//
// Flattening is partial. Only blocks with exactly one successor are state
// machine members: the entry block holds state 0 and members are numbered
// consecutively from 1 in layout order. A member whose successor has no state
// number cannot express the transfer as a state store, so it keeps its direct
// edge rather than guessing at a neighboring number.
package flatten

import (
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	pass.Register(func() pass.Module { return pass.Lift(New()) })
}

// Pass is the control flow flattening pass.
type Pass struct{}

// New returns the pass.
func New() *Pass { return &Pass{} }

func (p *Pass) Name() string { return "flatten" }

// Run flattens f. Functions with fewer than two blocks are skipped.
func (p *Pass) Run(ctx *pass.Context, f *ir.Function) (bool, error) {
	if len(f.Blocks) < 2 {
		return false, nil
	}
	entry := f.Entry()

	// Number the states before touching anything.
	ids := map[*ir.Block]int{entry: 0}
	var members []*ir.Block
	for _, b := range f.Blocks {
		if b == entry {
			continue
		}
		t := b.Term()
		if t == nil || len(t.Succs()) != 1 {
			continue
		}
		members = append(members, b)
		ids[b] = len(members)
	}

	var rewrite []*ir.Block
	for _, b := range members {
		if _, ok := ids[b.Succs()[0]]; ok {
			rewrite = append(rewrite, b)
		}
	}
	if len(rewrite) == 0 {
		return false, nil
	}

	state := ir.NewAlloca(ir.UniqueName(f, "state"), ir.I32)
	entry.Insert(0, state, ir.NewStore(ir.ConstInt(ir.I32, 0), state, false))

	dispatch := f.InsertBlockAfter(entry, ir.UniqueName(f, "dispatch"))
	next := ir.NewLoad(ir.UniqueName(f, "state.next"), ir.I32, state, false)
	cases := make([]ir.SwitchCase, 0, len(members))
	for _, b := range members {
		cases = append(cases, ir.SwitchCase{Val: ir.ConstInt(ir.I32, int64(ids[b])), Target: b})
	}
	// State 0 has no case, so the default edge routes back to entry.
	dispatch.Append(next, ir.NewSwitch(next, entry, cases...))

	for _, b := range rewrite {
		succ := b.Succs()[0]
		b.ReplaceTerm(ir.NewBr(dispatch))
		b.Insert(len(b.Instrs)-1, ir.NewStore(ir.ConstInt(ir.I32, int64(ids[succ])), state, false))
	}
	ctx.Logger().Debugf("flattened %d of %d blocks in @%s", len(rewrite), len(f.Blocks)-2, f.Name())
	return true, nil
}
