// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package breakcfg splits eligible blocks behind a statically false
// conditional branch. Execution is unchanged, but every split doubles the
// edges an analyst has to trace through the function.
package breakcfg

import (
	"math"

	"github.com/pkg/errors"

	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	pass.Register(func() pass.Module { return pass.Lift(New()) })
}

// Pass is the block splitting pass.
type Pass struct {
	maxSplits int
}

// New returns a pass with no split limit.
func New() *Pass {
	return &Pass{maxSplits: math.MaxInt32}
}

func (p *Pass) Name() string { return "break-cfg" }

// SetOption accepts splits=N to cap the number of splits per function.
func (p *Pass) SetOption(key, value string) error {
	switch key {
	case "splits":
		n, err := pass.ParseInt(value, math.MaxInt32, math.MaxInt32)
		if err != nil {
			return errors.Wrapf(err, "option %q", key)
		}
		p.maxSplits = n
		return nil
	default:
		return errors.Errorf("unknown option %q", key)
	}
}

// Run splits every eligible block of f: not the entry block, more than one
// instruction, terminator with exactly one successor. The candidates are
// collected before any mutation so freshly inserted split blocks are never
// considered. Split blocks hold a single jump, which keeps them ineligible on
// later runs.
func (p *Pass) Run(ctx *pass.Context, f *ir.Function) (bool, error) {
	entry := f.Entry()
	var candidates []*ir.Block
	for _, b := range f.Blocks {
		if b == entry || len(b.Instrs) < 2 {
			continue
		}
		t := b.Term()
		if t == nil || len(t.Succs()) != 1 {
			continue
		}
		candidates = append(candidates, b)
		if len(candidates) == p.maxSplits {
			break
		}
	}

	for _, b := range candidates {
		succ := b.Succs()[0]
		split := f.InsertBlockAfter(b, ir.UniqueName(f, b.Label+".split"))
		split.Append(ir.NewBr(succ))
		// The false condition always takes the split path; the direct
		// edge to the successor survives as the never-taken arm.
		b.ReplaceTerm(ir.NewCondBr(ir.False, succ, split))
	}
	if len(candidates) > 0 {
		ctx.Logger().Debugf("split %d blocks in @%s", len(candidates), f.Name())
	}
	return len(candidates) > 0, nil
}
