// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package junk_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/mirageobf/mirage/internal/interp"
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
	"github.com/mirageobf/mirage/pkg/pass/junk"
)

const src = `
define i32 @twice(i32 %n) {
entry:
  %r = mul i32 %n, 2
  ret i32 %r
}

declare i32 @external(i32 %x)
`

func TestInsertsDummySequence(t *testing.T) {
	t.Parallel()
	m, err := ir.Parse("twice.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))
	f := m.Func("twice")

	before, err := interp.Run(f, []int64{21}, nil)
	qt.Assert(t, qt.IsNil(err))

	changed, err := junk.New().Run(&pass.Context{}, f)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))
	qt.Assert(t, qt.IsNil(ir.VerifyFunc(f)))

	entry := f.Entry()
	qt.Assert(t, qt.Equals(len(entry.Instrs), 8))
	for _, in := range entry.Instrs[:6] {
		qt.Assert(t, qt.Equals(in.Meta()["obf"], "1"))
	}
	qt.Assert(t, qt.IsTrue(entry.Instrs[1].(*ir.Store).Volatile))
	qt.Assert(t, qt.IsTrue(entry.Instrs[2].(*ir.Load).Volatile))

	// The sequence's final value cancels to zero and is never used
	// outside its own write-back.
	down := entry.Instrs[4].(*ir.BinOp)
	qt.Assert(t, qt.Equals(ir.ReplaceAllUsesIn(f, down, down), 1))

	after, err := interp.Run(f, []int64{21}, nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(after.Ret, before.Ret))
	qt.Assert(t, qt.DeepEquals(after.Trace, before.Trace))
}

func TestSkipsDeclarations(t *testing.T) {
	t.Parallel()
	m, err := ir.Parse("twice.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))

	p, err := pass.New("junk")
	qt.Assert(t, qt.IsNil(err))
	changed, err := p.Run(&pass.Context{}, m)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))
	qt.Assert(t, qt.IsTrue(m.Func("external").IsDecl()))
	qt.Assert(t, qt.IsNil(ir.VerifyModule(m)))
}
