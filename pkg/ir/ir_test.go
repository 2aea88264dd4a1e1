// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir_test

import (
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/mirageobf/mirage/pkg/ir"
)

func buildSum(t *testing.T) (*ir.Module, *ir.Function) {
	t.Helper()
	m := ir.NewModule("demo.c")
	f := m.AddFunc(ir.NewFunc("sum", ir.Internal, ir.I32,
		ir.NewParam("a", ir.I32), ir.NewParam("b", ir.I32)))
	entry := f.AddBlock("entry")
	r := ir.NewBinOp("r", ir.Add, ir.I32, f.Params[0], f.Params[1])
	entry.Append(r, ir.NewRet(r))
	qt.Assert(t, qt.IsNil(ir.VerifyModule(m)))
	return m, f
}

func TestPrintBasic(t *testing.T) {
	t.Parallel()
	m, _ := buildSum(t)
	want := strings.Join([]string{
		`source_filename = "demo.c"`,
		``,
		`define internal i32 @sum(i32 %a, i32 %b) {`,
		`entry:`,
		`  %r = add i32 %a, %b`,
		`  ret i32 %r`,
		`}`,
		``,
	}, "\n")
	qt.Assert(t, qt.Equals(m.String(), want))
}

func TestInsertBlockAfter(t *testing.T) {
	t.Parallel()
	_, f := buildSum(t)
	entry := f.Entry()
	mid := f.InsertBlockAfter(entry, "mid")
	last := f.AddBlock("last")
	qt.Assert(t, qt.Equals(f.Blocks[0].Label, "entry"))
	qt.Assert(t, qt.Equals(f.Blocks[1].Label, "mid"))
	qt.Assert(t, qt.Equals(f.Blocks[2].Label, "last"))
	qt.Assert(t, qt.Equals(mid.Index(), 1))
	qt.Assert(t, qt.Equals(last.Parent(), f))

	second := f.InsertBlockAfter(entry, "second")
	qt.Assert(t, qt.Equals(second.Index(), 1))
	qt.Assert(t, qt.Equals(mid.Index(), 2))
}

func TestReplaceTerm(t *testing.T) {
	t.Parallel()
	_, f := buildSum(t)
	entry := f.Entry()
	next := f.AddBlock("next")
	next.Append(ir.NewRet(ir.ConstInt(ir.I32, 0)))

	old := entry.ReplaceTerm(ir.NewBr(next))
	_, wasRet := old.(*ir.Ret)
	qt.Assert(t, qt.IsTrue(wasRet))
	qt.Assert(t, qt.IsNil(old.Parent()))
	qt.Assert(t, qt.Equals(len(entry.Succs()), 1))
	qt.Assert(t, qt.Equals(entry.Succs()[0], next))
	qt.Assert(t, qt.IsNil(ir.VerifyFunc(f)))
}

func TestReplaceAllUses(t *testing.T) {
	t.Parallel()
	m, f := buildSum(t)
	entry := f.Entry()
	r := entry.Instrs[0].(*ir.BinOp)

	qt.Assert(t, qt.Equals(ir.NumUses(m, r), 1)) // the ret

	wide := ir.NewBinOp("wide", ir.Mul, ir.I32, r, ir.ConstInt(ir.I32, 2))
	entry.Insert(1, wide)
	qt.Assert(t, qt.Equals(ir.NumUses(m, r), 2))

	n := ir.ReplaceAllUsesIn(f, r, f.Params[0])
	qt.Assert(t, qt.Equals(n, 2))
	qt.Assert(t, qt.Equals(ir.NumUses(m, r), 0))
	qt.Assert(t, qt.Equals(entry.Instrs[1].(*ir.BinOp).X, ir.Value(f.Params[0])))
}

func TestReplaceGlobal(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("demo.c")
	old := m.AddGlobal(ir.NewGlobal("msg", ir.Internal, ir.ArrayOf(2, ir.I8), &ir.Bytes{Data: []byte("hi")}))
	old.Const = true
	f := m.AddFunc(ir.NewFunc("use", ir.External, ir.I8))
	entry := f.AddBlock("entry")
	ld := ir.NewLoad("c", ir.I8, old, false)
	entry.Append(ld, ir.NewRet(ld))
	qt.Assert(t, qt.IsNil(ir.VerifyModule(m)))

	repl := ir.NewGlobal("msg", ir.Internal, ir.ArrayOf(4, ir.I8), &ir.Bytes{Data: []byte("6869")})
	qt.Assert(t, qt.IsTrue(m.ReplaceGlobal(old, repl)))
	qt.Assert(t, qt.Equals(len(m.Globals), 1))
	qt.Assert(t, qt.Equals(m.Global("msg"), repl))
	qt.Assert(t, qt.Equals(ld.Ptr, ir.Value(repl)))
	qt.Assert(t, qt.Equals(ir.NumUses(m, old), 0))
	qt.Assert(t, qt.IsNil(ir.VerifyModule(m)))
}

func TestPredsAndReachable(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("demo.c")
	f := m.AddFunc(ir.NewFunc("loop", ir.External, ir.Void, ir.NewParam("p", ir.I1)))
	entry := f.AddBlock("entry")
	body := f.AddBlock("body")
	done := f.AddBlock("done")
	island := f.AddBlock("island")

	entry.Append(ir.NewBr(body))
	body.Append(ir.NewCondBr(f.Params[0], body, done))
	done.Append(ir.NewRet(nil))
	island.Append(ir.NewRet(nil))
	qt.Assert(t, qt.IsNil(ir.VerifyModule(m)))

	preds := f.Preds(body)
	qt.Assert(t, qt.Equals(len(preds), 2))
	qt.Assert(t, qt.Equals(preds[0], entry))
	qt.Assert(t, qt.Equals(preds[1], body))
	qt.Assert(t, qt.Equals(len(f.Preds(entry)), 0))

	reached := ir.ReachableFrom(f, entry)
	qt.Assert(t, qt.IsTrue(reached[entry]))
	qt.Assert(t, qt.IsTrue(reached[body]))
	qt.Assert(t, qt.IsTrue(reached[done]))
	qt.Assert(t, qt.IsFalse(reached[island]))
}

func TestUniqueName(t *testing.T) {
	t.Parallel()
	_, f := buildSum(t)
	qt.Assert(t, qt.Equals(ir.UniqueName(f, "x"), "x"))
	qt.Assert(t, qt.Equals(ir.UniqueName(f, "r"), "r.1"))
	qt.Assert(t, qt.Equals(ir.UniqueName(f, "entry"), "entry.1"))

	f.Entry().Insert(0, ir.NewAlloca("r.1", ir.I32))
	qt.Assert(t, qt.Equals(ir.UniqueName(f, "r"), "r.2"))
}

func TestMeta(t *testing.T) {
	t.Parallel()
	_, f := buildSum(t)
	in := f.Entry().Instrs[0]
	qt.Assert(t, qt.IsFalse(in.ClearMeta("dbg")))
	in.SetMeta("dbg", "demo.c:4")
	in.SetMeta("obf", "1")
	qt.Assert(t, qt.DeepEquals(in.Meta().Keys(), []string{"dbg", "obf"}))

	line := f.Parent().String()
	qt.Assert(t, qt.IsTrue(strings.Contains(line, `%r = add i32 %a, %b, !dbg !"demo.c:4", !obf !"1"`)))

	qt.Assert(t, qt.IsTrue(in.ClearMeta("dbg")))
	qt.Assert(t, qt.IsFalse(in.ClearMeta("dbg")))
}
