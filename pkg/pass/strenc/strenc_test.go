// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package strenc_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/mirageobf/mirage/pkg/codec"
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
	"github.com/mirageobf/mirage/pkg/pass/strenc"
	"github.com/mirageobf/mirage/pkg/symmap"
)

const src = `
@msg = internal constant [6 x i8] c"Hello\00"
@bare = constant [2 x i8] c"hi"
@blob = internal constant [3 x i8] c"\01\02\03"
@mut = internal global [3 x i8] c"abc"
@num = internal constant i32 7

define ptr @use() {
entry:
  ret ptr @msg
}
`

func newCtx(key string) *pass.Context {
	return &pass.Context{Key: []byte(key), Map: symmap.New([]byte(key))}
}

func TestMutatesStringGlobals(t *testing.T) {
	t.Parallel()
	m, err := ir.Parse("globals.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))
	ctx := newCtx("k")

	changed, err := strenc.New().Run(ctx, m)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))
	qt.Assert(t, qt.IsNil(ir.VerifyModule(m)))

	// The replacement keeps the name and linkage, doubles the array, and
	// drops const. The terminator is encoded along with the text.
	msg := m.Global("msg")
	qt.Assert(t, qt.IsNotNil(msg))
	qt.Assert(t, qt.Equals(msg.Linkage, ir.Internal))
	qt.Assert(t, qt.IsFalse(msg.Const))
	qt.Assert(t, qt.DeepEquals(msg.Elem, ir.Type(ir.ArrayOf(12, ir.I8))))
	stored := msg.Init.(*ir.Bytes).Data
	qt.Assert(t, qt.Equals(string(stored), "230e0707046b"))

	plain, err := codec.Decode(string(stored), []byte("k"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(plain, []byte("Hello\x00")))

	// The use site now references the replacement.
	ret := m.Func("use").Entry().Term().(*ir.Ret)
	qt.Assert(t, qt.Equals(ret.X, ir.Value(msg)))

	// Terminator-free text is eligible too; binary data, non-const
	// globals and non-array globals are skipped.
	qt.Assert(t, qt.Equals(len(m.Global("bare").Init.(*ir.Bytes).Data), 4))
	qt.Assert(t, qt.DeepEquals(m.Global("blob").Init.(*ir.Bytes).Data, []byte{1, 2, 3}))
	qt.Assert(t, qt.DeepEquals(m.Global("mut").Init.(*ir.Bytes).Data, []byte("abc")))
	qt.Assert(t, qt.IsTrue(m.Global("blob").Const))

	entry, ok := ctx.Map.Lookup(symmap.KindGlobal, "Hello\x00")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(entry.Encoded, "230e0707046b"))
}

func TestEmptyKeyRejected(t *testing.T) {
	t.Parallel()
	m, err := ir.Parse("globals.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))

	_, err = strenc.New().Run(&pass.Context{}, m)
	qt.Assert(t, qt.ErrorIs(err, codec.ErrEmptyKey))
}

func TestScanPolicy(t *testing.T) {
	t.Parallel()
	parse := func() *ir.Module {
		m, err := ir.Parse("globals.ir", []byte(src))
		qt.Assert(t, qt.IsNil(err))
		return m
	}

	// One pass value handed two modules: per-module scanning mutates
	// both, once-per-process scanning mutates only the first.
	perModule := strenc.New()
	ctx := newCtx("k")
	for i := 0; i < 2; i++ {
		m := parse()
		changed, err := perModule.Run(ctx, m)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.IsTrue(changed))
	}

	once := strenc.New()
	qt.Assert(t, qt.IsNil(once.SetOption("scan", "once")))
	first := parse()
	changed, err := once.Run(ctx, first)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))

	second := parse()
	changed, err = once.Run(ctx, second)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(changed))
	qt.Assert(t, qt.IsTrue(second.Global("msg").Const))
}

func TestBadOptions(t *testing.T) {
	t.Parallel()
	p := strenc.New()
	qt.Assert(t, qt.ErrorMatches(p.SetOption("scan", "sometimes"), `bad scan policy "sometimes"`))
	qt.Assert(t, qt.ErrorMatches(p.SetOption("mode", "x"), `unknown option "mode"`))
}

func TestRegistered(t *testing.T) {
	t.Parallel()
	p, err := pass.New("strenc")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(p.Name(), "strenc"))
}
