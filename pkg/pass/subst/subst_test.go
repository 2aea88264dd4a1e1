// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package subst_test

import (
	"fmt"
	"math"
	mathrand "math/rand"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/mirageobf/mirage/internal/interp"
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
	"github.com/mirageobf/mirage/pkg/pass/subst"
)

func addFunc(t *testing.T, typ string) *ir.Function {
	t.Helper()
	src := fmt.Sprintf(`
define %[1]s @plus(%[1]s %%a, %[1]s %%b) {
entry:
  %%r = add %[1]s %%a, %%b
  ret %[1]s %%r
}
`, typ)
	m, err := ir.Parse("plus.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))
	return m.Func("plus")
}

func TestArithmeticEquivalence(t *testing.T) {
	t.Parallel()
	// Boundary pairs per width, wraparound included.
	cases := map[string][][2]int64{
		"i8":  {{0, 0}, {1, -1}, {127, 1}, {-128, -1}, {127, 127}},
		"i16": {{0, 0}, {32767, 1}, {-32768, -1}, {12345, 23456}},
		"i32": {{0, 0}, {math.MaxInt32, 1}, {math.MinInt32, -1}, {7, -7}},
		"i64": {{0, 0}, {math.MaxInt64, 1}, {math.MinInt64, -1}, {1 << 40, 1 << 41}},
	}
	for typ, pairs := range cases {
		t.Run(typ, func(t *testing.T) {
			t.Parallel()
			f := addFunc(t, typ)
			var want []int64
			for _, p := range pairs {
				res, err := interp.Run(f, []int64{p[0], p[1]}, nil)
				qt.Assert(t, qt.IsNil(err))
				want = append(want, res.Ret)
			}

			ctx := &pass.Context{Rand: mathrand.New(mathrand.NewSource(1))}
			changed, err := subst.New().Run(ctx, f)
			qt.Assert(t, qt.IsNil(err))
			qt.Assert(t, qt.IsTrue(changed))
			qt.Assert(t, qt.IsNil(ir.VerifyFunc(f)))

			for i, p := range pairs {
				res, err := interp.Run(f, []int64{p[0], p[1]}, nil)
				qt.Assert(t, qt.IsNil(err))
				qt.Assert(t, qt.Equals(res.Ret, want[i]),
					qt.Commentf("%s %d + %d", typ, p[0], p[1]))
			}
		})
	}
}

func TestExpansionShape(t *testing.T) {
	t.Parallel()
	f := addFunc(t, "i32")
	changed, err := subst.New().Run(&pass.Context{}, f)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))

	// One add became seven instructions; the return now uses the final
	// sum and the original add is gone.
	entry := f.Entry()
	qt.Assert(t, qt.Equals(len(entry.Instrs), 8))
	for _, in := range entry.Instrs[:7] {
		qt.Assert(t, qt.Equals(in.Meta()["obf"], "1"))
	}
	sum := entry.Instrs[6].(*ir.BinOp)
	qt.Assert(t, qt.Equals(entry.Term().(*ir.Ret).X, ir.Value(sum)))

	st := entry.Instrs[1].(*ir.Store)
	qt.Assert(t, qt.IsTrue(st.Volatile))
	qt.Assert(t, qt.IsTrue(entry.Instrs[2].(*ir.Load).Volatile))
	qt.Assert(t, qt.Equals(st.Val.(*ir.Const).Val, int64(0)))
}

func TestNoReentrantMatching(t *testing.T) {
	t.Parallel()
	// Two original adds expand to exactly 2*7 + remaining instructions:
	// the adds inserted by the rewrite must not be picked up as targets
	// within the same run.
	src := `
define i32 @two(i32 %a, i32 %b) {
entry:
  %x = add i32 %a, %b
  %y = add i32 %x, %a
  ret i32 %y
}
`
	m, err := ir.Parse("two.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))
	f := m.Func("two")

	changed, err := subst.New().Run(&pass.Context{}, f)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))
	qt.Assert(t, qt.IsNil(ir.VerifyFunc(f)))
	qt.Assert(t, qt.Equals(len(f.Entry().Instrs), 15))

	res, err := interp.Run(f, []int64{10, 3}, nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(res.Ret, int64(23)))
}

func TestNoAddsUnchanged(t *testing.T) {
	t.Parallel()
	src := `
define i32 @mul(i32 %a) {
entry:
  %r = mul i32 %a, 3
  ret i32 %r
}
`
	m, err := ir.Parse("mul.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))
	f := m.Func("mul")

	changed, err := subst.New().Run(&pass.Context{}, f)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(changed))
	qt.Assert(t, qt.Equals(len(f.Entry().Instrs), 2))
}

func TestDeterministicUnderSeed(t *testing.T) {
	t.Parallel()
	run := func() string {
		src := `
define i32 @plus(i32 %a, i32 %b) {
entry:
  %r = add i32 %a, %b
  ret i32 %r
}
`
		m, err := ir.Parse("plus.ir", []byte(src))
		qt.Assert(t, qt.IsNil(err))
		ctx := &pass.Context{Rand: mathrand.New(mathrand.NewSource(42))}
		_, err = subst.New().Run(ctx, m.Func("plus"))
		qt.Assert(t, qt.IsNil(err))
		return m.String()
	}
	qt.Assert(t, qt.Equals(run(), run()))
}

func TestRegistered(t *testing.T) {
	t.Parallel()
	p, err := pass.New("subst")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(p.Name(), "subst"))
}
