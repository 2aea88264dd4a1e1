// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package pass_test

import (
	mathrand "math/rand"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/mirageobf/mirage/internal/interp"
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
	"github.com/mirageobf/mirage/pkg/symmap"

	_ "github.com/mirageobf/mirage/pkg/pass/breakcfg"
	_ "github.com/mirageobf/mirage/pkg/pass/flatten"
	_ "github.com/mirageobf/mirage/pkg/pass/junk"
	_ "github.com/mirageobf/mirage/pkg/pass/rename"
	_ "github.com/mirageobf/mirage/pkg/pass/strenc"
	_ "github.com/mirageobf/mirage/pkg/pass/strip"
	_ "github.com/mirageobf/mirage/pkg/pass/subst"
)

const moduleSrc = `
!dbg.cu = !{!"DICompileUnit: demo.c"}

@msg = internal constant [6 x i8] c"Hello\00"

define internal i32 @mix(i32 %a, i32 %b) {
entry:
  %s = add i32 %a, %b
  br label %scale
scale:
  %t = mul i32 %s, 3
  %u = add i32 %t, 7
  br label %done
done:
  ret i32 %u
}

define i32 @main(i32 %n) {
entry:
  %r = call i32 @mix(i32 %n, i32 5)
  br label %hop
hop:
  br label %skip
skip:
  br label %out
out:
  ret i32 %r
}

define internal i32 @orphan(i32 %n) {
entry:
  ret i32 %n
}
`

func TestDefaultPipeline(t *testing.T) {
	t.Parallel()
	m, err := ir.Parse("module.ir", []byte(moduleSrc))
	qt.Assert(t, qt.IsNil(err))

	var want []int64
	for _, n := range []int64{-3, 0, 11} {
		res, err := interp.Run(m.Func("main"), []int64{n}, nil)
		qt.Assert(t, qt.IsNil(err))
		want = append(want, res.Ret)
	}

	pl, err := pass.Default()
	qt.Assert(t, qt.IsNil(err))
	verified := 0
	pl.AfterPass = func(name string, m *ir.Module, changed bool) error {
		verified++
		return ir.VerifyModule(m)
	}

	key := []byte("integration_key")
	ctx := &pass.Context{
		Key:  key,
		Rand: mathrand.New(mathrand.NewSource(7)),
		Map:  symmap.New(key),
	}
	changed, err := pl.Run(ctx, m)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))
	qt.Assert(t, qt.Equals(verified, len(pass.DefaultNames)))

	// Behavior is preserved through all seven passes.
	for i, n := range []int64{-3, 0, 11} {
		res, err := interp.Run(m.Func("main"), []int64{n}, nil)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(res.Ret, want[i]))
	}

	// The orphan is gone, the helper is renamed, the literal is encoded,
	// and nothing readable is left in the printed module.
	qt.Assert(t, qt.IsNil(m.Func("orphan")))
	qt.Assert(t, qt.IsNil(m.Func("mix")))
	entry, ok := ctx.Map.Lookup(symmap.KindFunc, "mix")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsNotNil(m.Func(entry.Encoded)))

	printed := m.String()
	qt.Assert(t, qt.IsFalse(strings.Contains(printed, "Hello")))
	qt.Assert(t, qt.IsFalse(strings.Contains(printed, "DICompileUnit")))
	qt.Assert(t, qt.IsFalse(strings.Contains(printed, "@mix")))
	qt.Assert(t, qt.IsTrue(strings.Contains(printed, "dispatch")))
}

func TestParsePipelineSpecs(t *testing.T) {
	t.Parallel()
	specs, err := pass.ParsePipeline("junk, break-cfg(splits=3), strip(fixpoint=1,)")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(specs, []pass.Spec{
		{Name: "junk"},
		{Name: "break-cfg", Options: []pass.Option{{Key: "splits", Value: "3"}}},
		{Name: "strip", Options: []pass.Option{{Key: "fixpoint", Value: "1"}}},
	}))

	_, err = pass.ParsePipeline("junk,,flatten")
	qt.Assert(t, qt.ErrorMatches(err, "pipeline: empty pass name"))
	_, err = pass.ParsePipeline("strip(fixpoint=1")
	qt.Assert(t, qt.ErrorMatches(err, "pipeline: unbalanced parentheses"))
	_, err = pass.ParsePipeline("strip)")
	qt.Assert(t, qt.ErrorMatches(err, "pipeline: unbalanced parentheses"))
}

func TestBuildRejectsUnknown(t *testing.T) {
	t.Parallel()
	_, err := pass.Build([]pass.Spec{{Name: "nosuch"}})
	qt.Assert(t, qt.ErrorMatches(err, `pass: unknown pass "nosuch"`))

	_, err = pass.Build([]pass.Spec{{
		Name:    "flatten",
		Options: []pass.Option{{Key: "x", Value: "1"}},
	}})
	qt.Assert(t, qt.ErrorMatches(err, `pass flatten accepts no options`))
}
