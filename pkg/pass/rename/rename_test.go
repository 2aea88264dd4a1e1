// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package rename_test

import (
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/mirageobf/mirage/internal/interp"
	"github.com/mirageobf/mirage/pkg/codec"
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
	"github.com/mirageobf/mirage/pkg/pass/rename"
	"github.com/mirageobf/mirage/pkg/symmap"
)

const src = `
define internal i32 @helper(i32 %n) {
entry:
  %r = add i32 %n, 1
  ret i32 %r
}

define i32 @main(i32 %n) {
entry:
  %r = call i32 @helper(i32 %n)
  ret i32 %r
}

declare i32 @getchar()
`

func TestRenamesInternalDefinitions(t *testing.T) {
	t.Parallel()
	m, err := ir.Parse("rename.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))
	ctx := &pass.Context{Key: []byte("default_key"), Map: symmap.New([]byte("default_key"))}

	changed, err := rename.New().Run(ctx, m)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(changed))
	qt.Assert(t, qt.IsNil(ir.VerifyModule(m)))

	// helper is renamed to _ plus its encoded form; main and the
	// declaration keep their names.
	qt.Assert(t, qt.IsNil(m.Func("helper")))
	qt.Assert(t, qt.IsNotNil(m.Func("main")))
	qt.Assert(t, qt.IsNotNil(m.Func("getchar")))

	entry, ok := ctx.Map.Lookup(symmap.KindFunc, "helper")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsTrue(strings.HasPrefix(entry.Encoded, rename.Prefix)))
	qt.Assert(t, qt.IsNotNil(m.Func(entry.Encoded)))

	plain, err := codec.Decode(strings.TrimPrefix(entry.Encoded, rename.Prefix), []byte("default_key"))
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(string(plain), "helper"))

	// The call site references the function value, so execution still
	// reaches the renamed body.
	res, err := interp.Run(m.Func("main"), []int64{41}, nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(res.Ret, int64(42)))
}

func TestCollidingNameRejected(t *testing.T) {
	t.Parallel()
	// @mix encodes to _060213 under key "k". A symbol already wearing
	// that name stops the pass with an error instead of producing a
	// module that fails verification later.
	const collidingFunc = `
define i32 @_060213() {
entry:
  ret i32 0
}

define internal i32 @mix(i32 %n) {
entry:
  ret i32 %n
}
`
	m, err := ir.Parse("collide.ir", []byte(collidingFunc))
	qt.Assert(t, qt.IsNil(err))
	_, err = rename.New().Run(&pass.Context{Key: []byte("k")}, m)
	qt.Assert(t, qt.ErrorMatches(err, `renaming @mix: symbol @_060213 already exists`))
	qt.Assert(t, qt.IsNotNil(m.Func("mix")))

	const collidingGlobal = `
@_060213 = global i32 7

define internal i32 @mix(i32 %n) {
entry:
  ret i32 %n
}
`
	m, err = ir.Parse("collide.ir", []byte(collidingGlobal))
	qt.Assert(t, qt.IsNil(err))
	_, err = rename.New().Run(&pass.Context{Key: []byte("k")}, m)
	qt.Assert(t, qt.ErrorMatches(err, `renaming @mix: symbol @_060213 already exists`))
}

func TestEmptyKeyRejected(t *testing.T) {
	t.Parallel()
	m, err := ir.Parse("rename.ir", []byte(src))
	qt.Assert(t, qt.IsNil(err))

	_, err = rename.New().Run(&pass.Context{}, m)
	qt.Assert(t, qt.ErrorIs(err, codec.ErrEmptyKey))
}

func TestRegistered(t *testing.T) {
	t.Parallel()
	p, err := pass.New("rename")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(p.Name(), "rename"))
}
