// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package rename encodes the names of internal function definitions with the
// symbol codec. Call sites reference the function value rather than its
// name, so no use needs rewriting; anything external keeps its name, since
// the linker is entitled to it.
package rename

import (
	"github.com/pkg/errors"

	"github.com/mirageobf/mirage/pkg/codec"
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	pass.Register(func() pass.Module { return New() })
}

// Prefix starts every encoded name. Hex digits may open with a number, which
// most object formats reject in a symbol, and the marker is what the
// decryption tooling strips before decoding.
const Prefix = "_"

// Pass is the function renaming pass.
type Pass struct{}

// New returns the pass.
func New() *Pass { return &Pass{} }

func (p *Pass) Name() string { return "rename" }

// Run renames every internal function definition of m.
func (p *Pass) Run(ctx *pass.Context, m *ir.Module) (bool, error) {
	renamed := 0
	for _, f := range m.Funcs {
		if f.IsDecl() || f.Linkage != ir.Internal {
			continue
		}
		plain := f.Name()
		encoded, err := codec.Encode([]byte(plain), ctx.Key)
		if err != nil {
			return renamed > 0, errors.Wrapf(err, "function @%s", plain)
		}
		// Distinct names encode to distinct names under one key, so
		// the only possible clash is with a symbol that already looks
		// renamed. Refuse it here rather than emit an invalid module.
		newName := Prefix + encoded
		if g := m.Func(newName); g != nil && g != f {
			return renamed > 0, errors.Errorf("renaming @%s: symbol @%s already exists", plain, newName)
		}
		if m.Global(newName) != nil {
			return renamed > 0, errors.Errorf("renaming @%s: symbol @%s already exists", plain, newName)
		}
		f.SetName(newName)
		if ctx.Map != nil {
			ctx.Map.AddFunc(plain, f.Name())
		}
		ctx.Logger().Debugf("renamed @%s to @%s", plain, f.Name())
		renamed++
	}
	return renamed > 0, nil
}
