// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package strenc encodes the contents of constant string globals with the
// symbol codec. Hex encoding doubles the byte count, so a mutated global is
// rebuilt with a wider array type under its original name and every use is
// redirected to the replacement; pointers are opaque here, so no cast is
// needed at the use sites. Mutated globals lose their const marking: their
// stored value no longer matches the source literal.
package strenc

import (
	"github.com/pkg/errors"

	"github.com/mirageobf/mirage/pkg/codec"
	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	pass.Register(func() pass.Module { return New() })
}

// ScanPolicy says how often a pass value scans modules it is handed.
type ScanPolicy int

const (
	// ScanPerModule scans every module the pass runs over. The default.
	ScanPerModule ScanPolicy = iota

	// ScanOncePerProcess scans only the first module a pass value ever
	// sees and reports every later one unchanged. This reproduces the
	// hidden-static lifecycle of the original plugin; the scanned bit
	// lives on the pass value, is set by the first successful scan, and
	// is never reset.
	ScanOncePerProcess
)

// Pass is the string encryption pass.
type Pass struct {
	Policy ScanPolicy

	scanned bool
}

// New returns a pass that scans every module.
func New() *Pass { return &Pass{} }

func (p *Pass) Name() string { return "strenc" }

// SetOption accepts scan=module or scan=once.
func (p *Pass) SetOption(key, value string) error {
	switch key {
	case "scan":
		switch value {
		case "", "module":
			p.Policy = ScanPerModule
		case "once":
			p.Policy = ScanOncePerProcess
		default:
			return errors.Errorf("bad scan policy %q", value)
		}
		return nil
	default:
		return errors.Errorf("unknown option %q", key)
	}
}

// Run encodes every eligible string global of m. Eligible globals are
// constant byte arrays holding printable text with at most one trailing NUL;
// the NUL is encoded along with the text, so decoding restores the
// terminator too.
func (p *Pass) Run(ctx *pass.Context, m *ir.Module) (bool, error) {
	if p.Policy == ScanOncePerProcess && p.scanned {
		return false, nil
	}

	var targets []*ir.Global
	for _, g := range m.Globals {
		if eligible(g) {
			targets = append(targets, g)
		}
	}

	for _, g := range targets {
		if err := p.mutate(ctx, m, g); err != nil {
			return false, err
		}
	}
	p.scanned = true
	if len(targets) > 0 {
		ctx.Logger().Debugf("encoded %d string globals in %s", len(targets), m.Name)
	}
	return len(targets) > 0, nil
}

func eligible(g *ir.Global) bool {
	if !g.Const {
		return false
	}
	init, ok := g.Init.(*ir.Bytes)
	if !ok {
		return false
	}
	data := init.Data
	if len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	for _, b := range data {
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return false
		}
	}
	return true
}

func (p *Pass) mutate(ctx *pass.Context, m *ir.Module, g *ir.Global) error {
	plain := g.Init.(*ir.Bytes).Data
	encoded, err := codec.Encode(plain, ctx.Key)
	if err != nil {
		return errors.Wrapf(err, "global @%s", g.Name())
	}

	if len(encoded) == len(plain) {
		// Only the degenerate empty datum keeps its type; everything
		// else doubles and needs a replacement global.
		g.Init = &ir.Bytes{Data: []byte(encoded)}
		g.Const = false
	} else {
		repl := ir.NewGlobal(g.Name(), g.Linkage, ir.ArrayOf(len(encoded), ir.I8), &ir.Bytes{Data: []byte(encoded)})
		repl.Meta = g.Meta
		if !m.ReplaceGlobal(g, repl) {
			return errors.Errorf("global @%s is not in module %s", g.Name(), m.Name)
		}
	}
	if ctx.Map != nil {
		ctx.Map.AddGlobal(string(plain), encoded)
	}
	ctx.Logger().Debugf("encoded @%s (%d -> %d bytes)", g.Name(), len(plain), len(encoded))
	return nil
}
