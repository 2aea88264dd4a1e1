// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package strip removes information an analyst would lean on: debug metadata
// at every level, and internal functions nothing in the module references.
// Both operations are idempotent; neither can be undone, since the module
// alone cannot regenerate its debug attachments.
package strip

import (
	"github.com/pkg/errors"

	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	pass.Register(func() pass.Module { return New() })
}

// DebugKey is the metadata key debug attachments live under, and CUKey the
// module-level compilation-unit entry.
const (
	DebugKey = "dbg"
	CUKey    = "dbg.cu"
)

// Pass is the metadata and dead function stripping pass.
type Pass struct {
	// Fixpoint makes function removal iterate until nothing new becomes
	// unreferenced. The default single pass matches the original plugin:
	// a function only referenced by a function removed in the same run
	// survives until the next run.
	Fixpoint bool
}

// New returns a single-pass pruner.
func New() *Pass { return &Pass{} }

func (p *Pass) Name() string { return "strip" }

// SetOption accepts fixpoint=bool.
func (p *Pass) SetOption(key, value string) error {
	switch key {
	case "fixpoint":
		b, err := pass.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "option %q", key)
		}
		p.Fixpoint = b
		return nil
	default:
		return errors.Errorf("unknown option %q", key)
	}
}

// Run strips debug metadata from m and removes unused internal functions.
func (p *Pass) Run(ctx *pass.Context, m *ir.Module) (bool, error) {
	changed := stripDebug(m)

	for {
		removed := removeUnused(ctx, m)
		changed = changed || removed > 0
		if removed == 0 || !p.Fixpoint {
			break
		}
	}
	return changed, nil
}

// stripDebug drops the compilation-unit entry and every dbg attachment,
// reporting whether any existed.
func stripDebug(m *ir.Module) bool {
	changed := false
	if _, ok := m.Named[CUKey]; ok {
		delete(m.Named, CUKey)
		changed = true
	}
	for _, g := range m.Globals {
		changed = g.ClearMeta(DebugKey) || changed
	}
	for _, f := range m.Funcs {
		changed = f.ClearMeta(DebugKey) || changed
		for _, b := range f.Blocks {
			for _, in := range b.Instrs {
				changed = in.ClearMeta(DebugKey) || changed
			}
		}
	}
	return changed
}

// removeUnused erases internal function definitions with zero references.
// The candidate set is closed before any deletion, so removals within one
// sweep cannot hide one another.
func removeUnused(ctx *pass.Context, m *ir.Module) int {
	var candidates []*ir.Function
	for _, f := range m.Funcs {
		if f.IsDecl() || f.Linkage != ir.Internal {
			continue
		}
		if ir.NumUses(m, f) > 0 {
			continue
		}
		candidates = append(candidates, f)
	}
	for _, f := range candidates {
		m.EraseFunc(f)
		ctx.Logger().Infof("removed unused internal function @%s", f.Name())
	}
	return len(candidates)
}
