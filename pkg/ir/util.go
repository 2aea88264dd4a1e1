// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir

import "strconv"

// ReplaceAllUsesIn rewrites every operand slot within f that holds old so it
// holds new instead, returning the number of slots rewritten. Use this for
// instruction results, whose uses cannot escape the function.
func ReplaceAllUsesIn(f *Function, old, new Value) int {
	var rands []*Value
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			rands = in.Operands(rands[:0])
			for _, r := range rands {
				if *r == old {
					*r = new
					n++
				}
			}
		}
	}
	return n
}

// ReplaceAllUses rewrites every operand slot and global initializer in m
// that holds old so it holds new instead, returning the number of slots
// rewritten.
func ReplaceAllUses(m *Module, old, new Value) int {
	n := 0
	for _, g := range m.Globals {
		if g.Init == old {
			g.Init = new
			n++
		}
	}
	for _, f := range m.Funcs {
		n += ReplaceAllUsesIn(f, old, new)
	}
	return n
}

// NumUses counts the operand slots and global initializers in m that hold v.
// Call sites and address-taken references both count.
func NumUses(m *Module, v Value) int {
	n := 0
	for _, g := range m.Globals {
		if g.Init == v {
			n++
		}
	}
	var rands []*Value
	for _, f := range m.Funcs {
		for _, b := range f.Blocks {
			for _, in := range b.Instrs {
				rands = in.Operands(rands[:0])
				for _, r := range rands {
					if *r == v {
						n++
					}
				}
			}
		}
	}
	return n
}

// usedNames collects every value name and block label in f.
func usedNames(f *Function) map[string]bool {
	used := make(map[string]bool)
	for _, p := range f.Params {
		used[p.Name()] = true
	}
	for _, b := range f.Blocks {
		used[b.Label] = true
		for _, in := range b.Instrs {
			if named, ok := in.(Named); ok && named.Name() != "" {
				used[named.Name()] = true
			}
		}
	}
	return used
}

// UniqueName returns base if no value or label in f uses it, otherwise
// base.1, base.2 and so on. Values and labels share one namespace here to
// keep the printed form unambiguous.
func UniqueName(f *Function, base string) string {
	used := usedNames(f)
	if !used[base] {
		return base
	}
	for i := 1; ; i++ {
		name := base + "." + strconv.Itoa(i)
		if !used[name] {
			return name
		}
	}
}
