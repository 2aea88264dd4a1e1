// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir

import "fmt"

// VerifyFunc checks the structural validity of f: a body has at least one
// block, every block ends in exactly one terminator and contains no earlier
// terminator, every branch target belongs to f, and value names and block
// labels are unique. Declarations are trivially valid.
func VerifyFunc(f *Function) error {
	if f.IsDecl() {
		return nil
	}
	inFunc := make(map[*Block]bool, len(f.Blocks))
	labels := make(map[string]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		inFunc[b] = true
		if labels[b.Label] {
			return fmt.Errorf("function @%s: duplicate block label %%%s", f.name, b.Label)
		}
		labels[b.Label] = true
	}

	names := make(map[string]bool)
	for _, p := range f.Params {
		if names[p.Name()] {
			return fmt.Errorf("function @%s: duplicate parameter %%%s", f.name, p.Name())
		}
		names[p.Name()] = true
	}

	var rands []*Value
	for _, b := range f.Blocks {
		if len(b.Instrs) == 0 {
			return fmt.Errorf("function @%s: block %%%s is empty", f.name, b.Label)
		}
		for idx, in := range b.Instrs {
			if b.Instrs[idx].Parent() != b {
				return fmt.Errorf("function @%s: block %%%s: instruction %d has a stale parent", f.name, b.Label, idx)
			}
			term, isTerm := in.(Terminator)
			last := idx == len(b.Instrs)-1
			if isTerm && !last {
				return fmt.Errorf("function @%s: block %%%s: terminator before end of block", f.name, b.Label)
			}
			if last && !isTerm {
				return fmt.Errorf("function @%s: block %%%s: missing terminator", f.name, b.Label)
			}
			if isTerm {
				for _, s := range term.Succs() {
					if !inFunc[s] {
						return fmt.Errorf("function @%s: block %%%s: branch to foreign block %%%s", f.name, b.Label, s.Label)
					}
				}
			}
			if named, ok := in.(Named); ok && named.Name() != "" {
				if names[named.Name()] {
					return fmt.Errorf("function @%s: duplicate value %%%s", f.name, named.Name())
				}
				names[named.Name()] = true
			}
			rands = in.Operands(rands[:0])
			for _, r := range rands {
				if *r == nil {
					return fmt.Errorf("function @%s: block %%%s: nil operand", f.name, b.Label)
				}
			}
			if err := checkInstr(f, b, in); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkInstr(f *Function, b *Block, in Instruction) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("function @%s: block %%%s: "+format, append([]any{f.name, b.Label}, args...)...)
	}
	switch in := in.(type) {
	case *Load:
		if !Same(in.Ptr.Type(), Ptr) {
			return fail("load through non-pointer %s", in.Ptr.Type())
		}
	case *Store:
		if !Same(in.Ptr.Type(), Ptr) {
			return fail("store through non-pointer %s", in.Ptr.Type())
		}
	case *BinOp:
		if !IsInt(in.Typ) {
			return fail("%s on non-integer type %s", in.Kind, in.Typ)
		}
		if !Same(in.X.Type(), in.Typ) || !Same(in.Y.Type(), in.Typ) {
			return fail("%s operand types %s, %s do not match %s", in.Kind, in.X.Type(), in.Y.Type(), in.Typ)
		}
	case *ICmp:
		if !Same(in.X.Type(), in.Y.Type()) {
			return fail("icmp operand types %s, %s differ", in.X.Type(), in.Y.Type())
		}
	case *CondBr:
		if !Same(in.Cond.Type(), I1) {
			return fail("branch condition has type %s, want i1", in.Cond.Type())
		}
	case *Switch:
		for _, c := range in.Cases {
			if !Same(c.Val.Type(), in.X.Type()) {
				return fail("switch case type %s does not match %s", c.Val.Type(), in.X.Type())
			}
		}
	case *Ret:
		void := Same(f.Ret, Void)
		if void && in.X != nil {
			return fail("ret with a value in a void function")
		}
		if !void {
			if in.X == nil {
				return fail("ret without a value, want %s", f.Ret)
			}
			if !Same(in.X.Type(), f.Ret) {
				return fail("ret type %s, want %s", in.X.Type(), f.Ret)
			}
		}
	}
	return nil
}

// VerifyModule checks every function plus module-level naming and
// initializer consistency.
func VerifyModule(m *Module) error {
	symbols := make(map[string]bool, len(m.Globals)+len(m.Funcs))
	for _, g := range m.Globals {
		if symbols[g.Name()] {
			return fmt.Errorf("module %s: duplicate symbol @%s", m.Name, g.Name())
		}
		symbols[g.Name()] = true
		if g.Init != nil {
			if err := checkInit(m, g); err != nil {
				return err
			}
		}
	}
	for _, f := range m.Funcs {
		if symbols[f.Name()] {
			return fmt.Errorf("module %s: duplicate symbol @%s", m.Name, f.Name())
		}
		symbols[f.Name()] = true
		if err := VerifyFunc(f); err != nil {
			return err
		}
	}
	return nil
}

func checkInit(m *Module, g *Global) error {
	switch init := g.Init.(type) {
	case *Bytes:
		arr, ok := g.Elem.(ArrayType)
		if !ok || arr.Len != len(init.Data) {
			return fmt.Errorf("module %s: global @%s: %d initializer bytes for type %s", m.Name, g.Name(), len(init.Data), g.Elem)
		}
	case *Const:
		if !Same(init.Type(), g.Elem) {
			return fmt.Errorf("module %s: global @%s: initializer type %s, want %s", m.Name, g.Name(), init.Type(), g.Elem)
		}
	case *Function, *Global:
		if !Same(g.Elem, Ptr) {
			return fmt.Errorf("module %s: global @%s: pointer initializer for type %s", m.Name, g.Name(), g.Elem)
		}
	default:
		return fmt.Errorf("module %s: global @%s: unsupported initializer", m.Name, g.Name())
	}
	return nil
}
