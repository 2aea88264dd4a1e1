// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package ir defines the intermediate representation the obfuscation passes
// operate on: a module of globals and functions, functions of basic blocks,
// blocks of instructions ending in exactly one terminator. The shape is a
// deliberately small cut of LLVM's: opaque pointers, no phi nodes (locals
// live in alloca cells, the form the flattening and splitting passes expect),
// and string-keyed metadata attachments instead of a metadata graph.
//
// Successor edges are always derived from terminators, never stored, so a
// terminator swap atomically rewires the CFG. Functions own their blocks and
// instructions; mutators replace nodes in one step rather than deleting and
// re-inserting, and callers must not hold references across such a boundary.
//
// The textual format is parsed by Parse and produced by Module.String; see
// the package tests for examples. Within a function, values must be defined
// before use in layout order.
package ir

import (
	"fmt"
	"sort"
)

// Linkage classifies a symbol's visibility.
type Linkage int

const (
	// External symbols are visible outside the module.
	External Linkage = iota
	// Internal symbols can only be referenced from within the module.
	Internal
)

func (l Linkage) String() string {
	if l == Internal {
		return "internal"
	}
	return "external"
}

// MetaMap carries string-keyed metadata attachments, written as
// `, !key !"value"` clauses in the textual form. A nil map is valid and
// empty. The `dbg` key is the debug attachment by convention; the `obf` key
// marks inserted instructions that downstream optimizers should leave alone.
type MetaMap map[string]string

// Keys returns the attachment keys in sorted order.
func (m MetaMap) Keys() []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Module is one compilation unit: globals, functions and named module-level
// metadata. The `dbg.cu` named metadata entry holds the debug
// compilation-unit attachment.
type Module struct {
	Name    string
	Globals []*Global
	Funcs   []*Function
	Named   map[string][]string
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, Named: make(map[string][]string)}
}

// Func returns the function with the given name, or nil.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.name == name {
			return f
		}
	}
	return nil
}

// Global returns the global with the given name, or nil.
func (m *Module) Global(name string) *Global {
	for _, g := range m.Globals {
		if g.name == name {
			return g
		}
	}
	return nil
}

// AddFunc appends f to the module.
func (m *Module) AddFunc(f *Function) *Function {
	f.parent = m
	m.Funcs = append(m.Funcs, f)
	return f
}

// AddGlobal appends g to the module.
func (m *Module) AddGlobal(g *Global) *Global {
	g.parent = m
	m.Globals = append(m.Globals, g)
	return g
}

// EraseFunc removes f from the module, reporting whether it was present.
func (m *Module) EraseFunc(f *Function) bool {
	for i, fn := range m.Funcs {
		if fn == f {
			m.Funcs = append(m.Funcs[:i], m.Funcs[i+1:]...)
			f.parent = nil
			return true
		}
	}
	return false
}

// EraseGlobal removes g from the module, reporting whether it was present.
func (m *Module) EraseGlobal(g *Global) bool {
	for i, gl := range m.Globals {
		if gl == g {
			m.Globals = append(m.Globals[:i], m.Globals[i+1:]...)
			g.parent = nil
			return true
		}
	}
	return false
}

// ReplaceGlobal swaps old for new at the same position and redirects every
// use of old to new in one step. The replacement inherits nothing: callers
// copy metadata themselves if they want it kept.
func (m *Module) ReplaceGlobal(old, new *Global) bool {
	for i, gl := range m.Globals {
		if gl == old {
			ReplaceAllUses(m, old, new)
			new.parent = m
			m.Globals[i] = new
			old.parent = nil
			return true
		}
	}
	return false
}

// Global is a module-level variable. Its value type is Elem; as an operand
// the global itself is a pointer.
type Global struct {
	name    string
	parent  *Module
	Linkage Linkage
	Elem    Type
	Init    Value
	Const   bool
	Meta    MetaMap
}

// NewGlobal returns a detached global; add it with Module.AddGlobal.
func NewGlobal(name string, linkage Linkage, elem Type, init Value) *Global {
	return &Global{name: name, Linkage: linkage, Elem: elem, Init: init}
}

func (g *Global) Name() string        { return g.name }
func (g *Global) SetName(name string) { g.name = name }
func (g *Global) Parent() *Module     { return g.parent }
func (g *Global) Type() Type          { return Ptr }
func (g *Global) operand() string     { return "@" + g.name }

// SetMeta attaches key=value metadata to the global.
func (g *Global) SetMeta(key, value string) {
	if g.Meta == nil {
		g.Meta = make(MetaMap)
	}
	g.Meta[key] = value
}

// ClearMeta removes the attachment under key, reporting whether it existed.
func (g *Global) ClearMeta(key string) bool {
	_, ok := g.Meta[key]
	delete(g.Meta, key)
	return ok
}

// Param is a function parameter.
type Param struct {
	name string
	Typ  Type
}

// NewParam returns a parameter for use with NewFunc.
func NewParam(name string, typ Type) *Param {
	return &Param{name: name, Typ: typ}
}

func (p *Param) Name() string        { return p.name }
func (p *Param) SetName(name string) { p.name = name }
func (p *Param) Type() Type          { return p.Typ }
func (p *Param) operand() string     { return "%" + p.name }

// Function is an ordered sequence of basic blocks. A function with no blocks
// is a declaration. As an operand (an address-taken use) a function is a
// pointer value.
type Function struct {
	name    string
	parent  *Module
	Linkage Linkage
	Ret     Type
	Params  []*Param
	Blocks  []*Block
	Meta    MetaMap
}

// NewFunc returns a detached function; add it with Module.AddFunc.
func NewFunc(name string, linkage Linkage, ret Type, params ...*Param) *Function {
	return &Function{name: name, Linkage: linkage, Ret: ret, Params: params}
}

func (f *Function) Name() string        { return f.name }
func (f *Function) SetName(name string) { f.name = name }
func (f *Function) Parent() *Module     { return f.parent }
func (f *Function) Type() Type          { return Ptr }
func (f *Function) operand() string     { return "@" + f.name }

// IsDecl reports whether f has no body.
func (f *Function) IsDecl() bool { return len(f.Blocks) == 0 }

// Entry returns the entry block, or nil for a declaration.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// AddBlock appends a new empty block with the given label.
func (f *Function) AddBlock(label string) *Block {
	b := &Block{Label: label, parent: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// InsertBlockAfter creates a new empty block immediately after pos in layout
// order. It panics if pos is not a block of f.
func (f *Function) InsertBlockAfter(pos *Block, label string) *Block {
	for i, b := range f.Blocks {
		if b == pos {
			nb := &Block{Label: label, parent: f}
			f.Blocks = append(f.Blocks, nil)
			copy(f.Blocks[i+2:], f.Blocks[i+1:])
			f.Blocks[i+1] = nb
			return nb
		}
	}
	panic(fmt.Sprintf("ir: InsertBlockAfter: block %%%s is not in @%s", pos.Label, f.name))
}

// Block returns the block with the given label, or nil.
func (f *Function) Block(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// Preds returns the blocks whose terminators target b, in layout order.
func (f *Function) Preds(b *Block) []*Block {
	var preds []*Block
	for _, p := range f.Blocks {
		t := p.Term()
		if t == nil {
			continue
		}
		for _, s := range t.Succs() {
			if s == b {
				preds = append(preds, p)
				break
			}
		}
	}
	return preds
}

// SetMeta attaches key=value metadata to the function.
func (f *Function) SetMeta(key, value string) {
	if f.Meta == nil {
		f.Meta = make(MetaMap)
	}
	f.Meta[key] = value
}

// ClearMeta removes the attachment under key, reporting whether it existed.
func (f *Function) ClearMeta(key string) bool {
	_, ok := f.Meta[key]
	delete(f.Meta, key)
	return ok
}

// Block is an ordered sequence of instructions. A well-formed block ends in
// exactly one terminator; the Instrs slice is exported for iteration, but
// mutation should go through the helper methods so parent links stay right.
type Block struct {
	Label  string
	parent *Function
	Instrs []Instruction
}

func (b *Block) Parent() *Function { return b.parent }

// Index returns b's position in the parent's layout, or -1 if detached.
func (b *Block) Index() int {
	if b.parent == nil {
		return -1
	}
	for i, blk := range b.parent.Blocks {
		if blk == b {
			return i
		}
	}
	return -1
}

// Term returns the block's terminator, or nil if the last instruction is not
// one (or the block is empty).
func (b *Block) Term() Terminator {
	if len(b.Instrs) == 0 {
		return nil
	}
	t, _ := b.Instrs[len(b.Instrs)-1].(Terminator)
	return t
}

// Succs returns the successor blocks derived from the terminator.
func (b *Block) Succs() []*Block {
	t := b.Term()
	if t == nil {
		return nil
	}
	return t.Succs()
}

// Append adds instructions at the end of the block.
func (b *Block) Append(ins ...Instruction) {
	for _, in := range ins {
		in.setParent(b)
	}
	b.Instrs = append(b.Instrs, ins...)
}

// Insert places instructions before position i in the block.
func (b *Block) Insert(i int, ins ...Instruction) {
	for _, in := range ins {
		in.setParent(b)
	}
	b.Instrs = append(b.Instrs[:i], append(append([]Instruction{}, ins...), b.Instrs[i:]...)...)
}

// IndexOf returns the position of in within the block, or -1.
func (b *Block) IndexOf(in Instruction) int {
	for i, cur := range b.Instrs {
		if cur == in {
			return i
		}
	}
	return -1
}

// Remove deletes in from the block, reporting whether it was present.
func (b *Block) Remove(in Instruction) bool {
	i := b.IndexOf(in)
	if i < 0 {
		return false
	}
	b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
	in.setParent(nil)
	return true
}

// ReplaceTerm swaps the block's terminator for t in one step and returns the
// old one, detached. It panics if the block has no terminator; callers that
// tolerate malformed blocks must check Term first.
func (b *Block) ReplaceTerm(t Terminator) Terminator {
	old := b.Term()
	if old == nil {
		panic(fmt.Sprintf("ir: ReplaceTerm: block %%%s has no terminator", b.Label))
	}
	t.setParent(b)
	b.Instrs[len(b.Instrs)-1] = t
	old.setParent(nil)
	return old
}
