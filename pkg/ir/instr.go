// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir

import (
	"fmt"
	"strconv"
)

// Value is anything usable as an operand: a constant, a parameter, a global,
// a function, or the result of an instruction.
type Value interface {
	Type() Type

	// operand returns the printed operand form without its type, e.g.
	// "%x", "@g", "42" or "false". It also seals the interface.
	operand() string
}

// Named is implemented by values with a mutable symbol name.
type Named interface {
	Value
	Name() string
	SetName(string)
}

// Instruction is one operation within a block. Value-producing instructions
// additionally implement Value and Named.
type Instruction interface {
	Parent() *Block

	// Operands appends pointers to the instruction's operand slots to
	// rands and returns it. Writing through a pointer replaces that
	// operand, which is how use rewriting works.
	Operands(rands []*Value) []*Value

	// Meta returns the metadata attachments; the map may be nil.
	Meta() MetaMap
	SetMeta(key, value string)
	ClearMeta(key string) bool

	setParent(*Block)
}

// Terminator is an instruction that transfers control, always the last in a
// block.
type Terminator interface {
	Instruction

	// Succs returns the successor blocks in operand order.
	Succs() []*Block
}

// Const is an integer constant, including booleans (i1).
type Const struct {
	Typ Type
	Val int64
}

// ConstInt returns an integer constant of the given type.
func ConstInt(typ Type, val int64) *Const {
	return &Const{Typ: typ, Val: val}
}

// ConstBool returns an i1 constant.
func ConstBool(v bool) *Const {
	if v {
		return &Const{Typ: I1, Val: 1}
	}
	return &Const{Typ: I1, Val: 0}
}

// False is the statically-false branch condition used by the CFG rewriting
// passes. Constants are immutable, so sharing one value is fine.
var False = ConstBool(false)

func (c *Const) Type() Type { return c.Typ }
func (c *Const) operand() string {
	if Same(c.Typ, I1) {
		if c.Val != 0 {
			return "true"
		}
		return "false"
	}
	return strconv.FormatInt(c.Val, 10)
}

// Bytes is raw byte data, used as the initializer of array globals.
type Bytes struct {
	Data []byte
}

func (b *Bytes) Type() Type      { return ArrayOf(len(b.Data), I8) }
func (b *Bytes) operand() string { return escapeBytes(b.Data) }

// anInstr is the embedded base of every instruction.
type anInstr struct {
	block *Block
	meta  MetaMap
}

func (i *anInstr) Parent() *Block      { return i.block }
func (i *anInstr) setParent(b *Block)  { i.block = b }
func (i *anInstr) Meta() MetaMap       { return i.meta }
func (i *anInstr) SetMeta(k, v string) {
	if i.meta == nil {
		i.meta = make(MetaMap)
	}
	i.meta[k] = v
}
func (i *anInstr) ClearMeta(k string) bool {
	_, ok := i.meta[k]
	delete(i.meta, k)
	return ok
}

// BinKind identifies a binary integer operation.
type BinKind int

const (
	Add BinKind = iota
	Sub
	Mul
	And
	Or
	Xor
	Shl
)

var binNames = [...]string{"add", "sub", "mul", "and", "or", "xor", "shl"}

func (k BinKind) String() string {
	if int(k) < len(binNames) {
		return binNames[k]
	}
	return fmt.Sprintf("BinKind(%d)", int(k))
}

// BinOp is a two-operand integer operation producing a value of Typ.
type BinOp struct {
	anInstr
	name string
	Kind BinKind
	Typ  Type
	X, Y Value
}

// NewBinOp returns a detached binary operation.
func NewBinOp(name string, kind BinKind, typ Type, x, y Value) *BinOp {
	return &BinOp{name: name, Kind: kind, Typ: typ, X: x, Y: y}
}

func (i *BinOp) Name() string                     { return i.name }
func (i *BinOp) SetName(name string)              { i.name = name }
func (i *BinOp) Type() Type                       { return i.Typ }
func (i *BinOp) operand() string                  { return "%" + i.name }
func (i *BinOp) Operands(rands []*Value) []*Value { return append(rands, &i.X, &i.Y) }

// Pred is an integer comparison predicate.
type Pred int

const (
	Eq Pred = iota
	Ne
	SLT
	SLE
	SGT
	SGE
	ULT
	ULE
	UGT
	UGE
)

var predNames = [...]string{"eq", "ne", "slt", "sle", "sgt", "sge", "ult", "ule", "ugt", "uge"}

func (p Pred) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return fmt.Sprintf("Pred(%d)", int(p))
}

// Signed reports whether the predicate compares with sign extension.
func (p Pred) Signed() bool { return p >= SLT && p <= SGE }

// ICmp compares two integer operands, producing an i1.
type ICmp struct {
	anInstr
	name string
	Pred Pred
	X, Y Value
}

// NewICmp returns a detached comparison.
func NewICmp(name string, pred Pred, x, y Value) *ICmp {
	return &ICmp{name: name, Pred: pred, X: x, Y: y}
}

func (i *ICmp) Name() string                     { return i.name }
func (i *ICmp) SetName(name string)              { i.name = name }
func (i *ICmp) Type() Type                       { return I1 }
func (i *ICmp) operand() string                  { return "%" + i.name }
func (i *ICmp) Operands(rands []*Value) []*Value { return append(rands, &i.X, &i.Y) }

// Alloca reserves one stack cell of type Elem and produces its address.
type Alloca struct {
	anInstr
	name string
	Elem Type
}

// NewAlloca returns a detached alloca.
func NewAlloca(name string, elem Type) *Alloca {
	return &Alloca{name: name, Elem: elem}
}

func (i *Alloca) Name() string                     { return i.name }
func (i *Alloca) SetName(name string)              { i.name = name }
func (i *Alloca) Type() Type                       { return Ptr }
func (i *Alloca) operand() string                  { return "%" + i.name }
func (i *Alloca) Operands(rands []*Value) []*Value { return rands }

// Load reads a value of type Elem through Ptr. Volatile loads must not be
// folded away by an optimizer.
type Load struct {
	anInstr
	name     string
	Elem     Type
	Ptr      Value
	Volatile bool
}

// NewLoad returns a detached load.
func NewLoad(name string, elem Type, ptr Value, volatile bool) *Load {
	return &Load{name: name, Elem: elem, Ptr: ptr, Volatile: volatile}
}

func (i *Load) Name() string                     { return i.name }
func (i *Load) SetName(name string)              { i.name = name }
func (i *Load) Type() Type                       { return i.Elem }
func (i *Load) operand() string                  { return "%" + i.name }
func (i *Load) Operands(rands []*Value) []*Value { return append(rands, &i.Ptr) }

// Store writes Val through Ptr. It produces no value.
type Store struct {
	anInstr
	Val      Value
	Ptr      Value
	Volatile bool
}

// NewStore returns a detached store.
func NewStore(val, ptr Value, volatile bool) *Store {
	return &Store{Val: val, Ptr: ptr, Volatile: volatile}
}

func (i *Store) Operands(rands []*Value) []*Value { return append(rands, &i.Val, &i.Ptr) }

// Call invokes Callee with Args. Ret is the result type; a void call
// produces no value and has no name.
type Call struct {
	anInstr
	name   string
	Ret    Type
	Callee Value
	Args   []Value
}

// NewCall returns a detached call. name is ignored for void calls.
func NewCall(name string, ret Type, callee Value, args ...Value) *Call {
	if Same(ret, Void) {
		name = ""
	}
	return &Call{name: name, Ret: ret, Callee: callee, Args: args}
}

func (i *Call) Name() string        { return i.name }
func (i *Call) SetName(name string) { i.name = name }
func (i *Call) Type() Type          { return i.Ret }
func (i *Call) operand() string     { return "%" + i.name }
func (i *Call) Operands(rands []*Value) []*Value {
	rands = append(rands, &i.Callee)
	for a := range i.Args {
		rands = append(rands, &i.Args[a])
	}
	return rands
}

// Br is an unconditional branch.
type Br struct {
	anInstr
	Target *Block
}

// NewBr returns a detached unconditional branch.
func NewBr(target *Block) *Br { return &Br{Target: target} }

func (i *Br) Operands(rands []*Value) []*Value { return rands }
func (i *Br) Succs() []*Block                  { return []*Block{i.Target} }

// CondBr transfers to Then when Cond is nonzero, otherwise to Else.
type CondBr struct {
	anInstr
	Cond Value
	Then *Block
	Else *Block
}

// NewCondBr returns a detached conditional branch.
func NewCondBr(cond Value, then, els *Block) *CondBr {
	return &CondBr{Cond: cond, Then: then, Else: els}
}

func (i *CondBr) Operands(rands []*Value) []*Value { return append(rands, &i.Cond) }
func (i *CondBr) Succs() []*Block                  { return []*Block{i.Then, i.Else} }

// SwitchCase is one value/target pair of a Switch.
type SwitchCase struct {
	Val    *Const
	Target *Block
}

// Switch transfers to the case matching X, or to Default.
type Switch struct {
	anInstr
	X       Value
	Default *Block
	Cases   []SwitchCase
}

// NewSwitch returns a detached switch.
func NewSwitch(x Value, def *Block, cases ...SwitchCase) *Switch {
	return &Switch{X: x, Default: def, Cases: cases}
}

func (i *Switch) Operands(rands []*Value) []*Value { return append(rands, &i.X) }
func (i *Switch) Succs() []*Block {
	succs := make([]*Block, 0, len(i.Cases)+1)
	succs = append(succs, i.Default)
	for _, c := range i.Cases {
		succs = append(succs, c.Target)
	}
	return succs
}

// Ret returns from the function. X is nil for void returns.
type Ret struct {
	anInstr
	X Value
}

// NewRet returns a detached return. Pass nil for a void return.
func NewRet(x Value) *Ret { return &Ret{X: x} }

func (i *Ret) Operands(rands []*Value) []*Value {
	if i.X == nil {
		return rands
	}
	return append(rands, &i.X)
}
func (i *Ret) Succs() []*Block { return nil }

// Unreachable marks a point control never reaches.
type Unreachable struct {
	anInstr
}

// NewUnreachable returns a detached unreachable marker.
func NewUnreachable() *Unreachable { return &Unreachable{} }

func (i *Unreachable) Operands(rands []*Value) []*Value { return rands }
func (i *Unreachable) Succs() []*Block                  { return nil }
