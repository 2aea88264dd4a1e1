// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir

import "fmt"

// Type describes the shape of a value. The type system is deliberately
// small: fixed-width integers, one opaque pointer type, byte arrays for
// global data, and void for calls without a result.
type Type interface {
	String() string

	typ() // sealed
}

// IntType is a fixed-width integer type such as i32. i1 doubles as the
// boolean type.
type IntType struct {
	Bits int
}

// PtrType is the opaque pointer type. Pointees are not part of the type, so
// replacing a global with one of a different array length never requires a
// cast at the use sites.
type PtrType struct{}

// ArrayType is a fixed-length array, used for global byte data.
type ArrayType struct {
	Len  int
	Elem Type
}

// VoidType is the result type of calls that produce no value.
type VoidType struct{}

var (
	I1   = IntType{1}
	I8   = IntType{8}
	I16  = IntType{16}
	I32  = IntType{32}
	I64  = IntType{64}
	Ptr  = PtrType{}
	Void = VoidType{}
)

// ArrayOf returns the type of an n-element array of elem.
func ArrayOf(n int, elem Type) ArrayType {
	return ArrayType{Len: n, Elem: elem}
}

func (t IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }
func (PtrType) String() string   { return "ptr" }
func (VoidType) String() string  { return "void" }
func (t ArrayType) String() string {
	return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
}

func (IntType) typ()   {}
func (PtrType) typ()   {}
func (ArrayType) typ() {}
func (VoidType) typ()  {}

// Same reports whether two types are identical.
func Same(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// IsInt reports whether t is a fixed-width integer type.
func IsInt(t Type) bool {
	_, ok := t.(IntType)
	return ok
}
