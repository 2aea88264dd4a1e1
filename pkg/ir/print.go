// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// String renders the module in its textual form. The output is
// deterministic: named metadata and attachment keys print in sorted order,
// everything else in layout order.
func (m *Module) String() string {
	var sb strings.Builder
	m.write(&sb)
	return sb.String()
}

// WriteTo implements io.WriterTo.
func (m *Module) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, m.String())
	return int64(n), err
}

func (m *Module) write(sb *strings.Builder) {
	if m.Name != "" {
		fmt.Fprintf(sb, "source_filename = %q\n", m.Name)
	}
	for _, key := range sortedMDNames(m.Named) {
		sb.WriteString("!" + key + " = !{")
		for i, s := range m.Named[key] {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("!\"" + s + "\"")
		}
		sb.WriteString("}\n")
	}
	for _, g := range m.Globals {
		writeGlobal(sb, g)
	}
	for _, f := range m.Funcs {
		sb.WriteString("\n")
		writeFunc(sb, f)
	}
}

func sortedMDNames(named map[string][]string) []string {
	names := make([]string, 0, len(named))
	for k := range named {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func writeGlobal(sb *strings.Builder, g *Global) {
	sb.WriteString("@" + g.Name() + " = ")
	if g.Linkage == Internal {
		sb.WriteString("internal ")
	}
	if g.Const {
		sb.WriteString("constant ")
	} else {
		sb.WriteString("global ")
	}
	sb.WriteString(g.Elem.String())
	if g.Init != nil {
		sb.WriteString(" " + g.Init.operand())
	}
	writeMeta(sb, g.Meta, ", ")
	sb.WriteString("\n")
}

func writeFunc(sb *strings.Builder, f *Function) {
	if f.IsDecl() {
		sb.WriteString("declare ")
	} else {
		sb.WriteString("define ")
	}
	if f.Linkage == Internal {
		sb.WriteString("internal ")
	}
	sb.WriteString(f.Ret.String() + " @" + f.Name() + "(")
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Typ.String() + " %" + p.Name())
	}
	sb.WriteString(")")
	writeMeta(sb, f.Meta, " ")
	if f.IsDecl() {
		sb.WriteString("\n")
		return
	}
	sb.WriteString(" {\n")
	for _, b := range f.Blocks {
		sb.WriteString(b.Label + ":\n")
		for _, in := range b.Instrs {
			sb.WriteString("  " + instrString(in) + "\n")
		}
	}
	sb.WriteString("}\n")
}

func writeMeta(sb *strings.Builder, meta MetaMap, lead string) {
	for _, key := range meta.Keys() {
		sb.WriteString(lead + "!" + key + " !\"" + meta[key] + "\"")
		lead = ", "
	}
}

// instrString renders one instruction without indentation.
func instrString(in Instruction) string {
	var sb strings.Builder
	switch in := in.(type) {
	case *Alloca:
		fmt.Fprintf(&sb, "%%%s = alloca %s", in.Name(), in.Elem)
	case *Load:
		fmt.Fprintf(&sb, "%%%s = load %s%s, %s", in.Name(), volatile(in.Volatile), in.Elem, typed(in.Ptr))
	case *Store:
		fmt.Fprintf(&sb, "store %s%s, %s", volatile(in.Volatile), typed(in.Val), typed(in.Ptr))
	case *BinOp:
		fmt.Fprintf(&sb, "%%%s = %s %s %s, %s", in.Name(), in.Kind, in.Typ, in.X.operand(), in.Y.operand())
	case *ICmp:
		fmt.Fprintf(&sb, "%%%s = icmp %s %s %s, %s", in.Name(), in.Pred, in.X.Type(), in.X.operand(), in.Y.operand())
	case *Call:
		if !Same(in.Ret, Void) {
			fmt.Fprintf(&sb, "%%%s = ", in.Name())
		}
		fmt.Fprintf(&sb, "call %s %s(", in.Ret, in.Callee.operand())
		for i, a := range in.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(typed(a))
		}
		sb.WriteString(")")
	case *Br:
		fmt.Fprintf(&sb, "br label %%%s", in.Target.Label)
	case *CondBr:
		fmt.Fprintf(&sb, "br %s, label %%%s, label %%%s", typed(in.Cond), in.Then.Label, in.Else.Label)
	case *Switch:
		fmt.Fprintf(&sb, "switch %s, label %%%s [\n", typed(in.X), in.Default.Label)
		for _, c := range in.Cases {
			fmt.Fprintf(&sb, "    %s, label %%%s\n", typed(c.Val), c.Target.Label)
		}
		sb.WriteString("  ]")
	case *Ret:
		if in.X == nil {
			sb.WriteString("ret void")
		} else {
			fmt.Fprintf(&sb, "ret %s", typed(in.X))
		}
	case *Unreachable:
		sb.WriteString("unreachable")
	default:
		panic(fmt.Sprintf("ir: unknown instruction %T", in))
	}
	writeMeta(&sb, in.Meta(), ", ")
	return sb.String()
}

func volatile(v bool) string {
	if v {
		return "volatile "
	}
	return ""
}

// typed renders an operand with its leading type, e.g. "i32 %x".
func typed(v Value) string {
	return v.Type().String() + " " + v.operand()
}

// escapeBytes renders byte data in the c"..." form. Printable ASCII stays
// literal; quotes, backslashes and everything else become \XX hex escapes.
func escapeBytes(data []byte) string {
	var sb strings.Builder
	sb.WriteString(`c"`)
	for _, b := range data {
		if b >= 0x20 && b <= 0x7e && b != '"' && b != '\\' {
			sb.WriteByte(b)
		} else {
			fmt.Fprintf(&sb, "\\%02X", b)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
