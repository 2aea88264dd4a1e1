// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package ir

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParseFile reads path and parses it as a module.
func ParseFile(path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, src)
}

// Parse reads a module in the textual form produced by Module.String.
// Errors carry file:line positions. The parsed module is verified before it
// is returned.
//
// Symbols (@names) may be referenced before their definition; local values
// (%names) must be defined before use in layout order.
func Parse(filename string, src []byte) (*Module, error) {
	p := &parser{
		filename: filename,
		lines:    strings.Split(string(src), "\n"),
		m:        NewModule(""),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	if err := VerifyModule(p.m); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p.m, nil
}

type parser struct {
	filename string
	lines    []string
	m        *Module
	pending  []pendingInit
}

// pendingInit is a global initializer naming a symbol that may not be parsed
// yet; resolved once all symbols are known.
type pendingInit struct {
	g    *Global
	ref  string
	line int
}

type bodyRange struct {
	f          *Function
	start, end int // line indexes, end exclusive (the closing brace line)
}

func (p *parser) errf(line int, format string, args ...any) error {
	return fmt.Errorf("%s:%d: "+format, append([]any{p.filename, line}, args...)...)
}

func (p *parser) parse() error {
	var bodies []bodyRange
	for ln := 0; ln < len(p.lines); ln++ {
		line := strings.TrimSpace(stripComment(p.lines[ln]))
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "source_filename"):
			if err := p.parseSourceFilename(line, ln); err != nil {
				return err
			}
		case strings.HasPrefix(line, "!"):
			if err := p.parseNamedMD(line, ln); err != nil {
				return err
			}
		case strings.HasPrefix(line, "@"):
			if err := p.parseGlobal(line, ln); err != nil {
				return err
			}
		case strings.HasPrefix(line, "declare "):
			if _, err := p.parseFuncHeader(line, ln, true); err != nil {
				return err
			}
		case strings.HasPrefix(line, "define "):
			f, err := p.parseFuncHeader(line, ln, false)
			if err != nil {
				return err
			}
			end := ln + 1
			for ; end < len(p.lines); end++ {
				if strings.TrimSpace(stripComment(p.lines[end])) == "}" {
					break
				}
			}
			if end == len(p.lines) {
				return p.errf(ln+1, "unterminated body of @%s", f.Name())
			}
			bodies = append(bodies, bodyRange{f: f, start: ln + 1, end: end})
			ln = end
		default:
			return p.errf(ln+1, "unexpected %q", line)
		}
	}
	for _, br := range bodies {
		if err := p.parseBody(br); err != nil {
			return err
		}
	}
	return p.resolvePending()
}

// stripComment removes a trailing ; comment, honoring quoted strings.
func stripComment(s string) string {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ';':
			if !inQuote {
				return s[:i]
			}
		}
	}
	return s
}

// tokenize splits a line into tokens. Commas and spaces separate; the
// characters ()[]{}= are tokens of their own; double-quoted segments stay
// inside their surrounding token, so c"a b" and !"a b" survive whole.
func tokenize(s string) []string {
	isSep := func(c byte) bool {
		return c == ' ' || c == '\t' || c == ','
	}
	isPunct := func(c byte) bool {
		switch c {
		case '(', ')', '[', ']', '{', '}', '=':
			return true
		}
		return false
	}
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSep(c):
			i++
		case isPunct(c):
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(s) {
				d := s[j]
				if d == '"' {
					j++
					for j < len(s) && s[j] != '"' {
						j++
					}
					if j < len(s) {
						j++
					}
					continue
				}
				if isSep(d) || isPunct(d) {
					break
				}
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

func (p *parser) parseSourceFilename(line string, ln int) error {
	toks := tokenize(line)
	if len(toks) != 3 || toks[1] != "=" {
		return p.errf(ln+1, "malformed source_filename")
	}
	name, err := strconv.Unquote(toks[2])
	if err != nil {
		return p.errf(ln+1, "malformed source_filename: %v", err)
	}
	p.m.Name = name
	return nil
}

func (p *parser) parseNamedMD(line string, ln int) error {
	toks := tokenize(line)
	// !name = ! { !"item" ... }
	if len(toks) < 5 || toks[1] != "=" || toks[2] != "!" || toks[3] != "{" || toks[len(toks)-1] != "}" {
		return p.errf(ln+1, "malformed named metadata")
	}
	name := strings.TrimPrefix(toks[0], "!")
	items := []string{}
	for _, tok := range toks[4 : len(toks)-1] {
		item, ok := mdString(tok)
		if !ok {
			return p.errf(ln+1, "malformed metadata item %q", tok)
		}
		items = append(items, item)
	}
	if p.m.Named == nil {
		p.m.Named = make(map[string][]string)
	}
	p.m.Named[name] = items
	return nil
}

// mdString strips the !"..." wrapper from a metadata string token.
func mdString(tok string) (string, bool) {
	if !strings.HasPrefix(tok, `!"`) || !strings.HasSuffix(tok, `"`) || len(tok) < 3 {
		return "", false
	}
	return tok[2 : len(tok)-1], true
}

func (p *parser) parseGlobal(line string, ln int) error {
	toks := tokenize(line)
	i := 0
	name := strings.TrimPrefix(toks[i], "@")
	i++
	if i >= len(toks) || toks[i] != "=" {
		return p.errf(ln+1, "expected = after @%s", name)
	}
	i++
	linkage := External
	if i < len(toks) && toks[i] == "internal" {
		linkage = Internal
		i++
	}
	isConst := false
	switch {
	case i < len(toks) && toks[i] == "constant":
		isConst = true
		i++
	case i < len(toks) && toks[i] == "global":
		i++
	default:
		return p.errf(ln+1, "expected constant or global after @%s", name)
	}
	typ, err := p.parseType(toks, &i, ln)
	if err != nil {
		return err
	}
	g := NewGlobal(name, linkage, typ, nil)
	g.Const = isConst
	if i < len(toks) && !strings.HasPrefix(toks[i], "!") {
		tok := toks[i]
		i++
		switch {
		case strings.HasPrefix(tok, `c"`):
			data, err := unescapeBytes(tok)
			if err != nil {
				return p.errf(ln+1, "global @%s: %v", name, err)
			}
			g.Init = &Bytes{Data: data}
		case strings.HasPrefix(tok, "@"):
			p.pending = append(p.pending, pendingInit{g: g, ref: tok[1:], line: ln})
		case tok == "true" || tok == "false":
			g.Init = ConstBool(tok == "true")
		default:
			v, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return p.errf(ln+1, "global @%s: bad initializer %q", name, tok)
			}
			g.Init = ConstInt(typ, v)
		}
	}
	if err := p.parseMetaTail(toks, &i, ln, g.SetMeta); err != nil {
		return err
	}
	if i != len(toks) {
		return p.errf(ln+1, "trailing tokens after @%s", name)
	}
	p.m.AddGlobal(g)
	return nil
}

func (p *parser) parseFuncHeader(line string, ln int, isDecl bool) (*Function, error) {
	toks := tokenize(line)
	i := 1 // past define/declare
	linkage := External
	if i < len(toks) && toks[i] == "internal" {
		linkage = Internal
		i++
	}
	ret, err := p.parseType(toks, &i, ln)
	if err != nil {
		return nil, err
	}
	if i >= len(toks) || !strings.HasPrefix(toks[i], "@") {
		return nil, p.errf(ln+1, "expected function name")
	}
	name := strings.TrimPrefix(toks[i], "@")
	i++
	if err := p.expect(toks, &i, "(", ln); err != nil {
		return nil, err
	}
	var params []*Param
	for i < len(toks) && toks[i] != ")" {
		typ, err := p.parseType(toks, &i, ln)
		if err != nil {
			return nil, err
		}
		pname := fmt.Sprintf("arg%d", len(params))
		if i < len(toks) && strings.HasPrefix(toks[i], "%") {
			pname = strings.TrimPrefix(toks[i], "%")
			i++
		}
		params = append(params, NewParam(pname, typ))
	}
	if err := p.expect(toks, &i, ")", ln); err != nil {
		return nil, err
	}
	f := NewFunc(name, linkage, ret, params...)
	if err := p.parseMetaTail(toks, &i, ln, f.SetMeta); err != nil {
		return nil, err
	}
	if !isDecl {
		if err := p.expect(toks, &i, "{", ln); err != nil {
			return nil, err
		}
	}
	if i != len(toks) {
		return nil, p.errf(ln+1, "trailing tokens after function header")
	}
	p.m.AddFunc(f)
	return f, nil
}

func (p *parser) parseBody(br bodyRange) error {
	// First collect the labels so branches can reference blocks that
	// appear later in layout order.
	for ln := br.start; ln < br.end; ln++ {
		line := strings.TrimSpace(stripComment(p.lines[ln]))
		if isLabel(line) {
			br.f.AddBlock(strings.TrimSuffix(line, ":"))
		}
	}
	if len(br.f.Blocks) == 0 {
		return p.errf(br.start, "function @%s has no blocks", br.f.Name())
	}

	vals := make(map[string]Value)
	for _, param := range br.f.Params {
		vals[param.Name()] = param
	}
	var cur *Block
	nextBlock := 0
	for ln := br.start; ln < br.end; ln++ {
		line := strings.TrimSpace(stripComment(p.lines[ln]))
		if line == "" {
			continue
		}
		if isLabel(line) {
			cur = br.f.Blocks[nextBlock]
			nextBlock++
			continue
		}
		if cur == nil {
			return p.errf(ln+1, "instruction before first block label")
		}
		in, newLn, err := p.parseInstr(br.f, vals, ln, br.end)
		if err != nil {
			return err
		}
		cur.Append(in)
		if named, ok := in.(Named); ok && named.Name() != "" {
			vals[named.Name()] = named
		}
		ln = newLn
	}
	return nil
}

func isLabel(line string) bool {
	return strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t\"")
}

// parseInstr parses one instruction starting at line ln, consuming extra
// lines for multi-line switches. It returns the last line consumed.
func (p *parser) parseInstr(f *Function, vals map[string]Value, ln, end int) (Instruction, int, error) {
	toks := tokenize(stripComment(p.lines[ln]))
	newLn := ln

	i := 0
	name := ""
	if strings.HasPrefix(toks[0], "%") && len(toks) > 1 && toks[1] == "=" {
		name = strings.TrimPrefix(toks[0], "%")
		i = 2
	}
	if i >= len(toks) {
		return nil, 0, p.errf(ln+1, "missing instruction")
	}
	op := toks[i]
	i++

	// Multi-line switches are flattened into one token stream.
	if op == "switch" {
		for !contains(toks, "]") && newLn+1 < end {
			newLn++
			toks = append(toks, tokenize(stripComment(p.lines[newLn]))...)
		}
	}

	needName := func() error {
		if name == "" {
			return p.errf(ln+1, "%s needs a result name", op)
		}
		return nil
	}
	noName := func() error {
		if name != "" {
			return p.errf(ln+1, "%s produces no result", op)
		}
		return nil
	}

	var in Instruction
	switch op {
	case "alloca":
		if err := needName(); err != nil {
			return nil, 0, err
		}
		elem, err := p.parseType(toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		in = NewAlloca(name, elem)

	case "load":
		if err := needName(); err != nil {
			return nil, 0, err
		}
		vol := p.eat(toks, &i, "volatile")
		elem, err := p.parseType(toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		ptr, err := p.parseTypedOperand(toks, &i, vals, ln)
		if err != nil {
			return nil, 0, err
		}
		in = NewLoad(name, elem, ptr, vol)

	case "store":
		if err := noName(); err != nil {
			return nil, 0, err
		}
		vol := p.eat(toks, &i, "volatile")
		val, err := p.parseTypedOperand(toks, &i, vals, ln)
		if err != nil {
			return nil, 0, err
		}
		ptr, err := p.parseTypedOperand(toks, &i, vals, ln)
		if err != nil {
			return nil, 0, err
		}
		in = NewStore(val, ptr, vol)

	case "add", "sub", "mul", "and", "or", "xor", "shl":
		if err := needName(); err != nil {
			return nil, 0, err
		}
		kind, _ := binKind(op)
		typ, err := p.parseType(toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		x, err := p.operand(toks, &i, vals, typ, ln)
		if err != nil {
			return nil, 0, err
		}
		y, err := p.operand(toks, &i, vals, typ, ln)
		if err != nil {
			return nil, 0, err
		}
		in = NewBinOp(name, kind, typ, x, y)

	case "icmp":
		if err := needName(); err != nil {
			return nil, 0, err
		}
		if i >= len(toks) {
			return nil, 0, p.errf(ln+1, "missing icmp predicate")
		}
		pred, ok := predKind(toks[i])
		if !ok {
			return nil, 0, p.errf(ln+1, "unknown icmp predicate %q", toks[i])
		}
		i++
		typ, err := p.parseType(toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		x, err := p.operand(toks, &i, vals, typ, ln)
		if err != nil {
			return nil, 0, err
		}
		y, err := p.operand(toks, &i, vals, typ, ln)
		if err != nil {
			return nil, 0, err
		}
		in = NewICmp(name, pred, x, y)

	case "call":
		ret, err := p.parseType(toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		if Same(ret, Void) {
			if err := noName(); err != nil {
				return nil, 0, err
			}
		} else if err := needName(); err != nil {
			return nil, 0, err
		}
		callee, err := p.operand(toks, &i, vals, Ptr, ln)
		if err != nil {
			return nil, 0, err
		}
		if err := p.expect(toks, &i, "(", ln); err != nil {
			return nil, 0, err
		}
		var args []Value
		for i < len(toks) && toks[i] != ")" {
			arg, err := p.parseTypedOperand(toks, &i, vals, ln)
			if err != nil {
				return nil, 0, err
			}
			args = append(args, arg)
		}
		if err := p.expect(toks, &i, ")", ln); err != nil {
			return nil, 0, err
		}
		in = NewCall(name, ret, callee, args...)

	case "br":
		if err := noName(); err != nil {
			return nil, 0, err
		}
		if p.eat(toks, &i, "label") {
			target, err := p.blockRef(f, toks, &i, ln)
			if err != nil {
				return nil, 0, err
			}
			in = NewBr(target)
			break
		}
		cond, err := p.parseTypedOperand(toks, &i, vals, ln)
		if err != nil {
			return nil, 0, err
		}
		if err := p.expect(toks, &i, "label", ln); err != nil {
			return nil, 0, err
		}
		then, err := p.blockRef(f, toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		if err := p.expect(toks, &i, "label", ln); err != nil {
			return nil, 0, err
		}
		els, err := p.blockRef(f, toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		in = NewCondBr(cond, then, els)

	case "switch":
		if err := noName(); err != nil {
			return nil, 0, err
		}
		x, err := p.parseTypedOperand(toks, &i, vals, ln)
		if err != nil {
			return nil, 0, err
		}
		if err := p.expect(toks, &i, "label", ln); err != nil {
			return nil, 0, err
		}
		def, err := p.blockRef(f, toks, &i, ln)
		if err != nil {
			return nil, 0, err
		}
		if err := p.expect(toks, &i, "[", ln); err != nil {
			return nil, 0, err
		}
		var cases []SwitchCase
		for i < len(toks) && toks[i] != "]" {
			typ, err := p.parseType(toks, &i, ln)
			if err != nil {
				return nil, 0, err
			}
			val, err := p.operand(toks, &i, vals, typ, ln)
			if err != nil {
				return nil, 0, err
			}
			c, ok := val.(*Const)
			if !ok {
				return nil, 0, p.errf(ln+1, "switch case value must be a constant")
			}
			if err := p.expect(toks, &i, "label", ln); err != nil {
				return nil, 0, err
			}
			target, err := p.blockRef(f, toks, &i, ln)
			if err != nil {
				return nil, 0, err
			}
			cases = append(cases, SwitchCase{Val: c, Target: target})
		}
		if err := p.expect(toks, &i, "]", ln); err != nil {
			return nil, 0, err
		}
		in = NewSwitch(x, def, cases...)

	case "ret":
		if err := noName(); err != nil {
			return nil, 0, err
		}
		if p.eat(toks, &i, "void") {
			in = NewRet(nil)
			break
		}
		x, err := p.parseTypedOperand(toks, &i, vals, ln)
		if err != nil {
			return nil, 0, err
		}
		in = NewRet(x)

	case "unreachable":
		if err := noName(); err != nil {
			return nil, 0, err
		}
		in = NewUnreachable()

	default:
		return nil, 0, p.errf(ln+1, "unknown instruction %q", op)
	}

	if err := p.parseMetaTail(toks, &i, ln, in.SetMeta); err != nil {
		return nil, 0, err
	}
	if i != len(toks) {
		return nil, 0, p.errf(ln+1, "trailing tokens after %s", op)
	}
	return in, newLn, nil
}

func binKind(op string) (BinKind, bool) {
	for k, name := range binNames {
		if name == op {
			return BinKind(k), true
		}
	}
	return 0, false
}

func predKind(op string) (Pred, bool) {
	for k, name := range predNames {
		if name == op {
			return Pred(k), true
		}
	}
	return 0, false
}

func contains(toks []string, want string) bool {
	for _, t := range toks {
		if t == want {
			return true
		}
	}
	return false
}

func (p *parser) expect(toks []string, i *int, want string, ln int) error {
	if *i >= len(toks) || toks[*i] != want {
		got := "end of line"
		if *i < len(toks) {
			got = strconv.Quote(toks[*i])
		}
		return p.errf(ln+1, "expected %q, found %s", want, got)
	}
	*i++
	return nil
}

func (p *parser) eat(toks []string, i *int, want string) bool {
	if *i < len(toks) && toks[*i] == want {
		*i++
		return true
	}
	return false
}

func (p *parser) parseType(toks []string, i *int, ln int) (Type, error) {
	if *i >= len(toks) {
		return nil, p.errf(ln+1, "missing type")
	}
	tok := toks[*i]
	switch tok {
	case "ptr":
		*i++
		return Ptr, nil
	case "void":
		*i++
		return Void, nil
	case "i1", "i8", "i16", "i32", "i64":
		*i++
		bits, _ := strconv.Atoi(tok[1:])
		return IntType{Bits: bits}, nil
	case "[":
		*i++
		if *i >= len(toks) {
			return nil, p.errf(ln+1, "malformed array type")
		}
		n, err := strconv.Atoi(toks[*i])
		if err != nil || n < 0 {
			return nil, p.errf(ln+1, "bad array length %q", toks[*i])
		}
		*i++
		if err := p.expect(toks, i, "x", ln); err != nil {
			return nil, err
		}
		elem, err := p.parseType(toks, i, ln)
		if err != nil {
			return nil, err
		}
		if err := p.expect(toks, i, "]", ln); err != nil {
			return nil, err
		}
		return ArrayOf(n, elem), nil
	default:
		return nil, p.errf(ln+1, "unknown type %q", tok)
	}
}

// parseTypedOperand parses "TYPE VALUE".
func (p *parser) parseTypedOperand(toks []string, i *int, vals map[string]Value, ln int) (Value, error) {
	typ, err := p.parseType(toks, i, ln)
	if err != nil {
		return nil, err
	}
	return p.operand(toks, i, vals, typ, ln)
}

// operand resolves a single value token against the local scope and the
// module symbols. typ types bare integer literals.
func (p *parser) operand(toks []string, i *int, vals map[string]Value, typ Type, ln int) (Value, error) {
	if *i >= len(toks) {
		return nil, p.errf(ln+1, "missing operand")
	}
	tok := toks[*i]
	*i++
	switch {
	case strings.HasPrefix(tok, "%"):
		v, ok := vals[tok[1:]]
		if !ok {
			return nil, p.errf(ln+1, "use of undefined value %s", tok)
		}
		return v, nil
	case strings.HasPrefix(tok, "@"):
		name := tok[1:]
		if f := p.m.Func(name); f != nil {
			return f, nil
		}
		if g := p.m.Global(name); g != nil {
			return g, nil
		}
		return nil, p.errf(ln+1, "unknown symbol %s", tok)
	case tok == "true", tok == "false":
		return ConstBool(tok == "true"), nil
	default:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, p.errf(ln+1, "bad operand %q", tok)
		}
		if !IsInt(typ) {
			return nil, p.errf(ln+1, "integer literal %q for type %s", tok, typ)
		}
		return ConstInt(typ, v), nil
	}
}

func (p *parser) blockRef(f *Function, toks []string, i *int, ln int) (*Block, error) {
	if *i >= len(toks) || !strings.HasPrefix(toks[*i], "%") {
		return nil, p.errf(ln+1, "expected block label")
	}
	label := strings.TrimPrefix(toks[*i], "%")
	*i++
	b := f.Block(label)
	if b == nil {
		return nil, p.errf(ln+1, "unknown block %%%s", label)
	}
	return b, nil
}

// parseMetaTail parses trailing `!key !"value"` pairs.
func (p *parser) parseMetaTail(toks []string, i *int, ln int, set func(k, v string)) error {
	for *i < len(toks) && strings.HasPrefix(toks[*i], "!") && !strings.HasPrefix(toks[*i], `!"`) {
		key := strings.TrimPrefix(toks[*i], "!")
		*i++
		if *i >= len(toks) {
			return p.errf(ln+1, "metadata key !%s without a value", key)
		}
		value, ok := mdString(toks[*i])
		if !ok {
			return p.errf(ln+1, "malformed metadata value %q", toks[*i])
		}
		*i++
		set(key, value)
	}
	return nil
}

func (p *parser) resolvePending() error {
	for _, pi := range p.pending {
		if f := p.m.Func(pi.ref); f != nil {
			pi.g.Init = f
			continue
		}
		if g := p.m.Global(pi.ref); g != nil {
			pi.g.Init = g
			continue
		}
		return p.errf(pi.line+1, "global @%s: unknown symbol @%s", pi.g.Name(), pi.ref)
	}
	return nil
}

// unescapeBytes parses a c"..." token into raw bytes. Escapes are \XX with
// two hex digits.
func unescapeBytes(tok string) ([]byte, error) {
	if !strings.HasPrefix(tok, `c"`) || !strings.HasSuffix(tok, `"`) || len(tok) < 3 {
		return nil, fmt.Errorf("malformed byte string %q", tok)
	}
	body := tok[2 : len(tok)-1]
	var data []byte
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			data = append(data, c)
			continue
		}
		if i+2 >= len(body) {
			return nil, fmt.Errorf("truncated escape in %q", tok)
		}
		b, err := strconv.ParseUint(body[i+1:i+3], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad escape in %q: %v", tok, err)
		}
		data = append(data, byte(b))
		i += 2
	}
	return data, nil
}
