// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package deobf inverts the reversible obfuscation transforms: it decodes
// symbol names, decrypts string globals out of a loaded artifact, and
// rewrites obfuscated text streams back to plaintext using a symbol map.
package deobf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mirageobf/mirage/pkg/codec"
	"github.com/mirageobf/mirage/pkg/ir"
)

// The debugger-surface failure taxonomy. Each condition gets its own
// sentinel so the command layer can report a specific message.
var (
	// ErrNoTarget means no artifact is loaded to resolve symbols in.
	ErrNoTarget = errors.New("deobf: no target selected")

	// ErrNotFound means the named symbol is not present in the target.
	ErrNotFound = errors.New("deobf: symbol not found")

	// ErrUnreadable means the symbol exists but its value is not byte
	// data this package can decode.
	ErrUnreadable = errors.New("deobf: value unreadable")
)

// DecodeName inverts the rename pass: one leading underscore is trimmed if
// present, the rest is hex-decoded with the key. Bare hex without the marker
// is accepted too, so names copied out of partial output still decode.
func DecodeName(encoded string, key []byte) (string, error) {
	trimmed := strings.TrimPrefix(encoded, "_")
	plain, err := codec.Decode(trimmed, key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Target resolves global symbols by name in some process image. The IR
// artifact implementation is ModuleTarget; a debugger would supply its own.
type Target interface {
	// GlobalValue returns the raw stored bytes of the named global. It
	// returns ErrNotFound or ErrUnreadable as applicable.
	GlobalValue(name string) ([]byte, error)
}

// ModuleTarget adapts a parsed IR module to the Target interface.
type ModuleTarget struct {
	Module *ir.Module
}

// GlobalValue returns the initializer bytes of the named global.
func (t ModuleTarget) GlobalValue(name string) ([]byte, error) {
	g := t.Module.Global(name)
	if g == nil {
		return nil, fmt.Errorf("%w: @%s", ErrNotFound, name)
	}
	init, ok := g.Init.(*ir.Bytes)
	if !ok {
		return nil, fmt.Errorf("%w: @%s holds no byte data", ErrUnreadable, name)
	}
	return init.Data, nil
}

// DecryptGlobal reads the named global out of t and decodes its contents
// with the key. A trailing NUL terminator, restored by the decode, is
// trimmed from the returned text.
func DecryptGlobal(t Target, name string, key []byte) (string, error) {
	if t == nil {
		return "", ErrNoTarget
	}
	value, err := t.GlobalValue(name)
	if err != nil {
		return "", err
	}
	plain, err := codec.Decode(string(value), key)
	if err != nil {
		return "", fmt.Errorf("%w: @%s: %v", ErrUnreadable, name, err)
	}
	return strings.TrimSuffix(string(plain), "\x00"), nil
}
