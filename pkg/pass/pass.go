// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package pass defines the obfuscation pass interfaces and the pipeline that
// drives them over a module. Concrete passes live in subpackages and register
// themselves at init time.
package pass

import (
	mathrand "math/rand"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/symmap"
)

// Context carries the state shared by every pass in one run.
type Context struct {
	// Key is the crypto key for the encoding passes.
	Key []byte

	// Rand is the randomness source. Passes that draw from it require it
	// to be set; runs with an equal seed produce equal output.
	Rand *mathrand.Rand

	// Log receives progress and advisory output. Nil falls back to the
	// package default logger.
	Log log.Interface

	// Map, when set, records every symbol the encoding passes rewrite.
	Map *symmap.File
}

// Logger returns ctx.Log, or the default logger when unset.
func (ctx *Context) Logger() log.Interface {
	if ctx.Log != nil {
		return ctx.Log
	}
	return log.Log
}

// Module is a pass over a whole module. Run reports whether it changed
// anything.
type Module interface {
	Name() string
	Run(ctx *Context, m *ir.Module) (bool, error)
}

// Function is a pass over one function body. Lift adapts it to Module.
type Function interface {
	Name() string
	Run(ctx *Context, f *ir.Function) (bool, error)
}

// Configurable is implemented by passes that accept options.
type Configurable interface {
	// SetOption configures one key=value option. Unknown keys are an
	// error.
	SetOption(key, value string) error
}

// Lift adapts a function pass to the module interface, running it over every
// defined function. Options are forwarded when the wrapped pass supports
// them.
func Lift(p Function) Module {
	return &lifted{p: p}
}

type lifted struct {
	p Function
}

func (l *lifted) Name() string { return l.p.Name() }

func (l *lifted) Run(ctx *Context, m *ir.Module) (bool, error) {
	changed := false
	for _, f := range m.Funcs {
		if f.IsDecl() {
			continue
		}
		c, err := l.p.Run(ctx, f)
		if err != nil {
			return changed, errors.Wrapf(err, "function @%s", f.Name())
		}
		changed = changed || c
	}
	return changed, nil
}

func (l *lifted) SetOption(key, value string) error {
	if c, ok := l.p.(Configurable); ok {
		return c.SetOption(key, value)
	}
	return errors.Errorf("pass %s accepts no options", l.p.Name())
}
