// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package pass

import (
	"sort"

	"github.com/pkg/errors"
)

var registry = make(map[string]func() Module)

// Register makes a pass constructor available under the name its instances
// report. Pass packages call this from init; importing a pass package for
// effect is enough to make it buildable by name.
func Register(factory func() Module) {
	name := factory().Name()
	if _, dup := registry[name]; dup {
		panic("pass: duplicate registration of " + name)
	}
	registry[name] = factory
}

// New returns a fresh instance of the named pass.
func New(name string) (Module, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("pass: unknown pass %q", name)
	}
	return factory(), nil
}

// Names lists the registered pass names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
