// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package pass

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mirageobf/mirage/pkg/ir"
)

// DefaultNames is the standard pipeline order. Shape-changing passes run
// before the encoding passes so encoded symbols survive, and strip runs last
// so nothing it removes comes back.
var DefaultNames = []string{"junk", "subst", "break-cfg", "flatten", "strenc", "rename", "strip"}

// Spec names one pass and its options.
type Spec struct {
	Name    string
	Options []Option
}

// Option is one key=value pass option. A bare key has an empty Value.
type Option struct {
	Key, Value string
}

// ParsePipeline parses a comma-separated pass list. Each element is a pass
// name, optionally followed by parenthesized key=value options:
//
//	junk,break-cfg(splits=3),flatten
func ParsePipeline(s string) ([]Spec, error) {
	var specs []Spec
	depth, start := 0, 0
	flush := func(end int) error {
		seg := strings.TrimSpace(s[start:end])
		if seg == "" {
			return errors.New("pipeline: empty pass name")
		}
		spec, err := parseSpec(seg)
		if err != nil {
			return err
		}
		specs = append(specs, spec)
		return nil
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, errors.New("pipeline: unbalanced parentheses")
			}
		case ',':
			if depth == 0 {
				if err := flush(i); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.New("pipeline: unbalanced parentheses")
	}
	if err := flush(len(s)); err != nil {
		return nil, err
	}
	return specs, nil
}

func parseSpec(seg string) (Spec, error) {
	name, rest, found := strings.Cut(seg, "(")
	spec := Spec{Name: strings.TrimSpace(name)}
	if !found {
		return spec, nil
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasSuffix(rest, ")") {
		return Spec{}, errors.Errorf("pipeline: missing ) after %s options", spec.Name)
	}
	for _, field := range strings.Split(strings.TrimSuffix(rest, ")"), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, _ := strings.Cut(field, "=")
		spec.Options = append(spec.Options, Option{Key: key, Value: value})
	}
	return spec, nil
}

// Pipeline applies passes in order.
type Pipeline struct {
	Passes []Module

	// AfterPass, when set, runs after each pass with whether that pass
	// reported changes. An error from it aborts the pipeline.
	AfterPass func(name string, m *ir.Module, changed bool) error
}

// Build instantiates a pipeline from specs using the registry.
func Build(specs []Spec) (*Pipeline, error) {
	pl := &Pipeline{}
	for _, spec := range specs {
		p, err := New(spec.Name)
		if err != nil {
			return nil, err
		}
		for _, opt := range spec.Options {
			c, ok := p.(Configurable)
			if !ok {
				return nil, errors.Errorf("pass %s accepts no options", spec.Name)
			}
			if err := c.SetOption(opt.Key, opt.Value); err != nil {
				return nil, errors.Wrapf(err, "pass %s", spec.Name)
			}
		}
		pl.Passes = append(pl.Passes, p)
	}
	return pl, nil
}

// Default returns the standard pipeline.
func Default() (*Pipeline, error) {
	specs := make([]Spec, len(DefaultNames))
	for i, name := range DefaultNames {
		specs[i] = Spec{Name: name}
	}
	return Build(specs)
}

// Run applies every pass to m, reporting whether any changed it.
func (pl *Pipeline) Run(ctx *Context, m *ir.Module) (bool, error) {
	changed := false
	for _, p := range pl.Passes {
		ctx.Logger().Debugf("running pass %s", p.Name())
		c, err := p.Run(ctx, m)
		if err != nil {
			return changed, errors.Wrapf(err, "pass %s", p.Name())
		}
		changed = changed || c
		if pl.AfterPass != nil {
			if err := pl.AfterPass(p.Name(), m, c); err != nil {
				return changed, err
			}
		}
	}
	return changed, nil
}
