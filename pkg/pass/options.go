// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package pass

import (
	"strconv"

	"github.com/pkg/errors"
)

// ParseInt parses an integer option value. The empty value selects def, and
// the literal "max" selects max.
func ParseInt(value string, def, max int) (int, error) {
	if value == "" {
		return def, nil
	}
	if value == "max" {
		return max, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Errorf("bad integer %q", value)
	}
	if n < 0 {
		return 0, errors.Errorf("negative value %d", n)
	}
	if n > max {
		return 0, errors.Errorf("value %d exceeds maximum %d", n, max)
	}
	return n, nil
}

// ParseBool parses a boolean option value. The empty value means true, so a
// bare option name enables its flag.
func ParseBool(value string) (bool, error) {
	if value == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Errorf("bad boolean %q", value)
	}
	return b, nil
}
