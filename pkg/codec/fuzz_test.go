// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package codec_test

import (
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/mirageobf/mirage/pkg/codec"
)

func FuzzRoundTrip(f *testing.F) {
	f.Add("", "k")
	f.Add("main", "default_key")
	f.Add("Hello\x00", "k")
	f.Add("binary_\x00\x01\x02", "\xff\x00")
	f.Add(strings.Repeat("x", 4<<10), "key")

	f.Fuzz(func(t *testing.T, plain, key string) {
		encoded, err := codec.Encode([]byte(plain), []byte(key))
		if key == "" {
			qt.Assert(t, qt.ErrorIs(err, codec.ErrEmptyKey))
			return
		}
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(len(encoded), 2*len(plain)))

		got, err := codec.Decode(encoded, []byte(key))
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.Equals(string(got), plain))
	})
}
