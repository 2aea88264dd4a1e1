// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package deobf

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mirageobf/mirage/pkg/codec"
	"github.com/mirageobf/mirage/pkg/symmap"
)

// Replacer builds a string replacer mapping every encoded form in the map
// back to its plaintext. strings.Replacer tries patterns in argument order,
// and the codec keeps prefixes: a plaintext prefixing another encodes to a
// prefix of its encoding. Longer encoded forms go first so the shorter one
// never swallows the head of the longer.
func Replacer(m *symmap.File) *strings.Replacer {
	entries := make([]symmap.Entry, len(m.Entries))
	copy(entries, m.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].Encoded) > len(entries[j].Encoded)
	})
	pairs := make([]string, 0, 2*len(entries))
	for _, e := range entries {
		pairs = append(pairs, e.Encoded, e.Plain)
	}
	return strings.NewReplacer(pairs...)
}

// Reverse copies r to w, replacing every encoded symbol from the map with
// its plaintext. Content is processed line by line: whole lines keep the
// stream interactive and never cut an encoded name in half.
func Reverse(m *symmap.File, w io.Writer, r io.Reader) error {
	repl := Replacer(m)
	br := bufio.NewReader(r)
	for {
		// ReadString can return a final unterminated line together
		// with io.EOF; it still needs replacing.
		line, readErr := br.ReadString('\n')
		if _, err := repl.WriteString(w, line); err != nil {
			return err
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// VerifyMap checks that every entry of the map decodes back to its recorded
// plaintext under the key. A checksum mismatch fails fast before any entry
// is tried.
func VerifyMap(m *symmap.File, key []byte) error {
	if !m.MatchesKey(key) {
		return fmt.Errorf("deobf: key does not match the map's checksum")
	}
	for _, e := range m.Entries {
		var got string
		var err error
		switch e.Kind {
		case symmap.KindFunc:
			got, err = DecodeName(e.Encoded, key)
		case symmap.KindGlobal:
			var plain []byte
			plain, err = codec.Decode(e.Encoded, key)
			got = string(plain)
		default:
			return fmt.Errorf("deobf: entry %q has unknown kind %d", e.Plain, e.Kind)
		}
		if err != nil {
			return fmt.Errorf("deobf: entry %q: %w", e.Plain, err)
		}
		if got != e.Plain {
			return fmt.Errorf("deobf: entry %q decodes to %q", e.Plain, got)
		}
	}
	return nil
}
