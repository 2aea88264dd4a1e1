// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package codec implements the reversible symbol transform shared by the
// obfuscation passes and the decryption tooling. Each payload byte is XORed
// with a repeating key and rendered as two lowercase hex digits, so the
// output stays printable and identifier-safe.
//
// This is obfuscation, not encryption: anyone holding the key, or willing to
// brute-force a short one, can invert it. The passes only need the transform
// to be cheap and exactly reversible.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEmptyKey is returned by Encode and Decode when the key has length zero.
// A zero-length key would make the repeating-key index undefined.
var ErrEmptyKey = errors.New("codec: empty key")

// Trace, when non-nil, receives every plaintext/encoded pair as it is
// produced by Encode or recovered by Decode. It exists for debugging pass
// pipelines and is nil by default.
var Trace func(plain []byte, encoded string)

// Encode mixes plain with the repeating key and returns the result as
// lowercase hex. The output is always exactly twice as long as the input;
// an empty input encodes to the empty string.
func Encode(plain, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrEmptyKey
	}
	mixed := make([]byte, len(plain))
	for i, b := range plain {
		mixed[i] = b ^ key[i%len(key)]
	}
	encoded := hex.EncodeToString(mixed)
	if Trace != nil {
		Trace(plain, encoded)
	}
	return encoded, nil
}

// Decode parses a string produced by Encode and recovers the original bytes.
// Odd-length or non-hex input is reported as an error, never truncated.
func Decode(encoded string, key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	plain, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("codec: malformed input %q: %w", encoded, err)
	}
	for i := range plain {
		plain[i] ^= key[i%len(key)]
	}
	if Trace != nil {
		Trace(plain, encoded)
	}
	return plain, nil
}
