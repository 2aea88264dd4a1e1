// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package buildcfg holds the build-time configuration baked into the
// binaries via -ldflags -X, and the key resolution order shared by the CLIs.
package buildcfg

import (
	"errors"
	"os"
)

// Set at link time:
//
//	-X github.com/mirageobf/mirage/internal/buildcfg.DefaultKey=<random>
//	-X github.com/mirageobf/mirage/internal/buildcfg.Version=<tag>
//
// Release builds bake a key drawn from a random source; the checked-in
// default only keeps development builds working.
var (
	DefaultKey = "default_key"
	Version    = "dev"
)

// EnvKey is the environment variable overriding the baked-in key.
const EnvKey = "MIRAGE_CRYPTO_KEY"

// ErrNoKey is returned when no key is available from any source.
var ErrNoKey = errors.New("no crypto key: pass --crypto-key, set " + EnvKey + ", or bake a default at build time")

// Key resolves the crypto key: an explicit flag value wins, then the
// environment, then the baked-in default.
func Key(flagValue string) ([]byte, error) {
	if flagValue != "" {
		return []byte(flagValue), nil
	}
	if env := os.Getenv(EnvKey); env != "" {
		return []byte(env), nil
	}
	if DefaultKey != "" {
		return []byte(DefaultKey), nil
	}
	return nil, ErrNoKey
}
