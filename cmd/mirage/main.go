// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// The mirage command runs obfuscation pipelines over textual IR artifacts
// and hosts the interactive decryption surface.
package main

import "github.com/mirageobf/mirage/cmd/mirage/cmd"

func main() {
	cmd.Execute()
}
