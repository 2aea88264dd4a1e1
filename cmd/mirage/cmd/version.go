// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/mirageobf/mirage/internal/buildcfg"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mirage %s (%s/%s)\n", buildcfg.Version, runtime.GOOS, runtime.GOARCH)
	},
}
