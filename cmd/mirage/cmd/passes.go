// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mirageobf/mirage/pkg/pass"
)

func init() {
	rootCmd.AddCommand(passesCmd)
}

var passesCmd = &cobra.Command{
	Use:   "passes",
	Short: "List the registered obfuscation passes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		defaults := make(map[string]bool, len(pass.DefaultNames))
		for _, name := range pass.DefaultNames {
			defaults[name] = true
		}
		for _, name := range pass.Names() {
			if defaults[name] {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (default pipeline)\n", name)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\ndefault pipeline order: %s\n", strings.Join(pass.DefaultNames, ","))
	},
}
