// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package cmd

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mirageobf/mirage/pkg/deobf"
	"github.com/mirageobf/mirage/pkg/ir"
)

var deobfArtifact string

func init() {
	rootCmd.AddCommand(deobfuscateCmd)
	deobfuscateCmd.AddCommand(deobfuscateStringCmd)

	deobfuscateCmd.PersistentFlags().StringVar(&deobfArtifact, "artifact", "", "obfuscated IR artifact standing in for the debug target")
}

var deobfuscateCmd = &cobra.Command{
	Use:   "deobfuscate",
	Short: "Decrypt obfuscated data out of a loaded artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var deobfuscateStringCmd = &cobra.Command{
	Use:   "string <global>",
	Short: "Decrypt the value of an encrypted string global",
	Long: heredoc.Doc(`
		Resolve a global by name in the artifact loaded via --artifact
		and decode its stored value with the crypto key. The printed
		text is the original string literal, terminator trimmed.
	`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := key()
		if err != nil {
			return err
		}

		var target deobf.Target
		if deobfArtifact != "" {
			data, err := os.ReadFile(deobfArtifact)
			if err != nil {
				return errors.Wrap(err, "reading artifact")
			}
			m, err := ir.Parse(deobfArtifact, data)
			if err != nil {
				return err
			}
			target = deobf.ModuleTarget{Module: m}
		}

		text, err := deobf.DecryptGlobal(target, args[0], k)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Decrypted string for global '%s': %s\n",
			args[0], color.New(color.Bold).Sprint(text))
		return nil
	},
}
