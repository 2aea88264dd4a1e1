// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// The mirage-deobfuscator command inverts the symbol codec offline: it
// decodes single names, verifies symbol maps, and reverses whole text
// streams back to plaintext.
package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mirageobf/mirage/internal/buildcfg"
	"github.com/mirageobf/mirage/pkg/deobf"
	"github.com/mirageobf/mirage/pkg/symmap"
)

var (
	cryptoKey  string
	mapPath    string
	reverseAll bool
	verifyMap  bool
)

var rootCmd = &cobra.Command{
	Use:   "mirage-deobfuscator [flags] <encoded-name | file>",
	Short: "Decode obfuscated symbol names",
	Long: heredoc.Doc(`
		Decode a single encoded name with the crypto key:

		    mirage-deobfuscator --crypto-key secret _0c000a11101e

		With a symbol map, reverse every encoded name in a text stream
		(a file argument, or stdin), or verify the map against the key:

		    mirage-deobfuscator --map build.map --reverse obfuscated.log
		    mirage-deobfuscator --crypto-key secret --map build.map --verify
	`),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case verifyMap:
			return runVerify(cmd)
		case reverseAll:
			return runReverse(cmd, args)
		default:
			return runDecode(cmd, args)
		}
	},
}

func runDecode(cmd *cobra.Command, args []string) error {
	if cryptoKey == "" {
		return errors.New("missing required --crypto-key")
	}
	if len(args) != 1 || args[0] == "" {
		return errors.New("missing required encoded name argument")
	}
	plain, err := deobf.DecodeName(args[0], []byte(cryptoKey))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.New(color.Bold).Sprint(plain))
	return nil
}

func runReverse(cmd *cobra.Command, args []string) error {
	m, err := loadMap()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return deobf.Reverse(m, cmd.OutOrStdout(), cmd.InOrStdin())
	}
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = deobf.Reverse(m, cmd.OutOrStdout(), f)
		f.Close() // since we're in a loop
		if err != nil {
			return err
		}
	}
	return nil
}

func runVerify(cmd *cobra.Command) error {
	key, err := buildcfg.Key(cryptoKey)
	if err != nil {
		return err
	}
	m, err := loadMap()
	if err != nil {
		return err
	}
	if err := deobf.VerifyMap(m, key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries verified\n", mapPath, len(m.Entries))
	return nil
}

func loadMap() (*symmap.File, error) {
	if mapPath == "" {
		return nil, errors.New("missing required --map")
	}
	return symmap.Load(mapPath)
}

func init() {
	log.SetHandler(clihandler.Default)

	rootCmd.Flags().StringVar(&cryptoKey, "crypto-key", "", "key the names were encoded with")
	rootCmd.Flags().StringVar(&mapPath, "map", "", "symbol map written by mirage run --emit-map")
	rootCmd.Flags().BoolVar(&reverseAll, "reverse", false, "reverse every mapped name in a text stream")
	rootCmd.Flags().BoolVar(&verifyMap, "verify", false, "verify the symbol map against the key")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
