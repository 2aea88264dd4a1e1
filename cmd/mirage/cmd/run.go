// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mirageobf/mirage/pkg/ir"
	"github.com/mirageobf/mirage/pkg/pass"
	"github.com/mirageobf/mirage/pkg/symmap"
)

var (
	runOutput       string
	runEmitMap      string
	runPipeline     string
	runPrintChanged bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "write transformed IR here (default: stdout)")
	runCmd.Flags().StringVar(&runEmitMap, "emit-map", "", "write the symbol map here")
	runCmd.Flags().StringVarP(&runPipeline, "pipeline", "p", "", "comma-separated pass list, e.g. junk,break-cfg(splits=3),strip(fixpoint=1)")
	runCmd.Flags().BoolVar(&runPrintChanged, "print-changed", false, "print a unified diff after each pass that changed the module")
}

var runCmd = &cobra.Command{
	Use:   "run <input.ir>",
	Short: "Run an obfuscation pipeline over an IR artifact",
	Long: heredoc.Doc(`
		Parse a textual IR artifact, apply the configured pass pipeline,
		and write the transformed IR. Every function is re-verified after
		each pass; output is only written once the whole pipeline has
		succeeded.

		The default pipeline is:

		    ` + strings.Join(pass.DefaultNames, ",") + `
	`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := key()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "reading input")
		}
		m, err := ir.Parse(args[0], data)
		if err != nil {
			return err
		}

		pl, err := buildPipeline(runPipeline)
		if err != nil {
			return err
		}

		ctx := &pass.Context{
			Key:  k,
			Rand: rng(),
			Log:  log.Log,
		}
		if runEmitMap != "" {
			ctx.Map = symmap.New(k)
		}
		if seed.random {
			log.Infof("chosen seed: %s", seed.String())
		}

		prev := m.String()
		pl.AfterPass = func(name string, m *ir.Module, changed bool) error {
			if err := ir.VerifyModule(m); err != nil {
				return errors.Wrapf(err, "pass %s left invalid IR", name)
			}
			if runPrintChanged && changed {
				cur := m.String()
				fmt.Fprint(cmd.OutOrStdout(), udiff.Unified("before "+name, "after "+name, prev, cur))
				prev = cur
			}
			return nil
		}

		changed, err := pl.Run(ctx, m)
		if err != nil {
			return err
		}
		if !changed {
			log.Warn("pipeline changed nothing")
		}

		out := m.String()
		if runOutput == "" {
			fmt.Fprint(cmd.OutOrStdout(), out)
		} else if err := os.WriteFile(runOutput, []byte(out), 0o666); err != nil {
			return errors.Wrap(err, "writing output")
		}
		if runEmitMap != "" {
			if err := ctx.Map.Write(runEmitMap); err != nil {
				return err
			}
			log.Debugf("wrote %d symbol map entries to %s", len(ctx.Map.Entries), runEmitMap)
		}
		return nil
	},
}

func buildPipeline(spec string) (*pass.Pipeline, error) {
	if spec == "" {
		return pass.Default()
	}
	specs, err := pass.ParsePipeline(spec)
	if err != nil {
		return nil, err
	}
	return pass.Build(specs)
}
