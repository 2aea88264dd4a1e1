// Copyright (c) 2025, The Mirage Authors.
// See LICENSE for licensing information.

// Package cmd implements the mirage command tree.
package cmd

import (
	cryptorand "crypto/rand"
	"encoding/base64"
	"fmt"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mirageobf/mirage/internal/buildcfg"

	// Register the standard passes.
	_ "github.com/mirageobf/mirage/pkg/pass/breakcfg"
	_ "github.com/mirageobf/mirage/pkg/pass/flatten"
	_ "github.com/mirageobf/mirage/pkg/pass/junk"
	_ "github.com/mirageobf/mirage/pkg/pass/rename"
	_ "github.com/mirageobf/mirage/pkg/pass/strenc"
	_ "github.com/mirageobf/mirage/pkg/pass/strip"
	_ "github.com/mirageobf/mirage/pkg/pass/subst"
)

var (
	cfgFile   string
	verbose   bool
	noColor   bool
	cryptoKey string
	seed      seedFlag
)

var rootCmd = &cobra.Command{
	Use:           "mirage",
	Short:         "Obfuscate IR artifacts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose || viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = noColor
	},
}

// Execute runs the command tree and exits nonzero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihandler.Default)
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mirage/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().StringVar(&cryptoKey, "crypto-key", "", "crypto key (overrides "+buildcfg.EnvKey+" and the baked-in default)")
	rootCmd.PersistentFlags().Var(&seed, "seed", "rng seed: base64 bytes, or \"random\"")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "mirage"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("mirage")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	}
}

// key resolves the crypto key for this invocation.
func key() ([]byte, error) {
	return buildcfg.Key(cryptoKey)
}

// rng returns the pass randomness source, or nil when no seed was given so
// passes fall back to their fixed constants.
func rng() *mathrand.Rand {
	if !seed.present() {
		return nil
	}
	var s int64
	for i := 0; i < 8 && i < len(seed.bytes); i++ {
		s = s<<8 | int64(seed.bytes[i])
	}
	return mathrand.New(mathrand.NewSource(s))
}

// seedFlag accepts unpadded base64 seed bytes, or the word "random".
type seedFlag struct {
	random bool
	bytes  []byte
}

func (f *seedFlag) present() bool { return len(f.bytes) > 0 }

func (f *seedFlag) String() string {
	return base64.RawStdEncoding.EncodeToString(f.bytes)
}

func (f *seedFlag) Type() string { return "seed" }

func (f *seedFlag) Set(s string) error {
	if s == "random" {
		f.random = true // remembered so the chosen seed gets logged

		f.bytes = make([]byte, 16)
		if _, err := cryptorand.Read(f.bytes); err != nil {
			return fmt.Errorf("error generating random seed: %v", err)
		}
		return nil
	}
	// We expect unpadded base64, but accept padded strings too.
	seed, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return fmt.Errorf("error decoding seed: %v", err)
	}
	if len(seed) < 8 {
		return fmt.Errorf("--seed needs at least 8 bytes, have %d", len(seed))
	}
	f.bytes = seed
	return nil
}
