// Package cmd is capsc's cobra command tree, grounded on
// stagedpipe-cli/cmd's package-scope-flag-vars-plus-init() idiom: each
// command file registers itself on rootCmd from its own init(), rather
// than one file wiring every command together.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/capslang/caps/internal/config"
)

var (
	v       = viper.New()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "capsc [file]",
	Short: "Compile and run CAPS pipeline programs",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		code, err := runFile(args[0], cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		exitCode = code
		return nil
	},
}

// exitCode carries runFile's exit status out of RunE, since cobra itself
// only distinguishes "error" from "no error" and CAPS needs three
// outcomes (ok / compile error / runtime deadlock or max-ticks).
var exitCode int

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml/json/toml)")
	if err := config.Bind(rootCmd, v); err != nil {
		panic(err)
	}
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	exitCode = 0
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}
