// Package config layers capsc's configuration: cobra flags take
// precedence, falling back to environment variables and then a config
// file via spf13/viper, the same flag-binding idiom the
// stagedpipe-cli tool's cobra tree uses for its own flags
// (StringVarP/BoolVarP registered in each command's init()), generalized
// here to also accept a file so a batch job's settings don't have to be
// re-typed as flags every invocation.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is capsc's resolved configuration, after flags, environment
// variables (CAPS_* prefix) and config file have been merged in that
// precedence order.
type Config struct {
	MaxTicks    uint64
	Trace       string
	DumpAST     bool
	DumpTopo    string
	CheckOnly   bool
	PostgresDSN string
}

// Bind registers capsc's persistent flags on cmd and binds them into v,
// so v.Get* calls see a flag's value when set and fall back to the
// environment / config file otherwise.
func Bind(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	flags.Uint64("max-ticks", 1_000_000, "stop a run after this many ticks without reaching a terminal state")
	flags.String("trace", "none", "trace sink: none, text, otel, or postgres")
	flags.Bool("dump-ast", false, "print the parsed AST before checking and running")
	flags.String("dump-topology", "", "print the pipeline topology (dot or text) before running")
	flags.Bool("check-only", false, "run lex/parse/sema/pipeline checks and exit without executing")
	flags.String("postgres-dsn", "", "connection string for the postgres trace/history sinks")

	for _, name := range []string{"max-ticks", "trace", "dump-ast", "dump-topology", "check-only", "postgres-dsn"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("config: binding --%s: %w", name, err)
		}
	}

	v.SetEnvPrefix("caps")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return nil
}

// Load reads an optional config file at path (if non-empty) into v and
// returns the merged Config. A missing path is not an error; a malformed
// file at a given path is.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	return Config{
		MaxTicks:    v.GetUint64("max-ticks"),
		Trace:       v.GetString("trace"),
		DumpAST:     v.GetBool("dump-ast"),
		DumpTopo:    v.GetString("dump-topology"),
		CheckOnly:   v.GetBool("check-only"),
		PostgresDSN: v.GetString("postgres-dsn"),
	}, nil
}
