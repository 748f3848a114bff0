// Command mshell runs bridge operations against an in-process memdb or a
// wasm-hosted runtime, either one command per invocation or as an
// interactive shell.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/mbridge/config"
	"github.com/wippyai/mbridge/dispatch"
	"github.com/wippyai/mbridge/engine"
	"github.com/wippyai/mbridge/memdb"
	"github.com/wippyai/mbridge/runtime"
	"github.com/wippyai/mbridge/traverse"
	"github.com/wippyai/mbridge/txn"
)

var (
	configPath string
	storePath  string
	mode       string
	charset    string
	backend    string
	wasmPath   string
)

var rootCmd = &cobra.Command{
	Use:   "mshell [command line]",
	Short: "Query and update a memdb database through the bridge",
	Long: `mshell evaluates one command line such as

  mshell 'set ^acct(1,"name")="Ada"'
  mshell 'dump ^acct'

or, without arguments on a terminal, starts an interactive shell.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("no command given and stdin is not a terminal")
			}
			return withSession(cmd.Context(), true, runInteractive)
		}
		return withSession(cmd.Context(), false, func(ctx context.Context, e *evaluator) error {
			out, err := e.eval(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		})
	},
}

var helpCmd = &cobra.Command{
	Use:   "commands",
	Short: "List shell commands",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := (&evaluator{}).help(cmd.Context(), "")
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "SQLite file for globals (overrides config)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "canonical or string (overrides config)")
	rootCmd.PersistentFlags().StringVar(&charset, "charset", "", "utf8 or byte (overrides config)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "memdb or wasm (overrides config)")
	rootCmd.PersistentFlags().StringVar(&wasmPath, "wasm", "", "guest module for the wasm backend; implies --backend wasm")
	rootCmd.AddCommand(helpCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if storePath != "" {
		cfg.DB.Store = storePath
	}
	if mode != "" {
		cfg.Session.Mode = mode
	}
	if charset != "" {
		cfg.Session.Charset = charset
	}
	if wasmPath != "" {
		cfg.Wasm.Path = wasmPath
		cfg.Backend = config.BackendWasm
	}
	if backend != "" {
		cfg.Backend = backend
	}
	return cfg, cfg.Validate()
}

// withSession opens a runtime over the configured backend, runs fn and
// closes it.
// Signal forwarding from the config applies only when signals is set.
func withSession(ctx context.Context, signals bool, fn func(context.Context, *evaluator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer log.Sync()
	for _, set := range []func(*zap.Logger){
		runtime.SetLogger, dispatch.SetLogger, engine.SetLogger, memdb.SetLogger, traverse.SetLogger, txn.SetLogger,
	} {
		set(log)
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	opts := cfg.Options()
	opts.Signals = opts.Signals && signals
	rt := runtime.New(b, opts)
	owner, err := rt.Open(ctx)
	if err != nil {
		b.Close(ctx)
		return err
	}
	defer owner.Close(context.WithoutCancel(ctx))
	return fn(ctx, &evaluator{s: rt.Session()})
}

// openBackend builds the configured runtime. Built-in routines exist only
// in memdb; a wasm guest brings its own.
func openBackend(ctx context.Context, cfg config.Config) (engine.Backend, error) {
	if cfg.Backend == config.BackendWasm {
		wb, err := cfg.WasmBackend(ctx)
		if err != nil {
			return nil, err
		}
		return wb, nil
	}
	db, err := memdb.New(cfg.MemDB())
	if err != nil {
		return nil, err
	}
	if err := registerBuiltins(db); err != nil {
		db.Close(ctx)
		return nil, err
	}
	return db, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
