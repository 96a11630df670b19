package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/iamlongalong/apidb"
	"github.com/iamlongalong/apidb/internal/config"
	"github.com/spf13/cobra"
)

// app holds state shared by all subcommands of one invocation
type app struct {
	configPath string
	flags      config.Config
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "apidb",
		Short: "Query Android API levels from an api-versions.xml descriptor",
		Long: `apidb loads an api-versions.xml descriptor, keeps a packed binary
cache of it next to the descriptor (or in --cache-dir), and reports the
API levels at which classes, methods and fields were introduced,
deprecated and removed.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ./"+config.DefaultFileName+" if present)")
	pf.StringVar(&a.flags.Descriptor, "descriptor", "", "path to api-versions.xml (env "+config.EnvDescriptor+")")
	pf.StringVar(&a.flags.CacheDir, "cache-dir", "", "directory for packed caches")
	pf.StringVar(&a.flags.Platform, "platform", "", "platform tools version folded into cache names")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		a.buildCmd(),
		a.classCmd(),
		a.methodCmd(),
		a.fieldCmd(),
		a.castCmd(),
		a.removedCmd(),
		a.lsCmd(),
		a.packageCmd(),
		a.validateCmd(),
		a.fetchCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads the config and applies command line overrides
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	return a.apply(cmd, cfg)
}

// setupNew is setup for commands that create the config file, where an
// explicit --config path may not exist yet
func (a *app) setupNew(cmd *cobra.Command, args []string) error {
	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); errors.Is(err, os.ErrNotExist) {
			cfg := config.Default()
			cfg.ApplyEnv()
			return a.apply(cmd, cfg)
		}
	}
	return a.setup(cmd, args)
}

func (a *app) apply(cmd *cobra.Command, cfg *config.Config) error {
	cfg.Merge(&a.flags)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	return nil
}

func (a *app) options(extra ...apidb.Option) []apidb.Option {
	opts := []apidb.Option{
		apidb.WithLogger(a.logger),
		apidb.WithCacheDir(a.cfg.CacheDir),
		apidb.WithPlatformVersion(a.cfg.Platform),
	}
	return append(opts, extra...)
}

func (a *app) requireDescriptor() error {
	if a.cfg.Descriptor == "" {
		return fmt.Errorf("no descriptor configured: use --descriptor, %s or a config file", config.EnvDescriptor)
	}
	return nil
}

// lookup opens the descriptor through a registry so the packed cache is
// created or refreshed as needed
func (a *app) lookup(cmd *cobra.Command, extra ...apidb.Option) (*apidb.Lookup, *apidb.Registry, error) {
	if err := a.requireDescriptor(); err != nil {
		return nil, nil, err
	}
	reg, err := apidb.NewRegistry(a.options(extra...)...)
	if err != nil {
		return nil, nil, err
	}
	l, err := reg.Get(cmd.Context(), a.cfg.Descriptor)
	if err != nil {
		reg.Close()
		return nil, nil, err
	}
	return l, reg, nil
}

// withLookup runs fn against the configured descriptor
func (a *app) withLookup(fn func(cmd *cobra.Command, l *apidb.Lookup, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		l, reg, err := a.lookup(cmd)
		if err != nil {
			return err
		}
		defer reg.Close()
		return fn(cmd, l, args)
	}
}

// print writes v as indented JSON with --json, otherwise calls text
func (a *app) print(w io.Writer, v interface{}, text func(w io.Writer)) error {
	if a.jsonOutput {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	text(w)
	return nil
}

// level renders an API level, with "-" for none
func level(v int) string {
	if v == apidb.NoLevel {
		return "-"
	}
	return fmt.Sprint(v)
}
