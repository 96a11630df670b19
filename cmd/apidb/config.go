package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iamlongalong/apidb/internal/config"
	"github.com/spf13/cobra"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "config",
		Short:             "Manage the apidb config file",
		PersistentPreRunE: a.setupNew,
	}
	cmd.AddCommand(a.configInitCmd())
	return cmd
}

func (a *app) configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Write the effective configuration to --config (default ./" + config.DefaultFileName + ")",
		Example: `  apidb --descriptor sdk/platforms/android-35/data/api-versions.xml --cache-dir ~/.cache/apidb config init`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				path = config.DefaultFileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			cfg := *a.cfg
			if cfg.Descriptor != "" {
				abs, err := filepath.Abs(cfg.Descriptor)
				if err != nil {
					return err
				}
				cfg.Descriptor = abs
			}
			if err := cfg.SaveToFile(path); err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), cfg, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote %s\n", path)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
