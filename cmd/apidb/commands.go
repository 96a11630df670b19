package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/iamlongalong/apidb"
	"github.com/iamlongalong/apidb/internal/fetch"
	"github.com/spf13/cobra"
)

// levelsOutput is the JSON shape of a class or member query
type levelsOutput struct {
	Name         string `json:"name"`
	Known        bool   `json:"known"`
	Since        int    `json:"since"`
	DeprecatedIn int    `json:"deprecated_in"`
	RemovedIn    int    `json:"removed_in"`
}

func (o levelsOutput) text(w io.Writer) {
	if !o.Known {
		fmt.Fprintf(w, "%s: not found\n", o.Name)
		return
	}
	fmt.Fprintf(w, "%s\n  since:      %s\n  deprecated: %s\n  removed:    %s\n",
		o.Name, level(o.Since), level(o.DeprecatedIn), level(o.RemovedIn))
}

func (a *app) buildCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create or refresh the packed cache for the descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			l, reg, err := a.lookup(cmd, apidb.WithForceRegenerate(force))
			if err != nil {
				return err
			}
			defer reg.Close()

			out := struct {
				Descriptor string `json:"descriptor"`
				Cache      string `json:"cache"`
				Packed     bool   `json:"packed"`
				Elapsed    string `json:"elapsed"`
			}{
				Descriptor: a.cfg.Descriptor,
				Cache:      reg.CachePath(a.cfg.Descriptor),
				Packed:     l.Packed(),
				Elapsed:    time.Since(start).Round(time.Millisecond).String(),
			}
			return a.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				if !out.Packed {
					fmt.Fprintf(w, "Cache could not be written, descriptor parsed in %s\n", out.Elapsed)
					return
				}
				fmt.Fprintf(w, "Cache ready: %s (%s)\n", out.Cache, out.Elapsed)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if the cache is up to date")
	return cmd
}

func (a *app) classCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "class <name>",
		Short: "Show the API levels of a class",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLookup(func(cmd *cobra.Command, l *apidb.Lookup, args []string) error {
			out := levelsOutput{
				Name:         args[0],
				Known:        l.ContainsClass(args[0]),
				Since:        l.ClassVersion(args[0]),
				DeprecatedIn: l.ClassDeprecatedIn(args[0]),
				RemovedIn:    l.ClassRemovedIn(args[0]),
			}
			return a.print(cmd.OutOrStdout(), out, out.text)
		}),
	}
}

func (a *app) methodCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "method <owner> <name> <descriptor>",
		Short: "Show the API levels of a method, following supertypes",
		Example: `  apidb method android/app/Activity onCreate "(Landroid/os/Bundle;)V"
  apidb method android/view/View "<init>" "(Landroid/content/Context;)V"`,
		Args: cobra.ExactArgs(3),
		RunE: a.withLookup(func(cmd *cobra.Command, l *apidb.Lookup, args []string) error {
			owner, name, desc := args[0], args[1], args[2]
			since := l.MethodVersion(owner, name, desc)
			out := levelsOutput{
				Name:         owner + "#" + name + desc,
				Known:        since != apidb.NoLevel,
				Since:        since,
				DeprecatedIn: l.MethodDeprecatedIn(owner, name, desc),
				RemovedIn:    l.MethodRemovedIn(owner, name, desc),
			}
			return a.print(cmd.OutOrStdout(), out, out.text)
		}),
	}
}

func (a *app) fieldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "field <owner> <name>",
		Short: "Show the API levels of a field, following supertypes",
		Args:  cobra.ExactArgs(2),
		RunE: a.withLookup(func(cmd *cobra.Command, l *apidb.Lookup, args []string) error {
			owner, name := args[0], args[1]
			since := l.FieldVersion(owner, name)
			out := levelsOutput{
				Name:         owner + "#" + name,
				Known:        since != apidb.NoLevel,
				Since:        since,
				DeprecatedIn: l.FieldDeprecatedIn(owner, name),
				RemovedIn:    l.FieldRemovedIn(owner, name),
			}
			return a.print(cmd.OutOrStdout(), out, out.text)
		}),
	}
}

func (a *app) castCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cast <source> <destination>",
		Short: "Show the API level from which source can be cast to destination",
		Args:  cobra.ExactArgs(2),
		RunE: a.withLookup(func(cmd *cobra.Command, l *apidb.Lookup, args []string) error {
			out := struct {
				Source      string `json:"source"`
				Destination string `json:"destination"`
				Since       int    `json:"since"`
			}{args[0], args[1], l.ValidCastVersion(args[0], args[1])}
			return a.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "%s -> %s: %s\n", out.Source, out.Destination, level(out.Since))
			})
		}),
	}
}

func (a *app) removedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "removed <owner>",
		Short: "List the fields and methods removed from a class, including inherited ones",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLookup(func(cmd *cobra.Command, l *apidb.Lookup, args []string) error {
			fields, ok := l.RemovedFields(args[0])
			if !ok {
				return fmt.Errorf("class %s: %w", args[0], apidb.ErrNotFound)
			}
			methods, _ := l.RemovedMethods(args[0])
			out := struct {
				Owner   string         `json:"owner"`
				Fields  []apidb.Member `json:"fields"`
				Methods []apidb.Member `json:"methods"`
			}{args[0], fields, methods}
			return a.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				if len(fields)+len(methods) == 0 {
					fmt.Fprintf(w, "%s: nothing removed\n", out.Owner)
					return
				}
				for _, m := range append(fields, methods...) {
					fmt.Fprintf(w, "%-6s %-50s since %-3s removed %s\n",
						m.Kind, m.Name, level(m.Since), level(m.RemovedIn))
				}
			})
		}),
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <pattern>",
		Short: "List classes whose internal name matches a glob pattern",
		Example: `  apidb ls 'android/app/*'
  apidb ls 'android/**/*$*'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireDescriptor(); err != nil {
				return err
			}
			db, err := apidb.ParseFile(cmd.Context(), a.cfg.Descriptor, apidb.WithLogger(a.logger))
			if err != nil {
				return err
			}
			classes, err := db.Match(args[0])
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), classes, func(w io.Writer) {
				for _, cls := range classes {
					fmt.Fprintf(w, "%-60s %s\n", cls.Name, level(cls.Since))
				}
			})
		},
	}
}

func (a *app) packageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "package <name>",
		Short: "Report whether a name is a platform package",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLookup(func(cmd *cobra.Command, l *apidb.Lookup, args []string) error {
			out := struct {
				Name  string `json:"name"`
				Valid bool   `json:"valid"`
			}{args[0], l.IsValidJavaPackage(args[0], len(args[0]))}
			return a.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				if out.Valid {
					fmt.Fprintf(w, "%s: platform package\n", out.Name)
					return
				}
				fmt.Fprintf(w, "%s: not a platform package\n", out.Name)
			})
		}),
	}
}

// errInvalidDescriptor makes validate exit non-zero without repeating its report
var errInvalidDescriptor = errors.New("descriptor has errors")

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the descriptor for inconsistent levels and supertypes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireDescriptor(); err != nil {
				return err
			}
			result, err := apidb.ValidateFile(cmd.Context(), a.cfg.Descriptor, apidb.WithLogger(a.logger))
			if err != nil {
				return err
			}
			err = a.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "Validated %d classes in %s\n", result.Classes, result.Path)
				if len(result.Errors) > 0 {
					fmt.Fprintln(w, "Errors:")
					for _, e := range result.Errors {
						fmt.Fprintf(w, "  - %s\n", e)
					}
				}
				if len(result.Warnings) > 0 {
					fmt.Fprintln(w, "Warnings:")
					for _, warn := range result.Warnings {
						fmt.Fprintf(w, "  - %s: %s\n", warn.Type, warn.Message)
					}
				}
			})
			if err != nil {
				return err
			}
			if !result.Valid() {
				return fmt.Errorf("%w: %d", errInvalidDescriptor, len(result.Errors))
			}
			return nil
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the descriptor from --url or fetch_url into the descriptor path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.FetchURL == "" {
				return errors.New("no URL configured: use --url or fetch_url in the config file")
			}
			dest := a.cfg.Descriptor
			if dest == "" {
				dest = apidb.XMLFileName
			}
			n, err := fetch.Fetch(cmd.Context(), a.cfg.FetchURL, dest, a.logger)
			if err != nil {
				return err
			}
			out := struct {
				URL   string `json:"url"`
				Path  string `json:"path"`
				Bytes int64  `json:"bytes"`
			}{a.cfg.FetchURL, dest, n}
			return a.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote %d bytes to %s\n", out.Bytes, out.Path)
			})
		},
	}
	cmd.Flags().StringVar(&a.flags.FetchURL, "url", "", "descriptor URL")
	return cmd
}
