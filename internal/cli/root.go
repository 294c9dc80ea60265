// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the objsync command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mobiletoly/go-objsync/objsync"
	"github.com/mobiletoly/go-objsync/sqlitetarget"
)

type app struct {
	v          *viper.Viper
	configFile string
	cfg        *Config
	logger     *slog.Logger
}

// NewRootCommand builds the objsync command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: newViper()}

	root := &cobra.Command{
		Use:           "objsync",
		Short:         "Apply transaction job units to a target store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (yaml, json or toml)")
	flags.String("driver", "", "Target driver: postgres or sqlite")
	flags.String("dsn", "", "Target data source name")
	flags.String("hooks", "", "Hook configuration YAML file")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	_ = a.v.BindPFlag("target.driver", flags.Lookup("driver"))
	_ = a.v.BindPFlag("target.dsn", flags.Lookup("dsn"))
	_ = a.v.BindPFlag("hooks", flags.Lookup("hooks"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(a.applyCommand(), a.initSchemaCommand())
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	level, err := ParseLogLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *app) applyCommand() *cobra.Command {
	var autoRegister bool
	cmd := &cobra.Command{
		Use:   "apply <unit-file>",
		Short: "Apply one unit file (json or yaml) in a single transaction",
		Long: `Apply the entries of a unit file to the target store. Either every
entry is applied and committed, or nothing is and the failing entry is
printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runApply(cmd.Context(), cmd, args[0], autoRegister)
		},
	}
	cmd.Flags().BoolVar(&autoRegister, "auto-register", false, "Register unconfigured types found in the unit")
	cmd.Flags().Bool("sort", false, "Reorder entries by type dependencies before applying")
	cmd.Flags().Bool("fail-on-missing-remove", false, "Fail the unit when a REMOVE deletes nothing")
	_ = a.v.BindPFlag("sort_entries", cmd.Flags().Lookup("sort"))
	_ = a.v.BindPFlag("fail_on_missing_remove", cmd.Flags().Lookup("fail-on-missing-remove"))
	return cmd
}

func (a *app) runApply(ctx context.Context, cmd *cobra.Command, path string, autoRegister bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	unit, err := ReadUnitFile(path)
	if err != nil {
		return err
	}
	registry, err := BuildRegistry(a.cfg.Target.Driver, a.cfg.Types, unit, autoRegister)
	if err != nil {
		return err
	}
	if a.cfg.SortEntries {
		priorities, err := registry.TypePriorities()
		if err != nil {
			return err
		}
		unit.SortByPriority(priorities)
	}

	comps, err := SetupTarget(ctx, a.cfg, registry, a.logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	if err := comps.Runner.Apply(ctx, unit); err != nil {
		if se, ok := objsync.AsSyncError(err); ok {
			out, _ := json.Marshal(se.Item)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", out)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied unit %s: %d entries\n", unit.Name, unit.Len())
	return nil
}

func (a *app) initSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the objsync tables in the target store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			switch a.cfg.Target.Driver {
			case DriverPostgres:
				pool, err := openPool(ctx, a.cfg.Target.DSN, a.logger)
				if err != nil {
					return err
				}
				pool.Close()
			default:
				db, err := sqlitetarget.Open(ctx, a.cfg.Target.DSN, a.logger)
				if err != nil {
					return err
				}
				_ = db.Close()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", a.cfg.Target.Driver)
			return nil
		},
	}
}

// exit codes used by main
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case objsync.IsConfigurationError(err):
		return ExitConfiguration
	default:
		return ExitFailure
	}
}
