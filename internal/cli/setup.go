// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobiletoly/go-objsync/objsync"
	"github.com/mobiletoly/go-objsync/pgtarget"
	"github.com/mobiletoly/go-objsync/sqlitetarget"
)

// unitApplier applies one unit in its own transaction.
type unitApplier interface {
	Apply(ctx context.Context, unit *objsync.TransactionJobUnit) error
}

// Components are the parts wired for one command run.
type Components struct {
	Service *objsync.SyncService
	Runner  unitApplier
	Logger  *slog.Logger

	pool *pgxpool.Pool
	db   *sql.DB
}

func (c *Components) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.db != nil {
		_ = c.db.Close()
	}
}

// adapterFactory holds the document adapter constructors of one driver.
type adapterFactory struct {
	plain      func(objsync.EntityType, ...objsync.EntityType) objsync.DaoAdapter
	associated func(objsync.EntityType, map[objsync.EntityType]int) objsync.AssociatedDaoAdapter
}

// BuildRegistry registers a document adapter per configured type. Types used
// by unit but missing from the configuration are registered without
// dependencies when autoRegister is set.
func BuildRegistry(driver string, types []TypeConfig, unit *objsync.TransactionJobUnit, autoRegister bool) (*objsync.Registry, error) {
	f := adapterFactory{plain: sqlitetarget.NewDocumentAdapter, associated: sqlitetarget.NewAssociatedDocumentAdapter}
	if driver == DriverPostgres {
		f = adapterFactory{plain: pgtarget.NewDocumentAdapter, associated: pgtarget.NewAssociatedDocumentAdapter}
	}

	var adapters []objsync.DaoAdapter
	var strict []objsync.EntityType
	known := make(map[objsync.EntityType]bool)
	for _, tc := range types {
		t := objsync.EntityType(tc.Name)
		known[t] = true
		if len(tc.Owners) > 0 {
			if tc.StrictOwners {
				strict = append(strict, t)
			}
			owners := make(map[objsync.EntityType]int, len(tc.Owners))
			for _, o := range tc.Owners {
				owners[objsync.EntityType(o.Type)] = o.Position
			}
			adapters = append(adapters, f.associated(t, owners))
			continue
		}
		deps := make([]objsync.EntityType, 0, len(tc.DependsOn))
		for _, d := range tc.DependsOn {
			deps = append(deps, objsync.EntityType(d))
		}
		adapters = append(adapters, f.plain(t, deps...))
	}
	if autoRegister && unit != nil {
		for _, e := range unit.Entries {
			if e != nil && e.Type != "" && !known[e.Type] {
				known[e.Type] = true
				adapters = append(adapters, f.plain(e.Type))
			}
		}
	}
	registry, err := objsync.NewRegistry(adapters...)
	if err != nil {
		return nil, err
	}
	if err := registry.UseStrictLocator(strict...); err != nil {
		return nil, err
	}
	return registry, nil
}

// SetupTarget opens the configured target store, initializes its schema and
// wires a sync service with the configured hooks.
func SetupTarget(ctx context.Context, cfg *Config, registry *objsync.Registry, logger *slog.Logger) (*Components, error) {
	hooks := &objsync.HookConfig{}
	if cfg.Hooks != "" {
		var err error
		if hooks, err = objsync.LoadHookConfigFile(cfg.Hooks); err != nil {
			return nil, err
		}
	}

	comps := &Components{Logger: logger}
	var sinks objsync.HookSinks
	switch cfg.Target.Driver {
	case DriverPostgres:
		pool, err := openPool(ctx, cfg.Target.DSN, logger)
		if err != nil {
			return nil, err
		}
		comps.pool = pool
		sinks = pgtarget.HookSinks()
	case DriverSQLite:
		db, err := sqlitetarget.Open(ctx, cfg.Target.DSN, logger)
		if err != nil {
			return nil, err
		}
		comps.db = db
		sinks = sqlitetarget.HookSinks()
	default:
		return nil, fmt.Errorf("%w: unsupported target.driver %q", objsync.ErrConfiguration, cfg.Target.Driver)
	}

	service, err := objsync.NewSyncService(&objsync.ServiceConfig{
		Registry:            registry,
		Callbacks:           hooks.Callbacks(sinks),
		FailOnMissingRemove: cfg.FailOnMissingRemove,
		LogStageTimings:     logger.Enabled(ctx, slog.LevelDebug),
	}, logger)
	if err != nil {
		comps.Close()
		return nil, err
	}
	comps.Service = service

	if comps.pool != nil {
		comps.Runner, err = pgtarget.NewRunner(comps.pool, service,
			pgtarget.RunnerConfig{MaxAttempts: cfg.Retry.MaxAttempts, Backoff: cfg.Retry.Backoff}, logger)
	} else {
		comps.Runner, err = sqlitetarget.NewRunner(comps.db, service,
			sqlitetarget.RunnerConfig{MaxAttempts: cfg.Retry.MaxAttempts, Backoff: cfg.Retry.Backoff}, logger)
	}
	if err != nil {
		comps.Close()
		return nil, err
	}
	return comps, nil
}

func openPool(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse target.dsn: %w", objsync.ErrConfiguration, err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = time.Minute * 30
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := pgtarget.InitSchema(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
