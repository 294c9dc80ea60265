// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mobiletoly/go-objsync/objsync"
)

const envPrefix = "OBJSYNC"

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the command line configuration, read by viper from the config
// file, OBJSYNC_* environment variables and flags.
type Config struct {
	Target TargetConfig `mapstructure:"target"`
	Hooks  string       `mapstructure:"hooks"` // path of the hook YAML, optional
	Retry  RetryConfig  `mapstructure:"retry"`
	Log    LogConfig    `mapstructure:"log"`
	Types  []TypeConfig `mapstructure:"types"`

	FailOnMissingRemove bool `mapstructure:"fail_on_missing_remove"`
	SortEntries         bool `mapstructure:"sort_entries"`
}

type TargetConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TypeConfig registers one document type. Types with owners get an
// associated adapter; the owner position is the index of the owner guid
// within the composite guid. With strict_owners every owner guid must resolve
// to an existing entity when a composite document is written.
type TypeConfig struct {
	Name         string        `mapstructure:"name"`
	DependsOn    []string      `mapstructure:"depends_on"`
	Owners       []OwnerConfig `mapstructure:"owners"`
	StrictOwners bool          `mapstructure:"strict_owners"`
}

// OwnerConfig is a list entry rather than a map key since viper lowercases keys.
type OwnerConfig struct {
	Type     string `mapstructure:"type"`
	Position int    `mapstructure:"position"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("target.driver", DriverSQLite)
	v.SetDefault("target.dsn", "objsync.db")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff", 50*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("hooks", "")
	v.SetDefault("fail_on_missing_remove", false)
	v.SetDefault("sort_entries", false)
	return v
}

// LoadConfig reads the optional config file and decodes the merged settings.
func LoadConfig(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Target.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: unsupported target.driver %q", objsync.ErrConfiguration, c.Target.Driver)
	}
	if c.Target.DSN == "" {
		return fmt.Errorf("%w: target.dsn is required", objsync.ErrConfiguration)
	}
	for i, t := range c.Types {
		if t.Name == "" {
			return fmt.Errorf("%w: types[%d] has no name", objsync.ErrConfiguration, i)
		}
		if t.StrictOwners && len(t.Owners) == 0 {
			return fmt.Errorf("%w: types[%d] %s sets strict_owners without owners", objsync.ErrConfiguration, i, t.Name)
		}
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, errors.Join(objsync.ErrConfiguration, fmt.Errorf("log.level: %w", err))
	}
	return l, nil
}
