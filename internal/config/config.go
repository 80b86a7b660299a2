// Package config loads flowgraph settings from defaults, an optional settings
// file, FLOWGRAPH_* environment variables and command-line flags, in increasing
// order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName names the settings file and directory.
	AppName = "flowgraph"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "FLOWGRAPH"
)

// Config holds all flowgraph configuration.
type Config struct {
	DBPath      string `mapstructure:"db_path"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	PoolSize    int    `mapstructure:"pool_size"`
	PageSize    int    `mapstructure:"page_size"`
	VerifyGraph bool   `mapstructure:"verify_graph"`
	DryRun      bool   `mapstructure:"dry_run"`

	// Schedule, when set, makes migrate repeat on this cron schedule.
	Schedule string `mapstructure:"schedule"`

	// File is the settings file that was read, if any.
	File string `mapstructure:"-"`
}

// Dir returns the flowgraph home directory, ~/.flowgraph.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, "."+AppName)
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath:      filepath.Join(Dir(), AppName+".db"),
		LogLevel:    "info",
		LogFormat:   "text",
		PoolSize:    4,
		PageSize:    100,
		VerifyGraph: true,
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"db-path":      "db_path",
	"log-level":    "log_level",
	"log-format":   "log_format",
	"pool-size":    "pool_size",
	"page-size":    "page_size",
	"verify-graph": "verify_graph",
	"dry-run":      "dry_run",
	"schedule":     "schedule",
}

// Load builds the configuration. cfgFile, when set, must exist; otherwise
// settings.{yaml,json} is looked up in the current directory and Dir().
// flags may be nil; only the flags of flagKeys that are present are bound.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("verify_graph", d.VerifyGraph)
	v.SetDefault("dry_run", d.DryRun)
	v.SetDefault("schedule", d.Schedule)
}

// Write saves cfg as a settings file at path; the extension selects the format.
// An existing file is only replaced when overwrite is set.
func Write(cfg *Config, path string, overwrite bool) error {
	v := viper.New()
	v.Set("db_path", cfg.DBPath)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("pool_size", cfg.PoolSize)
	v.Set("page_size", cfg.PageSize)
	v.Set("verify_graph", cfg.VerifyGraph)
	v.Set("dry_run", cfg.DryRun)
	v.Set("schedule", cfg.Schedule)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	var err error
	if overwrite {
		err = v.WriteConfigAs(path)
	} else {
		err = v.SafeWriteConfigAs(path)
	}
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	if c.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("pool_size must be positive, got %d", c.PoolSize))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the libSQL connection string for DBPath.
func (c *Config) DSN() string {
	if strings.HasPrefix(c.DBPath, "file:") || strings.Contains(c.DBPath, "://") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}
