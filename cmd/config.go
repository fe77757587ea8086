package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"db-migrate/internal/dialect"
	"db-migrate/internal/resize"
	"db-migrate/internal/schema"
	"db-migrate/internal/transform"
)

type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Source      FileConfig        `mapstructure:"source"`
	Target      FileConfig        `mapstructure:"target"`
	Descriptor  string            `mapstructure:"descriptor"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Settings    SettingsConfig    `mapstructure:"settings"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
}

type FileConfig struct {
	Path string `mapstructure:"path"`
}

type AttachmentsConfig struct {
	Source       string `mapstructure:"source"`
	Target       string `mapstructure:"target"`
	MaxBytes     string `mapstructure:"max_bytes"` // e.g. "2 MiB", "0" disables
	MaxDimension int    `mapstructure:"max_dimension"`
	Quality      int    `mapstructure:"quality"`
	Backup       string `mapstructure:"backup"`
}

type SettingsConfig struct {
	Limit     int      `mapstructure:"limit"`
	Tables    []string `mapstructure:"tables"`
	SeedCount int      `mapstructure:"seed_count"`
	Seed      int64    `mapstructure:"seed"`
}

// setDefaults registers every key so DBMIGRATE_* variables reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("source.path", "")
	v.SetDefault("target.path", "")
	v.SetDefault("descriptor", "")
	v.SetDefault("attachments.source", "")
	v.SetDefault("attachments.target", "")
	v.SetDefault("attachments.max_bytes", "0")
	v.SetDefault("attachments.max_dimension", resize.DefaultMaxDimension)
	v.SetDefault("attachments.quality", resize.DefaultQuality)
	v.SetDefault("attachments.backup", "")
	v.SetDefault("settings.limit", 0)
	v.SetDefault("settings.tables", []string{})
	v.SetDefault("settings.seed_count", 100)
	v.SetDefault("settings.seed", 1)
}

// LoadConfig unmarshals and checks the effective configuration.
func LoadConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported database.driver %q (want sqlite or sqlite3)", c.Database.Driver)
	}
	if _, err := c.Attachments.Ceiling(); err != nil {
		return nil, err
	}
	if c.Settings.Limit < 0 {
		return nil, fmt.Errorf("settings.limit must not be negative")
	}
	return &c, nil
}

// Ceiling parses max_bytes. Zero means no ceiling.
func (a AttachmentsConfig) Ceiling() (int64, error) {
	if a.MaxBytes == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(a.MaxBytes)
	if err != nil {
		return 0, fmt.Errorf("attachments.max_bytes: %w", err)
	}
	return int64(n), nil
}

// Enabled reports whether both attachment trees are configured.
func (a AttachmentsConfig) Enabled() bool {
	return a.Source != "" && a.Target != ""
}

func (c *Config) Dialect() dialect.Dialect {
	return dialect.GetDialect(c.Database.Driver)
}

// OpenSource opens the source database read-only.
func (c *Config) OpenSource() (*sql.DB, error) {
	return c.openExisting(c.Source.Path, "source", true)
}

// OpenSourceForWrite opens the source database writable, for seeding.
func (c *Config) OpenSourceForWrite() (*sql.DB, error) {
	return c.openExisting(c.Source.Path, "source", false)
}

// OpenTarget opens the target database for writing.
func (c *Config) OpenTarget() (*sql.DB, error) {
	return c.openExisting(c.Target.Path, "target", false)
}

// openExisting refuses paths that do not exist; SQLite would create an
// empty database there.
func (c *Config) openExisting(path, key string, readOnly bool) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%s.path is required (via flag, config or DBMIGRATE_%s_PATH)", key, strings.ToUpper(key))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s database: %w", key, err)
	}
	return dialect.OpenSQLite(c.Dialect(), path, readOnly)
}

// LoadDescriptor builds the transform registry and loads the descriptor
// against it.
func (c *Config) LoadDescriptor() (*schema.Descriptor, *transform.Registry, error) {
	if c.Descriptor == "" {
		return nil, nil, &schema.ConfigError{Err: fmt.Errorf("%w: descriptor path is required", schema.ErrInvalidDescriptor)}
	}
	reg := transform.NewRegistry()
	if err := transform.RegisterStandard(reg); err != nil {
		return nil, nil, err
	}
	desc, err := schema.LoadFile(c.Descriptor, reg)
	if err != nil {
		return nil, nil, err
	}
	return desc, reg, nil
}

// TableFilter picks tables by flag, then config, then all (nil).
func (c *Config) TableFilter(flag []string) []string {
	if len(flag) > 0 {
		return flag
	}
	if len(c.Settings.Tables) > 0 {
		return c.Settings.Tables
	}
	return nil
}
