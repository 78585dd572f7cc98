package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type SourceConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type TargetConfig struct {
	Driver           string `mapstructure:"driver"`
	DSN              string `mapstructure:"dsn"`
	StagingSchema    string `mapstructure:"staging_schema"`
	ProductionSchema string `mapstructure:"production_schema"`
}

type SyncConfig struct {
	Chunk    int    `mapstructure:"chunk"`
	Workers  int    `mapstructure:"workers"`
	Retries  int    `mapstructure:"retries"`
	Timezone string `mapstructure:"timezone"`
	StateDir string `mapstructure:"state_dir"`
}

type TablesConfig struct {
	Include []string            `mapstructure:"include"`
	Keys    map[string][]string `mapstructure:"keys"`
}

type ExportConfig struct {
	Path         string   `mapstructure:"path"`
	Prefix       string   `mapstructure:"prefix"`
	ImageFormats []string `mapstructure:"image_formats"`
	JPEGQuality  int      `mapstructure:"jpeg_quality"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type Config struct {
	Source SourceConfig `mapstructure:"source"`
	Target TargetConfig `mapstructure:"target"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Tables TablesConfig `mapstructure:"tables"`
	Export ExportConfig `mapstructure:"export"`
	Log    LogConfig    `mapstructure:"log"`
}

// LoadConfig materializes the viper state into a validated Config.
func LoadConfig() (*Config, error) {
	viper.SetDefault("source.driver", "odbc")
	viper.SetDefault("target.driver", "postgres")
	viper.SetDefault("target.staging_schema", "staging")
	viper.SetDefault("target.production_schema", "public")
	viper.SetDefault("sync.chunk", 1000)
	viper.SetDefault("sync.workers", 2)
	viper.SetDefault("sync.retries", 3)
	viper.SetDefault("sync.state_dir", ".fm-sync")
	viper.SetDefault("export.path", "export")
	viper.SetDefault("export.prefix", "fm")
	viper.SetDefault("export.image_formats", []string{"jpg", "webp"})
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.level", "info")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Source.DSN == "" {
		return nil, fmt.Errorf("source.dsn is required (via config file)")
	}
	if cfg.Target.DSN == "" {
		return nil, fmt.Errorf("target.dsn is required (via config file)")
	}
	if cfg.Target.StagingSchema == cfg.Target.ProductionSchema {
		return nil, fmt.Errorf("staging and production schemas must differ")
	}
	return &cfg, nil
}

// Location resolves the configured source timezone. Naive source
// timestamps are interpreted in it.
func (c *Config) Location() (*time.Location, error) {
	if c.Sync.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid sync.timezone %q: %w", c.Sync.Timezone, err)
	}
	return loc, nil
}
