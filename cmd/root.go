package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fm-sync/internal/dialect"
	"fm-sync/internal/logging"
	"fm-sync/internal/schema"
)

var (
	cfgFile string
	debug   bool
	tables  []string
)

var RootCmd = &cobra.Command{
	Use:   "fm-sync",
	Short: "FileMaker to SQL migration and sync tool",
	Long: `fm-sync migrates and incrementally syncs data out of a legacy
FileMaker database (reached over ODBC) into a modern SQL target.

It discovers the source schema, generates staging and production DDL,
streams rows in resumable keyset chunks, and exports container images
to disk as transcoded files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := viper.GetString("log.level")
		if debug {
			level = "debug"
		}
		logging.Setup(logging.Config{Format: viper.GetString("log.format"), Level: level})
		return nil
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./fm-sync.yaml)")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	RootCmd.PersistentFlags().StringSliceVarP(&tables, "tables", "t", nil, "restrict to these source tables")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// 1. Executable Directory (Priority 1)
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		// 2. Current Directory (Priority 2)
		viper.AddConfigPath(".")

		viper.SetConfigName("fm-sync")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FMSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func openSource(cfg *Config) (*sql.DB, dialect.Source, error) {
	db, err := sql.Open(cfg.Source.Driver, cfg.Source.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open source: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to source: %w", err)
	}
	// The ODBC bridge serializes badly under concurrent statements.
	db.SetMaxOpenConns(4)
	return db, dialect.GetSource(cfg.Source.Driver), nil
}

func openTarget(cfg *Config) (*sql.DB, dialect.Target, error) {
	db, err := sql.Open(normalizeDriver(cfg.Target.Driver), cfg.Target.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open target: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to target: %w", err)
	}
	return db, dialect.GetTarget(cfg.Target.Driver), nil
}

func normalizeDriver(driver string) string {
	if driver == "mssql" {
		return "sqlserver"
	}
	return driver
}

// discoverTables runs source discovery with the filter precedence
// flag > config > all tables.
func discoverTables(ctx context.Context, db *sql.DB, src dialect.Source, cfg *Config) ([]*schema.Table, error) {
	filter := tables
	if len(filter) == 0 {
		filter = cfg.Tables.Include
	}
	return schema.Discover(ctx, db, src, filter, cfg.Tables.Keys)
}

// countSourceRows fills in RowCount for progress totals. Count failures
// leave the total unknown rather than failing the run.
func countSourceRows(ctx context.Context, db *sql.DB, src dialect.Source, tbls []*schema.Table) {
	for _, t := range tbls {
		var n int64
		if err := db.QueryRowContext(ctx, src.CountQuery(t.Name)).Scan(&n); err == nil {
			t.RowCount = n
		}
	}
}
