package cmd

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"fm-sync/internal/ddl"
)

var (
	ddlToFiles bool
	ddlOut     string
)

var ddlCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Create target schemas and tables for the discovered source schema",
	Long: `Discovers the source schema and applies CREATE TABLE and primary key
statements to the staging and production schemas, idempotently. With
--to-files the statements are written as dated .sql files for review
instead of being executed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		srcDB, src, err := openSource(cfg)
		if err != nil {
			return err
		}
		defer srcDB.Close()

		log.Println("Discovering source schema...")
		tbls, err := discoverTables(ctx, srcDB, src, cfg)
		if err != nil {
			return err
		}
		log.Printf("Discovered %d tables", len(tbls))

		tgtDB, tgt, err := openTarget(cfg)
		if err != nil {
			return err
		}
		defer tgtDB.Close()

		gen := ddl.New(tgt, cfg.Target.StagingSchema, cfg.Target.ProductionSchema)

		if ddlToFiles {
			dir := ddlOut
			if dir == "" {
				dir = filepath.Join(cfg.Export.Path, "ddl")
			}
			paths, err := gen.WriteFiles(dir, cfg.Export.Prefix, tbls)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			fmt.Printf("Wrote %d DDL files to %s\n", len(paths), dir)
			return nil
		}

		conflicts, err := gen.Apply(ctx, tgtDB, tbls)
		for _, c := range conflicts {
			log.Printf("Warning: %v", c)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Applied DDL for %d tables (%d conflicts)\n", len(tbls), len(conflicts))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(ddlCmd)
	ddlCmd.Flags().BoolVar(&ddlToFiles, "to-files", false, "write the DDL as .sql files instead of executing it")
	ddlCmd.Flags().StringVar(&ddlOut, "out", "", "output directory for .sql files (default <export.path>/ddl)")
}
