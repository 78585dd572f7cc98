package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"fm-sync/internal/checkpoint"
	"fm-sync/internal/load"
	"fm-sync/internal/resolve"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Truncate staging tables and clear their checkpoints",
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
		tgtDB, tgt, err := openTarget(cfg)
		if err != nil {
			return err
		}
		defer tgtDB.Close()

		tbls, err := discoverTables(ctx, srcDB, src, cfg)
		if err != nil {
			return err
		}

		store, err := checkpoint.NewFileStore(cfg.Sync.StateDir)
		if err != nil {
			return err
		}
		loader := load.New(tgtDB, tgt, cfg.Target.StagingSchema, resolve.New(true))

		count := 0
		for _, t := range tbls {
			if err := loader.Truncate(ctx, t.Name); err != nil {
				log.Printf("Warning: %v (continuing...)", err)
			}
			if err := store.Clear(t.Name); err != nil {
				return err
			}
			count++
			if count%5 == 0 || count == len(tbls) {
				log.Printf("Reset %d/%d tables...", count, len(tbls))
			}
		}

		log.Println("Staging Reset Successfully!")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(resetCmd)
}
