package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fm-sync/internal/checkpoint"
	"fm-sync/internal/load"
	"fm-sync/internal/resolve"
)

var statusJSON bool

type tableStatusReport struct {
	Table       string    `json:"table"`
	SourceRows  int64     `json:"source_rows"`
	StagingRows int64     `json:"staging_rows"`
	Committed   int64     `json:"committed"`
	LastKey     []string  `json:"last_key,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	Behind      int64     `json:"behind"`
	State       string    `json:"state"` // migrated | partial | empty
}

func classify(source, staging int64) string {
	switch {
	case staging <= 0:
		return "empty"
	case source >= 0 && staging >= source:
		return "migrated"
	default:
		return "partial"
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare source and staging row counts per table",
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
		countSourceRows(ctx, srcDB, src, tbls)

		store, err := checkpoint.NewFileStore(cfg.Sync.StateDir)
		if err != nil {
			return err
		}
		loader := load.New(tgtDB, tgt, cfg.Target.StagingSchema, resolve.New(true))

		reports := make([]tableStatusReport, 0, len(tbls))
		for _, t := range tbls {
			r := tableStatusReport{Table: t.Name, SourceRows: t.RowCount, StagingRows: -1}
			if n, err := loader.Count(ctx, t.Name); err == nil {
				r.StagingRows = n
			}
			cp, err := store.Load(t.Name)
			if err != nil && !errors.Is(err, checkpoint.ErrNoCheckpoint) {
				return err
			}
			if cp != nil {
				r.Committed = cp.Rows
				r.LastKey = cp.LastKey
				r.RunID = cp.RunID
				r.UpdatedAt = cp.UpdatedAt
			}
			if r.SourceRows >= 0 && r.StagingRows >= 0 {
				r.Behind = r.SourceRows - r.StagingRows
			}
			r.State = classify(r.SourceRows, r.StagingRows)
			reports = append(reports, r)
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}

		fmt.Printf("%-20s %12s %12s %12s %-10s %s\n", "TABLE", "SOURCE", "STAGING", "BEHIND", "STATE", "LAST KEY")
		for _, r := range reports {
			lastKey := ""
			if len(r.LastKey) > 0 {
				lastKey = joinKey(r.LastKey)
			}
			fmt.Printf("%-20s %12d %12d %12d %-10s %s\n", r.Table, r.SourceRows, r.StagingRows, r.Behind, r.State, lastKey)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}
