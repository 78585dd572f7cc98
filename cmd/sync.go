package cmd

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"

	"fm-sync/internal/checkpoint"
	"fm-sync/internal/ddl"
	"fm-sync/internal/imagepipe"
	"fm-sync/internal/load"
	"fm-sync/internal/resolve"
	"fm-sync/internal/schema"
	"fm-sync/internal/syncer"
)

var (
	startFrom   string
	maxRows     int
	chunkSize   int
	noOverwrite bool
	noImages    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Incrementally sync source rows into the staging schema",
	Long: `Streams new and changed rows from the source into the staging schema,
resuming each table from its last committed checkpoint. The target schema
is assumed to exist (run ddl or migrate first). Conflicting rows are
updated in full unless --no-overwrite keeps the existing ones.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, true, false, true)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run a full migration: DDL, then every table from the top",
	Long: `Aligns the target schemas and runs a complete migration pass ignoring
stored checkpoints. With --clean the staging tables are truncated and
checkpoints cleared first, so the target ends up as an exact copy of the
source.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, false, migrateClean, false)
	},
}

var migrateClean bool

func init() {
	RootCmd.AddCommand(syncCmd)
	RootCmd.AddCommand(migrateCmd)

	for _, c := range []*cobra.Command{syncCmd, migrateCmd} {
		c.Flags().StringVar(&startFrom, "start-from", "", "resume after this key (composite keys comma-separated, single table only)")
		c.Flags().IntVar(&maxRows, "max-rows", 0, "stop each table after this many rows (0 = all)")
		c.Flags().IntVar(&chunkSize, "chunk", 0, "rows per batch (default from config)")
		c.Flags().BoolVar(&noOverwrite, "no-overwrite", false, "keep existing target rows on conflict")
		c.Flags().BoolVar(&noImages, "no-images", false, "skip container image export")
	}
	migrateCmd.Flags().BoolVar(&migrateClean, "clean", false, "truncate staging tables and clear checkpoints first")
}

func runSync(cmd *cobra.Command, resume, clean, skipDDL bool) error {
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

	log.Println("Discovering source schema...")
	tbls, err := discoverTables(ctx, srcDB, src, cfg)
	if err != nil {
		return err
	}
	countSourceRows(ctx, srcDB, src, tbls)
	log.Printf("Discovered %d tables", len(tbls))

	store, err := checkpoint.NewFileStore(cfg.Sync.StateDir)
	if err != nil {
		return err
	}

	loader := load.New(tgtDB, tgt, cfg.Target.StagingSchema, resolve.New(!noOverwrite))
	if clean {
		for _, t := range tbls {
			log.Printf("Truncating %s.%s", cfg.Target.StagingSchema, t.Name)
			if err := loader.Truncate(ctx, t.Name); err != nil {
				log.Printf("Warning: %v (continuing...)", err)
			}
			if err := store.Clear(t.Name); err != nil {
				return err
			}
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var exporter *imagepipe.Exporter
	if !noImages {
		formats, err := parseFormats(cfg.Export.ImageFormats)
		if err != nil {
			return err
		}
		exporter, err = imagepipe.NewExporter(cfg.Export.Path, formats, cfg.Export.JPEGQuality, false, cfg.Sync.Workers)
		if err != nil {
			return err
		}
	}

	startKeys, err := startFromKeysFor(tbls, startFrom)
	if err != nil {
		return err
	}

	chunk := cfg.Sync.Chunk
	if chunkSize > 0 {
		chunk = chunkSize
	}

	// Progress bars, one per table.
	uiprogress.Start()
	bars := make(map[string]*uiprogress.Bar, len(tbls))
	var barMu sync.Mutex
	for _, t := range tbls {
		total := int(t.RowCount)
		if maxRows > 0 && maxRows < total {
			total = maxRows
		}
		if total <= 0 {
			total = 1
		}
		name := t.Name
		bar := uiprogress.AddBar(total).AppendCompleted().PrependElapsed()
		bar.PrependFunc(func(b *uiprogress.Bar) string {
			return fmt.Sprintf("%-20s", name)
		})
		bars[t.Name] = bar
	}

	coord := syncer.New(srcDB, tgtDB, src,
		ddl.New(tgt, cfg.Target.StagingSchema, cfg.Target.ProductionSchema),
		loader, store, syncer.Options{
			Chunk:     chunk,
			MaxRows:   maxRows,
			Workers:   cfg.Sync.Workers,
			Retries:   cfg.Sync.Retries,
			Resume:    resume,
			SkipDDL:   skipDDL,
			Location:  loc,
			StartFrom: startKeys,
			Images:    exporter,
			Progress: func(e syncer.Event) {
				barMu.Lock()
				defer barMu.Unlock()
				if bar, ok := bars[e.Table]; ok {
					n := int(e.Rows)
					if n > bar.Total {
						n = bar.Total
					}
					bar.Set(n)
				}
			},
		})

	log.Printf("Starting run %s with chunk=%d workers=%d", coord.RunID(), chunk, cfg.Sync.Workers)
	start := time.Now()
	summary, err := coord.Run(ctx, tbls)
	uiprogress.Stop()
	if err != nil {
		return err
	}

	if exporter != nil {
		stats := exporter.Wait()
		fmt.Printf("\nImages: %d written, %d skipped, %d failed\n", stats.Written, stats.Skipped, stats.Failed)
		for _, e := range stats.Errs {
			log.Printf("Warning: %v", e)
		}
	}

	printSummary(summary, time.Since(start))
	if summary.State == syncer.StateFailed {
		return fmt.Errorf("run %s failed", summary.RunID)
	}
	return nil
}

// startFromKeysFor turns a --start-from value into per-table resume keys.
// The flag is only meaningful when exactly one table is selected.
func startFromKeysFor(tbls []*schema.Table, value string) (map[string][]string, error) {
	if value == "" {
		return nil, nil
	}
	if len(tbls) != 1 {
		return nil, fmt.Errorf("--start-from requires exactly one table (use --tables)")
	}
	t := tbls[0]
	key := strings.Split(value, ",")
	for i := range key {
		key[i] = strings.TrimSpace(key[i])
	}
	if len(key) != len(t.KeyFields) {
		return nil, fmt.Errorf("--start-from has %d components, table %s key has %d", len(key), t.Name, len(t.KeyFields))
	}
	return map[string][]string{t.Name: key}, nil
}

func printSummary(s *syncer.Summary, elapsed time.Duration) {
	fmt.Printf("\n📊 Run %s: %s\n", s.RunID, s.State)
	var total int64
	for i, t := range s.Tables {
		icon := "✓"
		if t.State == syncer.StateFailed {
			icon = "!"
		}
		fmt.Printf("[%s] [%02d/%02d] %-20s : %d rows (ins %d, upd %d, dup %d, rej %d) - %s\n",
			icon, i+1, len(s.Tables), t.Table, t.Result.Rows(),
			t.Result.Inserted, t.Result.Updated, t.Result.Duplicates, t.Result.Rejected, t.State)
		if t.Err != nil {
			fmt.Printf("    └ Error: %v\n", t.Err)
		}
		for _, r := range t.Result.Rejects {
			fmt.Printf("    └ Rejected %s: %s\n", r.Key, r.Reason)
		}
		total += t.Result.Rows()
	}
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Total Rows: %d\n", total)
	log.Printf("Done! Time Elapsed: %s", elapsed)
}

func joinKey(key []string) string {
	return strings.Join(key, "|")
}

func parseFormats(names []string) ([]imagepipe.Format, error) {
	out := make([]imagepipe.Format, 0, len(names))
	for _, n := range names {
		f, err := imagepipe.ParseFormat(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
