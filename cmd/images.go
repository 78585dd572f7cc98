package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"fm-sync/internal/extract"
	"fm-sync/internal/imagepipe"
)

var (
	imagesOverwrite bool
	imagesStartFrom string
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Export container images without touching the target database",
	Long: `Streams only the container columns out of the source and writes them
as transcoded image files under <export.path>/images/<format>/. Files
that already exist are skipped, so an interrupted export just gets
rerun.`,
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

		formats, err := parseFormats(cfg.Export.ImageFormats)
		if err != nil {
			return err
		}
		exporter, err := imagepipe.NewExporter(cfg.Export.Path, formats, cfg.Export.JPEGQuality, imagesOverwrite, cfg.Sync.Workers)
		if err != nil {
			return err
		}

		startKeys := map[string][]string{}
		if imagesStartFrom != "" {
			keyed, err := startFromKeysFor(tbls, imagesStartFrom)
			if err != nil {
				return err
			}
			startKeys = keyed
		}

		for _, t := range tbls {
			for _, f := range t.ContainerFields() {
				log.Printf("Exporting %s.%s", t.Name, f.Name)
				stream, err := extract.NewBlobStream(srcDB, src, t, f.Name, cfg.Sync.Chunk, startKeys[t.Name])
				if err != nil {
					log.Printf("Warning: %v (skipping)", err)
					continue
				}
				for {
					if err := ctx.Err(); err != nil {
						break
					}
					blobs, err := stream.Next(ctx)
					if err != nil {
						log.Printf("Warning: %v (table aborted)", err)
						break
					}
					if blobs == nil {
						break
					}
					for _, b := range blobs {
						exporter.Submit(imagepipe.Job{
							Table: t.Name,
							Key:   joinKey(b.Key),
							Field: f.Name,
							Data:  b.Data,
						})
					}
				}
			}
		}

		stats := exporter.Wait()
		fmt.Printf("Images: %d written, %d skipped, %d failed\n", stats.Written, stats.Skipped, stats.Failed)
		for _, e := range stats.Errs {
			log.Printf("Warning: %v", e)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(imagesCmd)
	imagesCmd.Flags().BoolVar(&imagesOverwrite, "overwrite", false, "re-export images that already exist on disk")
	imagesCmd.Flags().StringVar(&imagesStartFrom, "start-from", "", "resume after this key (single table only)")
}
