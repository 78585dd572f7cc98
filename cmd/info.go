package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the discovered source schema",
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

		tbls, err := discoverTables(ctx, srcDB, src, cfg)
		if err != nil {
			return err
		}
		countSourceRows(ctx, srcDB, src, tbls)

		if infoJSON {
			type fieldInfo struct {
				Name       string `json:"name"`
				SourceType string `json:"source_type"`
				Kind       string `json:"kind"`
				Length     int    `json:"length,omitempty"`
				Nullable   bool   `json:"nullable"`
			}
			type tableInfo struct {
				Name   string      `json:"name"`
				Key    []string    `json:"key"`
				Rows   int64       `json:"rows"`
				Fields []fieldInfo `json:"fields"`
			}
			out := make([]tableInfo, 0, len(tbls))
			for _, t := range tbls {
				ti := tableInfo{Name: t.Name, Key: t.KeyFields, Rows: t.RowCount}
				for _, f := range t.Fields {
					ti.Fields = append(ti.Fields, fieldInfo{
						Name: f.Name, SourceType: f.SourceType,
						Kind: string(f.Kind), Length: f.Length, Nullable: f.Nullable,
					})
				}
				out = append(out, ti)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		for i, t := range tbls {
			fmt.Printf("[%02d] %s (%d rows, key: %s)\n", i+1, t.Name, t.RowCount, strings.Join(t.KeyFields, ", "))
			for _, f := range t.Fields {
				nullable := ""
				if !f.Nullable {
					nullable = " NOT NULL"
				}
				fmt.Printf("     %-24s %-12s (%s)%s\n", f.Name, f.Kind, f.SourceType, nullable)
			}
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "output as JSON")
}
