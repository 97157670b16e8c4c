package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"vkharvest/pkg/features"
	"vkharvest/pkg/storage"
	"vkharvest/pkg/ui"
)

var (
	exportFormat   string
	exportDir      string
	exportDatasets []string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write feature rows and scores to files",
	Long: `Write the stored feature rows to files for the scoring model.

Datasets:
  open      profile_detail_open, one row per open profile
  closed    profile_detail_closed, one row per closed profile
  results   bot probabilities imported with import-scores

Files are written next to each other in the output directory and replaced
atomically, so a failed export leaves the previous file in place.`,
	Example: `  vkharvest export --format csv
  vkharvest export --dataset open --format jsonl --out ./features`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv, jsonl)")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "", "output directory (default <data_dir>/exports)")
	exportCmd.Flags().StringSliceVarP(&exportDatasets, "dataset", "d", []string{"open", "closed", "results"}, "datasets to export")
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(nil, false)
	if err != nil {
		return err
	}
	format, err := storage.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	if exportDir == "" {
		exportDir = filepath.Join(cfg.Storage.DataDir, "exports")
	}
	ctx := cmd.Context()

	st, err := openExistingStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	manager, err := storage.NewManager(exportDir)
	if err != nil {
		return err
	}

	for _, ds := range exportDatasets {
		var (
			path string
			rows int
		)
		switch ds {
		case "open":
			path, rows, err = manager.ExportDetail(ctx, st, features.Open, format)
		case "closed":
			path, rows, err = manager.ExportDetail(ctx, st, features.Closed, format)
		case "results":
			path, rows, err = manager.ExportScores(ctx, st, format)
		default:
			return fmt.Errorf("unknown dataset %q", ds)
		}
		if err != nil {
			return fmt.Errorf("export %s: %w", ds, err)
		}
		ui.PrintInfo(path, fmt.Sprintf("%d rows", rows))
	}
	ui.PrintSuccess("export finished")
	return nil
}
