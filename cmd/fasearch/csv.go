package main

import (
	"fmt"
	"path/filepath"

	"fasearch/pkg/config"
	"fasearch/pkg/logger"
	"fasearch/pkg/report"
	"fasearch/pkg/ui"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	csvBucket string
	csvOutput string
)

// csvCmd represents the csv command
var csvCmd = &cobra.Command{
	Use:   "csv <dir>",
	Short: "Merge saved counts pages into a CSV time series",
	Long: `Read every counts page (.json or .json.gz) in a directory written by
'fasearch search -l -o <dir>' and write one Date,Counts row per period,
oldest first.`,
	Example: `  fasearch search -r weather -s 30d -l -d day -o ./counts
  fasearch csv ./counts -d day`,
	Args: cobra.ExactArgs(1),
	RunE: runCSV,
}

func init() {
	rootCmd.AddCommand(csvCmd)
	csvCmd.Flags().StringVarP(&csvBucket, "duration", "d", config.BucketDay, "bucket size the pages were requested with")
	csvCmd.Flags().StringVarP(&csvOutput, "output", "o", "", "CSV path (default <dir>/counts_<duration>.csv)")
}

func runCSV(cmd *cobra.Command, args []string) error {
	dir := args[0]

	counts, err := report.Collect(dir, logger.GetLogger())
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		ui.PrintWarning("No counts found", dir)
		return nil
	}

	path := csvOutput
	if path == "" {
		path = filepath.Join(dir, report.FileName(csvBucket))
	}
	if err := counts.WriteFile(path); err != nil {
		return err
	}

	ui.PrintInfo("Periods", humanize.Comma(int64(len(counts))))
	ui.PrintInfo("Total counts", humanize.Comma(int64(counts.Total())))
	ui.PrintSuccess(fmt.Sprintf("CSV written: %s", path))
	return nil
}
