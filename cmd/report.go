package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veldscape/landcover-cli/internal/geoio"
	"github.com/veldscape/landcover-cli/internal/report"
)

var (
	reportBefore string
	reportXLSX   string
)

var reportCmd = &cobra.Command{
	Use:   "report <raster.tif>",
	Short: "Summarize per-class cell counts and areas",
	Long:  "Prints per-class statistics for a classified raster. With --before, also prints the per-class change the correction sequence made.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("report"); err != nil {
			return err
		}
		leg, err := loadLegend()
		if err != nil {
			return err
		}

		grid, err := geoio.ReadClass(ctx, args[0], "")
		if err != nil {
			return eris.Wrap(err, "read raster")
		}
		summary := report.Summarize(grid, leg)
		summary.Write(os.Stdout)

		var deltas []report.Delta
		if reportBefore != "" {
			before, err := geoio.ReadClass(ctx, reportBefore, "")
			if err != nil {
				return eris.Wrap(err, "read before raster")
			}
			deltas, err = report.Compare(before, grid, leg)
			if err != nil {
				return eris.Wrap(err, "compare")
			}
			report.WriteDeltas(os.Stdout, deltas)
		}

		if reportXLSX != "" {
			if err := report.WriteXLSX(reportXLSX, summary, deltas); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportBefore, "before", "", "uncorrected raster to diff against")
	reportCmd.Flags().StringVar(&reportXLSX, "xlsx", "", "also export the report to this XLSX file")
	rootCmd.AddCommand(reportCmd)
}
