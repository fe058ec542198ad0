package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/veldscape/landcover-cli/internal/geoio"
	"github.com/veldscape/landcover-cli/internal/legend"
)

var legendCmd = &cobra.Command{
	Use:   "legend",
	Short: "Inspect the configured class legend",
}

var legendShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the class legend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("legend"); err != nil {
			return err
		}
		leg, err := loadLegend()
		if err != nil {
			return err
		}
		formatLegend(os.Stdout, leg)
		return nil
	},
}

var legendValidateCmd = &cobra.Command{
	Use:   "validate <raster.tif>",
	Short: "Check a raster for codes outside the legend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("legend"); err != nil {
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

		v := leg.Validate(grid)
		if v.OK() {
			fmt.Println("All populated cells hold legend codes.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CODE\tCELLS")
		_, _ = fmt.Fprintln(w, "----\t-----")
		for _, code := range v.UnknownCodes() {
			_, _ = fmt.Fprintf(w, "%d\t%d\n", code, v.Unknown[code])
		}
		_ = w.Flush()

		return eris.Errorf("%d cells hold codes outside the legend", v.Cells)
	},
}

func init() {
	legendCmd.AddCommand(legendShowCmd)
	legendCmd.AddCommand(legendValidateCmd)
	rootCmd.AddCommand(legendCmd)
}

// formatLegend writes the legend as a code/class table.
func formatLegend(out io.Writer, leg *legend.Legend) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tCLASS")
	_, _ = fmt.Fprintln(w, "----\t-----")
	for _, code := range leg.Codes() {
		name, _ := leg.Name(code)
		_, _ = fmt.Fprintf(w, "%d\t%s\n", code, name)
	}
	_ = w.Flush()
}
