package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/geoio"
	"github.com/veldscape/landcover-cli/internal/index"
)

var (
	indexIn    string
	indexOut   string
	indexGreen int
	indexSWIR  int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Compute the water spectral index from a multi-band composite",
	Long:  "Reads the green and SWIR bands of a composite and writes the normalized-difference water index (green-SWIR)/(green+SWIR) as a float raster.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("index"); err != nil {
			return err
		}

		green := indexGreen
		if green == 0 {
			green = cfg.Index.GreenBand
		}
		swir := indexSWIR
		if swir == 0 {
			swir = cfg.Index.SWIRBand
		}

		greenBand, err := geoio.ReadBand(ctx, indexIn, green, "")
		if err != nil {
			return eris.Wrap(err, "read green band")
		}
		swirBand, err := geoio.ReadBand(ctx, indexIn, swir, "")
		if err != nil {
			return eris.Wrap(err, "read swir band")
		}

		out, err := index.NormalizedDifference(greenBand, swirBand)
		if err != nil {
			return eris.Wrap(err, "compute index")
		}

		if err := geoio.WriteContinuous(ctx, indexOut, out); err != nil {
			return eris.Wrap(err, "write index")
		}

		zap.L().Info("water index written",
			zap.String("in", indexIn),
			zap.String("out", indexOut),
			zap.Int("green_band", green),
			zap.Int("swir_band", swir),
		)
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexIn, "in", "", "multi-band composite raster (required)")
	indexCmd.Flags().StringVar(&indexOut, "out", "", "output index raster (required)")
	indexCmd.Flags().IntVar(&indexGreen, "green", 0, "green band number (default from config)")
	indexCmd.Flags().IntVar(&indexSWIR, "swir", 0, "SWIR band number (default from config)")
	_ = indexCmd.MarkFlagRequired("in")
	_ = indexCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(indexCmd)
}
