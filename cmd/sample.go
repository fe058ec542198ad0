package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/geoio"
	"github.com/veldscape/landcover-cli/internal/sample"
	"github.com/veldscape/landcover-cli/internal/vector"
)

var (
	samplePoints    string
	samplePointsCRS string
	sampleRasters   []string
	sampleAttrs     []string
	sampleOut       string
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample rasters at training points into a CSV",
	Long:  "Reads a point layer, samples each named raster at every point, and writes one CSV row per point for classifier training.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sample"); err != nil {
			return err
		}

		src, err := vector.OpenPath(samplePoints, samplePointsCRS)
		if err != nil {
			return eris.Wrap(err, "open points")
		}
		points, err := src.Read(ctx)
		if err != nil {
			return eris.Wrap(err, "read points")
		}

		rasters := make([]sample.Raster, 0, len(sampleRasters))
		for _, spec := range sampleRasters {
			name, path, ok := strings.Cut(spec, "=")
			if !ok || name == "" || path == "" {
				return eris.Errorf("--raster wants name=path, got %q", spec)
			}
			grid, err := geoio.ReadContinuous(ctx, path, samplePointsCRS)
			if err != nil {
				return eris.Wrapf(err, "read raster %s", name)
			}
			rasters = append(rasters, sample.Raster{Name: name, Grid: grid})
		}

		header, rows, err := sample.Table(points, rasters, sampleAttrs)
		if err != nil {
			return eris.Wrap(err, "sample")
		}

		if err := sample.WriteCSV(sampleOut, header, rows); err != nil {
			return err
		}

		zap.L().Info("samples written",
			zap.String("out", sampleOut),
			zap.Int("points", len(rows)),
			zap.Int("rasters", len(rasters)),
		)
		return nil
	},
}

func init() {
	sampleCmd.Flags().StringVar(&samplePoints, "points", "", "point layer (required)")
	sampleCmd.Flags().StringVar(&samplePointsCRS, "points-crs", "", "CRS of the point layer")
	sampleCmd.Flags().StringArrayVar(&sampleRasters, "raster", nil, "raster to sample as name=path (repeatable, required)")
	sampleCmd.Flags().StringArrayVar(&sampleAttrs, "attr", nil, "point attribute to carry into the CSV (repeatable)")
	sampleCmd.Flags().StringVar(&sampleOut, "out", "", "output CSV path (required)")
	_ = sampleCmd.MarkFlagRequired("points")
	_ = sampleCmd.MarkFlagRequired("raster")
	_ = sampleCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(sampleCmd)
}
