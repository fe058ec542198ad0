package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/geoio"
	"github.com/veldscape/landcover-cli/internal/render"
)

var (
	renderOut     string
	renderPalette string
)

var renderCmd = &cobra.Command{
	Use:   "render <raster.tif>",
	Short: "Render a classified raster to PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("render"); err != nil {
			return err
		}

		pal, err := resolvePalette(renderPalette)
		if err != nil {
			return err
		}

		grid, err := geoio.ReadClass(ctx, args[0], "")
		if err != nil {
			return eris.Wrap(err, "read raster")
		}

		if err := render.SavePNG(renderOut, grid, pal); err != nil {
			return err
		}

		zap.L().Info("preview written",
			zap.String("in", args[0]),
			zap.String("out", renderOut),
		)
		return nil
	},
}

// resolvePalette loads the palette named by the flag, then the config;
// a nil palette renders every class with generated colors.
func resolvePalette(flag string) (*render.Palette, error) {
	path := flag
	if path == "" {
		path = cfg.Render.Palette
	}
	if path == "" {
		return nil, nil
	}
	return render.LoadPalette(path)
}

func init() {
	renderCmd.Flags().StringVar(&renderOut, "out", "", "output PNG path (required)")
	renderCmd.Flags().StringVar(&renderPalette, "palette", "", "TOML palette file (default from config)")
	_ = renderCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(renderCmd)
}
