package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/db"
	"github.com/veldscape/landcover-cli/internal/vector"
)

var (
	masksTable   string
	masksSRID    int
	masksAttrs   []string
	masksReplace bool
	masksCRS     string
)

var masksCmd = &cobra.Command{
	Use:   "masks",
	Short: "Manage the PostGIS mask tables",
	Long:  "Commands for maintaining the vector mask tables the rule sequence reads: river centerlines, road networks, coastline strips, building footprints, and settlement areas.",
}

var masksLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a vector file into an allowlisted mask table",
	Long:  "Reads a shapefile, GeoJSON, or FlatGeobuf file and bulk-loads its features into one of the allowlisted mask tables via the COPY protocol. Geometries are stored as EWKB with the given SRID; selected attribute columns are carried over.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("masks"); err != nil {
			return err
		}

		src, err := vector.OpenPath(args[0], masksCRS)
		if err != nil {
			return err
		}
		layer, err := src.Read(ctx)
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}
		if layer.Len() == 0 {
			zap.L().Warn("source file has no features", zap.String("file", args[0]))
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, 4)
		if err != nil {
			return eris.Wrap(err, "connect mask database")
		}
		defer pool.Close()

		n, err := vector.LoadPostGIS(ctx, pool, layer, vector.LoadJob{
			Table:    masksTable,
			AttrCols: masksAttrs,
			SRID:     masksSRID,
			Replace:  masksReplace,
		})
		if err != nil {
			return eris.Wrapf(err, "load %s", masksTable)
		}

		fmt.Printf("Loaded %d of %d features into %s\n", n, layer.Len(), masksTable)
		return nil
	},
}

func init() {
	masksLoadCmd.Flags().StringVar(&masksTable, "table", "", "target mask table (schema-qualified, e.g. vectors.rivers)")
	masksLoadCmd.Flags().IntVar(&masksSRID, "srid", 4326, "SRID stamped on every loaded geometry")
	masksLoadCmd.Flags().StringArrayVar(&masksAttrs, "attr", nil, "attribute column to carry over (repeatable)")
	masksLoadCmd.Flags().BoolVar(&masksReplace, "replace", false, "truncate the table before loading")
	masksLoadCmd.Flags().StringVar(&masksCRS, "crs", "", "CRS of the file's coordinates when the file carries none")
	_ = masksLoadCmd.MarkFlagRequired("table")

	masksCmd.AddCommand(masksLoadCmd)
	rootCmd.AddCommand(masksCmd)
}
