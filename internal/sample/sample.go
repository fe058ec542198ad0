// Package sample extracts per-point raster values as training features.
package sample

import (
	"encoding/csv"
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/raster"
	"github.com/veldscape/landcover-cli/internal/vector"
)

// Raster names one feature column and the grid it is sampled from.
type Raster struct {
	Name string
	Grid *raster.Grid[float64]
}

// Table samples every raster at each point and returns CSV-ready rows.
// Columns run x, y, the requested point attributes, then one column per
// raster. A point outside a raster or on a NaN cell gets an empty value.
// Features that are not points are skipped.
func Table(points *vector.Layer, rasters []Raster, attrs []string) ([]string, [][]string, error) {
	if points == nil {
		return nil, nil, eris.New("sample: point layer is required")
	}
	if len(rasters) == 0 {
		return nil, nil, eris.New("sample: at least one raster is required")
	}
	for _, r := range rasters {
		if r.Grid == nil {
			return nil, nil, eris.Errorf("sample: raster %q has no grid", r.Name)
		}
		if points.CRS != "" && raster.NormalizeCRS(points.CRS) != raster.NormalizeCRS(r.Grid.Box.CRS) {
			return nil, nil, &raster.CRSMismatchError{Layer: r.Name, Have: points.CRS, Want: r.Grid.Box.CRS}
		}
	}

	header := make([]string, 0, 2+len(attrs)+len(rasters))
	header = append(header, "x", "y")
	header = append(header, attrs...)
	for _, r := range rasters {
		header = append(header, r.Name)
	}

	rows := make([][]string, 0, points.Len())
	skipped := 0
	for _, f := range points.Features {
		pt, ok := f.Geom.(*geom.Point)
		if !ok {
			skipped++
			continue
		}
		x, y := pt.X(), pt.Y()

		row := make([]string, 0, len(header))
		row = append(row, formatValue(x), formatValue(y))
		for _, key := range attrs {
			v, _ := f.Attr(key)
			row = append(row, v)
		}
		for _, r := range rasters {
			row = append(row, cellValue(r.Grid, x, y))
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		zap.L().Warn("skipped non-point features while sampling",
			zap.String("component", "sample"),
			zap.Int("count", skipped),
		)
	}
	return header, rows, nil
}

// WriteCSV writes a sampled table, header first.
func WriteCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "sample: create file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "sample: write header")
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "sample: write row")
		}
	}
	return w.Error()
}

func cellValue(g *raster.Grid[float64], x, y float64) string {
	col, row, ok := g.Box.CellAt(x, y)
	if !ok {
		return ""
	}
	v := g.At(col, row)
	if math.IsNaN(v) {
		return ""
	}
	return formatValue(v)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
