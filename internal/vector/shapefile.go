package vector

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ShapefileSource reads an ESRI Shapefile with its DBF attributes.
type ShapefileSource struct {
	Path string
	CRS  string
}

// Read loads every record. Malformed or unsupported shapes are skipped and
// counted, never fatal; attribute values arrive trimmed with lower-cased
// keys.
func (s *ShapefileSource) Read(ctx context.Context) (*Layer, error) {
	reader, err := shp.Open(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", s.Path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	layer := &Layer{CRS: s.CRS}
	var skipped int

	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "vector: read shapefile")
		}

		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				attrs[name] = val
			}
		}

		layer.Features = append(layer.Features, Feature{Geom: g, Attrs: attrs})
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped shapefile records",
			zap.String("path", s.Path),
			zap.Int("skipped", skipped),
		)
	}

	return layer, nil
}

// shapeToGeom converts a go-shp shape to a go-geom geometry. Unsupported
// shape types return nil.
func shapeToGeom(shape shp.Shape) geom.T {
	switch v := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{v.X, v.Y})
	case *shp.PolyLine:
		return polyLineToMultiLineString(v)
	case *shp.Polygon:
		return polygonToMultiPolygon(v)
	default:
		return nil
	}
}

// polyLineToMultiLineString converts a shapefile PolyLine part by part.
func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)

	for i := int32(0); i < pl.NumParts; i++ {
		flat := partFlatCoords(pl.Parts, pl.Points, i, pl.NumParts)
		ls := geom.NewLineStringFlat(geom.XY, flat)
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("vector: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon converts a shapefile Polygon part by part. Every
// part becomes its own single-ring polygon; rasterization handles hole
// semantics through even-odd filling, so ring grouping is not needed here.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)

	for i := int32(0); i < p.NumParts; i++ {
		flat := partFlatCoords(p.Parts, p.Points, i, p.NumParts)
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("vector: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("vector: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// partFlatCoords extracts the flat XY coordinates of part i.
func partFlatCoords(parts []int32, points []shp.Point, i, numParts int32) []float64 {
	start := parts[i]
	end := int32(len(points))
	if i+1 < numParts {
		end = parts[i+1]
	}

	flat := make([]float64, 0, (end-start)*2)
	for j := start; j < end; j++ {
		flat = append(flat, points[j].X, points[j].Y)
	}
	return flat
}
