package vector

import (
	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"
)

// orbToGeom converts a paulmach/orb geometry to a go-geom geometry. The
// GeoJSON and FlatGeobuf decoders produce orb values; everything downstream
// of this package speaks go-geom.
func orbToGeom(g orb.Geometry) geom.T {
	switch v := g.(type) {
	case orb.Point:
		return geom.NewPointFlat(geom.XY, []float64{v[0], v[1]})

	case orb.MultiPoint:
		return geom.NewMultiPointFlat(geom.XY, pointsFlat(v))

	case orb.LineString:
		if len(v) < 2 {
			return nil
		}
		return geom.NewLineStringFlat(geom.XY, pointsFlat(v))

	case orb.MultiLineString:
		flat, ends := nestedFlat(len(v), func(i int) []orb.Point { return v[i] })
		if len(ends) == 0 {
			return nil
		}
		return geom.NewMultiLineStringFlat(geom.XY, flat, ends)

	case orb.Ring:
		return orbToGeom(orb.Polygon{v})

	case orb.Polygon:
		flat, ends := nestedFlat(len(v), func(i int) []orb.Point { return v[i] })
		if len(ends) == 0 {
			return nil
		}
		return geom.NewPolygonFlat(geom.XY, flat, ends)

	case orb.MultiPolygon:
		mp := geom.NewMultiPolygon(geom.XY)
		for _, poly := range v {
			converted := orbToGeom(poly)
			p, ok := converted.(*geom.Polygon)
			if !ok {
				continue
			}
			if err := mp.Push(p); err != nil {
				continue
			}
		}
		if mp.NumPolygons() == 0 {
			return nil
		}
		return mp

	case orb.Collection:
		gc := geom.NewGeometryCollection()
		for _, sub := range v {
			converted := orbToGeom(sub)
			if converted == nil {
				continue
			}
			if err := gc.Push(converted); err != nil {
				continue
			}
		}
		if gc.Empty() {
			return nil
		}
		return gc

	case orb.Bound:
		return orbToGeom(v.ToPolygon())

	default:
		return nil
	}
}

func pointsFlat(pts []orb.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p[0], p[1])
	}
	return flat
}

// nestedFlat flattens a slice of point slices into go-geom's flat-coords
// plus ends representation, dropping degenerate parts.
func nestedFlat(n int, part func(int) []orb.Point) ([]float64, []int) {
	var flat []float64
	var ends []int
	for i := 0; i < n; i++ {
		pts := part(i)
		if len(pts) < 2 {
			continue
		}
		flat = append(flat, pointsFlat(pts)...)
		ends = append(ends, len(flat))
	}
	return flat, ends
}
