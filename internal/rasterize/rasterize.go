// Package rasterize burns vector geometries into binary cell masks. A cell
// is marked when its center lies inside a polygon or within the buffer
// distance of a line, ring, or point, so buffering and rasterizing collapse
// into one pass with no intermediate geometry.
package rasterize

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/veldscape/landcover-cli/internal/raster"
)

// Burn rasterizes geometries onto the frame: marked cells read 1, the rest
// stay 0. buffer is a distance in CRS units applied around every geometry;
// with buffer 0, lines and points still get a half-cell tolerance so bare
// centerline masks stay connected. An empty slice yields an all-zero mask.
func Burn(frame raster.GeoBox, geoms []geom.T, buffer float64) *raster.Grid[uint8] {
	mask := raster.NewGrid[uint8](frame)
	for _, g := range geoms {
		burnGeometry(mask, g, buffer)
	}
	return mask
}

func burnGeometry(mask *raster.Grid[uint8], g geom.T, buffer float64) {
	switch gg := g.(type) {
	case *geom.Point:
		burnPoint(mask, gg.Coords(), buffer)
	case *geom.MultiPoint:
		for i := 0; i < gg.NumPoints(); i++ {
			burnPoint(mask, gg.Point(i).Coords(), buffer)
		}
	case *geom.LineString:
		burnLine(mask, gg.Coords(), buffer)
	case *geom.MultiLineString:
		for i := 0; i < gg.NumLineStrings(); i++ {
			burnLine(mask, gg.LineString(i).Coords(), buffer)
		}
	case *geom.Polygon:
		burnPolygon(mask, gg.Coords(), buffer)
	case *geom.MultiPolygon:
		for i := 0; i < gg.NumPolygons(); i++ {
			burnPolygon(mask, gg.Polygon(i).Coords(), buffer)
		}
	case *geom.GeometryCollection:
		for _, sub := range gg.Geoms() {
			burnGeometry(mask, sub, buffer)
		}
	}
}

// lineRadius widens zero buffers to half the smaller cell dimension.
func lineRadius(box raster.GeoBox, buffer float64) float64 {
	half := 0.5 * math.Min(box.ResX, box.ResY)
	if buffer < half {
		return half
	}
	return buffer
}

func burnPoint(mask *raster.Grid[uint8], c geom.Coord, buffer float64) {
	if len(c) < 2 {
		return
	}
	if col, row, ok := mask.Box.CellAt(c[0], c[1]); ok {
		mask.Set(col, row, 1)
	}
	burnSegment(mask, c[0], c[1], c[0], c[1], lineRadius(mask.Box, buffer))
}

func burnLine(mask *raster.Grid[uint8], coords []geom.Coord, buffer float64) {
	r := lineRadius(mask.Box, buffer)
	for i := 0; i+1 < len(coords); i++ {
		burnSegment(mask, coords[i][0], coords[i][1], coords[i+1][0], coords[i+1][1], r)
	}
}

// burnSegment marks every cell whose center is within r of the segment.
func burnSegment(mask *raster.Grid[uint8], x1, y1, x2, y2, r float64) {
	box := mask.Box
	minX := math.Min(x1, x2) - r
	maxX := math.Max(x1, x2) + r
	minY := math.Min(y1, y2) - r
	maxY := math.Max(y1, y2) + r

	colLo := clampInt(int(math.Floor((minX-box.OriginX)/box.ResX)), 0, box.Width-1)
	colHi := clampInt(int(math.Floor((maxX-box.OriginX)/box.ResX)), 0, box.Width-1)
	rowLo := clampInt(int(math.Floor((box.OriginY-maxY)/box.ResY)), 0, box.Height-1)
	rowHi := clampInt(int(math.Floor((box.OriginY-minY)/box.ResY)), 0, box.Height-1)

	r2 := r * r
	for row := rowLo; row <= rowHi; row++ {
		for col := colLo; col <= colHi; col++ {
			cx, cy := box.CellCenter(col, row)
			if segmentDistSq(cx, cy, x1, y1, x2, y2) <= r2 {
				mask.Set(col, row, 1)
			}
		}
	}
}

// burnPolygon fills the even-odd interior of the rings row by row and, when
// buffered, also widens the boundary.
func burnPolygon(mask *raster.Grid[uint8], rings [][]geom.Coord, buffer float64) {
	if len(rings) == 0 {
		return
	}
	box := mask.Box

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, ring := range rings {
		for _, c := range ring {
			minX = math.Min(minX, c[0])
			maxX = math.Max(maxX, c[0])
			minY = math.Min(minY, c[1])
			maxY = math.Max(maxY, c[1])
		}
	}

	rowLo := clampInt(int(math.Floor((box.OriginY-maxY)/box.ResY)), 0, box.Height-1)
	rowHi := clampInt(int(math.Floor((box.OriginY-minY)/box.ResY)), 0, box.Height-1)

	var xs []float64
	for row := rowLo; row <= rowHi; row++ {
		_, cy := box.CellCenter(0, row)

		xs = xs[:0]
		for _, ring := range rings {
			for i := 0; i+1 < len(ring); i++ {
				y1, y2 := ring[i][1], ring[i+1][1]
				if (y1 <= cy) == (y2 <= cy) {
					continue
				}
				x1, x2 := ring[i][0], ring[i+1][0]
				xs = append(xs, x1+(cy-y1)*(x2-x1)/(y2-y1))
			}
		}
		sort.Float64s(xs)

		for i := 0; i+1 < len(xs); i += 2 {
			colLo := clampInt(int(math.Ceil((xs[i]-box.OriginX)/box.ResX-0.5)), 0, box.Width-1)
			colHi := clampInt(int(math.Floor((xs[i+1]-box.OriginX)/box.ResX-0.5)), 0, box.Width-1)
			for col := colLo; col <= colHi; col++ {
				cx, _ := box.CellCenter(col, row)
				if cx >= xs[i] && cx <= xs[i+1] {
					mask.Set(col, row, 1)
				}
			}
		}
	}

	if buffer > 0 {
		for _, ring := range rings {
			for i := 0; i+1 < len(ring); i++ {
				burnSegment(mask, ring[i][0], ring[i][1], ring[i+1][0], ring[i+1][1], buffer)
			}
		}
	}
}

// segmentDistSq returns the squared distance from point p to segment ab.
func segmentDistSq(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	qx, qy := ax+t*dx, ay+t*dy
	return (px-qx)*(px-qx) + (py-qy)*(py-qy)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
