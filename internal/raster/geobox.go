// Package raster implements the in-memory grid model and the grid operations
// used by the land-cover post-processing pipeline: geometry-aware single-band
// grids, resampling between grids, majority smoothing, and binary morphology.
package raster

import (
	"fmt"
	"math"
	"strings"
)

// geoEps absorbs float drift when comparing grid geometries.
const geoEps = 1e-9

// GeoBox is the spatial frame of a grid: cell counts, a north-up affine
// placement, and the CRS the coordinates live in. Rotated grids are not
// supported; ResX and ResY are both positive with rows running south.
type GeoBox struct {
	Width   int     // columns
	Height  int     // rows
	OriginX float64 // west edge of the top-left cell
	OriginY float64 // north edge of the top-left cell
	ResX    float64 // cell width in CRS units
	ResY    float64 // cell height in CRS units
	CRS     string  // e.g. "EPSG:32736"
}

// Cells returns the total cell count.
func (b GeoBox) Cells() int { return b.Width * b.Height }

// CellArea returns the area of one cell in squared CRS units.
func (b GeoBox) CellArea() float64 { return b.ResX * b.ResY }

// CellCenter returns the CRS coordinate of the center of cell (col, row).
func (b GeoBox) CellCenter(col, row int) (x, y float64) {
	x = b.OriginX + (float64(col)+0.5)*b.ResX
	y = b.OriginY - (float64(row)+0.5)*b.ResY
	return x, y
}

// CellAt returns the cell containing the CRS coordinate (x, y).
// ok is false when the coordinate falls outside the box.
func (b GeoBox) CellAt(x, y float64) (col, row int, ok bool) {
	col = int(math.Floor((x - b.OriginX) / b.ResX))
	row = int(math.Floor((b.OriginY - y) / b.ResY))
	ok = col >= 0 && col < b.Width && row >= 0 && row < b.Height
	return col, row, ok
}

// Bounds returns the outer extent as (minX, minY, maxX, maxY).
func (b GeoBox) Bounds() (minX, minY, maxX, maxY float64) {
	minX = b.OriginX
	maxX = b.OriginX + float64(b.Width)*b.ResX
	maxY = b.OriginY
	minY = b.OriginY - float64(b.Height)*b.ResY
	return minX, minY, maxX, maxY
}

// SameGrid reports whether two boxes describe the exact same cell lattice:
// identical shape, placement, resolution, and CRS.
func (b GeoBox) SameGrid(o GeoBox) bool {
	return b.Width == o.Width && b.Height == o.Height &&
		math.Abs(b.OriginX-o.OriginX) < geoEps &&
		math.Abs(b.OriginY-o.OriginY) < geoEps &&
		math.Abs(b.ResX-o.ResX) < geoEps &&
		math.Abs(b.ResY-o.ResY) < geoEps &&
		b.SameCRS(o)
}

// SameCRS reports whether two boxes declare the same CRS after normalization.
func (b GeoBox) SameCRS(o GeoBox) bool {
	return NormalizeCRS(b.CRS) == NormalizeCRS(o.CRS)
}

// Covers reports whether the extent of o lies fully inside b. CRS is not
// checked here; callers compare CRS separately so the two failure modes stay
// distinguishable.
func (b GeoBox) Covers(o GeoBox) bool {
	bMinX, bMinY, bMaxX, bMaxY := b.Bounds()
	oMinX, oMinY, oMaxX, oMaxY := o.Bounds()
	return oMinX >= bMinX-geoEps && oMaxX <= bMaxX+geoEps &&
		oMinY >= bMinY-geoEps && oMaxY <= bMaxY+geoEps
}

// String renders the box for log fields and error messages.
func (b GeoBox) String() string {
	return fmt.Sprintf("%dx%d @ (%.6g, %.6g) res (%.6g, %.6g) %s",
		b.Width, b.Height, b.OriginX, b.OriginY, b.ResX, b.ResY, b.CRS)
}

// NormalizeCRS canonicalizes a CRS identifier for comparison: trims space and
// upper-cases the authority prefix, so "epsg:32736" equals "EPSG:32736".
func NormalizeCRS(crs string) string {
	return strings.ToUpper(strings.TrimSpace(crs))
}
