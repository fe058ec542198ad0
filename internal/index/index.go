// Package index computes normalized-difference spectral indexes, the
// producer side of the water index the reclassification rules consume.
package index

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/veldscape/landcover-cli/internal/raster"
)

// NormalizedDifference computes (a-b)/(a+b) cell by cell. MNDWI is this
// with a=green and b=SWIR. The bands must share a frame. A zero
// denominator yields zero; a NaN in either band stays NaN so no-data never
// crosses a threshold downstream.
func NormalizedDifference(a, b *raster.Grid[float64]) (*raster.Grid[float64], error) {
	if a == nil || b == nil {
		return nil, eris.New("index: both bands are required")
	}
	if !a.Box.SameCRS(b.Box) {
		return nil, &raster.CRSMismatchError{Layer: "index", Have: b.Box.CRS, Want: a.Box.CRS}
	}
	if !a.Box.SameGrid(b.Box) {
		return nil, eris.Errorf("index: band frames differ (%s vs %s)", a.Box.String(), b.Box.String())
	}

	out := raster.NewGrid[float64](a.Box)
	for i, av := range a.Data {
		bv := b.Data[i]
		if math.IsNaN(av) || math.IsNaN(bv) {
			out.Data[i] = math.NaN()
			continue
		}
		den := av + bv
		if den == 0 {
			continue
		}
		out.Data[i] = (av - bv) / den
	}
	return out, nil
}
