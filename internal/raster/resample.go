package raster

import "math"

// ResampleNearest projects a categorical or binary grid onto the target
// frame by nearest neighbor: each target cell takes the value of the source
// cell containing its center. The source must share the target CRS and cover
// the whole target extent.
func ResampleNearest[T Value](src *Grid[T], target GeoBox, layer string) (*Grid[T], error) {
	if err := checkFrames(src.Box, target, layer); err != nil {
		return nil, err
	}
	if src.Box.SameGrid(target) {
		return src.Clone(), nil
	}

	out := NewGrid[T](target)
	for row := 0; row < target.Height; row++ {
		for col := 0; col < target.Width; col++ {
			x, y := target.CellCenter(col, row)
			sc, sr, ok := src.Box.CellAt(x, y)
			if !ok {
				// Coverage holds; only float drift on the outermost
				// edge lands here. Clamp back in.
				sc = clamp(sc, 0, src.Box.Width-1)
				sr = clamp(sr, 0, src.Box.Height-1)
			}
			out.Set(col, row, src.At(sc, sr))
		}
	}
	return out, nil
}

// ResampleAverage projects a continuous grid onto the target frame by
// area-weighted averaging of the overlapping source cells. The source must
// share the target CRS and cover the whole target extent.
func ResampleAverage(src *Grid[float64], target GeoBox, layer string) (*Grid[float64], error) {
	if err := checkFrames(src.Box, target, layer); err != nil {
		return nil, err
	}
	if src.Box.SameGrid(target) {
		return src.Clone(), nil
	}

	out := NewGrid[float64](target)
	for row := 0; row < target.Height; row++ {
		ty1 := target.OriginY - float64(row)*target.ResY // top
		ty0 := ty1 - target.ResY                         // bottom
		sr0, sr1 := overlapRange(src.Box.OriginY-ty1, src.Box.OriginY-ty0, src.Box.ResY, src.Box.Height)

		for col := 0; col < target.Width; col++ {
			tx0 := target.OriginX + float64(col)*target.ResX
			tx1 := tx0 + target.ResX
			sc0, sc1 := overlapRange(tx0-src.Box.OriginX, tx1-src.Box.OriginX, src.Box.ResX, src.Box.Width)

			var sum, wsum float64
			for sr := sr0; sr <= sr1; sr++ {
				syTop := src.Box.OriginY - float64(sr)*src.Box.ResY
				h := math.Min(ty1, syTop) - math.Max(ty0, syTop-src.Box.ResY)
				if h <= 0 {
					continue
				}
				for sc := sc0; sc <= sc1; sc++ {
					sxLeft := src.Box.OriginX + float64(sc)*src.Box.ResX
					w := math.Min(tx1, sxLeft+src.Box.ResX) - math.Max(tx0, sxLeft)
					if w <= 0 {
						continue
					}
					sum += src.At(sc, sr) * w * h
					wsum += w * h
				}
			}
			if wsum > 0 {
				out.Set(col, row, sum/wsum)
			}
		}
	}
	return out, nil
}

// checkFrames enforces the two preconditions shared by every resampling
// path: matching CRS and full coverage of the target extent.
func checkFrames(src, target GeoBox, layer string) error {
	if !src.SameCRS(target) {
		return &CRSMismatchError{Layer: layer, Have: src.CRS, Want: target.CRS}
	}
	if !src.Covers(target) {
		return &CoverageError{Layer: layer, Have: src, Target: target}
	}
	return nil
}

// overlapRange returns the inclusive source index range whose cells can
// intersect the span [lo, hi) measured from the source origin in CRS units.
func overlapRange(lo, hi, res float64, n int) (int, int) {
	i0 := clamp(int(math.Floor(lo/res)), 0, n-1)
	i1 := clamp(int(math.Ceil(hi/res))-1, 0, n-1)
	return i0, i1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
