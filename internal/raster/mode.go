package raster

// ModeFilter smooths a class grid with a circular-window majority vote.
// For every populated cell the filter looks at the populated cells inside a
// disk of the given radius (the cell itself included) and writes the most
// frequent class. Ties resolve to the lowest class code so repeated runs
// stay deterministic. NoData cells pass through unchanged and never vote.
func ModeFilter(src *Grid[uint8], radius int) *Grid[uint8] {
	if radius < 1 {
		return src.Clone()
	}

	offsets := DiskOffsets(radius)
	out := NewGrid[uint8](src.Box)
	w, h := src.Box.Width, src.Box.Height

	var counts [256]int
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			center := src.At(col, row)
			if center == NoData {
				continue
			}

			var seen []uint8
			for _, off := range offsets {
				c, r := col+off[0], row+off[1]
				if c < 0 || c >= w || r < 0 || r >= h {
					continue
				}
				v := src.At(c, r)
				if v == NoData {
					continue
				}
				if counts[v] == 0 {
					seen = append(seen, v)
				}
				counts[v]++
			}

			best, bestCount := center, 0
			for _, v := range seen {
				// Strict > with ascending probe order is not guaranteed
				// by seen's ordering, so compare codes on equal counts.
				if counts[v] > bestCount || (counts[v] == bestCount && v < best) {
					best, bestCount = v, counts[v]
				}
				counts[v] = 0
			}
			out.Set(col, row, best)
		}
	}
	return out
}

// DiskOffsets returns the (dx, dy) offsets of a circular structuring element
// of the given radius, center included.
func DiskOffsets(radius int) [][2]int {
	r2 := radius * radius
	offsets := make([][2]int, 0, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				offsets = append(offsets, [2]int{dx, dy})
			}
		}
	}
	return offsets
}
