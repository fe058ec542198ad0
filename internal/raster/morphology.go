package raster

// Dilate expands the set cells of a binary mask by a disk of the given
// radius: every cell within the disk of a set cell becomes set. Radius 0
// returns a copy.
func Dilate(src *Grid[uint8], radius int) *Grid[uint8] {
	if radius < 1 {
		return src.Clone()
	}

	offsets := DiskOffsets(radius)
	out := NewGrid[uint8](src.Box)
	w, h := src.Box.Width, src.Box.Height

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if src.At(col, row) == 0 {
				continue
			}
			for _, off := range offsets {
				c, r := col+off[0], row+off[1]
				if c < 0 || c >= w || r < 0 || r >= h {
					continue
				}
				out.Set(c, r, 1)
			}
		}
	}
	return out
}
