package raster

import (
	"github.com/rotisserie/eris"
)

// NoData is the reserved class code for cells outside the mapped area.
// Class grids carry it through every operation untouched.
const NoData uint8 = 0

// Value constrains the cell types grids are instantiated with: uint8 for
// class and binary rasters, floats for continuous layers.
type Value interface {
	~uint8 | ~float32 | ~float64
}

// Grid is a single-band raster: a GeoBox plus row-major cell data.
type Grid[T Value] struct {
	Box  GeoBox
	Data []T
}

// NewGrid allocates a zeroed grid over box.
func NewGrid[T Value](box GeoBox) *Grid[T] {
	return &Grid[T]{Box: box, Data: make([]T, box.Cells())}
}

// NewGridFrom wraps existing row-major data in a grid, validating the length
// against the box.
func NewGridFrom[T Value](box GeoBox, data []T) (*Grid[T], error) {
	if len(data) != box.Cells() {
		return nil, eris.Errorf("raster: data length %d does not match %dx%d grid", len(data), box.Width, box.Height)
	}
	return &Grid[T]{Box: box, Data: data}, nil
}

// At returns the value at (col, row). Callers keep indices in range.
func (g *Grid[T]) At(col, row int) T {
	return g.Data[row*g.Box.Width+col]
}

// Set stores v at (col, row). Callers keep indices in range.
func (g *Grid[T]) Set(col, row int, v T) {
	g.Data[row*g.Box.Width+col] = v
}

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.Data {
		g.Data[i] = v
	}
}

// Clone returns a deep copy sharing nothing with g.
func (g *Grid[T]) Clone() *Grid[T] {
	data := make([]T, len(g.Data))
	copy(data, g.Data)
	return &Grid[T]{Box: g.Box, Data: data}
}

// MaskEqual returns a binary grid marking the cells of g equal to v.
func MaskEqual(g *Grid[uint8], v uint8) *Grid[uint8] {
	out := NewGrid[uint8](g.Box)
	for i, c := range g.Data {
		if c == v {
			out.Data[i] = 1
		}
	}
	return out
}
