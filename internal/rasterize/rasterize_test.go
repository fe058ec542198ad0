package rasterize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"

	"github.com/veldscape/landcover-cli/internal/raster"
)

// 10x10 grid of 10-unit cells: x in [0,100], y in [0,100], centers at 5+10k.
func testFrame() raster.GeoBox {
	return raster.GeoBox{Width: 10, Height: 10, OriginX: 0, OriginY: 100, ResX: 10, ResY: 10, CRS: "EPSG:32736"}
}

func countSet(m *raster.Grid[uint8]) int {
	n := 0
	for _, v := range m.Data {
		if v == 1 {
			n++
		}
	}
	return n
}

func TestBurnEmptyYieldsZeroMask(t *testing.T) {
	mask := Burn(testFrame(), nil, 25)
	assert.Equal(t, 0, countSet(mask))
	assert.Equal(t, testFrame().Cells(), len(mask.Data))
}

func TestBurnVerticalLineSingleColumn(t *testing.T) {
	line := geom.NewLineStringFlat(geom.XY, []float64{25, 5, 25, 95})

	mask := Burn(testFrame(), []geom.T{line}, 0)

	assert.Equal(t, 10, countSet(mask), "a centerline along cell centers burns one full column")
	for row := 0; row < 10; row++ {
		assert.Equal(t, uint8(1), mask.At(2, row), "row %d", row)
	}
}

func TestBurnBufferedLineWidensCorridor(t *testing.T) {
	line := geom.NewLineStringFlat(geom.XY, []float64{25, 5, 25, 95})

	mask := Burn(testFrame(), []geom.T{line}, 10)

	assert.Equal(t, 30, countSet(mask), "one cell of buffer on each side")
	for row := 0; row < 10; row++ {
		assert.Equal(t, uint8(1), mask.At(1, row))
		assert.Equal(t, uint8(1), mask.At(2, row))
		assert.Equal(t, uint8(1), mask.At(3, row))
		assert.Equal(t, uint8(0), mask.At(4, row))
	}
}

func TestBurnDiagonalLineStaysConnected(t *testing.T) {
	line := geom.NewLineStringFlat(geom.XY, []float64{5, 5, 95, 95})

	mask := Burn(testFrame(), []geom.T{line}, 0)

	for i := 0; i < 10; i++ {
		assert.Equal(t, uint8(1), mask.At(i, 9-i), "diagonal cell %d", i)
	}
}

func TestBurnPolygonFillsInterior(t *testing.T) {
	square := geom.NewPolygonFlat(geom.XY, []float64{
		20, 20, 60, 20, 60, 60, 20, 60, 20, 20,
	}, []int{10})

	mask := Burn(testFrame(), []geom.T{square}, 0)

	assert.Equal(t, 16, countSet(mask))
	for row := 4; row <= 7; row++ {
		for col := 2; col <= 5; col++ {
			assert.Equal(t, uint8(1), mask.At(col, row), "interior cell (%d,%d)", col, row)
		}
	}
	assert.Equal(t, uint8(0), mask.At(1, 5))
	assert.Equal(t, uint8(0), mask.At(6, 5))
}

func TestBurnPolygonHoleStaysOpen(t *testing.T) {
	withHole := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 100, 0, 100, 100, 0, 100, 0, 0, // outer shell
		40, 40, 60, 40, 60, 60, 40, 60, 40, 40, // hole
	}, []int{10, 20})

	mask := Burn(testFrame(), []geom.T{withHole}, 0)

	assert.Equal(t, uint8(1), mask.At(1, 5))
	assert.Equal(t, uint8(0), mask.At(4, 5), "cell inside the hole")
	assert.Equal(t, uint8(0), mask.At(5, 4), "cell inside the hole")
	assert.Equal(t, 96, countSet(mask))
}

func TestBurnBufferedPolygonWidensBoundary(t *testing.T) {
	square := geom.NewPolygonFlat(geom.XY, []float64{
		20, 20, 60, 20, 60, 60, 20, 60, 20, 20,
	}, []int{10})

	mask := Burn(testFrame(), []geom.T{square}, 10)

	assert.Equal(t, uint8(1), mask.At(1, 5), "one cell outside the west edge")
	assert.Equal(t, uint8(1), mask.At(6, 5), "one cell outside the east edge")
	assert.Equal(t, uint8(1), mask.At(3, 3), "one cell above the north edge")
	assert.Equal(t, uint8(0), mask.At(0, 5), "two cells out is beyond the buffer")
}

func TestBurnPointMarksContainingCell(t *testing.T) {
	pt := geom.NewPointFlat(geom.XY, []float64{47, 33})

	mask := Burn(testFrame(), []geom.T{pt}, 0)

	assert.Equal(t, uint8(1), mask.At(4, 6))
	assert.Equal(t, 1, countSet(mask))
}

func TestBurnMultiGeometries(t *testing.T) {
	mls := geom.NewMultiLineStringFlat(geom.XY, []float64{
		5, 95, 5, 75,
		95, 95, 95, 75,
	}, []int{4, 8})

	mask := Burn(testFrame(), []geom.T{mls}, 0)

	assert.Equal(t, uint8(1), mask.At(0, 0))
	assert.Equal(t, uint8(1), mask.At(0, 2))
	assert.Equal(t, uint8(1), mask.At(9, 0))
	assert.Equal(t, uint8(1), mask.At(9, 2))
	assert.Equal(t, 6, countSet(mask))
}

func TestBurnGeometryCollection(t *testing.T) {
	gc := geom.NewGeometryCollection()
	_ = gc.Push(geom.NewPointFlat(geom.XY, []float64{5, 95}))
	_ = gc.Push(geom.NewPointFlat(geom.XY, []float64{95, 5}))

	mask := Burn(testFrame(), []geom.T{gc}, 0)

	assert.Equal(t, uint8(1), mask.At(0, 0))
	assert.Equal(t, uint8(1), mask.At(9, 9))
	assert.Equal(t, 2, countSet(mask))
}
