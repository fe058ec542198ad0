package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleNearestIdentity(t *testing.T) {
	box := testBox(3, 3)
	src, err := NewGridFrom(box, []uint8{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	require.NoError(t, err)

	out, err := ResampleNearest(src, box, "buildings")
	require.NoError(t, err)
	assert.Equal(t, src.Data, out.Data)

	out.Set(0, 0, 99)
	assert.Equal(t, uint8(1), src.At(0, 0), "identity resample must not alias the source")
}

func TestResampleNearestDownsample(t *testing.T) {
	// 4x4 at res 10 -> 2x2 at res 20: each coarse center falls in the
	// second fine cell of its 2x2 block.
	src, err := NewGridFrom(testBox(4, 4), []uint8{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	require.NoError(t, err)

	target := GeoBox{Width: 2, Height: 2, OriginX: 0, OriginY: 40, ResX: 20, ResY: 20, CRS: "EPSG:32736"}

	out, err := ResampleNearest(src, target, "settlement")
	require.NoError(t, err)
	assert.Equal(t, []uint8{6, 8, 14, 16}, out.Data)
}

func TestResampleAverageDownsample(t *testing.T) {
	src, err := NewGridFrom(testBox(4, 4), []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	})
	require.NoError(t, err)

	target := GeoBox{Width: 2, Height: 2, OriginX: 0, OriginY: 40, ResX: 20, ResY: 20, CRS: "EPSG:32736"}

	out, err := ResampleAverage(src, target, "hand")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3.5, 5.5, 11.5, 13.5}, out.Data, 1e-12)
}

func TestResampleAverageUpsample(t *testing.T) {
	// One source cell per 2x2 target block: averaging degenerates to the
	// covering cell's value.
	src, err := NewGridFrom(GeoBox{Width: 2, Height: 2, OriginX: 0, OriginY: 40, ResX: 20, ResY: 20, CRS: "EPSG:32736"},
		[]float64{10, 20, 30, 40})
	require.NoError(t, err)

	out, err := ResampleAverage(src, testBox(4, 4), "hand")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{
		10, 10, 20, 20,
		10, 10, 20, 20,
		30, 30, 40, 40,
		30, 30, 40, 40,
	}, out.Data, 1e-12)
}

func TestResampleCRSMismatch(t *testing.T) {
	src := NewGrid[float64](testBox(4, 4))
	target := testBox(4, 4)
	target.CRS = "EPSG:4326"

	_, err := ResampleAverage(src, target, "hand")
	require.Error(t, err)

	var crsErr *CRSMismatchError
	require.ErrorAs(t, err, &crsErr)
	assert.Equal(t, "hand", crsErr.Layer)
	assert.Equal(t, "EPSG:4326", crsErr.Want)
}

func TestResampleCoverageError(t *testing.T) {
	small := testBox(2, 2)
	small.OriginY = 40 // covers y in [20, 40], x in [0, 20]

	src := NewGrid[uint8](small)

	_, err := ResampleNearest(src, testBox(4, 4), "river")
	require.Error(t, err)

	var covErr *CoverageError
	require.ErrorAs(t, err, &covErr)
	assert.Equal(t, "river", covErr.Layer)
}
