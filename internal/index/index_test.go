package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldscape/landcover-cli/internal/raster"
)

func box(crs string) raster.GeoBox {
	return raster.GeoBox{Width: 2, Height: 2, OriginY: 20, ResX: 10, ResY: 10, CRS: crs}
}

func grid(t *testing.T, b raster.GeoBox, vals ...float64) *raster.Grid[float64] {
	t.Helper()
	g, err := raster.NewGridFrom(b, vals)
	require.NoError(t, err)
	return g
}

func TestNormalizedDifference(t *testing.T) {
	b := box("EPSG:32736")
	green := grid(t, b, 0.3, 0.1, 0, math.NaN())
	swir := grid(t, b, 0.1, 0.3, 0, 0.2)

	out, err := NormalizedDifference(green, swir)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, out.Data[0], 1e-9)
	assert.InDelta(t, -0.5, out.Data[1], 1e-9)
	assert.Zero(t, out.Data[2], "zero denominator maps to zero, not NaN")
	assert.True(t, math.IsNaN(out.Data[3]), "no-data must survive as NaN")
}

func TestNormalizedDifferenceLeavesInputsAlone(t *testing.T) {
	b := box("EPSG:32736")
	green := grid(t, b, 0.3, 0.1, 0.2, 0.4)
	swir := grid(t, b, 0.1, 0.3, 0.2, 0.1)

	_, err := NormalizedDifference(green, swir)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.1, 0.2, 0.4}, green.Data)
	assert.Equal(t, []float64{0.1, 0.3, 0.2, 0.1}, swir.Data)
}

func TestNormalizedDifferenceRejectsMismatchedBands(t *testing.T) {
	b := box("EPSG:32736")
	green := grid(t, b, 1, 1, 1, 1)

	t.Run("nil band", func(t *testing.T) {
		_, err := NormalizedDifference(green, nil)
		assert.Error(t, err)
	})

	t.Run("crs differs", func(t *testing.T) {
		swir := grid(t, box("EPSG:4326"), 1, 1, 1, 1)
		_, err := NormalizedDifference(green, swir)
		var mismatch *raster.CRSMismatchError
		require.ErrorAs(t, err, &mismatch)
	})

	t.Run("frame differs", func(t *testing.T) {
		shifted := box("EPSG:32736")
		shifted.OriginX = 100
		swir := grid(t, shifted, 1, 1, 1, 1)
		_, err := NormalizedDifference(green, swir)
		assert.ErrorContains(t, err, "band frames differ")
	})
}
