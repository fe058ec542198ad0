package report

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/raster"
)

func classGrid(t *testing.T, vals ...uint8) *raster.Grid[uint8] {
	t.Helper()
	g, err := raster.NewGridFrom(raster.GeoBox{
		Width: 3, Height: 2, OriginY: 20, ResX: 10, ResY: 10, CRS: "EPSG:32736",
	}, vals)
	require.NoError(t, err)
	return g
}

func TestSummarize(t *testing.T) {
	g := classGrid(t,
		44, 44, 41,
		41, 41, 0,
	)

	s := Summarize(g, legend.Default())

	assert.Equal(t, 5, s.DataCells)
	assert.Equal(t, 1, s.NoDataCells)
	require.Len(t, s.Classes, 2)

	grass := s.Classes[0]
	assert.Equal(t, uint8(41), grass.Code)
	assert.Equal(t, "grassland", grass.Name)
	assert.Equal(t, 3, grass.Cells)
	assert.InDelta(t, 300, grass.Area, 1e-9)
	assert.InDelta(t, 0.6, grass.Share, 1e-9)

	wat := s.Classes[1]
	assert.Equal(t, uint8(44), wat.Code)
	assert.Equal(t, "water", wat.Name)
	assert.Equal(t, 2, wat.Cells)
}

func TestSummarizeUnknownCodeStillListed(t *testing.T) {
	g := classGrid(t,
		200, 200, 200,
		200, 200, 200,
	)

	s := Summarize(g, legend.Default())

	require.Len(t, s.Classes, 1)
	assert.Equal(t, uint8(200), s.Classes[0].Code)
	assert.Empty(t, s.Classes[0].Name)
	assert.InDelta(t, 1.0, s.Classes[0].Share, 1e-9)
}

func TestCompare(t *testing.T) {
	before := classGrid(t,
		44, 41, 41,
		41, 41, 0,
	)
	after := classGrid(t,
		44, 44, 41,
		51, 41, 0,
	)

	deltas, err := Compare(before, after, legend.Default())
	require.NoError(t, err)
	require.Len(t, deltas, 3)

	byCode := map[uint8]Delta{}
	for _, d := range deltas {
		byCode[d.Code] = d
	}
	assert.Equal(t, -2, byCode[41].Change)
	assert.Equal(t, +1, byCode[44].Change)
	assert.Equal(t, Delta{Code: 51, Name: "settlements", Before: 0, After: 1, Change: 1}, byCode[51])
}

func TestCompareRejectsMismatchedFrames(t *testing.T) {
	before := classGrid(t, 1, 1, 1, 1, 1, 1)
	other, err := raster.NewGridFrom(raster.GeoBox{
		Width: 2, Height: 3, OriginY: 30, ResX: 10, ResY: 10, CRS: "EPSG:32736",
	}, []uint8{1, 1, 1, 1, 1, 1})
	require.NoError(t, err)

	_, err = Compare(before, other, nil)
	assert.ErrorContains(t, err, "frames differ")
}

func TestSummaryWriteGroupsThousands(t *testing.T) {
	box := raster.GeoBox{Width: 2000, Height: 1000, OriginY: 10000, ResX: 10, ResY: 10, CRS: "EPSG:32736"}
	g := raster.NewGrid[uint8](box)
	g.Fill(41)

	var buf bytes.Buffer
	Summarize(g, legend.Default()).Write(&buf)

	out := buf.String()
	assert.Contains(t, out, "grassland")
	assert.Contains(t, out, "2,000,000")
	assert.Contains(t, out, "100.0%")
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	g := classGrid(t,
		44, 44, 41,
		41, 41, 0,
	)
	s := Summarize(g, legend.Default())

	after := classGrid(t,
		44, 44, 44,
		41, 41, 0,
	)
	deltas, err := Compare(g, after, legend.Default())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, s, deltas))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Equal(t, "classes", f.Sheets[0].Name)
	assert.Equal(t, "deltas", f.Sheets[1].Name)

	// header + one row per class
	require.Len(t, f.Sheets[0].Rows, 1+len(s.Classes))
	assert.Equal(t, "grassland", f.Sheets[0].Rows[1].Cells[1].String())
}
