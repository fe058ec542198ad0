// Package report computes per-class statistics for class rasters: cell
// counts, areas, shares, and before/after deltas.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/raster"
)

// ClassStat is one class's footprint in a raster. Area is in squared CRS
// units; the text renderer divides by 10,000 to print hectares, which
// assumes a metric CRS.
type ClassStat struct {
	Code  uint8   `json:"code"`
	Name  string  `json:"name,omitempty"`
	Cells int     `json:"cells"`
	Area  float64 `json:"area"`
	Share float64 `json:"share"`
}

// Summary is the per-class breakdown of one raster.
type Summary struct {
	Box         raster.GeoBox `json:"-"`
	DataCells   int           `json:"data_cells"`
	NoDataCells int           `json:"nodata_cells"`
	Classes     []ClassStat   `json:"classes"`
}

// Summarize counts cells per class code. No-data cells are tallied
// separately and excluded from shares. Class names come from the legend
// when one is given; unlisted codes still appear, unnamed.
func Summarize(g *raster.Grid[uint8], leg *legend.Legend) Summary {
	var counts [256]int
	for _, v := range g.Data {
		counts[v]++
	}

	s := Summary{Box: g.Box, NoDataCells: counts[raster.NoData]}
	s.DataCells = g.Box.Cells() - s.NoDataCells

	area := g.Box.CellArea()
	for code := 0; code < 256; code++ {
		if code == int(raster.NoData) || counts[code] == 0 {
			continue
		}
		cs := ClassStat{
			Code:  uint8(code),
			Cells: counts[code],
			Area:  float64(counts[code]) * area,
		}
		if s.DataCells > 0 {
			cs.Share = float64(cs.Cells) / float64(s.DataCells)
		}
		if leg != nil {
			cs.Name, _ = leg.Name(uint8(code))
		}
		s.Classes = append(s.Classes, cs)
	}
	return s
}

// Delta is one class's cell-count movement between two rasters.
type Delta struct {
	Code   uint8  `json:"code"`
	Name   string `json:"name,omitempty"`
	Before int    `json:"before"`
	After  int    `json:"after"`
	Change int    `json:"change"`
}

// Compare tallies per-class changes from before to after. The rasters must
// share a frame. Classes present in either raster appear; untouched classes
// show a zero change.
func Compare(before, after *raster.Grid[uint8], leg *legend.Legend) ([]Delta, error) {
	if before == nil || after == nil {
		return nil, eris.New("report: both rasters are required")
	}
	if !before.Box.SameGrid(after.Box) {
		return nil, eris.Errorf("report: raster frames differ (%s vs %s)", before.Box.String(), after.Box.String())
	}

	var pre, post [256]int
	for _, v := range before.Data {
		pre[v]++
	}
	for _, v := range after.Data {
		post[v]++
	}

	var deltas []Delta
	for code := 0; code < 256; code++ {
		if code == int(raster.NoData) || (pre[code] == 0 && post[code] == 0) {
			continue
		}
		d := Delta{
			Code:   uint8(code),
			Before: pre[code],
			After:  post[code],
			Change: post[code] - pre[code],
		}
		if leg != nil {
			d.Name, _ = leg.Name(uint8(code))
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

// Write renders the summary as an aligned table with grouped thousands.
func (s Summary) Write(out io.Writer) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tCLASS\tCELLS\tAREA_HA\tSHARE")
	_, _ = fmt.Fprintln(w, "----\t-----\t-----\t-------\t-----")

	for _, c := range s.Classes {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f%%\n",
			c.Code,
			c.Name,
			p.Sprintf("%d", c.Cells),
			p.Sprintf("%.2f", c.Area/10000),
			c.Share*100,
		)
	}
	_, _ = fmt.Fprintf(w, "\ndata cells: %s\tnodata: %s\n",
		p.Sprintf("%d", s.DataCells),
		p.Sprintf("%d", s.NoDataCells),
	)
	_ = w.Flush()
}

// WriteDeltas renders a before/after comparison table.
func WriteDeltas(out io.Writer, deltas []Delta) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CODE\tCLASS\tBEFORE\tAFTER\tCHANGE")
	_, _ = fmt.Fprintln(w, "----\t-----\t------\t-----\t------")

	for _, d := range deltas {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			d.Code,
			d.Name,
			p.Sprintf("%d", d.Before),
			p.Sprintf("%d", d.After),
			p.Sprintf("%+d", d.Change),
		)
	}
	_ = w.Flush()
}
