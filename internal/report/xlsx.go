package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX exports a summary, and optionally a before/after comparison,
// as an XLSX workbook.
func WriteXLSX(path string, s Summary, deltas []Delta) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("classes")
	if err != nil {
		return eris.Wrap(err, "report: add classes sheet")
	}
	header := sheet.AddRow()
	for _, h := range []string{"code", "class", "cells", "area", "share"} {
		header.AddCell().Value = h
	}
	for _, c := range s.Classes {
		row := sheet.AddRow()
		row.AddCell().SetInt(int(c.Code))
		row.AddCell().Value = c.Name
		row.AddCell().SetInt(c.Cells)
		row.AddCell().SetFloat(c.Area)
		row.AddCell().SetFloat(c.Share)
	}

	if len(deltas) > 0 {
		sheet, err := f.AddSheet("deltas")
		if err != nil {
			return eris.Wrap(err, "report: add deltas sheet")
		}
		header := sheet.AddRow()
		for _, h := range []string{"code", "class", "before", "after", "change"} {
			header.AddCell().Value = h
		}
		for _, d := range deltas {
			row := sheet.AddRow()
			row.AddCell().SetInt(int(d.Code))
			row.AddCell().Value = d.Name
			row.AddCell().SetInt(d.Before)
			row.AddCell().SetInt(d.After)
			row.AddCell().SetInt(d.Change)
		}
	}

	return eris.Wrapf(f.Save(path), "report: save %s", path)
}
