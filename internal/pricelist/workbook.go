// Package pricelist imports facility price lists from XLSX workbooks,
// fetched locally or over FTP.
package pricelist

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridianhealth/claims-cli/internal/model"
)

// Row is one parsed price line before catalog resolution.
type Row struct {
	Kind     model.LineKind
	Code     string
	Price    float64
	Override *float64
}

// WorkbookOptions configures the workbook parser.
type WorkbookOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of header rows to skip, default 1
}

// ParseWorkbook reads a price list workbook. Expected columns are
// kind, code, price and an optional override price; blank rows are skipped.
func ParseWorkbook(path string, opts WorkbookOptions) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "pricelist: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	skip := opts.SkipRows
	if skip == 0 {
		skip = 1
	}

	var rows []Row
	for i, xr := range sheet.Rows {
		if i < skip {
			continue
		}
		cells := make([]string, len(xr.Cells))
		for j, cell := range xr.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if len(cells) < 3 || cells[1] == "" {
			continue
		}

		row, err := parseRow(cells)
		if err != nil {
			return nil, eris.Wrapf(err, "pricelist: row %d", i+1)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(cells []string) (Row, error) {
	var r Row

	switch strings.ToLower(cells[0]) {
	case "item", "i":
		r.Kind = model.KindItem
	case "service", "s":
		r.Kind = model.KindService
	default:
		return r, eris.Errorf("unknown kind %q", cells[0])
	}
	r.Code = cells[1]

	price, err := strconv.ParseFloat(cells[2], 64)
	if err != nil {
		return r, eris.Wrapf(err, "parse price %q", cells[2])
	}
	r.Price = price

	if len(cells) > 3 && cells[3] != "" {
		override, err := strconv.ParseFloat(cells[3], 64)
		if err != nil {
			return r, eris.Wrapf(err, "parse override %q", cells[3])
		}
		r.Override = &override
	}
	return r, nil
}

func getSheet(f *xlsx.File, opts WorkbookOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("pricelist: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("pricelist: sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}
