package workbook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/quoteworks/quotegen/internal/pricing"
)

// readXLSX is the fast structured reader for OOXML workbooks (.xlsx/.xlsm).
// It reads last-calculated cell values straight from the file; no automation
// engine is involved, so the workbook must have been saved with current
// formula results.
func readXLSX(path string) (CostTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return CostTable{}, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(SummarySheet)
	if err != nil {
		return CostTable{}, fmt.Errorf("look up worksheet: %w", err)
	}
	if idx < 0 {
		return CostTable{}, missingSummary()
	}

	num := func(cell string) (float64, error) {
		raw, err := f.GetCellValue(SummarySheet, cell)
		if err != nil {
			return 0, &StructuralError{Detail: fmt.Sprintf("read cell %s: %v", cell, err)}
		}
		return parseCellNumber(raw), nil
	}

	var base float64
	for _, row := range baseComponentRows {
		v, err := num(costCell(row))
		if err != nil {
			return CostTable{}, err
		}
		base += v
	}

	items := make(map[string]float64, len(optionRows))
	for row, label := range optionRows {
		v, err := num(costCell(row))
		if err != nil {
			return CostTable{}, err
		}
		items[label] = pricing.Round2(v)
	}

	return CostTable{Base: pricing.Round2(base), Items: items}, nil
}

// parseCellNumber mirrors the permissive numeric coercion of the other
// readers: blank or non-numeric cells count as zero cost, they are not
// structural errors.
func parseCellNumber(raw string) float64 {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
