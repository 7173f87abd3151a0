package workbook

import (
	"fmt"

	"github.com/quoteworks/quotegen/internal/pricing"
	"github.com/quoteworks/quotegen/internal/xlsb"
)

// readXLSB is the fast reader for binary workbooks. Like the structured
// reader it consumes cached formula results; cells this parser cannot see
// (strings, errors) price as zero.
func readXLSB(path string) (CostTable, error) {
	wb, err := xlsb.Open(path)
	if err != nil {
		return CostTable{}, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer wb.Close()

	if !wb.HasSheet(SummarySheet) {
		return CostTable{}, missingSummary()
	}

	sheet, err := wb.Sheet(SummarySheet)
	if err != nil {
		return CostTable{}, &StructuralError{Detail: err.Error()}
	}

	num := func(row int) float64 {
		v, _ := sheet.Number(costColumn, row)
		return v
	}

	var base float64
	for _, row := range baseComponentRows {
		base += num(row)
	}

	items := make(map[string]float64, len(optionRows))
	for row, label := range optionRows {
		items[label] = pricing.Round2(num(row))
	}

	return CostTable{Base: pricing.Round2(base), Items: items}, nil
}
