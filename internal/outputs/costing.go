package outputs

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/quoteworks/quotegen/internal/pricing"
)

const costingSheet = "Line Items"

// writeCostingWorkbook writes the costing workbook: one row per priced line
// with quantity and extended price, then options-total and grand-total rows.
// A costing template, when configured, is used as the starting workbook so
// branding and extra sheets survive; rows for known labels are upserted into
// its Line Items sheet.
func (g *Generator) writeCostingWorkbook(path string, q Quote) error {
	f, err := g.costingBase()
	if err != nil {
		return err
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(costingSheet)
	if err != nil {
		return fmt.Errorf("look up costing sheet: %w", err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(costingSheet); err != nil {
			return fmt.Errorf("create costing sheet: %w", err)
		}
	}

	set := func(cell string, value any) error {
		if err := f.SetCellValue(costingSheet, cell, value); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
		return nil
	}

	header := []struct {
		cell, text string
	}{
		{"A1", "Item"}, {"B1", "Qty"}, {"C1", "Price"},
	}
	for _, h := range header {
		if err := set(h.cell, h.text); err != nil {
			return err
		}
	}

	if err := set("A2", "Base System"); err != nil {
		return err
	}
	if err := set("B2", 1); err != nil {
		return err
	}
	if err := set("C2", q.Computation.BasePrice); err != nil {
		return err
	}

	row := 3
	for _, label := range pricing.Labels() {
		price, ok := q.Computation.OptionsBreakdown[label]
		if !ok {
			continue
		}
		if err := set(fmt.Sprintf("A%d", row), label); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("B%d", row), q.Computation.OptionsQty[label]); err != nil {
			return err
		}
		if err := set(fmt.Sprintf("C%d", row), price); err != nil {
			return err
		}
		row++
	}

	if err := set(fmt.Sprintf("A%d", row), "Options Total"); err != nil {
		return err
	}
	if err := set(fmt.Sprintf("C%d", row), q.Computation.OptionsTotal); err != nil {
		return err
	}
	row++
	if err := set(fmt.Sprintf("A%d", row), "Grand Total"); err != nil {
		return err
	}
	if err := set(fmt.Sprintf("C%d", row), q.Computation.TotalPrice); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save costing workbook: %w", err)
	}
	return nil
}

func (g *Generator) costingBase() (*excelize.File, error) {
	if g.CostingTemplatePath == "" {
		return excelize.NewFile(), nil
	}
	f, err := excelize.OpenFile(g.CostingTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("open costing template %s: %w", g.CostingTemplatePath, err)
	}
	return f, nil
}
