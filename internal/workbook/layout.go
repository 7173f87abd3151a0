// Package workbook extracts the cost table from the external pricing
// workbook. Three interchangeable reading strategies exist: a fast binary
// reader (.xlsb), a fast structured reader (.xlsx/.xlsm), and the automation
// engine. All three must produce numerically identical tables for the same
// workbook content.
package workbook

import (
	"fmt"

	"github.com/quoteworks/quotegen/internal/pricing"
)

// SummarySheet is the worksheet every reader targets. A workbook without it
// is structurally invalid as a pricing source.
const SummarySheet = "Summary"

// Cell geometry of the Summary sheet. Calculated costs live in column J,
// option on/off and quantity inputs in column H, and the margin input at M4.
// The row numbers mirror the sheet maintained by the costing team; they are
// the contract between this service and that workbook.
const (
	costColumn = "J"
	flagColumn = "H"

	// MarginCell is the margin input written by the live pricer.
	MarginCell = "M4"
)

// baseComponentRows are summed into the base cost.
var baseComponentRows = []int{4, 5, 6, 7, 8, 9, 10, 14, 17, 24, 31}

// optionRows maps a Summary-sheet row to the option label priced on it.
var optionRows = map[int]string{
	18: pricing.LabelInfeedFront,
	19: pricing.LabelInfeedSideUSL,
	20: pricing.LabelInfeedSideBadger,
	32: pricing.LabelGuardTaller,
	33: pricing.LabelGuardNetting,
	38: pricing.LabelSpareParts,
	39: pricing.LabelSpareBlades,
	40: pricing.LabelSparePads,
	45: pricing.LabelTrainingBilingual,
	46: pricing.LabelTransformerCanada,
	47: pricing.LabelTransformerStepUp,
}

// flagRows carry the option input cells toggled by the live pricer. They
// match the option rows: the H cell on each row switches (or quantifies) the
// option priced in that row's J cell.
var flagRows = []int{18, 19, 20, 32, 33, 38, 39, 40, 45, 46, 47}

// Quantity input cells for the spare-part groups.
const (
	sparePartsQtyCell  = flagColumn + "38"
	spareBladesQtyCell = flagColumn + "39"
	sparePadsQtyCell   = flagColumn + "40"
)

func costCell(row int) string {
	return fmt.Sprintf("%s%d", costColumn, row)
}

func flagCell(row int) string {
	return fmt.Sprintf("%s%d", flagColumn, row)
}
