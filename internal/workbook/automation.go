package workbook

import (
	"context"
	"fmt"

	"github.com/quoteworks/quotegen/internal/automation"
	"github.com/quoteworks/quotegen/internal/pricing"
)

// readAutomation extracts the cost table through a live automation session.
// It is the slow, most general strategy: it works for remote locations and
// for workbooks the fast readers choke on, and it recalculates before
// reading so stale cached values cannot leak into the table.
//
// The baseline is read at margin zero with every option flag set to 1, so
// each option row carries its unit cost and the margin stays the rules
// engine's business.
func readAutomation(ctx context.Context, engine automation.Engine, location string) (table CostTable, err error) {
	session, readOnly, err := automation.OpenSession(ctx, engine, location)
	if err != nil {
		return CostTable{}, err
	}
	// Release the session on every exit path, including mid-read failures.
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_ = readOnly

	ok, err := session.HasSheet(ctx, SummarySheet)
	if err != nil {
		return CostTable{}, err
	}
	if !ok {
		return CostTable{}, missingSummary()
	}

	if err := session.SetNumber(ctx, SummarySheet, MarginCell, 0); err != nil {
		return CostTable{}, err
	}
	for _, row := range flagRows {
		if err := session.SetNumber(ctx, SummarySheet, flagCell(row), 1); err != nil {
			return CostTable{}, err
		}
	}
	if err := session.Recalculate(ctx); err != nil {
		return CostTable{}, err
	}

	num := func(row int) (float64, error) {
		v, err := session.Number(ctx, SummarySheet, costCell(row))
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", costCell(row), err)
		}
		return v, nil
	}

	var base float64
	for _, row := range baseComponentRows {
		v, err := num(row)
		if err != nil {
			return CostTable{}, err
		}
		base += v
	}

	items := make(map[string]float64, len(optionRows))
	for row, label := range optionRows {
		v, err := num(row)
		if err != nil {
			return CostTable{}, err
		}
		items[label] = pricing.Round2(v)
	}

	return CostTable{Base: pricing.Round2(base), Items: items}, nil
}
