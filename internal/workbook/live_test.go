package workbook

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/quoteworks/quotegen/internal/automation"
	"github.com/quoteworks/quotegen/internal/pricing"
)

// liveEngine models the workbook's own formulas: each option J cell is the
// unit cost times the H flag/quantity on the same row, base J cells are
// constant.
func liveEngine() *automation.MemEngine {
	unitCosts := map[int]float64{
		18: 1500.00, 19: 1600.50, 20: 1700.25, 32: 2100.75, 33: 2200.00,
		38: 500.00, 39: 100.10, 40: 25.05, 45: 3500.00, 46: 4200.40, 47: 4300.00,
	}
	cells := map[string]float64{}
	for _, row := range baseComponentRows {
		cells[fmt.Sprintf("J%d", row)] = fixtureCosts[row]
	}

	engine := automation.NewMemEngine(map[string]map[string]float64{SummarySheet: cells})
	engine.Recalc = func(sheets map[string]map[string]float64) {
		summary := sheets[SummarySheet]
		for row, unit := range unitCosts {
			summary[fmt.Sprintf("J%d", row)] = unit * summary[fmt.Sprintf("H%d", row)]
		}
	}
	return engine
}

func baseCostSum() float64 {
	var base float64
	for _, row := range baseComponentRows {
		base += fixtureCosts[row]
	}
	return math.Round(base*100) / 100
}

func TestLivePricer_AppliesMarginAndSelections(t *testing.T) {
	engine := liveEngine()
	pricer := NewLivePricer(engine, discardLog())

	in := pricing.NewInputs()
	in.Margin = 0.2
	in.Guarding = "Tall"
	in.Feeding = "Side USL"
	in.Training = "English & Spanish"
	in.Transformer = "Canada"
	in.SparePartsQty = 1
	in.SpareBladesQty = 20
	in.SparePadsQty = 30

	res, err := pricer.Compute(context.Background(), "costs.xlsm", in)
	if err != nil {
		t.Fatalf("live compute: %v", err)
	}

	if res.ReadOnly {
		t.Fatal("expected a read-write session")
	}
	if v, _ := engine.Cell(SummarySheet, MarginCell); v != 0.2 {
		t.Fatalf("margin cell = %v, want 0.2", v)
	}

	base := baseCostSum()
	if !nearlyEqual(res.BaseCost, base) {
		t.Fatalf("base cost = %v, want %v", res.BaseCost, base)
	}
	wantBaseSell := math.Round(base/0.8*100) / 100
	if !nearlyEqual(res.BaseSell, wantBaseSell) {
		t.Fatalf("base sell = %v, want %v", res.BaseSell, wantBaseSell)
	}

	cases := []struct {
		label    string
		wantQty  float64
		wantCost float64
	}{
		{pricing.LabelGuardTaller, 1, 2100.75},
		{pricing.LabelGuardNetting, 0, 0},
		{pricing.LabelInfeedSideUSL, 1, 1600.50},
		{pricing.LabelInfeedFront, 0, 0},
		{pricing.LabelTrainingBilingual, 1, 3500.00},
		{pricing.LabelTransformerCanada, 1, 4200.40},
		{pricing.LabelTransformerStepUp, 0, 0},
		{pricing.LabelSpareParts, 1, 500.00},
		{pricing.LabelSpareBlades, 20, 20 * 100.10},
		{pricing.LabelSparePads, 30, 30 * 25.05},
	}
	for _, c := range cases {
		line, ok := res.Items[c.label]
		if !ok {
			t.Fatalf("missing line %q", c.label)
		}
		if line.Qty != c.wantQty {
			t.Fatalf("%q qty = %v, want %v", c.label, line.Qty, c.wantQty)
		}
		if !nearlyEqual(line.Cost, c.wantCost) {
			t.Fatalf("%q cost = %v, want %v", c.label, line.Cost, c.wantCost)
		}
		wantSell := math.Round(c.wantCost/0.8*100) / 100
		if !nearlyEqual(line.Sell, wantSell) {
			t.Fatalf("%q sell = %v, want %v", c.label, line.Sell, wantSell)
		}
	}
}

func TestLivePricer_ClearsStaleFlags(t *testing.T) {
	engine := liveEngine()
	// A previous scenario left the front infeed selected.
	engine.Sheets[SummarySheet]["H18"] = 1

	in := pricing.NewInputs()
	in.Feeding = "No"

	res, err := NewLivePricer(engine, discardLog()).Compute(context.Background(), "costs.xlsm", in)
	if err != nil {
		t.Fatalf("live compute: %v", err)
	}

	if v, _ := engine.Cell(SummarySheet, "H18"); v != 0 {
		t.Fatalf("stale flag H18 = %v, want 0", v)
	}
	if line := res.Items[pricing.LabelInfeedFront]; line.Cost != 0 || line.Qty != 0 {
		t.Fatalf("deselected line priced: %+v", line)
	}
}

func TestLivePricer_MarginCeiling(t *testing.T) {
	engine := liveEngine()
	pricer := NewLivePricer(engine, discardLog())

	in := pricing.NewInputs()
	in.Margin = 0.9999

	res, err := pricer.Compute(context.Background(), "costs.xlsm", in)
	if err != nil {
		t.Fatalf("live compute: %v", err)
	}
	// At the ceiling the conversion is skipped and sell equals cost.
	if !nearlyEqual(res.BaseSell, res.BaseCost) {
		t.Fatalf("base sell = %v, want unconverted %v", res.BaseSell, res.BaseCost)
	}
}

func TestLivePricer_ReadOnlyFallback(t *testing.T) {
	engine := liveEngine()
	engine.RejectReadWrite = true

	res, err := NewLivePricer(engine, discardLog()).Compute(context.Background(), "costs.xlsm", pricing.NewInputs())
	if err != nil {
		t.Fatalf("live compute: %v", err)
	}
	if !res.ReadOnly {
		t.Fatal("expected the read-only fallback to be reported")
	}
	if engine.Opens != 2 {
		t.Fatalf("expected read-write attempt then read-only open, got %d", engine.Opens)
	}
}

func TestLivePricer_MissingSummary(t *testing.T) {
	engine := automation.NewMemEngine(map[string]map[string]float64{"Costs": {}})

	_, err := NewLivePricer(engine, discardLog()).Compute(context.Background(), "costs.xlsm", pricing.NewInputs())
	if !IsStructural(err) {
		t.Fatalf("expected structural error, got %v", err)
	}
}
