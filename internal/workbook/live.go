package workbook

import (
	"context"
	"log/slog"

	"github.com/quoteworks/quotegen/internal/automation"
	"github.com/quoteworks/quotegen/internal/pricing"
)

// LiveLine is one workbook line after a live recalculation.
type LiveLine struct {
	Label string  `json:"label"`
	Qty   float64 `json:"qty"`
	Cost  float64 `json:"cost"`
	Sell  float64 `json:"sell"`
}

// LiveResult carries the live-priced workbook: base machine and each option
// line with its cost and the sell price implied by the requested margin.
type LiveResult struct {
	Margin   float64             `json:"margin"`
	BaseCost float64             `json:"base_cost"`
	BaseSell float64             `json:"base_sell"`
	Items    map[string]LiveLine `json:"items"`
	ReadOnly bool                `json:"read_only"`
}

// marginCeiling stops the cost/(1-margin) conversion from dividing by a
// vanishing denominator. At or above it the cost is reported unconverted.
const marginCeiling = 0.9999

// LivePricer drives the automation engine through a full scenario: it writes
// the margin and quantity flags into the workbook, recalculates, and reads
// the resulting costs back.
type LivePricer struct {
	Engine automation.Engine
	Log    *slog.Logger
}

// NewLivePricer builds a live pricer over the given automation engine.
func NewLivePricer(engine automation.Engine, log *slog.Logger) *LivePricer {
	if log == nil {
		log = slog.Default()
	}
	return &LivePricer{Engine: engine, Log: log}
}

// Compute opens the workbook, applies the inputs, recalculates, and reads
// back every component line. The session is released on every path.
func (p *LivePricer) Compute(ctx context.Context, location string, in pricing.Inputs) (result LiveResult, err error) {
	session, readOnly, err := automation.OpenSession(ctx, p.Engine, location)
	if err != nil {
		return LiveResult{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ok, err := session.HasSheet(ctx, SummarySheet)
	if err != nil {
		return LiveResult{}, err
	}
	if !ok {
		return LiveResult{}, missingSummary()
	}
	if readOnly {
		p.Log.Warn("live pricing against a read-only workbook session", "location", location)
	}

	if err := p.applyInputs(ctx, session, in); err != nil {
		return LiveResult{}, err
	}
	if err := session.Recalculate(ctx); err != nil {
		return LiveResult{}, err
	}

	result = LiveResult{
		Margin:   in.Margin,
		Items:    make(map[string]LiveLine, len(optionRows)),
		ReadOnly: readOnly,
	}

	var base float64
	for _, row := range baseComponentRows {
		v, err := session.Number(ctx, SummarySheet, costCell(row))
		if err != nil {
			return LiveResult{}, err
		}
		base += v
	}
	result.BaseCost = pricing.Round2(base)
	result.BaseSell = pricing.Round2(sellPrice(base, in.Margin))

	qtys := liveQuantities(in)
	for row, label := range optionRows {
		cost, err := session.Number(ctx, SummarySheet, costCell(row))
		if err != nil {
			return LiveResult{}, err
		}
		result.Items[label] = LiveLine{
			Label: label,
			Qty:   qtys[label],
			Cost:  pricing.Round2(cost),
			Sell:  pricing.Round2(sellPrice(cost, in.Margin)),
		}
	}
	return result, nil
}

// sellPrice converts an extended cost to a sell price at the given margin.
func sellPrice(cost, margin float64) float64 {
	if margin >= marginCeiling {
		return cost
	}
	return cost / (1 - margin)
}

// applyInputs writes the scenario into the workbook: margin first, then all
// flag cells cleared so that stale selections from a prior run cannot leak
// into this one, then the requested quantities and selections.
func (p *LivePricer) applyInputs(ctx context.Context, session automation.Session, in pricing.Inputs) error {
	if err := session.SetNumber(ctx, SummarySheet, MarginCell, in.Margin); err != nil {
		return err
	}
	for _, row := range flagRows {
		if err := session.SetNumber(ctx, SummarySheet, flagCell(row), 0); err != nil {
			return err
		}
	}

	set := func(cell string, v float64) error {
		return session.SetNumber(ctx, SummarySheet, cell, v)
	}
	if err := set(sparePartsQtyCell, float64(in.SparePartsQty)); err != nil {
		return err
	}
	if err := set(spareBladesQtyCell, float64(in.SpareBladesQty)); err != nil {
		return err
	}
	if err := set(sparePadsQtyCell, float64(in.SparePadsQty)); err != nil {
		return err
	}

	var err error
	switch in.Guarding {
	case "Tall":
		err = set(flagCell(32), 1)
	case "Tall w/ Netting":
		err = set(flagCell(33), 1)
	}
	if err != nil {
		return err
	}

	switch in.Feeding {
	case "Front USL", pricing.FeedingFrontLegacy:
		err = set(flagCell(18), 1)
	case "Side USL":
		err = set(flagCell(19), 1)
	case "Side Badger":
		err = set(flagCell(20), 1)
	}
	if err != nil {
		return err
	}

	if in.Training == "English & Spanish" {
		if err := set(flagCell(45), 1); err != nil {
			return err
		}
	}

	switch in.Transformer {
	case "Canada":
		err = set(flagCell(46), 1)
	case "Step Up":
		err = set(flagCell(47), 1)
	}
	return err
}

// liveQuantities maps each option label to the quantity the inputs imply.
// Flag-driven options are quantity 1 when selected, 0 otherwise.
func liveQuantities(in pricing.Inputs) map[string]float64 {
	q := make(map[string]float64, len(optionRows))
	for _, label := range optionRows {
		q[label] = 0
	}
	q[pricing.LabelSpareParts] = float64(in.SparePartsQty)
	q[pricing.LabelSpareBlades] = float64(in.SpareBladesQty)
	q[pricing.LabelSparePads] = float64(in.SparePadsQty)
	switch in.Guarding {
	case "Tall":
		q[pricing.LabelGuardTaller] = 1
	case "Tall w/ Netting":
		q[pricing.LabelGuardNetting] = 1
	}
	switch in.Feeding {
	case "Front USL", pricing.FeedingFrontLegacy:
		q[pricing.LabelInfeedFront] = 1
	case "Side USL":
		q[pricing.LabelInfeedSideUSL] = 1
	case "Side Badger":
		q[pricing.LabelInfeedSideBadger] = 1
	}
	if in.Training == "English & Spanish" {
		q[pricing.LabelTrainingBilingual] = 1
	}
	switch in.Transformer {
	case "Canada":
		q[pricing.LabelTransformerCanada] = 1
	case "Step Up":
		q[pricing.LabelTransformerStepUp] = 1
	}
	return q
}
