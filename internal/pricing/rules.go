package pricing

// Option labels as they appear on the workbook Summary sheet. The exact
// spellings (including the en dashes) are load-bearing: the workbook readers,
// the rules engine, and every consumer of a Computation key on them.
const (
	LabelSpareParts        = "Spare Parts Package"
	LabelSpareBlades       = "Spare Saw Blades"
	LabelSparePads         = "Spare Foam Pads"
	LabelGuardTaller       = "Guarding – Taller"
	LabelGuardNetting      = "Guarding – Netting"
	LabelInfeedFront       = "Infeed – Front USL"
	LabelInfeedSideUSL     = "Infeed – Side USL"
	LabelInfeedSideBadger  = "Infeed – Side Badger"
	LabelTrainingBilingual = "Training (English & Spanish)"
	LabelTransformerCanada = "Transformer – Canada"
	LabelTransformerStepUp = "Transformer – Step Up"
)

// Labels lists the full option vocabulary in Summary-sheet order.
func Labels() []string {
	return []string{
		LabelSpareParts,
		LabelSpareBlades,
		LabelSparePads,
		LabelGuardTaller,
		LabelGuardNetting,
		LabelInfeedFront,
		LabelInfeedSideUSL,
		LabelInfeedSideBadger,
		LabelTrainingBilingual,
		LabelTransformerCanada,
		LabelTransformerStepUp,
	}
}

// Computation is the priced breakdown produced by the rules engine.
//
// OptionsBreakdown maps each selected option label to its extended price
// (unit cost × quantity); the base price never appears in the map but always
// contributes to TotalPrice. All monetary fields are rounded to 2 decimal
// places independently of each other.
type Computation struct {
	OptionsBreakdown map[string]float64 `json:"options_breakdown"`
	OptionsQty       map[string]int     `json:"options_qty"`
	OptionsTotal     float64            `json:"options_price_total"`
	Margin           float64            `json:"margin"`
	BasePrice        float64            `json:"base_price"`
	TotalPrice       float64            `json:"total_price"`
}

// Compute applies the commercial rules to a validated configuration and a
// cost table. It is deterministic and side-effect free: priceList is only
// read, and the returned Computation is a fresh value.
//
// Labels absent from priceList price at zero; a missing price is not an
// error at this layer.
func Compute(in Inputs, basePrice float64, priceList map[string]float64) Computation {
	breakdown := map[string]float64{}
	qtys := map[string]int{}

	add := func(label string, qty int) {
		if qty <= 0 {
			return
		}
		breakdown[label] = priceList[label] * float64(qty)
		qtys[label] = qty
	}

	add(LabelSpareParts, in.SparePartsQty)
	add(LabelSpareBlades, in.SpareBladesQty)
	add(LabelSparePads, in.SparePadsQty)

	switch in.Guarding {
	case "Tall":
		add(LabelGuardTaller, 1)
	case "Tall w/ Netting":
		add(LabelGuardNetting, 1)
	}

	switch in.Feeding {
	case "Front USL", FeedingFrontLegacy:
		add(LabelInfeedFront, 1)
	case "Side USL":
		add(LabelInfeedSideUSL, 1)
	case "Side Badger":
		add(LabelInfeedSideBadger, 1)
	}

	switch in.Transformer {
	case "Canada":
		add(LabelTransformerCanada, 1)
	case "Step Up":
		add(LabelTransformerStepUp, 1)
	}

	if in.Training == "English & Spanish" {
		add(LabelTrainingBilingual, 1)
	}

	// Sum at full precision, then round each output once. Rounding the
	// already-rounded parts again would compound the error.
	optionsTotal := 0.0
	for _, ext := range breakdown {
		optionsTotal += ext
	}
	total := basePrice + optionsTotal

	for label, ext := range breakdown {
		breakdown[label] = Round2(ext)
	}

	return Computation{
		OptionsBreakdown: breakdown,
		OptionsQty:       qtys,
		OptionsTotal:     Round2(optionsTotal),
		Margin:           in.Margin,
		BasePrice:        Round2(basePrice),
		TotalPrice:       Round2(total),
	}
}

// ComputeOffline prices a configuration without a cost table, using the
// configuration's own base price. Selected options still appear in the
// breakdown, at zero cost. This is the no-workbook fallback mode.
func ComputeOffline(in Inputs) Computation {
	return Compute(in, in.BasePrice, nil)
}
