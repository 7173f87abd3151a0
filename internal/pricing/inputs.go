package pricing

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Canonical enumeration values accepted for each single-choice option group.
// These align with the workbook input cells and the rules engine; changing
// them breaks saved quotes and the frontend option lists together.
var (
	GuardingValues    = []string{"Standard", "Tall", "Tall w/ Netting"}
	FeedingValues     = []string{"No", "Front USL", "Side USL", "Side Badger"}
	TransformerValues = []string{"None", "Canada", "Step Up"}
	TrainingValues    = []string{"English", "English & Spanish"}

	SparePartsQtyValues = []int{0, 1}
	SpareStepQtyValues  = []int{0, 10, 20, 30, 40, 50}
)

// FeedingFrontLegacy is an older payload spelling for the front infeed
// selection. The rules engine prices it on the same line as "Front USL", but
// it is not part of the canonical vocabulary and fails input validation.
const FeedingFrontLegacy = "Front Badger"

// Defaults for a fresh quote form. The base price mirrors the current
// list price of the base system and is only used when no workbook is
// available.
const (
	DefaultMargin    = 0.24
	DefaultBasePrice = 414320.82

	maxSpareStepQty = 50
	maxMarginPct    = 95.0
)

// Inputs is the buyer-selected configuration submitted for pricing.
//
// Margin is carried both as a 0–1 fraction and as a 0–95 percent value; the
// two stay numerically synchronized (see UnmarshalJSON and SyncMargin).
type Inputs struct {
	Margin    float64 `json:"margin"`
	MarginPct float64 `json:"margin_pct"`
	BasePrice float64 `json:"base_price"`

	SparePartsQty  int `json:"spare_parts_qty"`
	SpareBladesQty int `json:"spare_blades_qty"`
	SparePadsQty   int `json:"spare_pads_qty"`

	Guarding    string `json:"guarding"`
	Feeding     string `json:"feeding"`
	Transformer string `json:"transformer"`
	Training    string `json:"training"`
}

// NewInputs returns the default configuration.
func NewInputs() Inputs {
	return Inputs{
		Margin:         DefaultMargin,
		MarginPct:      round6(DefaultMargin * 100),
		BasePrice:      DefaultBasePrice,
		SparePartsQty:  1,
		SpareBladesQty: 20,
		SparePadsQty:   30,
		Guarding:       "Standard",
		Feeding:        "No",
		Transformer:    "None",
		Training:       "English",
	}
}

// inputsPayload mirrors Inputs with pointer fields so absent keys can be told
// apart from zero values when decoding legacy payloads.
type inputsPayload struct {
	Margin    *float64 `json:"margin"`
	MarginPct *float64 `json:"margin_pct"`
	BasePrice *float64 `json:"base_price"`

	SparePartsQty  *int `json:"spare_parts_qty"`
	SpareBladesQty *int `json:"spare_blades_qty"`
	SparePadsQty   *int `json:"spare_pads_qty"`

	Guarding    *string `json:"guarding"`
	Feeding     *string `json:"feeding"`
	Transformer *string `json:"transformer"`
	Training    *string `json:"training"`
}

// UnmarshalJSON decodes an Inputs payload, applying defaults for absent
// fields and keeping the two margin representations synchronized. Older
// clients send only `margin` (0–1); newer clients send `margin_pct` (0–95).
// When both are present, the percent value wins.
func (in *Inputs) UnmarshalJSON(b []byte) error {
	var p inputsPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}

	out := NewInputs()
	if p.BasePrice != nil {
		out.BasePrice = *p.BasePrice
	}
	if p.SparePartsQty != nil {
		out.SparePartsQty = *p.SparePartsQty
	}
	if p.SpareBladesQty != nil {
		out.SpareBladesQty = *p.SpareBladesQty
	}
	if p.SparePadsQty != nil {
		out.SparePadsQty = *p.SparePadsQty
	}
	if p.Guarding != nil {
		out.Guarding = strings.TrimSpace(*p.Guarding)
	}
	if p.Feeding != nil {
		out.Feeding = strings.TrimSpace(*p.Feeding)
	}
	if p.Transformer != nil {
		out.Transformer = strings.TrimSpace(*p.Transformer)
	}
	if p.Training != nil {
		out.Training = strings.TrimSpace(*p.Training)
	}

	switch {
	case p.MarginPct != nil:
		// Percent wins whether or not the fraction was also sent.
		out.MarginPct = *p.MarginPct
		out.Margin = round6(out.MarginPct / 100)
	case p.Margin != nil:
		out.Margin = *p.Margin
		out.MarginPct = round6(out.Margin * 100)
	}
	out.SyncMargin()

	*in = out
	return nil
}

// SyncMargin clamps both margin representations to their valid ranges and
// rounds them to 6 decimal places so the pair stays stable across
// round-trips.
func (in *Inputs) SyncMargin() {
	in.Margin = round6(clamp(in.Margin, 0, 1))
	in.MarginPct = round6(clamp(in.MarginPct, 0, maxMarginPct))
}

// ValidationErrors maps an input field name to a human-readable problem.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for k := range v {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, v[f]))
	}
	return "invalid inputs: " + strings.Join(parts, "; ")
}

// Validate checks quantity and enumeration constraints. A non-empty result
// means the configuration must be rejected before it reaches the cost cache
// or the rules engine.
func (in Inputs) Validate() ValidationErrors {
	errs := ValidationErrors{}

	if in.BasePrice < 0 {
		errs["base_price"] = "Base price must not be negative."
	}
	if in.SparePartsQty != 0 && in.SparePartsQty != 1 {
		errs["spare_parts_qty"] = "Quantity must be 0 or 1."
	}
	if msg := validateSpareStep(in.SpareBladesQty); msg != "" {
		errs["spare_blades_qty"] = msg
	}
	if msg := validateSpareStep(in.SparePadsQty); msg != "" {
		errs["spare_pads_qty"] = msg
	}

	if !contains(GuardingValues, in.Guarding) {
		errs["guarding"] = enumError(GuardingValues)
	}
	if !contains(FeedingValues, in.Feeding) {
		errs["feeding"] = enumError(FeedingValues)
	}
	if !contains(TransformerValues, in.Transformer) {
		errs["transformer"] = enumError(TransformerValues)
	}
	if !contains(TrainingValues, in.Training) {
		errs["training"] = enumError(TrainingValues)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateSpareStep(q int) string {
	switch {
	case q < 0:
		return "Quantity must not be negative."
	case q > maxSpareStepQty:
		return "Quantity must be at most 50."
	case q%10 != 0:
		return "Quantity must be a multiple of 10 (0,10,20,30,40,50)."
	}
	return ""
}

func enumError(allowed []string) string {
	return "Value must be one of: " + strings.Join(allowed, ", ") + "."
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Round2 rounds a monetary value to 2 decimal places. Exported because the
// workbook readers and output generators apply the same rounding at their
// boundaries.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
