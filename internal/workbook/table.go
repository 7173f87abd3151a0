package workbook

import (
	"errors"
	"fmt"
)

// CostTable is the pricing baseline extracted from the workbook: the summed
// base cost plus one unit cost per option label. Costs carry no margin; the
// rules engine applies margin later.
type CostTable struct {
	Base  float64
	Items map[string]float64
}

// Clone returns a deep copy so cached tables can be handed out without
// aliasing the cache's own maps.
func (t CostTable) Clone() CostTable {
	items := make(map[string]float64, len(t.Items))
	for k, v := range t.Items {
		items[k] = v
	}
	return CostTable{Base: t.Base, Items: items}
}

// ErrSourceNotFound marks a workbook location that is neither an existing
// local file nor a URL.
var ErrSourceNotFound = errors.New("workbook not found")

// StructuralError reports a workbook that opened but does not look like a
// pricing workbook (missing Summary sheet, unreadable cells).
type StructuralError struct {
	Detail string
}

func (e *StructuralError) Error() string {
	return "workbook structure: " + e.Detail
}

// IsStructural reports whether err is (or wraps) a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

func missingSummary() error {
	return &StructuralError{Detail: fmt.Sprintf("worksheet %q not found", SummarySheet)}
}
