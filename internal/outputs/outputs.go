// Package outputs renders the deliverables of a generated quote: the quote
// document (quote.html) and the costing workbook (costing.xlsx), both under
// a fresh run directory.
package outputs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/quoteworks/quotegen/internal/pricing"
)

// Result points at the files one generation run produced. Paths are relative
// to the configured output directory so they can be served back over the
// download route.
type Result struct {
	RunDir      string `json:"run_dir"`
	QuotePath   string `json:"quote_path"`
	CostingPath string `json:"costing_path"`
}

// Quote is everything the generators need to render one quote.
type Quote struct {
	Title       string
	Notes       string
	CreatedAt   time.Time
	Inputs      pricing.Inputs
	Computation pricing.Computation
}

// Generator writes quote deliverables under baseDir.
type Generator struct {
	baseDir string

	// QuoteTemplatePath and CostingTemplatePath override the built-in
	// document template and the blank costing workbook when set.
	QuoteTemplatePath   string
	CostingTemplatePath string
}

// NewGenerator builds a generator rooted at baseDir.
func NewGenerator(baseDir string) *Generator {
	return &Generator{baseDir: baseDir}
}

// Generate renders both deliverables into a new run directory and returns
// their locations.
func (g *Generator) Generate(q Quote) (Result, error) {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}

	runDir := newRunDirName(q.CreatedAt)
	absDir := filepath.Join(g.baseDir, runDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create run directory: %w", err)
	}

	quotePath := filepath.Join(runDir, "quote.html")
	if err := g.writeQuoteDocument(filepath.Join(g.baseDir, quotePath), q); err != nil {
		return Result{}, err
	}

	costingPath := filepath.Join(runDir, "costing.xlsx")
	if err := g.writeCostingWorkbook(filepath.Join(g.baseDir, costingPath), q); err != nil {
		return Result{}, err
	}

	return Result{RunDir: runDir, QuotePath: quotePath, CostingPath: costingPath}, nil
}

// newRunDirName builds a sortable, collision-free directory name. The
// timestamp keeps runs browsable; the uuid prefix keeps two runs in the same
// second apart.
func newRunDirName(at time.Time) string {
	return fmt.Sprintf("%s_%s", at.Format("20060102-150405"), uuid.NewString()[:8])
}
