package outputs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/quoteworks/quotegen/internal/pricing"
)

func sampleQuote() Quote {
	in := pricing.NewInputs()
	in.Guarding = "Tall"
	comp := pricing.Compute(in, 414320.82, map[string]float64{
		pricing.LabelSpareParts:  500.00,
		pricing.LabelSpareBlades: 100.10,
		pricing.LabelSparePads:   25.05,
		pricing.LabelGuardTaller: 2100.75,
	})
	return Quote{
		Title:       "Badger Line Quote",
		Notes:       "Budgetary pricing, valid 30 days.",
		CreatedAt:   time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		Inputs:      in,
		Computation: comp,
	}
}

func TestGenerate_WritesBothDeliverables(t *testing.T) {
	base := t.TempDir()
	res, err := NewGenerator(base).Generate(sampleQuote())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if !strings.HasPrefix(res.RunDir, "20260314-150926_") {
		t.Fatalf("run dir %q not timestamp-prefixed", res.RunDir)
	}
	for _, p := range []string{res.QuotePath, res.CostingPath} {
		if _, err := os.Stat(filepath.Join(base, p)); err != nil {
			t.Fatalf("deliverable %s missing: %v", p, err)
		}
	}
}

func TestGenerate_QuoteDocumentContent(t *testing.T) {
	base := t.TempDir()
	q := sampleQuote()
	res, err := NewGenerator(base).Generate(q)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(base, res.QuotePath))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	doc := string(raw)

	for _, want := range []string{
		"Badger Line Quote",
		"Budgetary pricing, valid 30 days.",
		pricing.LabelGuardTaller,
		pricing.LabelSpareBlades,
		"$414320.82",
		"2026-03-14",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q", want)
		}
	}
	if strings.Contains(doc, pricing.LabelTransformerCanada) {
		t.Fatal("unselected option rendered")
	}
}

func TestGenerate_CostingWorkbookContent(t *testing.T) {
	base := t.TempDir()
	q := sampleQuote()
	res, err := NewGenerator(base).Generate(q)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	f, err := excelize.OpenFile(filepath.Join(base, res.CostingPath))
	if err != nil {
		t.Fatalf("open costing workbook: %v", err)
	}
	defer f.Close()

	cell := func(ref string) string {
		v, err := f.GetCellValue(costingSheet, ref)
		if err != nil {
			t.Fatalf("read cell %s: %v", ref, err)
		}
		return v
	}

	if cell("A1") != "Item" || cell("A2") != "Base System" {
		t.Fatalf("unexpected header rows: %q / %q", cell("A1"), cell("A2"))
	}

	rows, err := f.GetRows(costingSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	var sawGuard, sawTotal bool
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		switch row[0] {
		case pricing.LabelGuardTaller:
			sawGuard = true
		case "Grand Total":
			sawTotal = true
		}
	}
	if !sawGuard || !sawTotal {
		t.Fatalf("missing rows: guard=%v total=%v", sawGuard, sawTotal)
	}
}

func TestGenerate_CustomQuoteTemplate(t *testing.T) {
	base := t.TempDir()
	tmplPath := filepath.Join(t.TempDir(), "quote.tmpl")
	if err := os.WriteFile(tmplPath, []byte("TOTAL {{money .Computation.TotalPrice}}"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	gen := NewGenerator(base)
	gen.QuoteTemplatePath = tmplPath
	res, err := gen.Generate(sampleQuote())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(base, res.QuotePath))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if !strings.HasPrefix(string(raw), "TOTAL $") {
		t.Fatalf("custom template not used: %q", raw)
	}
}

func TestNewRunDirName_DistinctPerCall(t *testing.T) {
	at := time.Now()
	if newRunDirName(at) == newRunDirName(at) {
		t.Fatal("expected distinct run directory names")
	}
}
