package outputs

import (
	"fmt"
	"html/template"
	"os"

	"github.com/quoteworks/quotegen/internal/pricing"
)

// defaultQuoteTemplate is used when no custom template path is configured.
// A custom template receives the same documentData.
const defaultQuoteTemplate = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; margin-top: 1rem; }
th, td { border: 1px solid #999; padding: 0.4rem 0.8rem; text-align: left; }
td.amount { text-align: right; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Date: {{.Date}}</p>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
<table>
<tr><th>Item</th><th>Qty</th><th>Price</th></tr>
<tr><td>Base System</td><td>1</td><td class="amount">{{money .Computation.BasePrice}}</td></tr>
{{range .Lines}}
<tr><td>{{.Label}}</td><td>{{.Qty}}</td><td class="amount">{{money .Price}}</td></tr>
{{end}}
<tr><th>Options Total</th><th></th><th class="amount">{{money .Computation.OptionsTotal}}</th></tr>
<tr><th>Total</th><th></th><th class="amount">{{money .Computation.TotalPrice}}</th></tr>
</table>
</body>
</html>
`

type documentLine struct {
	Label string
	Qty   int
	Price float64
}

type documentData struct {
	Title       string
	Notes       string
	Date        string
	Computation pricing.Computation
	Lines       []documentLine
}

func (g *Generator) writeQuoteDocument(path string, q Quote) error {
	tmpl, err := g.quoteTemplate()
	if err != nil {
		return err
	}

	lines := make([]documentLine, 0, len(q.Computation.OptionsBreakdown))
	for _, label := range pricing.Labels() {
		price, ok := q.Computation.OptionsBreakdown[label]
		if !ok {
			continue
		}
		lines = append(lines, documentLine{
			Label: label,
			Qty:   q.Computation.OptionsQty[label],
			Price: price,
		})
	}

	title := q.Title
	if title == "" {
		title = "Quotation"
	}
	data := documentData{
		Title:       title,
		Notes:       q.Notes,
		Date:        q.CreatedAt.Format("2006-01-02"),
		Computation: q.Computation,
		Lines:       lines,
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create quote document: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("render quote document: %w", err)
	}
	return nil
}

func (g *Generator) quoteTemplate() (*template.Template, error) {
	funcs := template.FuncMap{
		"money": func(v float64) string {
			return fmt.Sprintf("$%.2f", v)
		},
	}

	body := defaultQuoteTemplate
	if g.QuoteTemplatePath != "" {
		raw, err := os.ReadFile(g.QuoteTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read quote template %s: %w", g.QuoteTemplatePath, err)
		}
		body = string(raw)
	}

	tmpl, err := template.New("quote").Funcs(funcs).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse quote template: %w", err)
	}
	return tmpl, nil
}
