package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/quoteworks/quotegen/internal/pricing"
)

// quoteStore persists generated quotes for the history list.
type quoteStore struct {
	db *sql.DB
}

type quoteListItem struct {
	ID        int64   `json:"id"`
	CreatedAt string  `json:"created_at"`
	Title     string  `json:"title"`
	Total     float64 `json:"total"`
}

func (q *quoteStore) insert(ctx context.Context, title, notes string, in pricing.Inputs, comp pricing.Computation) (int64, error) {
	inputsJSON, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("encode quote inputs: %w", err)
	}
	totalsJSON, err := json.Marshal(comp)
	if err != nil {
		return 0, fmt.Errorf("encode quote totals: %w", err)
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO quotes (title, notes, inputs_json, totals_json)
		VALUES (?, ?, ?, ?)
	`, title, notes, string(inputsJSON), string(totalsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert quote: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read quote id: %w", err)
	}
	return id, nil
}

func (q *quoteStore) list(ctx context.Context, query string) ([]quoteListItem, error) {
	search := "%" + query + "%"
	rows, err := q.db.QueryContext(ctx, `
		SELECT
			id,
			created_at,
			COALESCE(title, ''),
			totals_json
		FROM quotes
		WHERE (? = '' OR COALESCE(title, '') LIKE ? OR COALESCE(notes, '') LIKE ?)
		ORDER BY datetime(created_at) DESC, id DESC
	`, query, search, search)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]quoteListItem, 0)
	for rows.Next() {
		var item quoteListItem
		var totalsJSON string
		if err := rows.Scan(&item.ID, &item.CreatedAt, &item.Title, &totalsJSON); err != nil {
			return nil, fmt.Errorf("scan quote row: %w", err)
		}
		item.Total = extractTotalFromJSON(totalsJSON)
		quotes = append(quotes, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quote rows: %w", err)
	}
	return quotes, nil
}

// extractTotalFromJSON digs the headline total out of a stored totals blob.
// Older rows used different key names.
func extractTotalFromJSON(totalsJSON string) float64 {
	var values map[string]json.RawMessage
	if err := json.Unmarshal([]byte(totalsJSON), &values); err != nil {
		return 0
	}

	for _, key := range []string{"total_price", "total", "grand_total"} {
		raw, ok := values[key]
		if !ok {
			continue
		}
		var total float64
		if err := json.Unmarshal(raw, &total); err == nil {
			return total
		}
	}
	return 0
}
