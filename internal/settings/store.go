package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Store persists the settings singleton in SQLite. Row id 1 is the only row;
// Ensure seeds it so Load never has to deal with an empty table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ensure inserts the default settings row if the table is empty.
func (st *Store) Ensure(ctx context.Context) error {
	d := Default()
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO settings (id, output_dir, quote_template_path, costing_template_path, workbook_path, compat_mode)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, d.OutputDir, d.QuoteTemplatePath, d.CostingTemplatePath, d.WorkbookPath, string(d.CompatMode))
	if err != nil {
		return fmt.Errorf("insert default settings: %w", err)
	}
	return nil
}

// Load reads the current settings.
func (st *Store) Load(ctx context.Context) (Settings, error) {
	var s Settings
	var mode string
	err := st.db.QueryRowContext(ctx, `
		SELECT output_dir, quote_template_path, costing_template_path, workbook_path, compat_mode
		FROM settings
		WHERE id = 1
	`).Scan(&s.OutputDir, &s.QuoteTemplatePath, &s.CostingTemplatePath, &s.WorkbookPath, &mode)
	if errors.Is(err, sql.ErrNoRows) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("query settings singleton: %w", err)
	}

	// Rows written by the legacy launcher may hold boolean mode values.
	parsed, err := ParseCompatMode(mode)
	if err != nil {
		return Settings{}, fmt.Errorf("decode persisted settings: %w", err)
	}
	s.CompatMode = parsed
	s.Normalize()
	return s, nil
}

// Save validates and persists new settings, returning the normalized copy.
// A non-nil map return carries per-field validation problems and means
// nothing was written.
func (st *Store) Save(ctx context.Context, s Settings) (Settings, map[string]string, error) {
	s.Normalize()
	if errs := Validate(s); len(errs) > 0 {
		return Settings{}, errs, nil
	}

	_, err := st.db.ExecContext(ctx, `
		UPDATE settings
		SET
			output_dir = ?,
			quote_template_path = ?,
			costing_template_path = ?,
			workbook_path = ?,
			compat_mode = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, s.OutputDir, s.QuoteTemplatePath, s.CostingTemplatePath, s.WorkbookPath, string(s.CompatMode))
	if err != nil {
		return Settings{}, nil, fmt.Errorf("update settings singleton: %w", err)
	}
	return s, nil, nil
}
