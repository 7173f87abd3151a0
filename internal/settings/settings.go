// Package settings holds the persisted application settings: where the
// external pricing workbook lives, which workbook-engine compatibility mode
// is active, and where generated documents go. The values live in a single
// database row so the desktop launcher, the API, and tests all see one
// authoritative copy.
package settings

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// CompatMode selects how the external workbook is read.
//
//	auto     — fast file readers first, automation engine as fallback
//	com      — automation engine only
//	openpyxl — fast file readers only, no automation fallback
//	off      — pricing source disabled; the cost cache performs no I/O
//
// The mode names are inherited from the legacy launcher's configuration file
// and are part of the persisted-settings contract.
type CompatMode string

const (
	ModeAuto       CompatMode = "auto"
	ModeAutomation CompatMode = "com"
	ModeFast       CompatMode = "openpyxl"
	ModeOff        CompatMode = "off"
)

// ParseCompatMode normalizes a persisted mode value. Earlier releases stored
// a boolean, so "true"/"false" decode to auto/off. An empty value means auto.
func ParseCompatMode(raw string) (CompatMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return ModeAuto, nil
	case "com":
		return ModeAutomation, nil
	case "openpyxl":
		return ModeFast, nil
	case "off":
		return ModeOff, nil
	case "true":
		return ModeAuto, nil
	case "false":
		return ModeOff, nil
	}
	return "", fmt.Errorf("invalid compatibility mode %q (want auto, com, openpyxl or off)", raw)
}

// UnmarshalJSON accepts both the string form and the legacy boolean form.
func (m *CompatMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		mode, err := ParseCompatMode(s)
		if err != nil {
			return err
		}
		*m = mode
		return nil
	}

	var legacy bool
	if err := json.Unmarshal(b, &legacy); err == nil {
		if legacy {
			*m = ModeAuto
		} else {
			*m = ModeOff
		}
		return nil
	}

	return fmt.Errorf("invalid compatibility mode %s", string(b))
}

// Enabled reports whether the mode permits reading the pricing workbook at
// all. Off (and unknown values defensively) means the cost cache must not
// attempt any load.
func (m CompatMode) Enabled() bool {
	switch m {
	case ModeAuto, ModeAutomation, ModeFast:
		return true
	}
	return false
}

// Settings is the persisted application configuration.
type Settings struct {
	OutputDir           string     `json:"output_dir"`
	QuoteTemplatePath   string     `json:"quote_template_path"`
	CostingTemplatePath string     `json:"costing_template_path"`
	WorkbookPath        string     `json:"workbook_path"`
	CompatMode          CompatMode `json:"compat_mode"`
}

// Default returns the settings used before anything has been saved.
func Default() Settings {
	return Settings{
		OutputDir:  "outputs",
		CompatMode: ModeAuto,
	}
}

// Normalize trims whitespace and fills the defaultable fields.
func (s *Settings) Normalize() {
	s.OutputDir = strings.TrimSpace(s.OutputDir)
	if s.OutputDir == "" {
		s.OutputDir = "outputs"
	}
	s.QuoteTemplatePath = strings.TrimSpace(s.QuoteTemplatePath)
	s.CostingTemplatePath = strings.TrimSpace(s.CostingTemplatePath)
	s.WorkbookPath = strings.TrimSpace(s.WorkbookPath)
	if s.CompatMode == "" {
		s.CompatMode = ModeAuto
	}
}

// IsURL reports whether p is an http or https location. Remote workbooks
// (shared-drive links) are legal and skip local-file existence checks.
func IsURL(p string) bool {
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// Validate checks the filesystem-facing fields and returns a field → message
// map, empty on success.
//
// Template paths must exist locally when set. The workbook path may be a
// local file (which must exist) or an http/https URL. The output directory
// must be creatable.
func Validate(s Settings) map[string]string {
	errs := map[string]string{}

	for field, p := range map[string]string{
		"quote_template_path":   s.QuoteTemplatePath,
		"costing_template_path": s.CostingTemplatePath,
	} {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		switch {
		case err != nil:
			errs[field] = fmt.Sprintf("Path does not exist: %s", p)
		case info.IsDir():
			errs[field] = fmt.Sprintf("Path is not a file: %s", p)
		}
	}

	if p := s.WorkbookPath; p != "" && !IsURL(p) {
		info, err := os.Stat(p)
		switch {
		case err != nil:
			errs["workbook_path"] = fmt.Sprintf("Not a valid URL and file does not exist: %s", p)
		case info.IsDir():
			errs["workbook_path"] = fmt.Sprintf("Not a valid URL and path is not a file: %s", p)
		}
	}

	if !s.CompatMode.Enabled() && s.CompatMode != ModeOff {
		errs["compat_mode"] = fmt.Sprintf("Unknown compatibility mode: %s", s.CompatMode)
	}

	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		errs["output_dir"] = fmt.Sprintf("Cannot create output directory %q: %v", s.OutputDir, err)
	}

	return errs
}
