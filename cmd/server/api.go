package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/quoteworks/quotegen/internal/automation"
	"github.com/quoteworks/quotegen/internal/costcache"
	"github.com/quoteworks/quotegen/internal/logging"
	"github.com/quoteworks/quotegen/internal/outputs"
	"github.com/quoteworks/quotegen/internal/pricing"
	"github.com/quoteworks/quotegen/internal/settings"
	"github.com/quoteworks/quotegen/internal/workbook"
)

// costSource is the cost cache surface the handlers need.
type costSource interface {
	Get(ctx context.Context, s settings.Settings) (costcache.Snapshot, error)
	Refresh(ctx context.Context, s settings.Settings) (costcache.Snapshot, error)
	Preload(ctx context.Context, s settings.Settings) costcache.PreloadResult
	Invalidate()
}

// livePricer is the live workbook pricer surface the handlers need.
type livePricer interface {
	Compute(ctx context.Context, location string, in pricing.Inputs) (workbook.LiveResult, error)
}

type server struct {
	db       *sql.DB
	settings *settings.Store
	costs    costSource
	live     livePricer
	quotes   *quoteStore
	apiToken string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFieldErrors reports per-field validation problems in the envelope the
// frontend expects.
func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "errors": fields})
}

// writeError maps internal failures onto API statuses: bad configuration and
// missing sources are the client's problem, broken workbooks and automation
// failures are ours.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs pricing.ValidationErrors
	if errors.As(err, &verrs) {
		writeFieldErrors(w, verrs)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, costcache.ErrDisabled),
		errors.Is(err, costcache.ErrNoWorkbook),
		errors.Is(err, workbook.ErrSourceNotFound):
		status = http.StatusBadRequest
	case workbook.IsStructural(err), automation.IsError(err):
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

// decodeInputs reads a pricing configuration from the request body. Both the
// wrapped form {"inputs": {...}} and a flat inputs object are accepted; an
// empty body yields the defaults.
func decodeInputs(r *http.Request) (pricing.Inputs, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return pricing.Inputs{}, fmt.Errorf("read request body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return pricing.NewInputs(), nil
	}

	var wrapped struct {
		Inputs *pricing.Inputs `json:"inputs"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Inputs != nil {
		return *wrapped.Inputs, nil
	}

	var in pricing.Inputs
	if err := json.Unmarshal(body, &in); err != nil {
		return pricing.Inputs{}, fmt.Errorf("decode inputs: %w", err)
	}
	return in, nil
}

func (s *server) loadSettings(ctx context.Context) (settings.Settings, error) {
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return cfg, nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleOptions returns the option vocabularies and default configuration
// the quote form is built from.
func (s *server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"defaults": pricing.NewInputs(),
		"labels":   pricing.Labels(),
		"choices": map[string][]string{
			"guarding":    pricing.GuardingValues,
			"feeding":     pricing.FeedingValues,
			"transformer": pricing.TransformerValues,
			"training":    pricing.TrainingValues,
		},
	})
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInputs(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if errs := in.Validate(); errs != nil {
		writeFieldErrors(w, errs)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "inputs": in})
}

// priceResponse is the payload of /api/price and /api/price/refresh.
type priceResponse struct {
	OK          bool                `json:"ok"`
	Source      string              `json:"source"`
	Method      string              `json:"method,omitempty"`
	Workbook    string              `json:"workbook,omitempty"`
	Computation pricing.Computation `json:"computation"`
}

func (s *server) handlePrice(w http.ResponseWriter, r *http.Request) {
	s.price(w, r, s.costs.Get)
}

// handlePriceRefresh reloads the workbook before pricing, bypassing the
// cached cost table.
func (s *server) handlePriceRefresh(w http.ResponseWriter, r *http.Request) {
	s.price(w, r, s.costs.Refresh)
}

func (s *server) price(w http.ResponseWriter, r *http.Request, fetch func(context.Context, settings.Settings) (costcache.Snapshot, error)) {
	in, err := decodeInputs(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if errs := in.Validate(); errs != nil {
		writeFieldErrors(w, errs)
		return
	}

	cfg, err := s.loadSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := fetch(r.Context(), cfg)
	switch {
	case errors.Is(err, costcache.ErrDisabled), errors.Is(err, costcache.ErrNoWorkbook):
		// Valid no-source states: price offline from the configuration's
		// own base price.
		writeJSON(w, http.StatusOK, priceResponse{
			OK:          true,
			Source:      "offline",
			Computation: pricing.ComputeOffline(in),
		})
		return
	case err != nil:
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		OK:          true,
		Source:      "workbook",
		Method:      snap.Method,
		Workbook:    snap.Location,
		Computation: pricing.Compute(in, snap.Base, snap.Items),
	})
}

// handlePriceLive prices through a live automation session instead of the
// cached cost table.
func (s *server) handlePriceLive(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInputs(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if errs := in.Validate(); errs != nil {
		writeFieldErrors(w, errs)
		return
	}

	cfg, err := s.loadSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !cfg.CompatMode.Enabled() {
		writeError(w, r, costcache.ErrDisabled)
		return
	}
	if cfg.WorkbookPath == "" {
		writeError(w, r, costcache.ErrNoWorkbook)
		return
	}

	res, err := s.live.Compute(r.Context(), cfg.WorkbookPath, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

// handleBootstrap warms the cost cache. It always answers 200: a failed
// preload is reported in the payload and retried by the next pricing call.
func (s *server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.loadSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res := s.costs.Preload(r.Context(), cfg)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "preload": res})
}

func (s *server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.loadSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": cfg})
}

func (s *server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var cfg settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "decode settings: " + err.Error()})
		return
	}

	saved, fieldErrs, err := s.settings.Save(r.Context(), cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(fieldErrs) > 0 {
		writeFieldErrors(w, fieldErrs)
		return
	}

	// The workbook or mode may have changed; the next pricing request must
	// not see the old cost table.
	s.costs.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "settings": saved})
}

type generateRequest struct {
	Title  string          `json:"title"`
	Notes  string          `json:"notes"`
	Inputs *pricing.Inputs `json:"inputs"`
}

// handleGenerate prices the configuration, renders the quote deliverables,
// and records the quote in history.
func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "decode request: " + err.Error()})
		return
	}
	in := pricing.NewInputs()
	if req.Inputs != nil {
		in = *req.Inputs
	}
	if errs := in.Validate(); errs != nil {
		writeFieldErrors(w, errs)
		return
	}

	cfg, err := s.loadSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	source := "workbook"
	var comp pricing.Computation
	snap, err := s.costs.Get(r.Context(), cfg)
	switch {
	case errors.Is(err, costcache.ErrDisabled), errors.Is(err, costcache.ErrNoWorkbook):
		source = "offline"
		comp = pricing.ComputeOffline(in)
	case err != nil:
		writeError(w, r, err)
		return
	default:
		comp = pricing.Compute(in, snap.Base, snap.Items)
	}

	gen := outputs.NewGenerator(cfg.OutputDir)
	gen.QuoteTemplatePath = cfg.QuoteTemplatePath
	gen.CostingTemplatePath = cfg.CostingTemplatePath
	files, err := gen.Generate(outputs.Quote{
		Title:       req.Title,
		Notes:       req.Notes,
		Inputs:      in,
		Computation: comp,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.quotes.insert(r.Context(), req.Title, req.Notes, in, comp)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("quote generated",
		"quote_id", id, "run_dir", files.RunDir, "source", source)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"quote_id":    id,
		"source":      source,
		"computation": comp,
		"files":       files,
	})
}

func (s *server) handleQuotesList(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	items, err := s.quotes.list(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "quotes": items})
}

// handleOutputs serves generated deliverables from the configured output
// directory.
func (s *server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.loadSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.StripPrefix("/outputs/", http.FileServer(http.Dir(cfg.OutputDir))).ServeHTTP(w, r)
}
