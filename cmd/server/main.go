package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quoteworks/quotegen/internal/automation"
	"github.com/quoteworks/quotegen/internal/config"
	"github.com/quoteworks/quotegen/internal/costcache"
	"github.com/quoteworks/quotegen/internal/db"
	"github.com/quoteworks/quotegen/internal/logging"
	"github.com/quoteworks/quotegen/internal/migrations"
	"github.com/quoteworks/quotegen/internal/settings"
	"github.com/quoteworks/quotegen/internal/workbook"
)

func main() {
	cfg := config.Load()
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := migrations.Up(database, cfg.MigrationsDir); err != nil {
		log.Error("run database migrations", "error", err)
		os.Exit(1)
	}

	settingsStore := settings.NewStore(database)
	if err := settingsStore.Ensure(context.Background()); err != nil {
		log.Error("seed settings", "error", err)
		os.Exit(1)
	}

	engine := &automation.ProcessEngine{Command: cfg.AutomationCmd, Log: log}
	loader := workbook.NewLoader(engine, log)
	cache := costcache.New(loader, log)

	srv := &server{
		db:       database,
		settings: settingsStore,
		costs:    cache,
		live:     workbook.NewLivePricer(engine, log),
		quotes:   &quoteStore{db: database},
		apiToken: cfg.APIToken,
	}

	// Warm the cost cache in the background so the first pricing request
	// does not pay for the workbook load. Failures are logged and retried
	// on demand.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if s, err := settingsStore.Load(ctx); err == nil {
			cache.Preload(ctx, s)
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(srv.authMiddleware)

	r.Get("/api/health", srv.handleHealth)
	r.Get("/api/options", srv.handleOptions)
	r.Post("/api/validate", srv.handleValidate)
	r.Post("/api/price", srv.handlePrice)
	r.Post("/api/price/refresh", srv.handlePriceRefresh)
	r.Post("/api/price/live", srv.handlePriceLive)
	r.Post("/api/bootstrap", srv.handleBootstrap)
	r.Get("/api/settings", srv.handleSettingsGet)
	r.Put("/api/settings", srv.handleSettingsPut)
	r.Post("/api/generate", srv.handleGenerate)
	r.Get("/api/quotes", srv.handleQuotesList)
	r.Get("/outputs/*", srv.handleOutputs)

	addr := ":" + cfg.Port
	log.Info("listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
