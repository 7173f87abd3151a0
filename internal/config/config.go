package config

import (
	"log/slog"
	"os"
)

const (
	defaultDBPath        = "./quotegen.db"
	defaultPort          = "8080"
	defaultMigrationsDir = "migrations"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Port          string
	DBPath        string
	MigrationsDir string

	// APIToken protects the API when set; an empty token leaves the API
	// open (local single-user deployments).
	APIToken string

	// AutomationCmd launches the spreadsheet automation helper. Empty
	// disables the automation strategy.
	AutomationCmd string

	LogLevel  string
	LogFormat string
}

// Load reads environment variables and returns a populated Config.
func Load() Config {
	// Best-effort: load local dev environment variables.
	// We don't fail if the file is missing; production should use real env injection.
	_ = loadDotEnv(".env")

	cfg := Config{
		Port:          os.Getenv("PORT"),
		DBPath:        os.Getenv("DB_PATH"),
		MigrationsDir: os.Getenv("MIGRATIONS_DIR"),
		APIToken:      os.Getenv("API_TOKEN"),
		AutomationCmd: os.Getenv("AUTOMATION_CMD"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		LogFormat:     os.Getenv("LOG_FORMAT"),
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = defaultMigrationsDir
	}

	if cfg.APIToken == "" {
		slog.Warn("API_TOKEN is not set; the API is unauthenticated")
	}
	if cfg.AutomationCmd == "" {
		slog.Info("AUTOMATION_CMD is not set; workbook automation is unavailable")
	}

	return cfg
}
