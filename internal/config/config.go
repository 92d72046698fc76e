// Package config loads server configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/server needs to start.
type Config struct {
	// Addr is the listen address for the health/metrics endpoint.
	Addr string

	// DBPath is the SQLite database file path.
	DBPath string

	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

// Load reads the optional .env file, then the environment, falling back
// to defaults suitable for local development.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using environment", "error", err)
	}

	return &Config{
		Addr:     getEnv("ADDR", ":8080"),
		DBPath:   getEnv("DB_PATH", "./data/tally.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
