// Package config provides configuration helpers for spatialvcs commands.
package config

import (
	"os"
	"strconv"
)

// Defaults for the server and clients.
const (
	DefaultPort      = "8000"
	DefaultScanDB    = "data/scans.db"
	DefaultServerURL = "http://localhost:8000"
)

// Port returns the HTTP port from the PORT env var or the default.
func Port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return DefaultPort
}

// ScanDB returns the sqlite database path from SCAN_DB or the default.
func ScanDB() string {
	if p := os.Getenv("SCAN_DB"); p != "" {
		return p
	}
	return DefaultScanDB
}

// ServerURL returns the server base URL for client commands from SERVER_URL.
// Falls back to the provided default, then the package default.
func ServerURL(defaultURL string) string {
	if u := os.Getenv("SERVER_URL"); u != "" {
		return u
	}
	if defaultURL != "" {
		return defaultURL
	}
	return DefaultServerURL
}

// LogLevel returns the log level from LOG_LEVEL ("debug", "info", "warn",
// "error"), defaulting to "info".
func LogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return "info"
}

// FloatEnv returns a float64 env var, or the default if unset or unparsable.
func FloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
