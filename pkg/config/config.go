// Package config loads the MCP server's runtime configuration:
// environment variables (with optional .env file) provide defaults that
// the CLI layer overrides with explicit flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Transport names the wire transport the server runs on.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Server holds the configuration needed to run the MCP server.
type Server struct {
	Transport      Transport
	Host           string
	Port           int
	RequestTimeout time.Duration
	Debug          bool

	// AuthSecret, when non-empty, gates the HTTP transport behind a
	// bearer-JWT Authenticator. Empty means no auth (suitable for a
	// locally-run stdio server or a trusted HTTP deployment).
	AuthSecret string

	// RateLimit, when non-zero, enables the HTTP transport's per-remote
	// token-bucket limiter.
	RateLimit float64
	Burst     int
}

// Address joins Host and Port into a listen address.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load loads a .env file if present (it's fine if it doesn't exist) and
// returns defaults overridable by environment variables; the CLI layer
// overrides these again with any flags the operator supplied explicitly.
func Load() (Server, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Server{}, fmt.Errorf("config: loading .env: %w", err)
	}

	return Server{
		Transport:      Transport(getEnv("MCP_TRANSPORT", string(TransportStdio))),
		Host:           getEnv("MCP_HOST", "localhost"),
		Port:           getIntEnv("MCP_PORT", 9090),
		RequestTimeout: getDurationEnv("MCP_TIMEOUT", 0),
		Debug:          getBoolEnv("MCP_DEBUG", false),
		AuthSecret:     getEnv("MCP_AUTH_SECRET", ""),
		RateLimit:      getFloatEnv("MCP_RATE_LIMIT", 0),
		Burst:          getIntEnv("MCP_RATE_BURST", 1),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBoolEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
